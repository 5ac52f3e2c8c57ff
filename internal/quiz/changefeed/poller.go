package changefeed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

// Poller is the ultimate fallback for participants that missed both the
// broadcast and the push subscription: it refetches the session row on a
// fixed cadence and feeds it through the same handler.
type Poller struct {
	sessions  store.SessionStore
	sessionID uuid.UUID
	interval  time.Duration
	clock     clockwork.Clock
	handler   Handler
}

// NewPoller builds a poller for one session.
func NewPoller(sessions store.SessionStore, sessionID uuid.UUID, interval time.Duration, clock clockwork.Clock, handler Handler) *Poller {
	return &Poller{
		sessions:  sessions,
		sessionID: sessionID,
		interval:  interval,
		clock:     clock,
		handler:   handler,
	}
}

// Run blocks until ctx is cancelled. Fetch failures never stop the loop: a
// transient error just means the next poll tries again.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			sess, err := p.sessions.GetSession(ctx, p.sessionID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					// session deleted mid-flight: nothing to mirror, keep polling
					continue
				}
				log.Warn().Err(err).Str("session_id", p.sessionID.String()).Msg("poll fetch failed")
				continue
			}
			p.handler(Change{Operation: OpUpdate, Session: *sess})
		}
	}
}
