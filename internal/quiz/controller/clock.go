package controller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// RunClock drives the authoritative countdown until ctx is cancelled. Ticks
// never block on the store or the broadcaster: countdown persists run in a
// single in-flight goroutine, and only the final zero transition is written
// synchronously.
func (c *Controller) RunClock(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			c.tick(ctx)
		}
	}
}

// persistCadenceTicks is how many ticks may pass between countdown persists
// before one is forced regardless of the remaining value.
func (c *Controller) persistCadenceTicks() int {
	if c.cfg.TickInterval <= 0 {
		return 1
	}
	n := int(c.cfg.PersistEvery / c.cfg.TickInterval)
	if n < 1 {
		n = 1
	}
	return n
}

func (c *Controller) tick(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil || c.session.Status != models.SessionStatusActive {
		c.mu.Unlock()
		return
	}
	if c.session.TimeRemaining > 0 {
		c.session.TimeRemaining--
	}
	remaining := c.session.TimeRemaining
	c.ticksSincePersist++

	// Persist densely near zero so late joiners re-anchor tightly, sparsely
	// otherwise. The zero transition below persists on its own.
	persist := remaining > 0 &&
		(remaining < 10 || remaining%5 == 0 || c.ticksSincePersist >= c.persistCadenceTicks())
	if persist && !c.persistInFlight {
		c.persistInFlight = true
		go c.persistCountdown(ctx)
	}
	c.mu.Unlock()

	if remaining == 0 {
		if err := c.endQuestion(ctx); err != nil && !errors.Is(err, ErrInvalidTransition) {
			log.Error().Err(err).Msg("question end transition failed")
		}
	}
}

// persistCountdown writes the current remaining time and rebroadcasts the
// snapshot. A single attempt: a failed write is healed by the next cadence
// beat, and the broadcast resend policy covers the lossy channel.
//
// The store write runs outside the lock so a slow store never stalls the
// tick loop. It is safe unlocked: the write is conditional on the row still
// being active on the same question, so a transition that commits while the
// persist is in flight can never be overwritten by it.
func (c *Controller) persistCountdown(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil || c.session.Status != models.SessionStatusActive {
		c.persistInFlight = false
		c.mu.Unlock()
		return
	}
	id := c.session.ID
	index := c.session.CurrentQuestionIndex
	remaining := c.session.TimeRemaining
	c.mu.Unlock()

	applied, err := c.store.UpdateCountdown(ctx, id, index, remaining)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistInFlight = false
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", id.String()).
			Int("time_remaining", remaining).
			Msg("countdown persist failed")
		return
	}
	// A transition beat the write; its state is newer than this countdown.
	if !applied || c.session.Status != models.SessionStatusActive || c.session.CurrentQuestionIndex != index {
		return
	}
	c.ticksSincePersist = 0
	c.publishSnapshotLocked(ctx)
}

// Run drives a full session lifecycle: start, auto-advance advanceAfter
// after each question ends, and return once the session is ended or ctx is
// cancelled. RunClock must be running alongside.
func (c *Controller) Run(ctx context.Context, advanceAfter time.Duration) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.endedCh:
			if c.Session().Status == models.SessionStatusEnded {
				return nil
			}

			timer := c.clock.NewTimer(advanceAfter)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				timer.Stop()
				return nil
			}

			if err := c.Advance(ctx); err != nil {
				return err
			}
			if c.Session().Status == models.SessionStatusEnded {
				return nil
			}
		}
	}
}
