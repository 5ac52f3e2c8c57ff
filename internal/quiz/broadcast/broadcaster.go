package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
)

// Handler receives envelopes from a subscription. It may fire zero or more
// times, in any order, and for any session; callers filter by the embedded
// session ID.
type Handler func(events.Envelope)

// Broadcaster is the lossy fan-out transport for low-latency hints. Publish
// is fire-and-forget: no delivery or ordering guarantee, and failures are
// absorbed by callers because the change feed is the durable path.
type Broadcaster interface {
	Publish(ctx context.Context, env events.Envelope) error
	Subscribe(sessionID uuid.UUID, h Handler) (func(), error)
	SubscribeAll(h Handler) (func(), error)
}

// ResendPolicy duplicates each published envelope to offset drop probability
// on the lossy path. Extra is the number of duplicate sends after the first;
// Delay is the gap before each duplicate.
type ResendPolicy struct {
	Extra int
	Delay time.Duration
}

// DefaultResendPolicy resends each envelope once after a short delay.
func DefaultResendPolicy() ResendPolicy {
	return ResendPolicy{Extra: 1, Delay: 300 * time.Millisecond}
}

// Resender wraps a Broadcaster and republishes every envelope according to a
// ResendPolicy. Receivers must already be idempotent against duplicate
// snapshots, so resending the identical payload is safe.
type Resender struct {
	next   Broadcaster
	policy ResendPolicy
	clock  clockwork.Clock
}

// NewResender wraps next with policy. The clock is injectable so resend
// timing is testable.
func NewResender(next Broadcaster, policy ResendPolicy, clock clockwork.Clock) *Resender {
	return &Resender{next: next, policy: policy, clock: clock}
}

// Publish sends env immediately and schedules the configured duplicates. The
// first send's error is returned; duplicate failures are only logged.
func (r *Resender) Publish(ctx context.Context, env events.Envelope) error {
	if err := r.next.Publish(ctx, env); err != nil {
		return err
	}

	for i := 0; i < r.policy.Extra; i++ {
		delay := r.policy.Delay * time.Duration(i+1)
		go func(delay time.Duration) {
			timer := r.clock.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.Chan():
				if err := r.next.Publish(ctx, env); err != nil {
					log.Warn().
						Err(err).
						Str("session_id", env.SessionID.String()).
						Str("event_type", string(env.Type)).
						Msg("resend failed")
				}
			case <-ctx.Done():
			}
		}(delay)
	}
	return nil
}

// Subscribe delegates to the wrapped broadcaster.
func (r *Resender) Subscribe(sessionID uuid.UUID, h Handler) (func(), error) {
	return r.next.Subscribe(sessionID, h)
}

// SubscribeAll delegates to the wrapped broadcaster.
func (r *Resender) SubscribeAll(h Handler) (func(), error) {
	return r.next.SubscribeAll(h)
}
