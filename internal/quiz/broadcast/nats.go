package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second

	subjectPrefix = "quiz.session."
)

// NATS implements Broadcaster over core NATS pub/sub: at-most-once fan-out
// with no ordering guarantee, which matches the hint-only contract of the
// broadcast channel.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS dials the broadcast transport with reconnect handling.
func ConnectNATS(url string) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{nc: nc}, nil
}

func subjectFor(sessionID uuid.UUID) string {
	return subjectPrefix + sessionID.String()
}

// Publish sends the envelope on the session subject. Fire-and-forget: an
// error here means the local publish failed, not that anyone missed it.
func (b *NATS) Publish(_ context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.nc.Publish(subjectFor(env.SessionID), data); err != nil {
		return fmt.Errorf("publish to %s: %w", subjectFor(env.SessionID), err)
	}
	return nil
}

// Subscribe registers h for one session's subject.
func (b *NATS) Subscribe(sessionID uuid.UUID, h Handler) (func(), error) {
	return b.subscribe(subjectFor(sessionID), h)
}

// SubscribeAll registers h for every session subject.
func (b *NATS) SubscribeAll(h Handler) (func(), error) {
	return b.subscribe(subjectPrefix+">", h)
}

func (b *NATS) subscribe(subject string, h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed envelope")
			return
		}
		h(env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("unsubscribe failed")
		}
	}, nil
}

// Close drops the NATS connection.
func (b *NATS) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
