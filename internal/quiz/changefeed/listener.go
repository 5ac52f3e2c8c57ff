package changefeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// ListenerConfig tunes the LISTEN/NOTIFY subscription and its catch-up
// sweep of undelivered mirror rows.
type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // channel name to LISTEN on
	FallbackInterval time.Duration // how often to sweep for missed changes
	PingInterval     time.Duration
	BatchSize        int
}

// DefaultListenerConfig returns production defaults.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "session_changes",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Listener subscribes to the session change mirror via Postgres
// LISTEN/NOTIFY. Notifications carry the mirror row id; the row itself is
// fetched, decoded and handed to the handler. A periodic fallback sweep
// delivers rows whose notifications were lost.
type Listener struct {
	db       *sql.DB
	listener *pq.Listener
	handler  Handler
	cfg      ListenerConfig
}

// NewListener opens the notification subscription. The *sql.DB is used for
// mirror-row queries and stays owned by the caller.
func NewListener(db *sql.DB, handler Handler, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("change feed listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.NotifyChannel, err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for session changes")

	return &Listener{
		db:       db,
		listener: l,
		handler:  handler,
		cfg:      cfg,
	}, nil
}

// Start blocks, delivering changes until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("change feed listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("change feed listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was lost and is reconnecting
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle change notification")
			}
		case <-fallbackTicker.C:
			if err := l.processUndelivered(ctx); err != nil {
				log.Error().Err(err).Msg("failed to sweep undelivered changes")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping change feed listener")
			}
		}
	}
}

// Stop closes the notification subscription.
func (l *Listener) Stop() error {
	return l.listener.Close()
}

func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid change id in notification: %w", err)
	}

	row := l.db.QueryRowContext(ctx, `
		SELECT session_id, operation, payload
		FROM session_changes
		WHERE id = $1 AND delivered_at IS NULL`,
		id,
	)

	change, err := scanChange(row)
	if err != nil {
		if err == sql.ErrNoRows {
			// already delivered by the fallback sweep
			return nil
		}
		return err
	}

	l.handler(*change)
	return l.markDelivered(ctx, id)
}

// processUndelivered is the catch-up path for notifications that never
// arrived. Order is best effort; handlers merge by precedence anyway.
func (l *Listener) processUndelivered(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session_id, operation, payload
		FROM session_changes
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		l.cfg.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("fetch undelivered changes: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id     uuid.UUID
		change Change
	}
	var batch []pending
	for rows.Next() {
		var (
			id        uuid.UUID
			sessionID uuid.UUID
			operation string
			payload   pqtype.NullRawMessage
		)
		if err := rows.Scan(&id, &sessionID, &operation, &payload); err != nil {
			return fmt.Errorf("scan undelivered change: %w", err)
		}
		change, err := decodeChange(operation, payload)
		if err != nil {
			log.Warn().Err(err).Str("change_id", id.String()).Msg("skipping malformed change row")
			continue
		}
		batch = append(batch, pending{id: id, change: *change})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range batch {
		l.handler(p.change)
		if err := l.markDelivered(ctx, p.id); err != nil {
			log.Error().Err(err).Str("change_id", p.id.String()).Msg("failed to mark change delivered")
		}
	}
	return nil
}

func (l *Listener) markDelivered(ctx context.Context, id uuid.UUID) error {
	if _, err := l.db.ExecContext(ctx,
		`UPDATE session_changes SET delivered_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark change delivered: %w", err)
	}
	return nil
}

func scanChange(row *sql.Row) (*Change, error) {
	var (
		sessionID uuid.UUID
		operation string
		payload   pqtype.NullRawMessage
	)
	if err := row.Scan(&sessionID, &operation, &payload); err != nil {
		return nil, err
	}
	return decodeChange(operation, payload)
}

func decodeChange(operation string, payload pqtype.NullRawMessage) (*Change, error) {
	if !payload.Valid {
		return nil, fmt.Errorf("change row has no payload")
	}
	var sess models.Session
	if err := json.Unmarshal(payload.RawMessage, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal mirrored session: %w", err)
	}
	return &Change{Operation: Operation(operation), Session: sess}, nil
}
