package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations are applied in order and written to be re-runnable.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS quiz_questions (
		id             uuid PRIMARY KEY,
		quiz_id        uuid NOT NULL,
		text           text NOT NULL,
		type           text NOT NULL,
		options        text[] NOT NULL DEFAULT '{}',
		correct_answer text NOT NULL,
		points         integer NOT NULL CHECK (points > 0),
		time_limit     integer NOT NULL CHECK (time_limit > 0),
		multiplier     integer NOT NULL DEFAULT 1 CHECK (multiplier IN (1, 2)),
		order_number   integer NOT NULL,
		UNIQUE (quiz_id, order_number)
	)`,

	`CREATE TABLE IF NOT EXISTS quiz_sessions (
		id                     uuid PRIMARY KEY,
		quiz_id                uuid NOT NULL,
		status                 text NOT NULL DEFAULT 'waiting',
		current_question_index integer NOT NULL DEFAULT 0 CHECK (current_question_index >= 0),
		time_remaining         integer NOT NULL DEFAULT 0 CHECK (time_remaining >= 0),
		ended_at               timestamptz,
		created_at             timestamptz NOT NULL DEFAULT now(),
		updated_at             timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS session_participants (
		id           uuid PRIMARY KEY,
		session_id   uuid NOT NULL REFERENCES quiz_sessions (id),
		user_id      uuid NOT NULL,
		status       text NOT NULL DEFAULT 'waiting',
		total_points integer NOT NULL DEFAULT 0 CHECK (total_points >= 0),
		joined_at    timestamptz NOT NULL DEFAULT now(),
		UNIQUE (session_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS participant_answers (
		id             uuid PRIMARY KEY,
		session_id     uuid NOT NULL REFERENCES quiz_sessions (id),
		question_id    uuid NOT NULL,
		participant_id uuid NOT NULL REFERENCES session_participants (id),
		answer_text    text NOT NULL,
		is_correct     boolean NOT NULL,
		points_earned  integer NOT NULL CHECK (points_earned >= 0),
		response_time  integer NOT NULL CHECK (response_time >= 0),
		submitted_at   timestamptz NOT NULL DEFAULT now(),
		UNIQUE (session_id, question_id, participant_id)
	)`,

	// Change mirror: every session row write lands here durably before the
	// notification goes out, so listeners that miss the NOTIFY can still
	// catch up from undelivered rows.
	`CREATE TABLE IF NOT EXISTS session_changes (
		id           uuid PRIMARY KEY,
		session_id   uuid NOT NULL,
		operation    text NOT NULL,
		payload      jsonb NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now(),
		delivered_at timestamptz
	)`,

	`CREATE INDEX IF NOT EXISTS session_changes_undelivered_idx
		ON session_changes (created_at) WHERE delivered_at IS NULL`,

	`CREATE OR REPLACE FUNCTION notify_session_change() RETURNS trigger AS $$
	DECLARE
		change_id uuid := gen_random_uuid();
	BEGIN
		INSERT INTO session_changes (id, session_id, operation, payload)
		VALUES (change_id, NEW.id, TG_OP, to_jsonb(NEW));
		PERFORM pg_notify('session_changes', change_id::text);
		RETURN NEW;
	END
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS quiz_sessions_notify ON quiz_sessions`,

	`CREATE TRIGGER quiz_sessions_notify
		AFTER INSERT OR UPDATE ON quiz_sessions
		FOR EACH ROW EXECUTE FUNCTION notify_session_change()`,
}

// Migrate applies the schema, including the change-mirror trigger feeding
// the session change feed.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
