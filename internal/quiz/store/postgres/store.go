package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

// Store implements store.Store on Postgres. Session rows have a single
// writer (the controller); answer uniqueness and score increments are
// enforced at the storage layer, not in application logic.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against the given DSN and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const sessionColumns = `id, quiz_id, status, current_question_index, time_remaining, ended_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var sess models.Session
	err := row.Scan(
		&sess.ID,
		&sess.QuizID,
		&sess.Status,
		&sess.CurrentQuestionIndex,
		&sess.TimeRemaining,
		&sess.EndedAt,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (id, quiz_id, status, current_question_index, time_remaining, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.QuizID, sess.Status, sess.CurrentQuestionIndex, sess.TimeRemaining, sess.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *Store) UpdateSessionState(ctx context.Context, id uuid.UUID, status models.SessionStatus, questionIndex, timeRemaining int, endedAt *time.Time) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE quiz_sessions
		SET status = $2, current_question_index = $3, time_remaining = $4, ended_at = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, status, questionIndex, timeRemaining, endedAt,
	)
	return scanSession(row)
}

func (s *Store) UpdateCountdown(ctx context.Context, id uuid.UUID, questionIndex, timeRemaining int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions
		SET time_remaining = $3, updated_at = now()
		WHERE id = $1 AND current_question_index = $2 AND status = $4`,
		id, questionIndex, timeRemaining, models.SessionStatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("update countdown: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// JoinParticipant inserts the participant or, on a re-join, refreshes the
// existing (session_id, user_id) row. p is populated with the canonical row:
// a re-join keeps the original id and running total, so the id handed back
// to the client always satisfies the answer ledger's foreign key.
func (s *Store) JoinParticipant(ctx context.Context, p *models.Participant) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO session_participants (id, session_id, user_id, status, total_points, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, user_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING id, status, total_points, joined_at`,
		p.ID, p.SessionID, p.UserID, p.Status, p.TotalPoints, p.JoinedAt,
	)
	if err := row.Scan(&p.ID, &p.Status, &p.TotalPoints, &p.JoinedAt); err != nil {
		return fmt.Errorf("join participant: %w", err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, user_id, status, total_points, joined_at
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Status, &p.TotalPoints, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) IncrementScore(ctx context.Context, sessionID, participantID uuid.UUID, points int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE session_participants
		SET total_points = total_points + $3
		WHERE session_id = $1 AND id = $2`,
		sessionID, participantID, points,
	)
	if err != nil {
		return fmt.Errorf("increment score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SubmitAnswer inserts the answer and credits the participant in one
// transaction. The unique index on (session_id, question_id, participant_id)
// rejects duplicates even under concurrent retries; only the first insert
// increments the participant's total.
func (s *Store) SubmitAnswer(ctx context.Context, a *models.Answer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO participant_answers
			(id, session_id, question_id, participant_id, answer_text, is_correct, points_earned, response_time, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, question_id, participant_id) DO NOTHING`,
		a.ID, a.SessionID, a.QuestionID, a.ParticipantID,
		a.AnswerText, a.IsCorrect, a.PointsEarned, a.ResponseTime, a.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyAnswered
	}

	if a.PointsEarned > 0 {
		tag, err = tx.Exec(ctx, `
			UPDATE session_participants
			SET total_points = total_points + $3
			WHERE session_id = $1 AND id = $2`,
			a.SessionID, a.ParticipantID, a.PointsEarned,
		)
		if err != nil {
			return fmt.Errorf("credit participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submit tx: %w", err)
	}
	return nil
}

func (s *Store) ListAnswers(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, question_id, participant_id, answer_text, is_correct, points_earned, response_time, submitted_at
		FROM participant_answers
		WHERE session_id = $1 AND question_id = $2
		ORDER BY submitted_at`,
		sessionID, questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.ParticipantID,
			&a.AnswerText, &a.IsCorrect, &a.PointsEarned, &a.ResponseTime, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAnswer(ctx context.Context, sessionID, questionID, participantID uuid.UUID) (*models.Answer, error) {
	var a models.Answer
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, question_id, participant_id, answer_text, is_correct, points_earned, response_time, submitted_at
		FROM participant_answers
		WHERE session_id = $1 AND question_id = $2 AND participant_id = $3`,
		sessionID, questionID, participantID,
	).Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.ParticipantID,
		&a.AnswerText, &a.IsCorrect, &a.PointsEarned, &a.ResponseTime, &a.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return &a, nil
}

func (s *Store) GetQuestion(ctx context.Context, quizID uuid.UUID, orderNumber int) (*models.Question, error) {
	var q models.Question
	err := s.pool.QueryRow(ctx, `
		SELECT id, quiz_id, text, type, options, correct_answer, points, time_limit, multiplier, order_number
		FROM quiz_questions
		WHERE quiz_id = $1 AND order_number = $2`,
		quizID, orderNumber,
	).Scan(&q.ID, &q.QuizID, &q.Text, &q.Type, &q.Options,
		&q.CorrectAnswer, &q.Points, &q.TimeLimit, &q.Multiplier, &q.OrderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &q, nil
}

func (s *Store) CountQuestions(ctx context.Context, quizID uuid.UUID) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM quiz_questions WHERE quiz_id = $1`, quizID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}
