package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

var (
	// ErrNotFound is returned when a session, participant or question row
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyAnswered is returned when an answer for the same
	// (session, question, participant) key was already recorded. The first
	// successful write wins; this is a non-fatal conflict.
	ErrAlreadyAnswered = errors.New("answer already recorded")
)

// SessionStore is the strongly consistent record of session state. Row
// writes are linearizable per row and the controller is the only writer.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// UpdateSessionState overwrites the mutable session fields and returns
	// the stored row. ErrNotFound if the session was deleted mid-flight.
	UpdateSessionState(ctx context.Context, id uuid.UUID, status models.SessionStatus, questionIndex, timeRemaining int, endedAt *time.Time) (*models.Session, error)
	// UpdateCountdown persists a ticking time_remaining without touching the
	// rest of the row. The write is conditional on the session still being
	// active on the same question, so an in-flight persist can never
	// overwrite a transition that committed meanwhile. Returns false when
	// the condition no longer held.
	UpdateCountdown(ctx context.Context, id uuid.UUID, questionIndex, timeRemaining int) (bool, error)
}

// ParticipantRegistry is the durable set of joined participants and their
// point totals.
type ParticipantRegistry interface {
	JoinParticipant(ctx context.Context, p *models.Participant) error
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	// IncrementScore adds points atomically; concurrent increments must not
	// lose updates.
	IncrementScore(ctx context.Context, sessionID, participantID uuid.UUID, points int) error
}

// AnswerLedger is the append-only, uniqueness-enforced answer record.
type AnswerLedger interface {
	// SubmitAnswer inserts the answer and credits PointsEarned to the
	// participant in a single atomic step. Uniqueness on the
	// (session, question, participant) key is enforced by the storage
	// layer; a duplicate returns ErrAlreadyAnswered and credits nothing.
	SubmitAnswer(ctx context.Context, a *models.Answer) error
	ListAnswers(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.Answer, error)
	GetAnswer(ctx context.Context, sessionID, questionID, participantID uuid.UUID) (*models.Answer, error)
}

// QuestionSource exposes quiz content owned by the out-of-scope authoring
// component. Questions are immutable during a session.
type QuestionSource interface {
	GetQuestion(ctx context.Context, quizID uuid.UUID, orderNumber int) (*models.Question, error)
	CountQuestions(ctx context.Context, quizID uuid.UUID) (int, error)
}

// Store bundles every durable collaborator the engine coordinates through.
type Store interface {
	SessionStore
	ParticipantRegistry
	AnswerLedger
	QuestionSource
}
