package answers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/scoring"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

var (
	// ErrSessionNotActive is returned for submissions outside the active
	// answering window.
	ErrSessionNotActive = errors.New("session is not accepting answers")
	// ErrUnknownQuestion is returned when the submitted question does not
	// match the session's current question. This is a programmer error on
	// the caller's side, not a race to retry.
	ErrUnknownQuestion = errors.New("question does not match current session state")
)

// Submission is one participant's answer to the current question.
type Submission struct {
	SessionID             uuid.UUID
	QuestionID            uuid.UUID
	ParticipantID         uuid.UUID
	AnswerText            string
	TimeRemainingAtSubmit int
}

// Submitter runs the idempotent answer pipeline: precondition checks,
// normalized matching, scoring, then a single atomic ledger write that also
// credits the participant.
type Submitter struct {
	store store.Store
	clock clockwork.Clock
}

// NewSubmitter builds a submitter over the given store.
func NewSubmitter(st store.Store, clock clockwork.Clock) *Submitter {
	return &Submitter{store: st, clock: clock}
}

// Submit records one answer. Duplicate submissions for the same
// (session, question, participant) key return store.ErrAlreadyAnswered and
// leave the ledger and the participant's total untouched.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*models.Answer, error) {
	sess, err := s.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrSessionNotActive, sess.Status)
	}

	q, err := s.store.GetQuestion(ctx, sess.QuizID, sess.CurrentQuestionIndex)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no question at index %d", ErrUnknownQuestion, sess.CurrentQuestionIndex)
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	if q.ID != sub.QuestionID {
		return nil, fmt.Errorf("%w: submitted %s, current is %s", ErrUnknownQuestion, sub.QuestionID, q.ID)
	}

	correct := scoring.Matches(*q, sub.AnswerText)
	answer := &models.Answer{
		ID:            uuid.New(),
		SessionID:     sub.SessionID,
		QuestionID:    sub.QuestionID,
		ParticipantID: sub.ParticipantID,
		AnswerText:    sub.AnswerText,
		IsCorrect:     correct,
		PointsEarned:  scoring.Score(*q, correct, sub.TimeRemainingAtSubmit),
		ResponseTime:  scoring.ResponseTime(*q, sub.TimeRemainingAtSubmit),
		SubmittedAt:   s.clock.Now(),
	}

	if err := s.store.SubmitAnswer(ctx, answer); err != nil {
		return nil, err
	}

	log.Debug().
		Str("session_id", sub.SessionID.String()).
		Str("participant_id", sub.ParticipantID.String()).
		Bool("correct", correct).
		Int("points_earned", answer.PointsEarned).
		Msg("answer recorded")

	return answer, nil
}
