package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one row in the append-only answer ledger. At most one answer
// ever exists per (session, question, participant); the first successful
// insert wins and later writes for the same key are rejected by the store.
type Answer struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	AnswerText    string    `json:"answer_text"`
	IsCorrect     bool      `json:"is_correct"`
	PointsEarned  int       `json:"points_earned"`
	ResponseTime  int       `json:"response_time"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
