package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a live quiz session.
type SessionStatus string

const (
	SessionStatusWaiting       SessionStatus = "waiting"
	SessionStatusActive        SessionStatus = "active"
	SessionStatusPaused        SessionStatus = "paused"
	SessionStatusQuestionEnded SessionStatus = "question_ended"
	SessionStatusEnded         SessionStatus = "ended"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusPaused,
		SessionStatusQuestionEnded, SessionStatusEnded:
		return true
	}
	return false
}

// Progress ranks statuses in state-machine order within a single question.
// A snapshot whose status ranks higher can never be stale relative to a
// lower-ranked one for the same question index.
func (s SessionStatus) Progress() int {
	switch s {
	case SessionStatusWaiting:
		return 0
	case SessionStatusActive, SessionStatusPaused:
		return 1
	case SessionStatusQuestionEnded:
		return 2
	case SessionStatusEnded:
		return 3
	}
	return -1
}

// Session represents one live run of a quiz's question sequence.
// The controller process is the only writer of session rows.
type Session struct {
	ID                   uuid.UUID     `json:"id"`
	QuizID               uuid.UUID     `json:"quiz_id"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	TimeRemaining        int           `json:"time_remaining"`
	EndedAt              *time.Time    `json:"ended_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Snapshot returns the compact authoritative-state tuple for this session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Status:               s.Status,
		TimeRemaining:        s.TimeRemaining,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
	}
}
