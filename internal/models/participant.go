package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus defines whether a participant is still in the lobby or
// has started answering.
type ParticipantStatus string

const (
	ParticipantStatusWaiting ParticipantStatus = "waiting"
	ParticipantStatusStarted ParticipantStatus = "started"
)

// Participant is one competitor in a session. TotalPoints is monotonically
// non-decreasing within a session; rows are never deleted while it runs.
type Participant struct {
	ID          uuid.UUID         `json:"id"`
	SessionID   uuid.UUID         `json:"session_id"`
	UserID      uuid.UUID         `json:"user_id"`
	Status      ParticipantStatus `json:"status"`
	TotalPoints int               `json:"total_points"`
	JoinedAt    time.Time         `json:"joined_at"`
}
