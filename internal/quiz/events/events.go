package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// Type identifies an event variant. The set is closed: transports reject
// anything outside it instead of forwarding loosely-typed payloads.
type Type string

const (
	TypeQuizStarted     Type = "quiz_started"
	TypeStateChanged    Type = "state_changed"
	TypeQuestionSkipped Type = "question_skipped"
)

// Envelope is the wire form of every broadcast event. Handlers may receive
// envelopes for any session in any order; they filter on SessionID and merge
// snapshots by precedence.
type Envelope struct {
	Type      Type            `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	SentAt    time.Time       `json:"sent_at"`
	Data      json.RawMessage `json:"data"`
}

// QuizStarted announces the waiting -> active transition. Receivers pull the
// authoritative row to anchor their first countdown.
type QuizStarted struct {
	SessionID uuid.UUID `json:"session_id"`
}

// StateChanged carries the full snapshot resulting from a transition or a
// countdown persist.
type StateChanged struct {
	Status               models.SessionStatus `json:"status"`
	TimeRemaining        int                  `json:"time_remaining"`
	CurrentQuestionIndex int                  `json:"current_question_index"`
}

// Snapshot converts the payload to the merge unit used by receivers.
func (e StateChanged) Snapshot() models.Snapshot {
	return models.Snapshot{
		Status:               e.Status,
		TimeRemaining:        e.TimeRemaining,
		CurrentQuestionIndex: e.CurrentQuestionIndex,
	}
}

// QuestionSkipped announces that the controller cut a question short.
type QuestionSkipped struct {
	QuestionIndex int `json:"question_index"`
}

func newEnvelope(t Type, sessionID uuid.UUID, sentAt time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, SessionID: sessionID, SentAt: sentAt, Data: data}, nil
}

// NewQuizStarted builds a quiz_started envelope.
func NewQuizStarted(sessionID uuid.UUID, sentAt time.Time) (Envelope, error) {
	return newEnvelope(TypeQuizStarted, sessionID, sentAt, QuizStarted{SessionID: sessionID})
}

// NewStateChanged builds a state_changed envelope from a snapshot.
func NewStateChanged(sessionID uuid.UUID, sentAt time.Time, snap models.Snapshot) (Envelope, error) {
	return newEnvelope(TypeStateChanged, sessionID, sentAt, StateChanged{
		Status:               snap.Status,
		TimeRemaining:        snap.TimeRemaining,
		CurrentQuestionIndex: snap.CurrentQuestionIndex,
	})
}

// NewQuestionSkipped builds a question_skipped envelope.
func NewQuestionSkipped(sessionID uuid.UUID, sentAt time.Time, questionIndex int) (Envelope, error) {
	return newEnvelope(TypeQuestionSkipped, sessionID, sentAt, QuestionSkipped{QuestionIndex: questionIndex})
}

// Decode validates an envelope at the transport boundary and returns the
// typed payload: QuizStarted, StateChanged or QuestionSkipped.
func Decode(env Envelope) (any, error) {
	switch env.Type {
	case TypeQuizStarted:
		var p QuizStarted
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal quiz_started payload: %w", err)
		}
		return p, nil

	case TypeStateChanged:
		var p StateChanged
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal state_changed payload: %w", err)
		}
		if !p.Status.Valid() {
			return nil, fmt.Errorf("state_changed: invalid status %q", p.Status)
		}
		if p.TimeRemaining < 0 || p.CurrentQuestionIndex < 0 {
			return nil, fmt.Errorf("state_changed: negative counters (time_remaining=%d index=%d)",
				p.TimeRemaining, p.CurrentQuestionIndex)
		}
		return p, nil

	case TypeQuestionSkipped:
		var p QuestionSkipped
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal question_skipped payload: %w", err)
		}
		if p.QuestionIndex < 0 {
			return nil, fmt.Errorf("question_skipped: negative question index %d", p.QuestionIndex)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
