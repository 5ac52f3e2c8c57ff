package models

import "github.com/google/uuid"

// QuestionType defines the answer format of a question.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// Question is quiz content owned by the authoring component. It is immutable
// for the lifetime of a session; OrderNumber defines the question sequence.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	QuizID        uuid.UUID    `json:"quiz_id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Points        int          `json:"points"`
	TimeLimit     int          `json:"time_limit"`
	Multiplier    int          `json:"multiplier"`
	OrderNumber   int          `json:"order_number"`
}
