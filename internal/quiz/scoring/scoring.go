package scoring

import (
	"math"
	"strings"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// Score computes the points earned for an answer:
//
//	round(points × multiplier × (0.5 + 0.5 × timeRemaining / timeLimit))
//
// when correct, zero otherwise. A correct instantaneous answer earns full
// credit, a correct answer at time-out earns half credit.
func Score(q models.Question, correct bool, timeRemaining int) int {
	if !correct || q.TimeLimit <= 0 {
		return 0
	}
	if timeRemaining < 0 {
		timeRemaining = 0
	}
	if timeRemaining > q.TimeLimit {
		timeRemaining = q.TimeLimit
	}
	multiplier := q.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	factor := 0.5 + 0.5*float64(timeRemaining)/float64(q.TimeLimit)
	return int(math.Round(float64(q.Points*multiplier) * factor))
}

// Matches reports whether the submitted text answers the question. Multiple
// choice requires the exact option value; other types compare trimmed,
// case-insensitive text.
func Matches(q models.Question, answerText string) bool {
	submitted := strings.TrimSpace(answerText)
	if submitted == "" {
		return false
	}
	if q.Type == models.QuestionTypeMultipleChoice {
		return submitted == strings.TrimSpace(q.CorrectAnswer)
	}
	return strings.EqualFold(submitted, strings.TrimSpace(q.CorrectAnswer))
}

// ResponseTime derives the seconds a participant took, clamped to
// [0, timeLimit].
func ResponseTime(q models.Question, timeRemainingAtSubmit int) int {
	rt := q.TimeLimit - timeRemainingAtSubmit
	if rt < 0 {
		return 0
	}
	if rt > q.TimeLimit {
		return q.TimeLimit
	}
	return rt
}
