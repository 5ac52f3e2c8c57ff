package results

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

// QuestionSummary aggregates one question's answers. It is computed
// strictly from the answer ledger; broadcast payloads are hints and never
// consulted here.
type QuestionSummary struct {
	QuestionIndex int            `json:"question_index"`
	Distribution  map[string]int `json:"distribution"`
	CorrectCount  int            `json:"correct_count"`
	TotalAnswered int            `json:"total_answered"`
}

// LeaderboardEntry is one row of the final standings.
type LeaderboardEntry struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	UserID        uuid.UUID `json:"user_id"`
	TotalPoints   int       `json:"total_points"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Aggregator computes per-question distributions and session standings from
// the durable stores. The redis cache is optional and best-effort.
type Aggregator struct {
	store store.Store
	cache *LeaderboardCache
}

// NewAggregator builds an aggregator; cache may be nil.
func NewAggregator(st store.Store, cache *LeaderboardCache) *Aggregator {
	return &Aggregator{store: st, cache: cache}
}

// QuestionResults tallies the ledger for one question: per-option counts
// (every option present, zero or not), correct answers and total answered.
func (a *Aggregator) QuestionResults(ctx context.Context, sessionID uuid.UUID, q models.Question) (QuestionSummary, error) {
	answers, err := a.store.ListAnswers(ctx, sessionID, q.ID)
	if err != nil {
		return QuestionSummary{}, fmt.Errorf("list answers: %w", err)
	}

	summary := QuestionSummary{
		QuestionIndex: q.OrderNumber,
		Distribution:  make(map[string]int, len(q.Options)),
		TotalAnswered: len(answers),
	}
	for _, opt := range q.Options {
		summary.Distribution[opt] = 0
	}

	for _, ans := range answers {
		if ans.IsCorrect {
			summary.CorrectCount++
		}
		summary.Distribution[bucketFor(q, ans.AnswerText)]++
	}
	return summary, nil
}

// bucketFor maps an answer text onto a distribution bucket: the matching
// option value for choice questions, the trimmed text otherwise.
func bucketFor(q models.Question, answerText string) string {
	trimmed := strings.TrimSpace(answerText)
	for _, opt := range q.Options {
		if trimmed == strings.TrimSpace(opt) {
			return opt
		}
	}
	return trimmed
}

// Leaderboard returns all participants ordered by total points descending,
// ties broken by earliest join. The cache mirror is refreshed best-effort.
func (a *Aggregator) Leaderboard(ctx context.Context, sessionID uuid.UUID) ([]LeaderboardEntry, error) {
	participants, err := a.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, LeaderboardEntry{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			TotalPoints:   p.TotalPoints,
			JoinedAt:      p.JoinedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ParticipantID.String() < entries[j].ParticipantID.String()
	})

	if a.cache != nil {
		if err := a.cache.Store(ctx, sessionID, entries); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("leaderboard cache refresh failed")
		}
	}
	return entries, nil
}
