package results

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store/memory"
)

func seedAnswers(t *testing.T, st *memory.Store, sessionID uuid.UUID, q models.Question, texts map[uuid.UUID]string) {
	t.Helper()
	ctx := context.Background()
	base := time.Now()
	i := 0
	for participantID, text := range texts {
		a := &models.Answer{
			ID:            uuid.New(),
			SessionID:     sessionID,
			QuestionID:    q.ID,
			ParticipantID: participantID,
			AnswerText:    text,
			IsCorrect:     text == q.CorrectAnswer,
			SubmittedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := st.SubmitAnswer(ctx, a); err != nil {
			t.Fatalf("seed answer: %v", err)
		}
		i++
	}
}

func TestQuestionResultsDistribution(t *testing.T) {
	st := memory.New()
	sessionID := uuid.New()
	q := models.Question{
		ID:            uuid.New(),
		QuizID:        uuid.New(),
		Type:          models.QuestionTypeMultipleChoice,
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: "A",
		OrderNumber:   3,
	}

	seedAnswers(t, st, sessionID, q, map[uuid.UUID]string{
		uuid.New(): "A",
		uuid.New(): "A",
		uuid.New(): "B",
	})

	agg := NewAggregator(st, nil)
	summary, err := agg.QuestionResults(context.Background(), sessionID, q)
	if err != nil {
		t.Fatalf("QuestionResults: %v", err)
	}

	if summary.QuestionIndex != 3 {
		t.Errorf("question index = %d, want 3", summary.QuestionIndex)
	}
	if summary.TotalAnswered != 3 {
		t.Errorf("total answered = %d, want 3", summary.TotalAnswered)
	}
	if summary.CorrectCount != 2 {
		t.Errorf("correct count = %d, want 2", summary.CorrectCount)
	}

	want := map[string]int{"A": 2, "B": 1, "C": 0, "D": 0}
	for opt, count := range want {
		if summary.Distribution[opt] != count {
			t.Errorf("distribution[%s] = %d, want %d", opt, summary.Distribution[opt], count)
		}
	}
}

func TestQuestionResultsEmptyLedger(t *testing.T) {
	st := memory.New()
	q := models.Question{
		ID:      uuid.New(),
		Type:    models.QuestionTypeMultipleChoice,
		Options: []string{"A", "B"},
	}

	agg := NewAggregator(st, nil)
	summary, err := agg.QuestionResults(context.Background(), uuid.New(), q)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalAnswered != 0 || summary.CorrectCount != 0 {
		t.Fatalf("unexpected summary for empty ledger: %+v", summary)
	}
	if summary.Distribution["A"] != 0 || summary.Distribution["B"] != 0 {
		t.Fatalf("options must be present with zero counts: %+v", summary.Distribution)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	sessionID := uuid.New()
	base := time.Now()

	join := func(points int, joinedAt time.Time) uuid.UUID {
		p := &models.Participant{
			ID:          uuid.New(),
			SessionID:   sessionID,
			UserID:      uuid.New(),
			Status:      models.ParticipantStatusStarted,
			TotalPoints: points,
			JoinedAt:    joinedAt,
		}
		if err := st.JoinParticipant(ctx, p); err != nil {
			t.Fatal(err)
		}
		return p.ID
	}

	third := join(100, base)
	first := join(300, base.Add(time.Minute))
	// Tied on points: earlier join ranks higher.
	secondLate := join(200, base.Add(2*time.Minute))
	secondEarly := join(200, base.Add(time.Minute))

	agg := NewAggregator(st, nil)
	entries, err := agg.Leaderboard(ctx, sessionID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}

	gotOrder := []uuid.UUID{entries[0].ParticipantID, entries[1].ParticipantID, entries[2].ParticipantID, entries[3].ParticipantID}
	wantOrder := []uuid.UUID{first, secondEarly, secondLate, third}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("rank %d = %s, want %s (full: %+v)", i, gotOrder[i], wantOrder[i], entries)
		}
	}
}

func TestLeaderboardEmptySession(t *testing.T) {
	agg := NewAggregator(memory.New(), nil)
	entries, err := agg.Leaderboard(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", entries)
	}
}
