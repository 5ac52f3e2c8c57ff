package answers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store/memory"
)

type fixture struct {
	store       *memory.Store
	submitter   *Submitter
	sessionID   uuid.UUID
	question    models.Question
	participant models.Participant
}

func newFixture(t *testing.T, status models.SessionStatus) *fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()

	quizID := uuid.New()
	q := models.Question{
		ID:            uuid.New(),
		QuizID:        quizID,
		Text:          "capital of norway",
		Type:          models.QuestionTypeMultipleChoice,
		Options:       []string{"Oslo", "Bergen", "Stavanger", "Tromsø"},
		CorrectAnswer: "Oslo",
		Points:        100,
		TimeLimit:     30,
		Multiplier:    1,
		OrderNumber:   0,
	}
	st.SeedQuestions(quizID, []models.Question{q})

	sess := &models.Session{
		ID:            uuid.New(),
		QuizID:        quizID,
		Status:        status,
		TimeRemaining: 30,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	p := models.Participant{
		ID:        uuid.New(),
		SessionID: sess.ID,
		UserID:    uuid.New(),
		Status:    models.ParticipantStatusStarted,
		JoinedAt:  time.Now(),
	}
	if err := st.JoinParticipant(ctx, &p); err != nil {
		t.Fatal(err)
	}

	return &fixture{
		store:       st,
		submitter:   NewSubmitter(st, clockwork.NewFakeClock()),
		sessionID:   sess.ID,
		question:    q,
		participant: p,
	}
}

func (f *fixture) submission(text string, remaining int) Submission {
	return Submission{
		SessionID:             f.sessionID,
		QuestionID:            f.question.ID,
		ParticipantID:         f.participant.ID,
		AnswerText:            text,
		TimeRemainingAtSubmit: remaining,
	}
}

func TestSubmitScoresAndCredits(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)
	ctx := context.Background()

	answer, err := f.submitter.Submit(ctx, f.submission("Oslo", 30))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !answer.IsCorrect || answer.PointsEarned != 100 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answer.ResponseTime != 0 {
		t.Fatalf("response time = %d, want 0", answer.ResponseTime)
	}

	participants, err := f.store.ListParticipants(ctx, f.sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(participants) != 1 || participants[0].TotalPoints != 100 {
		t.Fatalf("participant not credited: %+v", participants)
	}
}

func TestSubmitWrongAnswerEarnsNothing(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)

	answer, err := f.submitter.Submit(context.Background(), f.submission("Bergen", 30))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if answer.IsCorrect || answer.PointsEarned != 0 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestSubmitDuplicateKeepsFirstWrite(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)
	ctx := context.Background()

	if _, err := f.submitter.Submit(ctx, f.submission("Bergen", 30)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := f.submitter.Submit(ctx, f.submission("Oslo", 30))
	if !errors.Is(err, store.ErrAlreadyAnswered) {
		t.Fatalf("err = %v, want ErrAlreadyAnswered", err)
	}

	recorded, err := f.store.GetAnswer(ctx, f.sessionID, f.question.ID, f.participant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if recorded.AnswerText != "Bergen" {
		t.Fatalf("later submit overwrote the ledger: %+v", recorded)
	}

	participants, _ := f.store.ListParticipants(ctx, f.sessionID)
	if participants[0].TotalPoints != 0 {
		t.Fatalf("rejected duplicate credited points: %d", participants[0].TotalPoints)
	}
}

func TestSubmitRaceAdmitsExactlyOne(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)
	ctx := context.Background()

	const n = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.submitter.Submit(ctx, f.submission("Oslo", 25))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrAlreadyAnswered):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || duplicates != n-1 {
		t.Fatalf("successes = %d, duplicates = %d, want 1 and %d", successes, duplicates, n-1)
	}

	// Exactly one credit landed.
	participants, _ := f.store.ListParticipants(ctx, f.sessionID)
	answer, err := f.store.GetAnswer(ctx, f.sessionID, f.question.ID, f.participant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if participants[0].TotalPoints != answer.PointsEarned {
		t.Fatalf("total %d does not match single answer %d", participants[0].TotalPoints, answer.PointsEarned)
	}
}

func TestSubmitRejectsInactiveSession(t *testing.T) {
	for _, status := range []models.SessionStatus{
		models.SessionStatusWaiting,
		models.SessionStatusPaused,
		models.SessionStatusQuestionEnded,
		models.SessionStatusEnded,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, status)
			_, err := f.submitter.Submit(context.Background(), f.submission("Oslo", 10))
			if !errors.Is(err, ErrSessionNotActive) {
				t.Fatalf("err = %v, want ErrSessionNotActive", err)
			}
		})
	}
}

func TestSubmitRejectsWrongQuestion(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)

	sub := f.submission("Oslo", 10)
	sub.QuestionID = uuid.New()
	_, err := f.submitter.Submit(context.Background(), sub)
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	f := newFixture(t, models.SessionStatusActive)

	sub := f.submission("Oslo", 10)
	sub.SessionID = uuid.New()
	_, err := f.submitter.Submit(context.Background(), sub)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
