package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/broadcast"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store/memory"
)

func testQuestions(quizID uuid.UUID, limits ...int) []models.Question {
	qs := make([]models.Question, 0, len(limits))
	for i, limit := range limits {
		qs = append(qs, models.Question{
			ID:            uuid.New(),
			QuizID:        quizID,
			Text:          "q",
			Type:          models.QuestionTypeMultipleChoice,
			Options:       []string{"A", "B"},
			CorrectAnswer: "A",
			Points:        100,
			TimeLimit:     limit,
			Multiplier:    1,
			OrderNumber:   i,
		})
	}
	return qs
}

func newTestController(t *testing.T, limits ...int) (*Controller, *memory.Store, *broadcast.Memory, *models.Session) {
	t.Helper()
	st := memory.New()
	quizID := uuid.New()
	st.SeedQuestions(quizID, testQuestions(quizID, limits...))

	b := broadcast.NewMemory()
	ctrl := New(st, b, nil, clockwork.NewFakeClock(), DefaultConfig())

	sess, err := ctrl.CreateSession(context.Background(), quizID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return ctrl, st, b, sess
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", what)
}

func TestStartLoadsFirstQuestionTimeLimit(t *testing.T) {
	ctrl, _, b, _ := newTestController(t, 30, 20)
	ctx := context.Background()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess := ctrl.Session()
	if sess.Status != models.SessionStatusActive {
		t.Fatalf("status = %s, want active", sess.Status)
	}
	if sess.TimeRemaining != 30 || sess.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected state after start: %+v", sess)
	}

	published := b.Published()
	if len(published) != 2 {
		t.Fatalf("published %d events, want quiz_started + state_changed", len(published))
	}
	if published[0].Type != events.TypeQuizStarted || published[1].Type != events.TypeStateChanged {
		t.Fatalf("unexpected event sequence: %s, %s", published[0].Type, published[1].Type)
	}
}

func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("pause before start", func(t *testing.T) {
		ctrl, _, _, _ := newTestController(t, 30)
		if err := ctrl.Pause(ctx); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("double start", func(t *testing.T) {
		ctrl, _, _, _ := newTestController(t, 30)
		if err := ctrl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.Start(ctx); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("advance without question end", func(t *testing.T) {
		ctrl, _, _, _ := newTestController(t, 30)
		if err := ctrl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.Advance(ctx); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("resume while active", func(t *testing.T) {
		ctrl, _, _, _ := newTestController(t, 30)
		if err := ctrl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.Resume(ctx); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("skip after end", func(t *testing.T) {
		ctrl, _, _, _ := newTestController(t, 30)
		if err := ctrl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.Skip(ctx); err != nil {
			t.Fatal(err)
		}
		if err := ctrl.Advance(ctx); err != nil {
			t.Fatal(err)
		}
		// single question quiz: session is now ended
		if err := ctrl.Skip(ctx); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	ctrl, _, _, _ := newTestController(t, 30)
	ctx := context.Background()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	ctrl.tick(ctx)
	ctrl.tick(ctx)

	if err := ctrl.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	paused := ctrl.Session()
	if paused.Status != models.SessionStatusPaused || paused.TimeRemaining != 28 {
		t.Fatalf("unexpected paused state: %+v", paused)
	}

	// Ticks while paused must not decrement.
	ctrl.tick(ctx)
	if got := ctrl.Session().TimeRemaining; got != 28 {
		t.Fatalf("paused countdown moved to %d", got)
	}

	if err := ctrl.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	resumed := ctrl.Session()
	if resumed.Status != models.SessionStatusActive || resumed.TimeRemaining != 28 {
		t.Fatalf("unexpected resumed state: %+v", resumed)
	}
}

func TestCountdownReachesQuestionEnded(t *testing.T) {
	ctrl, st, _, sess := newTestController(t, 3)
	ctx := context.Background()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		ctrl.tick(ctx)
	}

	got := ctrl.Session()
	if got.Status != models.SessionStatusQuestionEnded || got.TimeRemaining != 0 {
		t.Fatalf("unexpected state at zero: %+v", got)
	}

	// The zero transition is durable, not just in memory.
	stored, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.SessionStatusQuestionEnded {
		t.Fatalf("stored status = %s, want question_ended", stored.Status)
	}

	select {
	case <-ctrl.QuestionEnded():
	default:
		t.Fatal("question end was not signalled")
	}

	// Further ticks are inert.
	ctrl.tick(ctx)
	if got := ctrl.Session(); got.Status != models.SessionStatusQuestionEnded || got.TimeRemaining != 0 {
		t.Fatalf("state moved after question end: %+v", got)
	}
}

func TestAdvanceWalksQuestionsThenEnds(t *testing.T) {
	ctrl, _, _, _ := newTestController(t, 30, 20)
	ctx := context.Background()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Skip(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Advance(ctx); err != nil {
		t.Fatal(err)
	}

	next := ctrl.Session()
	if next.Status != models.SessionStatusActive || next.CurrentQuestionIndex != 1 || next.TimeRemaining != 20 {
		t.Fatalf("unexpected state on second question: %+v", next)
	}

	if err := ctrl.Skip(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Advance(ctx); err != nil {
		t.Fatal(err)
	}

	ended := ctrl.Session()
	if ended.Status != models.SessionStatusEnded {
		t.Fatalf("status = %s, want ended", ended.Status)
	}
	if ended.EndedAt == nil {
		t.Fatal("EndedAt not set on ended session")
	}
	if ended.TimeRemaining != 0 {
		t.Fatalf("ended session has remaining time %d", ended.TimeRemaining)
	}
}

func TestSkipPublishesQuestionSkipped(t *testing.T) {
	ctrl, _, b, _ := newTestController(t, 30)
	ctx := context.Background()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Skip(ctx); err != nil {
		t.Fatal(err)
	}

	var sawSkip bool
	for _, env := range b.Published() {
		if env.Type == events.TypeQuestionSkipped {
			sawSkip = true
			payload, err := events.Decode(env)
			if err != nil {
				t.Fatalf("decode skip event: %v", err)
			}
			if skip := payload.(events.QuestionSkipped); skip.QuestionIndex != 0 {
				t.Fatalf("skip index = %d, want 0", skip.QuestionIndex)
			}
		}
	}
	if !sawSkip {
		t.Fatal("question_skipped never published")
	}
}

func TestResendDuplicatesBroadcast(t *testing.T) {
	st := memory.New()
	quizID := uuid.New()
	st.SeedQuestions(quizID, testQuestions(quizID, 30))

	fc := clockwork.NewFakeClock()
	inner := broadcast.NewMemory()
	resender := broadcast.NewResender(inner, broadcast.ResendPolicy{Extra: 1, Delay: 300 * time.Millisecond}, fc)
	ctrl := New(st, resender, nil, fc, DefaultConfig())

	ctx := context.Background()
	if _, err := ctrl.CreateSession(ctx, quizID); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	first := len(inner.Published())
	if first != 2 {
		t.Fatalf("published %d events immediately, want 2", first)
	}

	// Both duplicates are armed; fire them.
	fc.BlockUntil(2)
	fc.Advance(300 * time.Millisecond)

	eventually(t, "duplicates published", func() bool {
		return len(inner.Published()) == 4
	})
}

func TestRunDrivesFullLifecycle(t *testing.T) {
	st := memory.New()
	quizID := uuid.New()
	st.SeedQuestions(quizID, testQuestions(quizID, 2))

	fc := clockwork.NewFakeClock()
	ctrl := New(st, broadcast.NewMemory(), nil, fc, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := ctrl.CreateSession(ctx, quizID); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx, 5*time.Second) }()

	eventually(t, "session started", func() bool {
		return ctrl.Session().Status == models.SessionStatusActive
	})

	ctrl.tick(ctx)
	ctrl.tick(ctx)

	if got := ctrl.Session(); got.Status != models.SessionStatusQuestionEnded {
		t.Fatalf("status = %s, want question_ended", got.Status)
	}

	// Run is now waiting out the advance delay on the fake clock.
	fc.BlockUntil(1)
	fc.Advance(5 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after the last question")
	}

	if got := ctrl.Session(); got.Status != models.SessionStatusEnded {
		t.Fatalf("status = %s, want ended", got.Status)
	}
}

// gatedStore holds every countdown persist inside the store until released,
// to expose ticks that wait on an in-flight write.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) UpdateCountdown(ctx context.Context, id uuid.UUID, questionIndex, timeRemaining int) (bool, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.UpdateCountdown(ctx, id, questionIndex, timeRemaining)
}

func newGatedController(t *testing.T) (*Controller, *gatedStore, *models.Session) {
	t.Helper()
	st := memory.New()
	quizID := uuid.New()
	st.SeedQuestions(quizID, testQuestions(quizID, 60))
	gated := &gatedStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}

	ctrl := New(gated, broadcast.NewMemory(), nil, clockwork.NewFakeClock(), DefaultConfig())
	sess, err := ctrl.CreateSession(context.Background(), quizID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return ctrl, gated, sess
}

func TestTickNotBlockedBySlowPersist(t *testing.T) {
	ctrl, gated, sess := newGatedController(t)
	ctx := context.Background()

	// Two ticks reach the cadence beat; the persist is now stuck in the
	// store holding remaining=58.
	ctrl.tick(ctx)
	ctrl.tick(ctx)
	<-gated.entered

	// The countdown keeps moving while the write is in flight.
	ticked := make(chan struct{})
	go func() {
		ctrl.tick(ctx)
		close(ticked)
	}()
	select {
	case <-ticked:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("tick waited on an in-flight store persist")
	}
	if got := ctrl.Session().TimeRemaining; got != 57 {
		t.Fatalf("countdown = %d, want 57", got)
	}

	close(gated.release)
	eventually(t, "persist landed", func() bool {
		stored, err := gated.Store.GetSession(ctx, sess.ID)
		return err == nil && stored.TimeRemaining == 58
	})
}

func TestInFlightPersistYieldsToTransition(t *testing.T) {
	ctrl, gated, sess := newGatedController(t)
	ctx := context.Background()

	ctrl.tick(ctx)
	ctrl.tick(ctx)
	<-gated.entered

	// Pause while the countdown write for remaining=58 is still in flight.
	ctrl.tick(ctx)
	if err := ctrl.Pause(ctx); err != nil {
		t.Fatal(err)
	}

	close(gated.release)
	eventually(t, "persist resolved", func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return !ctrl.persistInFlight
	})

	// The stale countdown must not resurrect the active row.
	stored, err := gated.Store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.SessionStatusPaused || stored.TimeRemaining != 57 {
		t.Fatalf("transition overwritten by stale persist: %+v", stored)
	}
}

func TestCountdownPersistCadence(t *testing.T) {
	ctrl, st, _, sess := newTestController(t, 60)
	ctx := context.Background()

	if err := ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// 60 -> 55: at least one cadence beat lands in the store.
	for i := 0; i < 5; i++ {
		ctrl.tick(ctx)
	}
	eventually(t, "countdown persisted", func() bool {
		stored, err := st.GetSession(ctx, sess.ID)
		return err == nil && stored.TimeRemaining < 60 && stored.TimeRemaining > 0
	})

	if got := ctrl.Session().TimeRemaining; got != 55 {
		t.Fatalf("in-memory countdown = %d, want 55", got)
	}
}
