package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/broadcast"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/results"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

// ErrInvalidTransition is returned when a requested transition is not legal
// from the session's current status.
var ErrInvalidTransition = errors.New("invalid session transition")

// Config tunes the controller clock and its durable-write retry policy.
type Config struct {
	TickInterval    time.Duration // countdown resolution
	PersistEvery    time.Duration // coarse persist/rebroadcast cadence while active
	StoreRetries    int           // retries after the first failed transition write
	StoreRetryDelay time.Duration // linear backoff step between retries
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second,
		PersistEvery:    2 * time.Second,
		StoreRetries:    3,
		StoreRetryDelay: 200 * time.Millisecond,
	}
}

// Controller owns one session's state machine. It is the single writer of
// the session row: every transition writes the store first (the source of
// truth), then publishes the resulting snapshot on the lossy broadcast path.
// Broadcast failures are absorbed; the change feed mirrors the store write
// and remains the durable recovery path.
type Controller struct {
	store       store.Store
	broadcaster broadcast.Broadcaster
	aggregator  *results.Aggregator // optional; nil disables end-of-question summaries
	clock       clockwork.Clock
	cfg         Config

	mu                sync.Mutex
	session           *models.Session
	questionCount     int
	ticksSincePersist int
	persistInFlight   bool

	endedCh chan struct{}
}

// New builds a controller. The aggregator may be nil.
func New(st store.Store, b broadcast.Broadcaster, agg *results.Aggregator, clock clockwork.Clock, cfg Config) *Controller {
	return &Controller{
		store:       st,
		broadcaster: b,
		aggregator:  agg,
		clock:       clock,
		cfg:         cfg,
		endedCh:     make(chan struct{}, 1),
	}
}

// CreateSession creates the session row in waiting status and binds the
// controller to it.
func (c *Controller) CreateSession(ctx context.Context, quizID uuid.UUID) (*models.Session, error) {
	count, err := c.store.CountQuestions(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("quiz %s has no questions", quizID)
	}

	now := c.clock.Now()
	sess := &models.Session{
		ID:        uuid.New(),
		QuizID:    quizID,
		Status:    models.SessionStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	c.session = sess
	c.questionCount = count
	c.mu.Unlock()

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("quiz_id", quizID.String()).
		Int("questions", count).
		Msg("session created")

	out := *sess
	return &out, nil
}

// Attach binds the controller to an existing session row.
func (c *Controller) Attach(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	count, err := c.store.CountQuestions(ctx, sess.QuizID)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}

	c.mu.Lock()
	c.session = sess
	c.questionCount = count
	c.mu.Unlock()
	return nil
}

// Session returns a copy of the controller's view of the session.
func (c *Controller) Session() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.session
}

// QuestionEnded signals each entry into question_ended or ended. The channel
// is a level signal: slow readers coalesce bursts instead of blocking
// transitions.
func (c *Controller) QuestionEnded() <-chan struct{} {
	return c.endedCh
}

// Start moves waiting -> active, loading the first question's time limit.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != models.SessionStatusWaiting {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.session.Status)
	}

	q, err := c.store.GetQuestion(ctx, c.session.QuizID, 0)
	if err != nil {
		return fmt.Errorf("load first question: %w", err)
	}

	started, err := events.NewQuizStarted(c.session.ID, c.clock.Now())
	if err != nil {
		return err
	}
	return c.transitionLocked(ctx, models.SessionStatusActive, 0, q.TimeLimit, nil, started)
}

// Pause moves active -> paused, preserving time remaining.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != models.SessionStatusActive {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, c.session.Status)
	}
	return c.transitionLocked(ctx, models.SessionStatusPaused,
		c.session.CurrentQuestionIndex, c.session.TimeRemaining, nil)
}

// Resume moves paused -> active, preserving time remaining.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != models.SessionStatusPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, c.session.Status)
	}
	return c.transitionLocked(ctx, models.SessionStatusActive,
		c.session.CurrentQuestionIndex, c.session.TimeRemaining, nil)
}

// Skip cuts the current question short from active or paused.
func (c *Controller) Skip(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != models.SessionStatusActive && c.session.Status != models.SessionStatusPaused {
		return fmt.Errorf("%w: skip from %s", ErrInvalidTransition, c.session.Status)
	}

	skipped, err := events.NewQuestionSkipped(c.session.ID, c.clock.Now(), c.session.CurrentQuestionIndex)
	if err != nil {
		return err
	}
	return c.transitionLocked(ctx, models.SessionStatusQuestionEnded,
		c.session.CurrentQuestionIndex, 0, nil, skipped)
}

// Advance moves question_ended -> active on the next question, or -> ended
// when no questions remain.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != models.SessionStatusQuestionEnded {
		return fmt.Errorf("%w: advance from %s", ErrInvalidTransition, c.session.Status)
	}

	next := c.session.CurrentQuestionIndex + 1
	if next >= c.questionCount {
		endedAt := c.clock.Now()
		return c.transitionLocked(ctx, models.SessionStatusEnded,
			c.session.CurrentQuestionIndex, 0, &endedAt)
	}

	q, err := c.store.GetQuestion(ctx, c.session.QuizID, next)
	if err != nil {
		return fmt.Errorf("load question %d: %w", next, err)
	}
	return c.transitionLocked(ctx, models.SessionStatusActive, next, q.TimeLimit, nil)
}

// endQuestion is the timer-zero transition.
func (c *Controller) endQuestion(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status != models.SessionStatusActive {
		return fmt.Errorf("%w: end question from %s", ErrInvalidTransition, c.session.Status)
	}
	return c.transitionLocked(ctx, models.SessionStatusQuestionEnded,
		c.session.CurrentQuestionIndex, 0, nil)
}

// transitionLocked writes the new state to the store (aborting the
// transition on failure), adopts the stored row, then publishes extras and
// the resulting snapshot. Callers hold c.mu.
func (c *Controller) transitionLocked(ctx context.Context, to models.SessionStatus, questionIndex, timeRemaining int, endedAt *time.Time, extras ...events.Envelope) error {
	from := c.session.Status

	updated, err := c.writeStateWithRetry(ctx, to, questionIndex, timeRemaining, endedAt)
	if err != nil {
		return fmt.Errorf("persist %s -> %s: %w", from, to, err)
	}
	c.session = updated
	c.ticksSincePersist = 0

	log.Info().
		Str("session_id", c.session.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("question_index", questionIndex).
		Int("time_remaining", timeRemaining).
		Msg("session transition")

	for _, env := range extras {
		c.publish(ctx, env)
	}
	c.publishSnapshotLocked(ctx)

	if to == models.SessionStatusQuestionEnded || to == models.SessionStatusEnded {
		select {
		case c.endedCh <- struct{}{}:
		default:
		}
	}
	if to == models.SessionStatusQuestionEnded && c.aggregator != nil {
		go c.summarizeQuestion(ctx, c.session.ID, c.session.QuizID, questionIndex)
	}
	return nil
}

func (c *Controller) writeStateWithRetry(ctx context.Context, to models.SessionStatus, questionIndex, timeRemaining int, endedAt *time.Time) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			timer := c.clock.NewTimer(c.cfg.StoreRetryDelay * time.Duration(attempt))
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		updated, err := c.store.UpdateSessionState(ctx, c.session.ID, to, questionIndex, timeRemaining, endedAt)
		if err == nil {
			return updated, nil
		}
		lastErr = err
		if errors.Is(err, store.ErrNotFound) {
			// session deleted mid-flight: not retryable
			return nil, err
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("session_id", c.session.ID.String()).
			Msg("session state write failed, retrying")
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.cfg.StoreRetries+1, lastErr)
}

// publish sends on the broadcast path. Failures are logged and absorbed:
// the change feed mirror of the store write is the durable signal.
func (c *Controller) publish(ctx context.Context, env events.Envelope) {
	if err := c.broadcaster.Publish(ctx, env); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", env.SessionID.String()).
			Str("event_type", string(env.Type)).
			Msg("broadcast failed; change feed will compensate")
	}
}

func (c *Controller) publishSnapshotLocked(ctx context.Context) {
	env, err := events.NewStateChanged(c.session.ID, c.clock.Now(), c.session.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot event")
		return
	}
	c.publish(ctx, env)
}

func (c *Controller) summarizeQuestion(ctx context.Context, sessionID, quizID uuid.UUID, questionIndex int) {
	q, err := c.store.GetQuestion(ctx, quizID, questionIndex)
	if err != nil {
		log.Warn().Err(err).Int("question_index", questionIndex).Msg("cannot summarize question")
		return
	}
	summary, err := c.aggregator.QuestionResults(ctx, sessionID, *q)
	if err != nil {
		log.Warn().Err(err).Int("question_index", questionIndex).Msg("question aggregation failed")
		return
	}
	log.Info().
		Str("session_id", sessionID.String()).
		Int("question_index", questionIndex).
		Int("total_answered", summary.TotalAnswered).
		Int("correct_count", summary.CorrectCount).
		Msg("question results")
}
