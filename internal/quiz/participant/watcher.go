package participant

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
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/changefeed"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/events"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store"
)

// ExpiryPolicy selects what happens when the local countdown reaches zero
// before authority confirms the question ended.
type ExpiryPolicy string

const (
	// ExpiryDisplayOnly freezes the displayed timer at zero and waits for
	// the authoritative question_ended. The default.
	ExpiryDisplayOnly ExpiryPolicy = "display_only"
	// ExpiryAutoSubmit additionally fires the OnExpire hook once, letting
	// the embedding client submit the currently selected answer, or an
	// empty one when nothing was picked.
	ExpiryAutoSubmit ExpiryPolicy = "auto_submit"
)

// Config tunes a watcher's local clock and its polling fallback.
type Config struct {
	TickInterval time.Duration
	PollInterval time.Duration
	Expiry       ExpiryPolicy
}

// DefaultConfig returns production defaults: one-second extrapolation and a
// two-second authoritative refetch.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		PollInterval: 2 * time.Second,
		Expiry:       ExpiryDisplayOnly,
	}
}

// Watcher maintains one participant's SessionView from three inputs merged
// through Reconcile: broadcast envelopes, change-feed rows handed in via
// ApplyChange, and periodic refetches of the session row. The refetch loop
// is the ultimate fallback: with both push paths dark the view still
// converges within one poll interval.
type Watcher struct {
	sessionID   uuid.UUID
	sessions    store.SessionStore
	broadcaster broadcast.Broadcaster
	clock       clockwork.Clock
	cfg         Config

	onExpire func(SessionView)

	mu   sync.Mutex
	view SessionView

	updates   chan SessionView
	refetchCh chan struct{}
}

// NewWatcher builds a watcher for one session.
func NewWatcher(sessionID uuid.UUID, sessions store.SessionStore, b broadcast.Broadcaster, clock clockwork.Clock, cfg Config) *Watcher {
	return &Watcher{
		sessionID:   sessionID,
		sessions:    sessions,
		broadcaster: b,
		clock:       clock,
		cfg:         cfg,
		view:        NewView(sessionID),
		updates:     make(chan SessionView, 1),
		refetchCh:   make(chan struct{}, 1),
	}
}

// OnExpire registers the hook fired under ExpiryAutoSubmit when the local
// countdown reaches zero before an answer was submitted. The view handed to
// the hook carries the current selection, which may be empty. Must be called
// before Run.
func (w *Watcher) OnExpire(fn func(SessionView)) {
	w.onExpire = fn
}

// View returns a copy of the current view.
func (w *Watcher) View() SessionView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Updates delivers view changes. The channel holds only the latest view:
// slow readers see a fresh state, never a backlog of stale ones.
func (w *Watcher) Updates() <-chan SessionView {
	return w.updates
}

// SelectAnswer records the participant's current (not yet submitted) choice.
func (w *Watcher) SelectAnswer(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view.Submitted {
		return
	}
	w.view.SelectedAnswer = text
	w.pushLocked()
}

// MarkSubmitted locks in the current selection after a successful submit.
func (w *Watcher) MarkSubmitted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view.Submitted = true
	w.pushLocked()
}

// ApplyChange feeds a change-feed row into the merge.
func (w *Watcher) ApplyChange(change changefeed.Change) {
	if change.Session.ID != w.sessionID {
		return
	}
	w.applySnapshot(change.Session.Snapshot())
}

// Run subscribes to the broadcast channel, anchors on an initial refetch and
// then drives the local clock and the polling fallback until ctx is
// cancelled or the session ends.
func (w *Watcher) Run(ctx context.Context) error {
	unsub, err := w.broadcaster.Subscribe(w.sessionID, w.handleEnvelope)
	if err != nil {
		return fmt.Errorf("subscribe to session events: %w", err)
	}
	defer unsub()

	w.refetch(ctx)

	tick := w.clock.NewTicker(w.cfg.TickInterval)
	defer tick.Stop()
	poll := w.clock.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.refetchCh:
			w.refetch(ctx)
		case <-poll.Chan():
			w.refetch(ctx)
		case <-tick.Chan():
			if w.tick() {
				return nil
			}
		}
	}
}

// tick advances the local countdown; returns true once the session ended.
func (w *Watcher) tick() (done bool) {
	w.mu.Lock()
	next, expired := Tick(w.view)
	changed := expired || next.TimeRemaining != w.view.TimeRemaining
	w.view = next
	view := w.view
	if changed {
		w.pushLocked()
	}
	w.mu.Unlock()

	if expired {
		log.Debug().
			Str("session_id", w.sessionID.String()).
			Int("question_index", view.QuestionIndex).
			Msg("local countdown expired; awaiting authority")
		if w.cfg.Expiry == ExpiryAutoSubmit && w.onExpire != nil && !view.Submitted {
			go w.onExpire(view)
		}
	}
	return view.Terminal()
}

func (w *Watcher) handleEnvelope(env events.Envelope) {
	if env.SessionID != w.sessionID {
		return
	}
	payload, err := events.Decode(env)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("dropping malformed event")
		return
	}

	switch p := payload.(type) {
	case events.StateChanged:
		w.applySnapshot(p.Snapshot())
	case events.QuestionSkipped:
		// A skip implies question_ended at zero for that index; the merge
		// discards it if the feed already moved further.
		w.applySnapshot(models.Snapshot{
			Status:               models.SessionStatusQuestionEnded,
			TimeRemaining:        0,
			CurrentQuestionIndex: p.QuestionIndex,
		})
	case events.QuizStarted:
		// Anchor from the row rather than trusting the hint alone.
		select {
		case w.refetchCh <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) applySnapshot(snap models.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, adopted := Reconcile(w.view, snap)
	if !adopted {
		return
	}
	w.view = next
	w.pushLocked()
}

func (w *Watcher) refetch(ctx context.Context) {
	sess, err := w.sessions.GetSession(ctx, w.sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && ctx.Err() == nil {
			log.Warn().Err(err).Str("session_id", w.sessionID.String()).Msg("session refetch failed")
		}
		return
	}
	w.applySnapshot(sess.Snapshot())
}

// pushLocked replaces any undelivered update with the current view.
func (w *Watcher) pushLocked() {
	select {
	case w.updates <- w.view:
	default:
		select {
		case <-w.updates:
		default:
		}
		select {
		case w.updates <- w.view:
		default:
		}
	}
}
