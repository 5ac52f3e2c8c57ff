package participant

import (
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// Reconcile merges an incoming authoritative snapshot into the view and
// reports whether it was adopted. Snapshots arrive from the broadcast
// channel, the change feed and direct refetches, unordered and possibly
// duplicated; adoption is decided purely by snapshot precedence against the
// anchor, so the merge is idempotent and order-insensitive.
func Reconcile(v SessionView, snap models.Snapshot) (SessionView, bool) {
	if v.Anchored && !snap.Supersedes(v.Anchor) {
		return v, false
	}

	if !v.Anchored || snap.CurrentQuestionIndex != v.Anchor.CurrentQuestionIndex {
		// New question: per-question state resets.
		v.SelectedAnswer = ""
		v.Submitted = false
	}

	v.Anchor = snap
	v.Anchored = true
	v.Status = snap.Status
	v.TimeRemaining = snap.TimeRemaining
	v.QuestionIndex = snap.CurrentQuestionIndex
	// Authority spoke: whatever it says replaces the local guess.
	v.LocallyEnded = false
	return v, true
}

// Tick advances the local countdown by one interval. It only extrapolates
// while active, floors at zero, and raises LocallyEnded exactly once on the
// tick that reaches zero. LocallyEnded never changes Status: authority still
// owns the state machine and a later correction re-anchors normally.
func Tick(v SessionView) (out SessionView, expired bool) {
	if v.Status != models.SessionStatusActive || v.LocallyEnded || v.TimeRemaining <= 0 {
		return v, false
	}
	v.TimeRemaining--
	if v.TimeRemaining == 0 {
		v.LocallyEnded = true
		return v, true
	}
	return v, false
}
