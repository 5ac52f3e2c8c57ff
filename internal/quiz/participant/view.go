package participant

import (
	"github.com/google/uuid"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// SessionView is one participant's local picture of a session. Status,
// TimeRemaining and QuestionIndex are what the UI renders; Anchor is the
// last adopted authoritative snapshot, which is what incoming snapshots are
// compared against. Comparing against the anchor rather than the locally
// extrapolated countdown means an authoritative rebroadcast with a slightly
// larger remaining time still re-anchors the view, while genuinely stale
// replays are rejected.
type SessionView struct {
	SessionID uuid.UUID

	Anchor   models.Snapshot
	Anchored bool

	Status        models.SessionStatus
	TimeRemaining int
	QuestionIndex int

	// LocallyEnded marks that the local countdown hit zero before the
	// authoritative question_ended arrived. It is a display flag only: the
	// view keeps its authoritative status so a later correction (for
	// example an active snapshot after a pause the participant missed) is
	// still adopted.
	LocallyEnded bool

	SelectedAnswer string
	Submitted      bool
}

// NewView returns an unanchored view for a session.
func NewView(sessionID uuid.UUID) SessionView {
	return SessionView{SessionID: sessionID}
}

// Terminal reports whether the session has ended according to authority.
func (v SessionView) Terminal() bool {
	return v.Status == models.SessionStatusEnded
}
