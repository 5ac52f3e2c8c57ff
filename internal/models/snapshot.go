package models

// Snapshot is the compact {status, time_remaining, current_question_index}
// tuple conveying current authoritative session state. It travels over the
// broadcast channel and is derived from change-feed rows; the two paths are
// unordered relative to each other, so receivers merge snapshots with
// Supersedes instead of trusting arrival order.
type Snapshot struct {
	Status               SessionStatus `json:"status"`
	TimeRemaining        int           `json:"time_remaining"`
	CurrentQuestionIndex int           `json:"current_question_index"`
}

// Supersedes reports whether s carries state further along than prev.
//
// A later question index always wins (time resets upward when the index
// advances, so per-question comparisons only hold within one index). For the
// same index a status further along the state machine wins; among equal-rank
// statuses the smaller time remaining wins, because time only decreases
// within a question. Equal-rank, equal-time snapshots with different status
// (active vs paused) adopt the newer arrival: a pause or resume preserves
// time_remaining, so arrival order is the only signal left and rejecting it
// would make a resume invisible until the next countdown write. The cost is
// that an at-least-once replay of the older side can flip the view back for
// a moment; the window is bounded by the resend delay, and the next poll or
// countdown snapshot strictly supersedes both and settles the view.
func (s Snapshot) Supersedes(prev Snapshot) bool {
	if s.CurrentQuestionIndex != prev.CurrentQuestionIndex {
		return s.CurrentQuestionIndex > prev.CurrentQuestionIndex
	}
	if s.Status.Progress() != prev.Status.Progress() {
		return s.Status.Progress() > prev.Status.Progress()
	}
	if s.TimeRemaining != prev.TimeRemaining {
		return s.TimeRemaining < prev.TimeRemaining
	}
	return s.Status != prev.Status
}
