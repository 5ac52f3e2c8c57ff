package changefeed

import (
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
)

// Operation is the row-level operation mirrored by the feed.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
)

// Change is one mirrored session-row write. The feed is eventually
// consistent and may coalesce or drop under load; receivers treat it as one
// of two merge inputs, not as an ordered log.
type Change struct {
	Operation Operation
	Session   models.Session
}

// Handler consumes mirrored changes. It must be safe to call with stale or
// duplicate changes in any order.
type Handler func(Change)
