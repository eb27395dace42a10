// Package data loads recorded market sessions for replay.
package data

import (
	"errors"
	"time"

	"github.com/dgnsrekt/gexflow/internal/market"
)

var (
	ErrNotFound = errors.New("data not found")
	ErrNoEvents = errors.New("no replay events")
)

type EventKind int

const (
	SnapshotEvent EventKind = iota
	TickEvent
)

func (k EventKind) String() string {
	if k == SnapshotEvent {
		return "snapshot"
	}
	return "tick"
}

// Event is one recorded input. Exactly one of Snapshot and Tick is set.
type Event struct {
	Kind     EventKind
	At       time.Time
	Snapshot *market.ChainSnapshot
	Tick     *market.Tick
}

// Files names the recordings inside a date folder.
type Files struct {
	Snapshots string // JSONL, one ChainSnapshot per line
	Ticks     string // CSV with a header row
}
