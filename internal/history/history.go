// Package history keeps a linear undo/redo stack of whole-document snapshots.
package history

import (
	"collab-board/internal/metrics"
	"collab-board/internal/models"
)

// Engine is a stack of snapshots plus a cursor into it. Step 0 is the empty
// document the session started with. Not safe for concurrent use.
type Engine struct {
	snapshots []models.Snapshot
	step      int
	limit     int
}

// New returns an engine holding one empty snapshot. limit caps the number of
// stored snapshots; 0 means unbounded.
func New(limit int) *Engine {
	if limit < 0 {
		limit = 0
	}
	e := &Engine{
		snapshots: []models.Snapshot{models.EmptySnapshot()},
		limit:     limit,
	}
	metrics.HistoryDepth.Set(1)
	return e
}

// Step is the index of the snapshot the document currently corresponds to.
func (e *Engine) Step() int { return e.step }

// Len is the number of stored snapshots, including the initial one.
func (e *Engine) Len() int { return len(e.snapshots) }

func (e *Engine) CanUndo() bool { return e.step > 0 }
func (e *Engine) CanRedo() bool { return e.step < len(e.snapshots)-1 }

// Checkpoint discards any redo branch beyond the current step and appends a
// copy of snap as the new current state.
func (e *Engine) Checkpoint(snap models.Snapshot) {
	e.snapshots = append(e.snapshots[:e.step+1], snap.Clone())
	e.step++

	if e.limit > 0 && len(e.snapshots) > e.limit {
		drop := len(e.snapshots) - e.limit
		e.snapshots = append([]models.Snapshot(nil), e.snapshots[drop:]...)
		e.step -= drop
	}
	metrics.HistoryDepth.Set(float64(len(e.snapshots)))
}

// Undo moves one step back and returns the snapshot to restore. It returns
// false at step 0.
func (e *Engine) Undo() (models.Snapshot, bool) {
	if !e.CanUndo() {
		return models.Snapshot{}, false
	}
	e.step--
	return e.snapshots[e.step].Clone(), true
}

// Redo moves one step forward and returns the snapshot to restore. It
// returns false at the newest snapshot.
func (e *Engine) Redo() (models.Snapshot, bool) {
	if !e.CanRedo() {
		return models.Snapshot{}, false
	}
	e.step++
	return e.snapshots[e.step].Clone(), true
}

// Current returns a copy of the snapshot at the current step.
func (e *Engine) Current() models.Snapshot {
	return e.snapshots[e.step].Clone()
}
