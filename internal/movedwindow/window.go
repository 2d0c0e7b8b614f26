// Package movedwindow implements the time-windowed set of recently
// moved (or attempted) block ids, used to dedupe work across
// iterations and to gate the Selector's "good candidate" check.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package movedwindow

import (
	"sync"
	"time"

	"github.com/NVIDIA/balancer/internal/model"
)

// DefaultWidth is the default window width: two iterations' worth, per
// the data model (§3).
const DefaultWidth = 2

// Window maps blockId -> lastMovedTimestamp, pruned on each iteration.
type Window struct {
	width time.Duration

	mu    sync.Mutex
	moved map[model.BlockID]time.Time
}

// New creates a window whose entries are considered stale once older
// than width. Callers typically derive width from
// iterationInterval * DefaultWidth.
func New(width time.Duration) *Window {
	return &Window{width: width, moved: make(map[model.BlockID]time.Time)}
}

// Add records id as moved (or attempted) at `now`. Per §5's ordering
// guarantee, this must happen before the Selector returns the block as
// selected, so that no two concurrent Selectors can pick the same
// block (I4).
func (w *Window) Add(id model.BlockID, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.moved[id] = now
}

// Contains reports whether id was moved (or attempted) within the
// current window.
func (w *Window) Contains(id model.BlockID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.moved[id]
	return ok
}

// Prune drops entries older than width relative to now; called once
// per iteration from resetData.
func (w *Window) Prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.moved {
		if now.Sub(t) > w.width {
			delete(w.moved, id)
		}
	}
}

// Len reports the number of tracked ids, for tests/metrics.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.moved)
}

// Ids returns a snapshot of all tracked ids — used by resetData to
// decide which globalBlockMap entries survive a trim (R1).
func (w *Window) Ids() map[model.BlockID]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[model.BlockID]struct{}, len(w.moved))
	for id := range w.moved {
		out[id] = struct{}{}
	}
	return out
}
