/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps a bounded, linear history of serialized page layouts.
package undo

import (
	"sync"
	"time"
)

// DefaultMaxEntries is the number of snapshots kept when Config leaves it unset.
const DefaultMaxEntries = 50

// Snapshot is one history entry. Blob content is opaque to the history;
// size is estimated as len(Blob). TS is when the snapshot was captured.
type Snapshot struct {
	Blob  []byte
	TS    time.Time
	Label string
	// CoalesceKey groups rapid pushes of the same kind of edit. Empty never coalesces.
	CoalesceKey string
}

// Config controls depth and memory caps and coalescing behavior.
type Config struct {
	// MaxEntries caps the number of snapshots (0 means DefaultMaxEntries).
	MaxEntries int
	// MaxBytes is a soft cap; the oldest entries are dropped when exceeded (0 means unlimited).
	MaxBytes int
	// MinInterval coalesces pushes with the same non-empty CoalesceKey captured within
	// the interval, replacing the current entry instead of adding one. 0 disables coalescing.
	MinInterval time.Duration
}

// State tells the view which history buttons to enable.
type State struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// History is a list of snapshots with a cursor on the current one.
// Undo moves the cursor back, Redo forward, Push drops everything after
// the cursor. It is safe for concurrent use.
type History struct {
	cfg        Config
	mu         sync.Mutex
	entries    []Snapshot
	cursor     int
	totalBytes int
}

func NewHistory(cfg Config) *History {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &History{cfg: cfg, cursor: -1}
}

// Reset discards all entries and makes initial the only one.
func (h *History) Reset(initial Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = []Snapshot{initial}
	h.cursor = 0
	h.totalBytes = len(initial.Blob)
}

// Push records s as the new current entry and truncates the redo branch.
func (h *History) Push(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	for _, dropped := range h.entries[h.cursor+1:] {
		h.totalBytes -= len(dropped.Blob)
	}
	h.entries = h.entries[:h.cursor+1]
	if n := len(h.entries); n > 1 && h.coalescesLocked(h.entries[n-1], s) {
		h.totalBytes += len(s.Blob) - len(h.entries[n-1].Blob)
		h.entries[n-1] = s
		h.enforceCapsLocked()
		return
	}
	h.entries = append(h.entries, s)
	h.totalBytes += len(s.Blob)
	h.cursor = len(h.entries) - 1
	h.enforceCapsLocked()
}

// Undo moves the cursor back and returns the entry to restore.
func (h *History) Undo() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor <= 0 {
		return Snapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo moves the cursor forward and returns the entry to restore.
func (h *History) Redo() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor < 0 || h.cursor >= len(h.entries)-1 {
		return Snapshot{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// Current returns the entry under the cursor.
func (h *History) Current() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor < 0 {
		return Snapshot{}, false
	}
	return h.entries[h.cursor], true
}

func (h *History) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{CanUndo: h.cursor > 0, CanRedo: h.cursor >= 0 && h.cursor < len(h.entries)-1}
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (totalBytes int, entries int, cursor int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalBytes, len(h.entries), h.cursor
}

func (h *History) coalescesLocked(last, s Snapshot) bool {
	if h.cfg.MinInterval <= 0 || s.CoalesceKey == "" || s.CoalesceKey != last.CoalesceKey {
		return false
	}
	return s.TS.Sub(last.TS) < h.cfg.MinInterval
}

// enforceCapsLocked drops the oldest entries; the cursor stays on the entry it
// pointed at, and at least that entry survives.
func (h *History) enforceCapsLocked() {
	drop := 0
	if n := len(h.entries); n > h.cfg.MaxEntries {
		drop = n - h.cfg.MaxEntries
	}
	bytes := h.totalBytes
	for i := 0; i < drop; i++ {
		bytes -= len(h.entries[i].Blob)
	}
	for h.cfg.MaxBytes > 0 && bytes > h.cfg.MaxBytes && drop < h.cursor {
		bytes -= len(h.entries[drop].Blob)
		drop++
	}
	if drop == 0 {
		return
	}
	h.entries = append([]Snapshot(nil), h.entries[drop:]...)
	h.totalBytes = bytes
	h.cursor -= drop
}
