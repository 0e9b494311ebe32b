/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package save tracks which page resources changed since they were last
// persisted and writes the changed ones through their endpoints.
package save

import (
	"bytes"
	"fmt"
	"sync"
)

// Resource names one independently saved part of a page.
type Resource string

const (
	Layout     Resource = "layout"
	Metadata   Resource = "metadata"
	Stylesheet Resource = "stylesheet"
)

// Resources lists every resource in save order.
var Resources = []Resource{Layout, Metadata, Stylesheet}

// ParseResource maps a name back to a Resource.
func ParseResource(s string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource %q", s)
}

// DirtyState is what the view shows next to the save button.
type DirtyState struct {
	Layout     bool `json:"layout"`
	Metadata   bool `json:"metadata"`
	Stylesheet bool `json:"stylesheet"`
}

// Any reports whether at least one resource needs saving.
func (d DirtyState) Any() bool { return d.Layout || d.Metadata || d.Stylesheet }

// Has reports the flag of r.
func (d DirtyState) Has(r Resource) bool {
	switch r {
	case Layout:
		return d.Layout
	case Metadata:
		return d.Metadata
	case Stylesheet:
		return d.Stylesheet
	}
	return false
}

// Tracker holds dirty flags. The layout flag is derived by comparing the
// serialized structure with the baseline; the other two are set explicitly.
// Every change bumps a per-resource generation so a save that raced with an
// edit does not clear the newer edit's flag. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	dirty    map[Resource]bool
	gen      map[Resource]uint64
	baseline []byte
	current  []byte
}

func NewTracker() *Tracker {
	return &Tracker{dirty: map[Resource]bool{}, gen: map[Resource]uint64{}}
}

// MarkDirty flags r as changed.
func (t *Tracker) MarkDirty(r Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty[r] = true
	t.gen[r]++
}

// MarkClean clears the flag of r. For the layout the current bytes become
// the baseline.
func (t *Tracker) MarkClean(r Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r == Layout {
		t.baseline = t.current
	}
	t.dirty[r] = false
	t.gen[r]++
}

// SetLayoutBaseline records the serialized structure as last loaded or saved.
func (t *Tracker) SetLayoutBaseline(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = bytes.Clone(b)
	t.current = t.baseline
	t.dirty[Layout] = false
	t.gen[Layout]++
}

// RecomputeLayout compares the current serialized structure with the
// baseline and reports whether the layout flag changed.
func (t *Tracker) RecomputeLayout(current []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = bytes.Clone(current)
	d := !bytes.Equal(t.current, t.baseline)
	changed := d != t.dirty[Layout]
	t.dirty[Layout] = d
	t.gen[Layout]++
	return changed
}

// IsDirty reports the flag of r.
func (t *Tracker) IsDirty(r Resource) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty[r]
}

// Dirty lists the resources that need saving, in save order.
func (t *Tracker) Dirty() []Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Resource
	for _, r := range Resources {
		if t.dirty[r] {
			out = append(out, r)
		}
	}
	return out
}

func (t *Tracker) State() DirtyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return DirtyState{Layout: t.dirty[Layout], Metadata: t.dirty[Metadata], Stylesheet: t.dirty[Stylesheet]}
}

func (t *Tracker) generation(r Resource) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen[r]
}

// saved clears r after a successful save that started at generation gen.
// A layout save moves the baseline to the saved payload even when the
// structure changed meanwhile; the flag then stays set.
func (t *Tracker) saved(r Resource, gen uint64, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r == Layout {
		t.baseline = bytes.Clone(payload)
		t.dirty[Layout] = !bytes.Equal(t.current, t.baseline)
		return
	}
	if t.gen[r] == gen {
		t.dirty[r] = false
	}
}
