/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package resize turns pointer drags on a column edge into grid-unit changes
// of the dragged column and its neighbour.
package resize

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"pagegrid/internal/grid"
	"pagegrid/internal/layout"
	applog "pagegrid/internal/log"
)

// ErrNoAdjacentColumn is returned when the dragged edge has no neighbour.
var ErrNoAdjacentColumn = errors.New("no adjacent column")

// Side names the edge of the column being dragged.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// ParseSide accepts "left" or "right".
func ParseSide(s string) (Side, error) {
	switch s {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return Right, fmt.Errorf("unknown side %q", s)
}

// Pair is the state of the two columns taking part in a resize.
type Pair struct {
	RowID         string
	ColumnID      string
	AdjacentID    string
	Viewport      grid.Viewport
	Width         int
	AdjacentWidth int
}

// Total is the combined width of the pair; it does not change during a drag.
func (p Pair) Total() int { return p.Width + p.AdjacentWidth }

// Update is emitted whenever a drag moves the edge by at least one unit.
type Update struct {
	Pair
	// Units is the change of the dragged column since the gesture began.
	Units int
}

// Engine tracks one resize gesture at a time. It does not touch the model;
// the caller commits the final Pair with layout.Model.SetPairWidths.
type Engine struct {
	active  bool
	side    Side
	start   Pair
	cur     Pair
	pending float64
	log     *slog.Logger
}

func NewEngine() *Engine {
	return &Engine{log: applog.WithComponent("resize")}
}

// Active reports whether a gesture is in progress.
func (e *Engine) Active() bool { return e.active }

// Current returns the pair as of the last update.
func (e *Engine) Current() (Pair, bool) { return e.cur, e.active }

// Begin starts a gesture on the given edge of columnID. Left pairs the column
// with its previous sibling, right with its next one.
func (e *Engine) Begin(row layout.Row, columnID string, side Side, v grid.Viewport) error {
	idx := -1
	for i, c := range row.Columns {
		if c.ID == columnID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", layout.ErrColumnNotFound, columnID)
	}
	adj := idx + 1
	if side == Left {
		adj = idx - 1
	}
	if adj < 0 || adj >= len(row.Columns) {
		return fmt.Errorf("%w: %s edge of %s", ErrNoAdjacentColumn, side, columnID)
	}
	if !v.Valid() {
		return fmt.Errorf("%w: viewport %d", layout.ErrInvalidLayout, int(v))
	}
	col, other := row.Columns[idx], row.Columns[adj]
	e.start = Pair{
		RowID:         row.ID,
		ColumnID:      col.ID,
		AdjacentID:    other.ID,
		Viewport:      v,
		Width:         col.Widths.Effective(v),
		AdjacentWidth: other.Widths.Effective(v),
	}
	e.cur = e.start
	e.side = side
	e.pending = 0
	e.active = true
	e.log.Debug("resize begin", slog.String("row", row.ID), slog.String("column", col.ID),
		slog.String("adjacent", other.ID), slog.String("side", side.String()), slog.String("viewport", v.String()))
	return nil
}

// Update feeds a pointer movement of dx pixels on a track trackWidthPx wide.
// It reports an Update only when the pair changed.
func (e *Engine) Update(dx, trackWidthPx float64) (Update, bool) {
	if !e.active || trackWidthPx <= 0 || math.IsNaN(dx) || math.IsInf(dx, 0) {
		return Update{}, false
	}
	if e.side == Left {
		dx = -dx
	}
	e.pending += dx
	unit := trackWidthPx / grid.Units
	units := int(math.Round(e.pending / unit))
	if units == 0 {
		return Update{}, false
	}
	e.pending -= float64(units) * unit

	w, a := balance(e.cur.Width+units, e.cur.AdjacentWidth-units, e.cur.Total())
	if w == e.cur.Width && a == e.cur.AdjacentWidth {
		return Update{}, false
	}
	e.cur.Width, e.cur.AdjacentWidth = w, a
	return Update{Pair: e.cur, Units: e.cur.Width - e.start.Width}, true
}

// End finishes the gesture and returns the final pair. changed is false when
// the widths ended where they started.
func (e *Engine) End() (p Pair, changed bool) {
	if !e.active {
		return Pair{}, false
	}
	e.active = false
	p = e.cur
	changed = p.Width != e.start.Width
	e.log.Debug("resize end", slog.String("column", p.ColumnID), slog.Int("width", p.Width),
		slog.Int("adjacent_width", p.AdjacentWidth), slog.Bool("changed", changed))
	return p, changed
}

// Cancel drops the gesture without producing a result.
func (e *Engine) Cancel() {
	e.active = false
	e.pending = 0
	e.cur = Pair{}
}

// balance clamps both widths to the grid and moves them back to total:
// excess comes off the larger width, deficit goes to the larger width, and
// the dragged width wins ties.
func balance(w, a, total int) (int, int) {
	w, a = grid.Clamp(w), grid.Clamp(a)
	for w+a > total {
		if w >= a {
			w--
		} else {
			a--
		}
	}
	for w+a < total {
		if w >= a {
			w++
		} else {
			a++
		}
	}
	return w, a
}
