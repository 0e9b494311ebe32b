/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"math"

	"pagegrid/internal/grid"
)

// EvenSplit divides the grid among n columns; the first Units%n columns get one extra unit.
func EvenSplit(n int) []int {
	if n <= 0 {
		return nil
	}
	base, rem := grid.Units/n, grid.Units%n
	out := make([]int, n)
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

func columnWidths(r Row) map[string]grid.Widths {
	out := make(map[string]grid.Widths, len(r.Columns))
	for _, c := range r.Columns {
		out[c.ID] = c.Widths
	}
	return out
}

// redistribute rebalances r after its column count changed. prev holds the
// widths columns had before the change; new columns are absent from it.
func redistribute(r *Row, prev map[string]grid.Widths) {
	split := EvenSplit(len(r.Columns))
	for i := range r.Columns {
		c := &r.Columns[i]
		w := grid.Widths{split[i]}
		if old, ok := prev[c.ID]; ok {
			oldSmall := old.Effective(grid.Small)
			for _, v := range grid.Viewports[1:] {
				if n, ok := old.Explicit(v); ok {
					// keep the column's proportion between tiers
					w[v] = grid.Clamp(int(math.Round(float64(n) * float64(split[i]) / float64(oldSmall))))
				}
			}
		}
		c.Widths = w.Normalize()
	}
	for _, v := range grid.Viewports[1:] {
		rebalance(r, v)
	}
}

// rebalance nudges effective widths at v one unit at a time until they sum to
// grid.Units: excess comes off the widest column, deficit goes to the
// narrowest, earliest column on ties.
func rebalance(r *Row, v grid.Viewport) {
	eff := RowWidths(*r, v)
	sum := 0
	for _, w := range eff {
		sum += w
	}
	if sum == grid.Units {
		return
	}
	for sum > grid.Units {
		pick := -1
		for i, w := range eff {
			if w > 1 && (pick < 0 || w > eff[pick]) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		eff[pick]--
		sum--
	}
	for sum < grid.Units {
		pick := -1
		for i, w := range eff {
			if w < grid.Units && (pick < 0 || w < eff[pick]) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		eff[pick]++
		sum++
	}
	for i := range r.Columns {
		c := &r.Columns[i]
		if c.Widths.Effective(v) != eff[i] {
			c.Widths = pinAbove(c.Widths, v).Set(v, eff[i])
		}
	}
}

// pinAbove materializes the effective widths of the tiers above v so that
// changing v does not shift them.
func pinAbove(w grid.Widths, v grid.Viewport) grid.Widths {
	for t := v + 1; t <= grid.Large; t++ {
		w[t] = w.Effective(t)
	}
	return w
}
