/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package grid implements the 12 unit responsive column grid: viewports,
// per-viewport column widths with mobile-first inheritance and the codec
// between widths and renderer style tags such as "small-6 medium-4".
package grid

import (
	"fmt"
	"strings"
)

// Units is the number of grid units a row is divided into.
const Units = 12

// Viewport is a screen size tier. Widths cascade small -> medium -> large.
type Viewport int

const (
	Small Viewport = iota
	Medium
	Large
)

// Viewports lists all tiers from the base tier upwards.
var Viewports = []Viewport{Small, Medium, Large}

func (v Viewport) String() string {
	switch v {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return fmt.Sprintf("viewport(%d)", int(v))
	}
}

// Valid reports whether v is one of the known tiers.
func (v Viewport) Valid() bool { return v >= Small && v <= Large }

// ParseViewport converts a tier name to a Viewport.
func ParseViewport(s string) (Viewport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "sm", "":
		return Small, nil
	case "medium", "md":
		return Medium, nil
	case "large", "lg":
		return Large, nil
	}
	return Small, fmt.Errorf("unknown viewport %q", s)
}

// MarshalText encodes the viewport by name.
func (v Viewport) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid viewport %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText decodes a viewport name.
func (v *Viewport) UnmarshalText(b []byte) error {
	p, err := ParseViewport(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// Clamp limits w to the valid width range [1, Units].
func Clamp(w int) int {
	if w < 1 {
		return 1
	}
	if w > Units {
		return Units
	}
	return w
}

// Widths holds the explicitly set width of a column per viewport.
// A zero entry means "inherit from the next smaller viewport".
type Widths [3]int

// Explicit returns the width set at v and whether it is set.
func (w Widths) Explicit(v Viewport) (int, bool) {
	if !v.Valid() || w[v] == 0 {
		return 0, false
	}
	return w[v], true
}

// Effective resolves the width at v through the inheritance chain.
// Small defaults to the full row when unset.
func (w Widths) Effective(v Viewport) int {
	if !v.Valid() {
		return Units
	}
	for t := v; t >= Small; t-- {
		if w[t] != 0 {
			return w[t]
		}
	}
	return Units
}

// inherited returns the width v would get if it had no explicit value.
func (w Widths) inherited(v Viewport) int {
	if v == Small {
		return Units
	}
	return w.Effective(v - 1)
}

// Set writes width n at v and returns the result in sparse form.
// Larger viewports that inherit keep inheriting.
func (w Widths) Set(v Viewport, n int) Widths {
	if !v.Valid() {
		return w
	}
	w[v] = Clamp(n)
	return w.Normalize()
}

// Unset removes the explicit width at v so it inherits again.
func (w Widths) Unset(v Viewport) Widths {
	if v.Valid() {
		w[v] = 0
	}
	return w.Normalize()
}

// Normalize drops explicit values that equal what they would inherit anyway.
// Small is always materialized.
func (w Widths) Normalize() Widths {
	out := Widths{w.Effective(Small)}
	for _, v := range Viewports[1:] {
		if n, ok := w.Explicit(v); ok && n != out.inherited(v) {
			out[v] = n
		}
	}
	return out
}

// Uniform returns widths with only the small tier set.
func Uniform(n int) Widths { return Widths{Clamp(n)} }

func (w Widths) String() string {
	parts := make([]string, 0, 3)
	for _, v := range Viewports {
		if n, ok := w.Explicit(v); ok {
			parts = append(parts, fmt.Sprintf("%s-%d", v, n))
		}
	}
	return strings.Join(parts, " ")
}
