/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package grid

import (
	"strconv"
	"strings"
)

// DefaultMarker is the tag the renderer expects on every grid cell.
const DefaultMarker = "cell"

// Codec converts between style tag lists and Widths.
// Marker, when non-empty, is appended on Encode and stripped on Decode.
type Codec struct {
	Marker string
}

// DefaultCodec uses the "cell" marker.
var DefaultCodec = Codec{Marker: DefaultMarker}

// Decode splits tags into widths and the remaining tags, preserving their order.
// When a viewport appears more than once the last occurrence wins. The widths
// come back in sparse form so that Decode(Encode(Decode(x))) == Decode(x).
func (c Codec) Decode(tags []string) (Widths, []string) {
	var w Widths
	var extra []string
	for _, t := range tags {
		if t == "" {
			continue
		}
		if c.Marker != "" && t == c.Marker {
			continue
		}
		if v, n, ok := parseWidthTag(t); ok {
			w[v] = n
			continue
		}
		extra = append(extra, t)
	}
	return w.Normalize(), extra
}

// Encode renders widths as tags: small always, medium when it differs from
// small, large when it differs from the effective medium. Extra tags follow
// in order, then the marker.
func (c Codec) Encode(w Widths, extra []string) []string {
	tags := make([]string, 0, len(extra)+4)
	small := w.Effective(Small)
	tags = append(tags, widthTag(Small, small))
	if n, ok := w.Explicit(Medium); ok && n != small {
		tags = append(tags, widthTag(Medium, n))
	}
	if n, ok := w.Explicit(Large); ok && n != w.Effective(Medium) {
		tags = append(tags, widthTag(Large, n))
	}
	for _, t := range extra {
		if t == "" || (c.Marker != "" && t == c.Marker) {
			continue
		}
		if _, _, ok := parseWidthTag(t); ok {
			continue
		}
		tags = append(tags, t)
	}
	if c.Marker != "" {
		tags = append(tags, c.Marker)
	}
	return tags
}

// DecodeString is Decode over a space separated class string.
func (c Codec) DecodeString(s string) (Widths, []string) { return c.Decode(strings.Fields(s)) }

// EncodeString is Encode joined with spaces.
func (c Codec) EncodeString(w Widths, extra []string) string {
	return strings.Join(c.Encode(w, extra), " ")
}

func widthTag(v Viewport, n int) string { return v.String() + "-" + strconv.Itoa(n) }

func parseWidthTag(t string) (Viewport, int, bool) {
	name, num, ok := strings.Cut(t, "-")
	if !ok {
		return 0, 0, false
	}
	var v Viewport
	switch name {
	case "small":
		v = Small
	case "medium":
		v = Medium
	case "large":
		v = Large
	default:
		return 0, 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > Units || strconv.Itoa(n) != num {
		return 0, 0, false
	}
	return v, n, true
}
