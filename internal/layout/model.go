/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout owns the row -> column -> widget tree of a page and every
// structural mutation on it. All operations validate first and mutate after,
// so a failed call leaves the tree untouched and every row balanced.
package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pagegrid/internal/grid"
)

var (
	// ErrInvalidLayout reports widths that cannot form a balanced row.
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrLastColumnProtected is returned when deleting the only column of a row.
	ErrLastColumnProtected = errors.New("last column of a row cannot be deleted")
	// ErrUnknownWidgetType is returned when the catalog does not know a widget type.
	ErrUnknownWidgetType = errors.New("unknown widget type")

	ErrRowNotFound    = errors.New("row not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrWidgetNotFound = errors.New("widget not found")
)

// Structure is the layout of one page: rows stacked top to bottom.
type Structure struct {
	Rows []Row
}

// Row is a horizontal band of columns.
type Row struct {
	ID        string
	StyleTags []string
	Columns   []Column
}

// Column is a grid cell; its widths resolve per viewport.
type Column struct {
	ID        string
	Widths    grid.Widths
	ExtraTags []string
	Widgets   []Widget
}

// Widget is a content element placed in a column.
type Widget struct {
	ID         string
	Type       string
	Properties map[string]any
}

// WidgetSpec is the catalog entry for a widget type.
type WidgetSpec struct {
	Type              string
	Label             string
	DefaultProperties map[string]any
}

// Catalog is the read-only widget registry the model seeds new widgets from.
type Catalog interface {
	Has(widgetType string) bool
	Get(widgetType string) (WidgetSpec, bool)
}

// Model holds the current Structure and hands out identifiers.
// It is not safe for concurrent use; the editor serializes access.
type Model struct {
	catalog Catalog
	codec   grid.Codec
	s       Structure

	nextRow    int
	nextColumn int
	nextWidget int
}

// NewModel returns an empty model bound to catalog.
func NewModel(catalog Catalog, codec grid.Codec) *Model {
	return &Model{catalog: catalog, codec: codec, nextRow: 1, nextColumn: 1, nextWidget: 1}
}

// Codec returns the style tag codec used for serialization.
func (m *Model) Codec() grid.Codec { return m.codec }

// Structure returns a deep copy of the current tree.
func (m *Model) Structure() Structure { return m.s.Clone() }

// Row returns a copy of the row with the given id.
func (m *Model) Row(rowID string) (Row, error) {
	i, err := m.rowIndex(rowID)
	if err != nil {
		return Row{}, err
	}
	return m.s.Rows[i].Clone(), nil
}

// Replace swaps in a whole new tree, e.g. when a page is loaded or a history
// entry is restored. Every widget type must be in the catalog. Widgets without
// properties get catalog defaults and the id counters move past every id in s.
func (m *Model) Replace(s Structure) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = s.Clone()
	for ri := range s.Rows {
		for ci := range s.Rows[ri].Columns {
			col := &s.Rows[ri].Columns[ci]
			for wi := range col.Widgets {
				w := &col.Widgets[wi]
				if m.catalog != nil && !m.catalog.Has(w.Type) {
					return fmt.Errorf("%w: %q", ErrUnknownWidgetType, w.Type)
				}
				if len(w.Properties) == 0 {
					w.Properties = m.defaultsFor(w.Type)
				}
			}
		}
	}
	m.s = s
	m.reseed()
	return nil
}

// Snapshot serializes the current tree in the persisted format.
func (m *Model) Snapshot() ([]byte, error) { return Marshal(m.s, m.codec) }

// Restore replaces the tree with a serialized snapshot.
func (m *Model) Restore(data []byte) error {
	s, err := Unmarshal(data, m.codec)
	if err != nil {
		return err
	}
	return m.Replace(s)
}

func (m *Model) reseed() {
	for _, r := range m.s.Rows {
		m.nextRow = max(m.nextRow, idNumber(r.ID, "row-")+1)
		for _, c := range r.Columns {
			m.nextColumn = max(m.nextColumn, idNumber(c.ID, "col-")+1)
			for _, w := range c.Widgets {
				m.nextWidget = max(m.nextWidget, idNumber(w.ID, "widget-")+1)
			}
		}
	}
}

func idNumber(id, prefix string) int {
	s, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (m *Model) newRowID() string {
	id := "row-" + strconv.Itoa(m.nextRow)
	m.nextRow++
	return id
}

func (m *Model) newColumnID() string {
	id := "col-" + strconv.Itoa(m.nextColumn)
	m.nextColumn++
	return id
}

func (m *Model) newWidgetID() string {
	id := "widget-" + strconv.Itoa(m.nextWidget)
	m.nextWidget++
	return id
}

func (m *Model) defaultsFor(widgetType string) map[string]any {
	if m.catalog == nil {
		return map[string]any{}
	}
	spec, ok := m.catalog.Get(widgetType)
	if !ok || spec.DefaultProperties == nil {
		return map[string]any{}
	}
	return cloneMap(spec.DefaultProperties)
}

func (m *Model) rowIndex(rowID string) (int, error) {
	for i := range m.s.Rows {
		if m.s.Rows[i].ID == rowID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
}

func (m *Model) columnIndex(rowID, columnID string) (int, int, error) {
	ri, err := m.rowIndex(rowID)
	if err != nil {
		return -1, -1, err
	}
	for ci := range m.s.Rows[ri].Columns {
		if m.s.Rows[ri].Columns[ci].ID == columnID {
			return ri, ci, nil
		}
	}
	return ri, -1, fmt.Errorf("%w: %s in %s", ErrColumnNotFound, columnID, rowID)
}

func (m *Model) widgetIndex(rowID, columnID, widgetID string) (int, int, int, error) {
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return -1, -1, -1, err
	}
	for wi, w := range m.s.Rows[ri].Columns[ci].Widgets {
		if w.ID == widgetID {
			return ri, ci, wi, nil
		}
	}
	return ri, ci, -1, fmt.Errorf("%w: %s in %s", ErrWidgetNotFound, widgetID, columnID)
}

// RowWidths returns the effective widths of every column of r at v.
func RowWidths(r Row, v grid.Viewport) []int {
	out := make([]int, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Widths.Effective(v)
	}
	return out
}

// CheckBalanced verifies that r has columns and sums to grid.Units at every viewport.
func CheckBalanced(r Row) error {
	if len(r.Columns) == 0 {
		return fmt.Errorf("%w: row %s has no columns", ErrInvalidLayout, r.ID)
	}
	for _, v := range grid.Viewports {
		sum := 0
		for _, w := range RowWidths(r, v) {
			sum += w
		}
		if sum != grid.Units {
			return fmt.Errorf("%w: row %s sums to %d at %s", ErrInvalidLayout, r.ID, sum, v)
		}
	}
	return nil
}

// Validate checks ids for uniqueness and every row for balance.
func (s Structure) Validate() error {
	seen := make(map[string]struct{})
	unique := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%w: %s without id", ErrInvalidLayout, kind)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate %s id %s", ErrInvalidLayout, kind, id)
		}
		seen[id] = struct{}{}
		return nil
	}
	for _, r := range s.Rows {
		if err := unique("row", r.ID); err != nil {
			return err
		}
		for _, c := range r.Columns {
			if err := unique("column", c.ID); err != nil {
				return err
			}
			for _, w := range c.Widgets {
				if err := unique("widget", w.ID); err != nil {
					return err
				}
			}
		}
		if err := CheckBalanced(r); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s Structure) Clone() Structure {
	if s.Rows == nil {
		return Structure{}
	}
	out := Structure{Rows: make([]Row, len(s.Rows))}
	for i, r := range s.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Clone returns a deep copy.
func (r Row) Clone() Row {
	out := Row{ID: r.ID, StyleTags: cloneStrings(r.StyleTags)}
	if r.Columns != nil {
		out.Columns = make([]Column, len(r.Columns))
		for i, c := range r.Columns {
			out.Columns[i] = c.Clone()
		}
	}
	return out
}

// Clone returns a deep copy.
func (c Column) Clone() Column {
	out := Column{ID: c.ID, Widths: c.Widths, ExtraTags: cloneStrings(c.ExtraTags)}
	if c.Widgets != nil {
		out.Widgets = make([]Widget, len(c.Widgets))
		for i, w := range c.Widgets {
			out.Widgets[i] = w.Clone()
		}
	}
	return out
}

// Clone returns a deep copy.
func (w Widget) Clone() Widget {
	return Widget{ID: w.ID, Type: w.Type, Properties: cloneMap(w.Properties)}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
