/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"fmt"
	"slices"

	"pagegrid/internal/grid"
)

// AddRow appends a row with one column per entry of smallWidths.
func (m *Model) AddRow(smallWidths []int) (string, error) {
	if len(smallWidths) == 0 || len(smallWidths) > grid.Units {
		return "", fmt.Errorf("%w: %d columns", ErrInvalidLayout, len(smallWidths))
	}
	sum := 0
	for _, w := range smallWidths {
		if w < 1 || w > grid.Units {
			return "", fmt.Errorf("%w: width %d out of range", ErrInvalidLayout, w)
		}
		sum += w
	}
	if sum != grid.Units {
		return "", fmt.Errorf("%w: widths %v sum to %d", ErrInvalidLayout, smallWidths, sum)
	}
	r := Row{ID: m.newRowID(), Columns: make([]Column, len(smallWidths))}
	for i, w := range smallWidths {
		r.Columns[i] = Column{ID: m.newColumnID(), Widths: grid.Uniform(w)}
	}
	m.s.Rows = append(m.s.Rows, r)
	return r.ID, nil
}

// DeleteRow removes a row with all its columns and widgets.
func (m *Model) DeleteRow(rowID string) error {
	ri, err := m.rowIndex(rowID)
	if err != nil {
		return err
	}
	m.s.Rows = slices.Delete(m.s.Rows, ri, ri+1)
	return nil
}

// MoveRowUp swaps a row with the one above it. The first row stays put.
func (m *Model) MoveRowUp(rowID string) error {
	ri, err := m.rowIndex(rowID)
	if err != nil {
		return err
	}
	if ri > 0 {
		m.s.Rows[ri-1], m.s.Rows[ri] = m.s.Rows[ri], m.s.Rows[ri-1]
	}
	return nil
}

// MoveRowDown swaps a row with the one below it. The last row stays put.
func (m *Model) MoveRowDown(rowID string) error {
	ri, err := m.rowIndex(rowID)
	if err != nil {
		return err
	}
	if ri < len(m.s.Rows)-1 {
		m.s.Rows[ri+1], m.s.Rows[ri] = m.s.Rows[ri], m.s.Rows[ri+1]
	}
	return nil
}

// SetRowStyleTags replaces the free-form style tags of a row.
func (m *Model) SetRowStyleTags(rowID string, tags []string) error {
	ri, err := m.rowIndex(rowID)
	if err != nil {
		return err
	}
	m.s.Rows[ri].StyleTags = cloneStrings(tags)
	return nil
}

// AddColumnBefore inserts an empty column left of columnID and redistributes the row.
func (m *Model) AddColumnBefore(rowID, columnID string) (string, error) {
	return m.insertColumn(rowID, columnID, 0)
}

// AddColumnAfter inserts an empty column right of columnID and redistributes the row.
func (m *Model) AddColumnAfter(rowID, columnID string) (string, error) {
	return m.insertColumn(rowID, columnID, 1)
}

func (m *Model) insertColumn(rowID, columnID string, offset int) (string, error) {
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return "", err
	}
	row := &m.s.Rows[ri]
	if len(row.Columns) >= grid.Units {
		return "", fmt.Errorf("%w: row %s already has %d columns", ErrInvalidLayout, rowID, grid.Units)
	}
	prev := columnWidths(*row)
	col := Column{ID: m.newColumnID()}
	row.Columns = slices.Insert(row.Columns, ci+offset, col)
	redistribute(row, prev)
	return col.ID, nil
}

// DeleteColumn removes a column and its widgets and redistributes the row.
func (m *Model) DeleteColumn(rowID, columnID string) error {
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return err
	}
	row := &m.s.Rows[ri]
	if len(row.Columns) == 1 {
		return fmt.Errorf("%w: %s", ErrLastColumnProtected, columnID)
	}
	prev := columnWidths(*row)
	row.Columns = slices.Delete(row.Columns, ci, ci+1)
	redistribute(row, prev)
	return nil
}

// MoveColumnLeft swaps a column with its left neighbour; widths travel with the column.
func (m *Model) MoveColumnLeft(rowID, columnID string) error {
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return err
	}
	if ci > 0 {
		cols := m.s.Rows[ri].Columns
		cols[ci-1], cols[ci] = cols[ci], cols[ci-1]
	}
	return nil
}

// MoveColumnRight swaps a column with its right neighbour.
func (m *Model) MoveColumnRight(rowID, columnID string) error {
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return err
	}
	cols := m.s.Rows[ri].Columns
	if ci < len(cols)-1 {
		cols[ci+1], cols[ci] = cols[ci], cols[ci+1]
	}
	return nil
}

// SetColumnTags replaces the non-width style tags of a column.
func (m *Model) SetColumnTags(rowID, columnID string, tags []string) error {
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return err
	}
	_, extra := m.codec.Decode(tags)
	m.s.Rows[ri].Columns[ci].ExtraTags = extra
	return nil
}

// SetPairWidths commits a resize of two columns of the same row at viewport v.
// The pair must keep its combined effective width at v. Larger viewports keep
// their effective widths unless both columns inherit from v together.
func (m *Model) SetPairWidths(rowID, columnID, adjacentID string, v grid.Viewport, width, adjacentWidth int) error {
	if !v.Valid() {
		return fmt.Errorf("%w: viewport %d", ErrInvalidLayout, int(v))
	}
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return err
	}
	_, ai, err := m.columnIndex(rowID, adjacentID)
	if err != nil {
		return err
	}
	if ci == ai {
		return fmt.Errorf("%w: column %s paired with itself", ErrInvalidLayout, columnID)
	}
	cols := m.s.Rows[ri].Columns
	a, b := cols[ci].Widths, cols[ai].Widths
	if width < 1 || adjacentWidth < 1 || width+adjacentWidth != a.Effective(v)+b.Effective(v) {
		return fmt.Errorf("%w: %d+%d does not match pair total %d at %s",
			ErrInvalidLayout, width, adjacentWidth, a.Effective(v)+b.Effective(v), v)
	}
	na, nb := a.Set(v, width), b.Set(v, adjacentWidth)
	for w := v + 1; w <= grid.Large; w++ {
		if na.Effective(w)+nb.Effective(w) != a.Effective(w)+b.Effective(w) {
			na[w], nb[w] = a.Effective(w), b.Effective(w)
		}
	}
	cols[ci].Widths, cols[ai].Widths = na.Normalize(), nb.Normalize()
	return nil
}

// AddWidget inserts a widget of widgetType at index (append when index is out
// of range). Nil properties are seeded from the catalog defaults.
func (m *Model) AddWidget(rowID, columnID, widgetType string, index int, props map[string]any) (string, error) {
	if m.catalog == nil || !m.catalog.Has(widgetType) {
		return "", fmt.Errorf("%w: %q", ErrUnknownWidgetType, widgetType)
	}
	ri, ci, err := m.columnIndex(rowID, columnID)
	if err != nil {
		return "", err
	}
	if props == nil {
		props = m.defaultsFor(widgetType)
	} else {
		props = cloneMap(props)
	}
	w := Widget{ID: m.newWidgetID(), Type: widgetType, Properties: props}
	col := &m.s.Rows[ri].Columns[ci]
	col.Widgets = slices.Insert(col.Widgets, clampIndex(index, len(col.Widgets)), w)
	return w.ID, nil
}

// MoveWidget moves a widget to position index of another (or the same) column.
func (m *Model) MoveWidget(rowID, columnID, widgetID, toRowID, toColumnID string, index int) error {
	ri, ci, wi, err := m.widgetIndex(rowID, columnID, widgetID)
	if err != nil {
		return err
	}
	tri, tci, err := m.columnIndex(toRowID, toColumnID)
	if err != nil {
		return err
	}
	src := &m.s.Rows[ri].Columns[ci]
	w := src.Widgets[wi]
	src.Widgets = slices.Delete(src.Widgets, wi, wi+1)
	dst := &m.s.Rows[tri].Columns[tci]
	dst.Widgets = slices.Insert(dst.Widgets, clampIndex(index, len(dst.Widgets)), w)
	return nil
}

// DeleteWidget removes a widget from its column.
func (m *Model) DeleteWidget(rowID, columnID, widgetID string) error {
	ri, ci, wi, err := m.widgetIndex(rowID, columnID, widgetID)
	if err != nil {
		return err
	}
	col := &m.s.Rows[ri].Columns[ci]
	col.Widgets = slices.Delete(col.Widgets, wi, wi+1)
	return nil
}

// UpdateWidgetProperties replaces the properties of a widget.
func (m *Model) UpdateWidgetProperties(rowID, columnID, widgetID string, props map[string]any) error {
	ri, ci, wi, err := m.widgetIndex(rowID, columnID, widgetID)
	if err != nil {
		return err
	}
	w := &m.s.Rows[ri].Columns[ci].Widgets[wi]
	if props == nil {
		props = m.defaultsFor(w.Type)
	}
	w.Properties = cloneMap(props)
	return nil
}

func clampIndex(i, n int) int {
	if i < 0 || i > n {
		return n
	}
	return i
}
