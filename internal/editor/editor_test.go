/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"pagegrid/internal/catalog"
	"pagegrid/internal/grid"
	"pagegrid/internal/layout"
	"pagegrid/internal/resize"
	"pagegrid/internal/save"
	"pagegrid/internal/undo"
)

type recordingEndpoint struct {
	mu    sync.Mutex
	fail  map[save.Resource]bool
	saved map[save.Resource][]byte
}

func (r *recordingEndpoint) Save(_ context.Context, res save.Resource, payload []byte) (save.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[res] {
		return save.Result{Success: false, Message: "rejected"}, nil
	}
	if r.saved == nil {
		r.saved = map[save.Resource][]byte{}
	}
	r.saved[res] = payload
	return save.Result{Success: true}, nil
}

func newEditor(t *testing.T) (*Editor, *MockEmitter, *recordingEndpoint) {
	t.Helper()
	em := &MockEmitter{}
	ep := &recordingEndpoint{fail: map[save.Resource]bool{}}
	e := New(context.Background(), Options{
		PageID:    "home",
		Catalog:   catalog.Default(),
		Endpoints: save.All(ep),
		Emitter:   em,
	})
	return e, em, ep
}

func firstColumn(t *testing.T, e *Editor, rowID string) string {
	t.Helper()
	for _, r := range e.Structure().Rows {
		if r.ID == rowID {
			return r.Columns[0].ID
		}
	}
	t.Fatalf("row %s not found", rowID)
	return ""
}

func TestMutationEmitsChangeEvents(t *testing.T) {
	e, em, _ := newEditor(t)
	if _, err := e.AddRow([]int{12}); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	want := []string{EventStructureChanged, EventHistoryStateChanged, EventDirtyStateChanged}
	if got := em.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v", got)
	}
	hs, _ := em.Last(EventHistoryStateChanged)
	if st := hs.Data.(undo.State); !st.CanUndo || st.CanRedo {
		t.Fatalf("history state = %+v", st)
	}
	ds, _ := em.Last(EventDirtyStateChanged)
	if st := ds.Data.(save.DirtyState); !st.Layout || st.Metadata {
		t.Fatalf("dirty state = %+v", st)
	}
}

func TestRejectedEditChangesNothing(t *testing.T) {
	e, em, _ := newEditor(t)
	row, _ := e.AddRow([]int{12})
	em.Reset()
	if err := e.DeleteColumn(row, firstColumn(t, e, row)); !errors.Is(err, layout.ErrLastColumnProtected) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.AddWidget(row, firstColumn(t, e, row), "carousel", -1, nil); !errors.Is(err, layout.ErrUnknownWidgetType) {
		t.Fatalf("err = %v", err)
	}
	if len(em.Names()) != 0 {
		t.Fatalf("rejected edits emitted %v", em.Names())
	}
	if _, n, _ := e.history.Stats(); n != 2 {
		t.Fatalf("history entries = %d", n)
	}
}

func TestBoundaryMovesAddNoHistory(t *testing.T) {
	e, em, _ := newEditor(t)
	top, _ := e.AddRow([]int{6, 6})
	bottom, _ := e.AddRow([]int{12})
	_, before, cursor := e.history.Stats()
	em.Reset()

	cols := e.Structure().Rows[0].Columns
	if err := e.MoveColumnLeft(top, cols[0].ID); err != nil {
		t.Fatalf("MoveColumnLeft: %v", err)
	}
	if err := e.MoveColumnRight(top, cols[1].ID); err != nil {
		t.Fatalf("MoveColumnRight: %v", err)
	}
	if err := e.MoveRowUp(top); err != nil {
		t.Fatalf("MoveRowUp: %v", err)
	}
	if err := e.MoveRowDown(bottom); err != nil {
		t.Fatalf("MoveRowDown: %v", err)
	}
	if _, n, c := e.history.Stats(); n != before || c != cursor {
		t.Fatalf("history entries/cursor = %d/%d, want %d/%d", n, c, before, cursor)
	}
	if len(em.Names()) != 0 {
		t.Fatalf("no-op moves emitted %v", em.Names())
	}

	if err := e.MoveRowDown(top); err != nil {
		t.Fatalf("MoveRowDown: %v", err)
	}
	if _, n, _ := e.history.Stats(); n != before+1 {
		t.Fatalf("real move must push history, entries = %d", n)
	}
}

func TestScenarioWithUndoRedo(t *testing.T) {
	e, _, _ := newEditor(t)
	row, _ := e.AddRow([]int{12})
	first := firstColumn(t, e, row)
	if _, err := e.AddColumnAfter(row, first); err != nil {
		t.Fatalf("AddColumnAfter: %v", err)
	}
	if _, err := e.AddColumnBefore(row, first); err != nil {
		t.Fatalf("AddColumnBefore: %v", err)
	}
	r := e.Structure().Rows[0]
	if got := layout.RowWidths(r, grid.Small); !reflect.DeepEqual(got, []int{4, 4, 4}) {
		t.Fatalf("widths = %v", got)
	}
	if err := e.DeleteColumn(row, r.Columns[1].ID); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	if got := layout.RowWidths(e.Structure().Rows[0], grid.Small); !reflect.DeepEqual(got, []int{6, 6}) {
		t.Fatalf("widths = %v", got)
	}

	for i := 0; i < 4; i++ {
		if ok, err := e.Undo(); !ok || err != nil {
			t.Fatalf("undo %d: ok=%v err=%v", i, ok, err)
		}
	}
	if len(e.Structure().Rows) != 0 {
		t.Fatalf("undo should reach the empty page")
	}
	if e.State().Dirty.Layout {
		t.Fatalf("back at the baseline the layout must be clean")
	}
	if ok, _ := e.Undo(); ok {
		t.Fatalf("undo past the start must report false")
	}
	if ok, _ := e.Redo(); !ok {
		t.Fatalf("redo failed")
	}
	if !e.State().Dirty.Layout || len(e.Structure().Rows) != 1 {
		t.Fatalf("redo did not restore the row")
	}
	// ids keep growing after undo, so restored ids never clash
	row2, _ := e.AddRow([]int{12})
	if row2 == row {
		t.Fatalf("row id reused: %s", row2)
	}
	if e.State().History.CanRedo {
		t.Fatalf("new edit must clear redo")
	}
}

func TestResizeGestureCommitsActiveViewport(t *testing.T) {
	e, em, _ := newEditor(t)
	row, _ := e.AddRow([]int{6, 6})
	if err := e.SetViewport(grid.Medium); err != nil {
		t.Fatalf("SetViewport: %v", err)
	}
	col := firstColumn(t, e, row)
	if err := e.BeginResize(row, col, resize.Right); err != nil {
		t.Fatalf("BeginResize: %v", err)
	}
	em.Reset()
	if _, ok := e.UpdateResize(200, 1200); !ok {
		t.Fatalf("UpdateResize should move two units")
	}
	if got := em.Names(); !reflect.DeepEqual(got, []string{EventResizePreview}) {
		t.Fatalf("events during drag = %v", got)
	}
	if got := layout.RowWidths(e.Structure().Rows[0], grid.Medium); !reflect.DeepEqual(got, []int{6, 6}) {
		t.Fatalf("model changed before EndResize: %v", got)
	}
	if err := e.EndResize(); err != nil {
		t.Fatalf("EndResize: %v", err)
	}
	r := e.Structure().Rows[0]
	if got := layout.RowWidths(r, grid.Medium); !reflect.DeepEqual(got, []int{8, 4}) {
		t.Fatalf("medium = %v", got)
	}
	if got := layout.RowWidths(r, grid.Small); !reflect.DeepEqual(got, []int{6, 6}) {
		t.Fatalf("small must be untouched: %v", got)
	}
	if err := e.EndResize(); !errors.Is(err, ErrNoResize) {
		t.Fatalf("second EndResize err = %v", err)
	}
	if ok, _ := e.Undo(); !ok {
		t.Fatalf("resize should be undoable")
	}
	if got := layout.RowWidths(e.Structure().Rows[0], grid.Medium); !reflect.DeepEqual(got, []int{6, 6}) {
		t.Fatalf("undo of resize = %v", got)
	}
}

func TestResizeWithoutNeighbour(t *testing.T) {
	e, _, _ := newEditor(t)
	row, _ := e.AddRow([]int{12})
	if err := e.BeginResize(row, firstColumn(t, e, row), resize.Right); !errors.Is(err, resize.ErrNoAdjacentColumn) {
		t.Fatalf("err = %v", err)
	}
}

func TestSavePartialFailureAndRetry(t *testing.T) {
	e, em, ep := newEditor(t)
	_, _ = e.AddRow([]int{12})
	if err := e.SetMetadata(save.PageMetadata{Title: "Home", Slug: "home"}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	e.SetStylesheet("body{}")
	ep.fail[save.Stylesheet] = true

	rep, err := e.Save(context.Background())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rep.Outcome != save.OutcomePartial {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	ev, ok := em.Last(EventSaveCompleted)
	if !ok || ev.Data.(save.Report).ID != rep.ID {
		t.Fatalf("saveCompleted not emitted with the report")
	}
	if st := e.State().Dirty; st.Layout || st.Metadata || !st.Stylesheet {
		t.Fatalf("dirty after partial save = %+v", st)
	}
	layoutBytes, _ := e.LayoutBytes()
	if string(ep.saved[save.Layout]) != string(layoutBytes) {
		t.Fatalf("saved layout differs from model")
	}

	delete(ep.fail, save.Stylesheet)
	ep.saved = nil
	rep, _ = e.Save(context.Background())
	if rep.Outcome != save.OutcomeAllSucceeded || len(ep.saved) != 1 || string(ep.saved[save.Stylesheet]) != "body{}\n" {
		t.Fatalf("retry outcome=%s saved=%v", rep.Outcome, ep.saved)
	}
	rep, _ = e.Save(context.Background())
	if rep.Outcome != save.OutcomeNothing {
		t.Fatalf("clean save outcome = %s", rep.Outcome)
	}
}

func TestSetMetadataValidates(t *testing.T) {
	e, em, _ := newEditor(t)
	if err := e.SetMetadata(save.PageMetadata{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if e.State().Dirty.Metadata || len(em.Names()) != 0 {
		t.Fatalf("invalid metadata must not mark dirty")
	}
}

func TestLoadResetsHistoryAndDirtyState(t *testing.T) {
	e, _, _ := newEditor(t)
	_, _ = e.AddRow([]int{12})
	e.SetStylesheet("x")
	s := layout.Structure{Rows: []layout.Row{{ID: "row-3", Columns: []layout.Column{
		{ID: "col-5", Widths: grid.Widths{4}},
		{ID: "col-6", Widths: grid.Widths{8}, Widgets: []layout.Widget{{ID: "widget-2", Type: "heading"}}},
	}}}}
	if err := e.Load(Page{Structure: s, Metadata: save.PageMetadata{Title: "T"}, Stylesheet: "y"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := e.State()
	if st.History.CanUndo || st.History.CanRedo || st.Dirty.Any() {
		t.Fatalf("state after load = %+v", st)
	}
	p := e.Page()
	if p.Stylesheet != "y" || p.Metadata.Title != "T" {
		t.Fatalf("page = %+v", p)
	}
	if p.Structure.Rows[0].Columns[1].Widgets[0].Properties["text"] != "Heading" {
		t.Fatalf("catalog defaults not seeded on load")
	}
	bad := layout.Structure{Rows: []layout.Row{{ID: "row-1", Columns: []layout.Column{{ID: "col-1", Widths: grid.Widths{5}}}}}}
	if err := e.Load(Page{Structure: bad}); !errors.Is(err, layout.ErrInvalidLayout) {
		t.Fatalf("err = %v", err)
	}
}

type reentrantEmitter struct {
	e     *Editor
	calls int
}

func (r *reentrantEmitter) Emit(context.Context, string, any) {
	r.calls++
	_ = r.e.State()
}

func TestEmitterMayCallBack(t *testing.T) {
	em := &reentrantEmitter{}
	e := New(context.Background(), Options{Emitter: em})
	em.e = e
	if _, err := e.AddRow([]int{6, 6}); err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if em.calls != 3 {
		t.Fatalf("calls = %d", em.calls)
	}
}

func TestWidgetPropertyEditsCoalesce(t *testing.T) {
	em := &MockEmitter{}
	e := New(context.Background(), Options{Catalog: catalog.Default(), Emitter: em, History: undo.Config{MinInterval: 1 << 40}})
	row, _ := e.AddRow([]int{12})
	col := firstColumn(t, e, row)
	w, _ := e.AddWidget(row, col, "text", -1, nil)
	for _, body := range []string{"a", "ab", "abc"} {
		if err := e.UpdateWidgetProperties(row, col, w, map[string]any{"body": body}); err != nil {
			t.Fatalf("UpdateWidgetProperties: %v", err)
		}
	}
	if _, n, _ := e.history.Stats(); n != 4 {
		t.Fatalf("history entries = %d, want open+row+widget+props", n)
	}
}
