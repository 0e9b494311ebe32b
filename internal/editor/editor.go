/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor is the page editing session: it applies view gestures to the
// layout model, records history, tracks unsaved resources and reports every
// change through an Emitter.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pagegrid/internal/grid"
	"pagegrid/internal/layout"
	applog "pagegrid/internal/log"
	"pagegrid/internal/resize"
	"pagegrid/internal/save"
	"pagegrid/internal/undo"
)

// ErrNoResize is returned by EndResize when no gesture is active.
var ErrNoResize = errors.New("no resize in progress")

// Page is everything the editor loads and saves.
type Page struct {
	Structure  layout.Structure
	Metadata   save.PageMetadata
	Stylesheet string
}

// Options configures a new Editor. Zero values select the defaults.
type Options struct {
	PageID    string
	Catalog   layout.Catalog
	Codec     grid.Codec
	History   undo.Config
	Endpoints save.Endpoints
	Emitter   Emitter
	Viewport  grid.Viewport
}

// State is a point-in-time summary for status bars and the CLI.
type State struct {
	History  undo.State      `json:"history"`
	Dirty    save.DirtyState `json:"dirty"`
	Viewport grid.Viewport   `json:"viewport"`
	Resizing bool            `json:"resizing"`
}

// Editor serializes all edits behind a mutex. Events are emitted after the
// mutex is released, so an Emitter may call back into the editor.
type Editor struct {
	mu       sync.Mutex
	ctx      context.Context
	pageID   string
	model    *layout.Model
	history  *undo.History
	tracker  *save.Tracker
	saver    *save.Coordinator
	resize   *resize.Engine
	emitter  Emitter
	viewport grid.Viewport
	meta     save.PageMetadata
	css      string
	log      *slog.Logger
}

type event struct {
	name string
	data any
}

// New creates an editor on an empty page. ctx is used for every emitted event.
func New(ctx context.Context, opts Options) *Editor {
	if ctx == nil {
		ctx = context.Background()
	}
	codec := opts.Codec
	if codec == (grid.Codec{}) {
		codec = grid.DefaultCodec
	}
	em := opts.Emitter
	if em == nil {
		em = nopEmitter{}
	}
	tracker := save.NewTracker()
	e := &Editor{
		ctx:      applog.ContextWithPage(ctx, opts.PageID),
		pageID:   opts.PageID,
		model:    layout.NewModel(opts.Catalog, codec),
		history:  undo.NewHistory(opts.History),
		tracker:  tracker,
		saver:    save.NewCoordinator(tracker, opts.Endpoints),
		resize:   resize.NewEngine(),
		emitter:  em,
		viewport: opts.Viewport,
		log:      applog.WithComponent("editor").With(slog.String("page", opts.PageID)),
	}
	if blob, err := e.model.Snapshot(); err == nil {
		e.history.Reset(undo.Snapshot{Blob: blob, Label: "open"})
		e.tracker.SetLayoutBaseline(blob)
	}
	return e
}

// Load replaces the page. History restarts at the loaded state and every
// resource is clean.
func (e *Editor) Load(p Page) error {
	e.mu.Lock()
	if err := e.model.Replace(p.Structure); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("load page: %w", err)
	}
	blob, err := e.model.Snapshot()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("load page: %w", err)
	}
	e.resize.Cancel()
	e.history.Reset(undo.Snapshot{Blob: blob, Label: "open"})
	e.tracker.SetLayoutBaseline(blob)
	e.tracker.MarkClean(save.Metadata)
	e.tracker.MarkClean(save.Stylesheet)
	e.meta = p.Metadata
	e.css = p.Stylesheet
	evs := e.changedEventsLocked()
	e.mu.Unlock()
	e.log.Info("page loaded", slog.Int("rows", len(p.Structure.Rows)))
	e.fire(evs)
	return nil
}

// Page returns a copy of everything the editor holds.
func (e *Editor) Page() Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Page{Structure: e.model.Structure(), Metadata: e.meta, Stylesheet: e.css}
}

// Structure returns a copy of the current layout tree.
func (e *Editor) Structure() layout.Structure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Structure()
}

// LayoutBytes returns the serialized current layout.
func (e *Editor) LayoutBytes() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Snapshot()
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{History: e.history.State(), Dirty: e.tracker.State(), Viewport: e.viewport, Resizing: e.resize.Active()}
}

// Viewport is the breakpoint resize gestures write to.
func (e *Editor) Viewport() grid.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

// SetViewport switches the active breakpoint. An active resize is cancelled.
func (e *Editor) SetViewport(v grid.Viewport) error {
	if !v.Valid() {
		return fmt.Errorf("%w: viewport %d", layout.ErrInvalidLayout, int(v))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resize.Cancel()
	e.viewport = v
	return nil
}

// Rows

func (e *Editor) AddRow(smallWidths []int) (string, error) {
	var id string
	err := e.mutate("add row", "", func(m *layout.Model) (err error) {
		id, err = m.AddRow(smallWidths)
		return err
	})
	return id, err
}

func (e *Editor) DeleteRow(rowID string) error {
	return e.mutate("delete row", "", func(m *layout.Model) error { return m.DeleteRow(rowID) })
}

func (e *Editor) MoveRowUp(rowID string) error {
	return e.mutate("move row", "", func(m *layout.Model) error { return m.MoveRowUp(rowID) })
}

func (e *Editor) MoveRowDown(rowID string) error {
	return e.mutate("move row", "", func(m *layout.Model) error { return m.MoveRowDown(rowID) })
}

func (e *Editor) SetRowStyleTags(rowID string, tags []string) error {
	return e.mutate("row style", "", func(m *layout.Model) error { return m.SetRowStyleTags(rowID, tags) })
}

// Columns

func (e *Editor) AddColumnBefore(rowID, columnID string) (string, error) {
	var id string
	err := e.mutate("add column", "", func(m *layout.Model) (err error) {
		id, err = m.AddColumnBefore(rowID, columnID)
		return err
	})
	return id, err
}

func (e *Editor) AddColumnAfter(rowID, columnID string) (string, error) {
	var id string
	err := e.mutate("add column", "", func(m *layout.Model) (err error) {
		id, err = m.AddColumnAfter(rowID, columnID)
		return err
	})
	return id, err
}

func (e *Editor) DeleteColumn(rowID, columnID string) error {
	return e.mutate("delete column", "", func(m *layout.Model) error { return m.DeleteColumn(rowID, columnID) })
}

func (e *Editor) MoveColumnLeft(rowID, columnID string) error {
	return e.mutate("move column", "", func(m *layout.Model) error { return m.MoveColumnLeft(rowID, columnID) })
}

func (e *Editor) MoveColumnRight(rowID, columnID string) error {
	return e.mutate("move column", "", func(m *layout.Model) error { return m.MoveColumnRight(rowID, columnID) })
}

func (e *Editor) SetColumnTags(rowID, columnID string, tags []string) error {
	return e.mutate("column style", "", func(m *layout.Model) error { return m.SetColumnTags(rowID, columnID, tags) })
}

// Widgets

func (e *Editor) AddWidget(rowID, columnID, widgetType string, index int, props map[string]any) (string, error) {
	var id string
	err := e.mutate("add widget", "", func(m *layout.Model) (err error) {
		id, err = m.AddWidget(rowID, columnID, widgetType, index, props)
		return err
	})
	return id, err
}

func (e *Editor) MoveWidget(rowID, columnID, widgetID, toRowID, toColumnID string, index int) error {
	return e.mutate("move widget", "", func(m *layout.Model) error {
		return m.MoveWidget(rowID, columnID, widgetID, toRowID, toColumnID, index)
	})
}

func (e *Editor) DeleteWidget(rowID, columnID, widgetID string) error {
	return e.mutate("delete widget", "", func(m *layout.Model) error { return m.DeleteWidget(rowID, columnID, widgetID) })
}

// UpdateWidgetProperties replaces a widget's properties. Rapid edits of the
// same widget may be merged into one history entry.
func (e *Editor) UpdateWidgetProperties(rowID, columnID, widgetID string, props map[string]any) error {
	return e.mutate("widget properties", "props:"+widgetID, func(m *layout.Model) error {
		return m.UpdateWidgetProperties(rowID, columnID, widgetID, props)
	})
}

// Resize

// BeginResize starts dragging the given edge of a column at the active viewport.
func (e *Editor) BeginResize(rowID, columnID string, side resize.Side) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, err := e.model.Row(rowID)
	if err != nil {
		return err
	}
	return e.resize.Begin(row, columnID, side, e.viewport)
}

// UpdateResize feeds pointer movement. A resizePreview event is emitted when
// the pair moved by at least one unit; the model is not touched until EndResize.
func (e *Editor) UpdateResize(dx, trackWidthPx float64) (resize.Update, bool) {
	e.mu.Lock()
	u, ok := e.resize.Update(dx, trackWidthPx)
	e.mu.Unlock()
	if ok {
		e.fire([]event{{EventResizePreview, u}})
	}
	return u, ok
}

// EndResize commits the gesture at the active viewport only.
func (e *Editor) EndResize() error {
	e.mu.Lock()
	if !e.resize.Active() {
		e.mu.Unlock()
		return ErrNoResize
	}
	p, changed := e.resize.End()
	if !changed {
		e.mu.Unlock()
		return nil
	}
	evs, err := e.applyLocked("resize", "", func(m *layout.Model) error {
		return m.SetPairWidths(p.RowID, p.ColumnID, p.AdjacentID, p.Viewport, p.Width, p.AdjacentWidth)
	})
	e.mu.Unlock()
	e.fire(evs)
	return err
}

// CancelResize drops an active gesture; the view should re-render the structure.
func (e *Editor) CancelResize() {
	e.mu.Lock()
	active := e.resize.Active()
	e.resize.Cancel()
	var evs []event
	if active {
		evs = []event{{EventStructureChanged, e.model.Structure()}}
	}
	e.mu.Unlock()
	e.fire(evs)
}

// History

// Undo restores the previous history entry. It reports false at the oldest entry.
func (e *Editor) Undo() (bool, error) { return e.travel(e.history.Undo, "undo") }

// Redo restores the next history entry. It reports false at the newest entry.
func (e *Editor) Redo() (bool, error) { return e.travel(e.history.Redo, "redo") }

func (e *Editor) travel(step func() (undo.Snapshot, bool), op string) (bool, error) {
	e.mu.Lock()
	e.resize.Cancel()
	s, ok := step()
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	if err := e.model.Restore(s.Blob); err != nil {
		e.mu.Unlock()
		return false, fmt.Errorf("%s: %w", op, err)
	}
	e.tracker.RecomputeLayout(s.Blob)
	evs := e.changedEventsLocked()
	e.mu.Unlock()
	e.log.Debug(op, slog.String("label", s.Label))
	e.fire(evs)
	return true, nil
}

// Metadata and stylesheet

func (e *Editor) Metadata() save.PageMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

func (e *Editor) SetMetadata(m save.PageMetadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.meta = m
	e.tracker.MarkDirty(save.Metadata)
	st := e.tracker.State()
	e.mu.Unlock()
	e.fire([]event{{EventDirtyStateChanged, st}})
	return nil
}

func (e *Editor) Stylesheet() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.css
}

func (e *Editor) SetStylesheet(css string) {
	e.mu.Lock()
	e.css = css
	e.tracker.MarkDirty(save.Stylesheet)
	st := e.tracker.State()
	e.mu.Unlock()
	e.fire([]event{{EventDirtyStateChanged, st}})
}

// Save

// SetEndpoints replaces where resources are saved to.
func (e *Editor) SetEndpoints(eps save.Endpoints) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saver.SetEndpoints(eps)
}

// Save writes every dirty resource and emits saveCompleted with the report.
// Edits made while the save runs stay dirty.
func (e *Editor) Save(ctx context.Context) (save.Report, error) {
	e.mu.Lock()
	layoutBytes, err := e.model.Snapshot()
	if err != nil {
		e.mu.Unlock()
		return save.Report{}, err
	}
	metaBytes, err := save.MarshalMetadata(e.meta)
	if err != nil {
		e.mu.Unlock()
		return save.Report{}, err
	}
	payloads := save.Payloads{
		save.Layout:     layoutBytes,
		save.Metadata:   metaBytes,
		save.Stylesheet: save.StylesheetPayload(e.css),
	}
	e.mu.Unlock()

	rep, err := e.saver.Save(applog.ContextWithPage(ctx, e.pageID), payloads)
	if err != nil {
		return rep, err
	}
	e.fire([]event{{EventDirtyStateChanged, e.tracker.State()}, {EventSaveCompleted, rep}})
	return rep, nil
}

// mutate applies fn to the model and, when it succeeds, records history and
// emits the change events. fn must not leave the model half changed on error.
func (e *Editor) mutate(label, coalesceKey string, fn func(*layout.Model) error) error {
	e.mu.Lock()
	e.resize.Cancel()
	evs, err := e.applyLocked(label, coalesceKey, fn)
	e.mu.Unlock()
	e.fire(evs)
	return err
}

func (e *Editor) applyLocked(label, coalesceKey string, fn func(*layout.Model) error) ([]event, error) {
	if err := fn(e.model); err != nil {
		e.log.Debug("edit rejected", slog.String("op", label), slog.Any("err", err))
		return nil, err
	}
	blob, err := e.model.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	if cur, ok := e.history.Current(); ok && bytes.Equal(cur.Blob, blob) {
		return nil, nil
	}
	e.history.Push(undo.Snapshot{Blob: blob, Label: label, CoalesceKey: coalesceKey})
	e.tracker.RecomputeLayout(blob)
	return e.changedEventsLocked(), nil
}

func (e *Editor) changedEventsLocked() []event {
	return []event{
		{EventStructureChanged, e.model.Structure()},
		{EventHistoryStateChanged, e.history.State()},
		{EventDirtyStateChanged, e.tracker.State()},
	}
}

func (e *Editor) fire(evs []event) {
	for _, ev := range evs {
		e.emitter.Emit(e.ctx, ev.name, ev.data)
	}
}
