/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package save

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeEndpoint struct {
	mu    sync.Mutex
	calls map[Resource]int
	fail  map[Resource]error
	deny  map[Resource]string
	block chan struct{}
}

func newFake() *fakeEndpoint {
	return &fakeEndpoint{calls: map[Resource]int{}, fail: map[Resource]error{}, deny: map[Resource]string{}}
}

func (f *fakeEndpoint) Save(ctx context.Context, r Resource, payload []byte) (Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r]++
	if err := f.fail[r]; err != nil {
		return Result{}, err
	}
	if msg, ok := f.deny[r]; ok {
		return Result{Success: false, Message: msg}, nil
	}
	return Result{Success: true}, nil
}

func (f *fakeEndpoint) count(r Resource) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[r]
}

func payloads() Payloads {
	return Payloads{Layout: []byte("L2"), Metadata: []byte("{}"), Stylesheet: []byte("css")}
}

func TestDirtyFlagsAreIndependent(t *testing.T) {
	tr := NewTracker()
	tr.SetLayoutBaseline([]byte("L1"))
	if tr.State().Any() {
		t.Fatalf("fresh tracker is dirty: %+v", tr.State())
	}
	tr.MarkDirty(Metadata)
	if st := tr.State(); st.Layout || !st.Metadata || st.Stylesheet {
		t.Fatalf("state = %+v", st)
	}
	if !tr.RecomputeLayout([]byte("L2")) {
		t.Fatalf("layout flag should have changed")
	}
	if tr.RecomputeLayout([]byte("L3")) {
		t.Fatalf("layout already dirty, flag must not change")
	}
	if !tr.RecomputeLayout([]byte("L1")) || tr.IsDirty(Layout) {
		t.Fatalf("returning to the baseline should clear the layout flag")
	}
	tr.MarkClean(Metadata)
	if tr.State().Any() {
		t.Fatalf("state = %+v", tr.State())
	}
}

func TestSaveNothing(t *testing.T) {
	ep := newFake()
	c := NewCoordinator(NewTracker(), All(ep))
	rep, err := c.Save(context.Background(), payloads())
	if err != nil || rep.Outcome != OutcomeNothing {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
	if ep.count(Layout)+ep.count(Metadata)+ep.count(Stylesheet) != 0 {
		t.Fatalf("no endpoint should be called")
	}
}

func TestSaveAllSucceeded(t *testing.T) {
	tr := NewTracker()
	tr.SetLayoutBaseline([]byte("L1"))
	tr.RecomputeLayout([]byte("L2"))
	tr.MarkDirty(Stylesheet)
	ep := newFake()
	c := NewCoordinator(tr, All(ep))
	rep, err := c.Save(context.Background(), payloads())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rep.Outcome != OutcomeAllSucceeded || rep.ID == "" {
		t.Fatalf("rep = %+v", rep)
	}
	if ep.count(Metadata) != 0 {
		t.Fatalf("clean metadata must not be saved")
	}
	if rep.Results[Metadata].Needed {
		t.Fatalf("metadata marked as needed")
	}
	if tr.State().Any() {
		t.Fatalf("state after save = %+v", tr.State())
	}
	// the saved payload is the new baseline
	if tr.RecomputeLayout([]byte("L2")) || tr.IsDirty(Layout) {
		t.Fatalf("baseline not moved to saved payload")
	}
}

func TestPartialFailureRetriesOnlyStillDirty(t *testing.T) {
	tr := NewTracker()
	tr.SetLayoutBaseline([]byte("L1"))
	tr.RecomputeLayout([]byte("L2"))
	tr.MarkDirty(Metadata)
	tr.MarkDirty(Stylesheet)
	ep := newFake()
	transport := errors.New("connection refused")
	ep.fail[Metadata] = transport
	ep.deny[Stylesheet] = "css rejected"
	c := NewCoordinator(tr, All(ep))

	rep, err := c.Save(context.Background(), payloads())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rep.Outcome != OutcomePartial {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if st := tr.State(); st.Layout || !st.Metadata || !st.Stylesheet {
		t.Fatalf("state = %+v", st)
	}
	var rse *ResourceSaveError
	if !errors.As(rep.Results[Stylesheet].Err, &rse) || rse.Message != "css rejected" {
		t.Fatalf("stylesheet err = %v", rep.Results[Stylesheet].Err)
	}
	if !errors.Is(rep.Results[Metadata].Err, ErrResourceSaveFailed) || !errors.Is(rep.Results[Metadata].Err, transport) {
		t.Fatalf("metadata err = %v", rep.Results[Metadata].Err)
	}
	if !errors.Is(rep.Err(), ErrResourceSaveFailed) {
		t.Fatalf("report err = %v", rep.Err())
	}

	delete(ep.fail, Metadata)
	delete(ep.deny, Stylesheet)
	rep, _ = c.Save(context.Background(), payloads())
	if rep.Outcome != OutcomeAllSucceeded {
		t.Fatalf("retry outcome = %s", rep.Outcome)
	}
	if ep.count(Layout) != 1 || ep.count(Metadata) != 2 || ep.count(Stylesheet) != 2 {
		t.Fatalf("calls = %v", ep.calls)
	}
	if rep.Results[Layout].Needed {
		t.Fatalf("layout was already saved and must not be retried")
	}
}

func TestAllFailedAndMissingEndpoint(t *testing.T) {
	tr := NewTracker()
	tr.MarkDirty(Metadata)
	tr.MarkDirty(Stylesheet)
	ep := newFake()
	ep.deny[Metadata] = "nope"
	c := NewCoordinator(tr, Endpoints{Metadata: ep})
	rep, _ := c.Save(context.Background(), payloads())
	if rep.Outcome != OutcomeAllFailed {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if got := rep.Failed(); len(got) != 2 {
		t.Fatalf("failed = %v", got)
	}
}

func TestSecondSaveWhileBusy(t *testing.T) {
	tr := NewTracker()
	tr.MarkDirty(Metadata)
	ep := newFake()
	ep.block = make(chan struct{})
	c := NewCoordinator(tr, All(ep))

	done := make(chan Report)
	go func() {
		rep, _ := c.Save(context.Background(), payloads())
		done <- rep
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !c.busy.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("first save never started")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := c.Save(context.Background(), payloads()); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("err = %v, want ErrSaveInProgress", err)
	}
	close(ep.block)
	if rep := <-done; rep.Outcome != OutcomeAllSucceeded {
		t.Fatalf("first save outcome = %s", rep.Outcome)
	}
}

func TestEditDuringSaveKeepsFlag(t *testing.T) {
	tr := NewTracker()
	tr.MarkDirty(Metadata)
	c := NewCoordinator(tr, All(EndpointFunc(func(ctx context.Context, r Resource, p []byte) (Result, error) {
		tr.MarkDirty(Metadata)
		return Result{Success: true}, nil
	})))
	rep, _ := c.Save(context.Background(), payloads())
	if rep.Outcome != OutcomeAllSucceeded {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if !tr.IsDirty(Metadata) {
		t.Fatalf("edit made during the save must stay dirty")
	}
}

func TestMetadataPayload(t *testing.T) {
	b, err := MarshalMetadata(PageMetadata{Title: "Home", Slug: "home", Keywords: []string{"a"}})
	if err != nil {
		t.Fatalf("MarshalMetadata: %v", err)
	}
	m, err := UnmarshalMetadata(b)
	if err != nil || m.Title != "Home" || len(m.Keywords) != 1 {
		t.Fatalf("m=%+v err=%v", m, err)
	}
	if (PageMetadata{}).Validate() == nil {
		t.Fatalf("empty title should not validate")
	}
	if (PageMetadata{Title: "x", Slug: "a b"}).Validate() == nil {
		t.Fatalf("slug with space should not validate")
	}
	if string(StylesheetPayload("a{}")) != "a{}\n" {
		t.Fatalf("stylesheet payload not newline terminated")
	}
}
