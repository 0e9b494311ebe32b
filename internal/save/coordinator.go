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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	applog "pagegrid/internal/log"
)

var (
	// ErrResourceSaveFailed is wrapped by every *ResourceSaveError.
	ErrResourceSaveFailed = errors.New("resource save failed")
	// ErrSaveInProgress is returned when Save is called while another save runs.
	ErrSaveInProgress = errors.New("save already in progress")
)

// Result is what an endpoint reports for one resource.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Endpoint persists one resource of a page.
type Endpoint interface {
	Save(ctx context.Context, r Resource, payload []byte) (Result, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, r Resource, payload []byte) (Result, error)

func (f EndpointFunc) Save(ctx context.Context, r Resource, payload []byte) (Result, error) {
	return f(ctx, r, payload)
}

// Endpoints maps each resource to the endpoint that saves it.
type Endpoints map[Resource]Endpoint

// All routes every resource to ep.
func All(ep Endpoint) Endpoints {
	out := Endpoints{}
	for _, r := range Resources {
		out[r] = ep
	}
	return out
}

// ResourceSaveError describes why one resource was not saved. It matches
// ErrResourceSaveFailed and, when set, the underlying transport error.
type ResourceSaveError struct {
	Resource Resource
	Message  string
	Err      error
}

func (e *ResourceSaveError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "unsuccessful"
	}
	return fmt.Sprintf("save %s: %s", e.Resource, msg)
}

func (e *ResourceSaveError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResourceSaveFailed}
	}
	return []error{ErrResourceSaveFailed, e.Err}
}

// Outcome summarizes a Report.
type Outcome string

const (
	OutcomeNothing      Outcome = "nothing"
	OutcomeAllSucceeded Outcome = "all succeeded"
	OutcomePartial      Outcome = "partial"
	OutcomeAllFailed    Outcome = "all failed"
)

// ResourceResult is the per-resource part of a Report.
type ResourceResult struct {
	Needed    bool   `json:"needed"`
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message,omitempty"`
	Err       error  `json:"-"`
}

// Report is emitted after every save attempt.
type Report struct {
	ID        string                      `json:"id"`
	StartedAt time.Time                   `json:"startedAt"`
	Duration  time.Duration               `json:"duration"`
	Results   map[Resource]ResourceResult `json:"results"`
	Outcome   Outcome                     `json:"outcome"`
}

// Failed lists the resources that needed saving but were not saved.
func (r Report) Failed() []Resource {
	var out []Resource
	for _, res := range Resources {
		if rr := r.Results[res]; rr.Needed && !rr.Succeeded {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the per-resource errors, nil when nothing failed.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, r.Results[res].Err)
	}
	return errors.Join(errs...)
}

// Payloads holds the serialized form of each resource at save time.
type Payloads map[Resource][]byte

// Coordinator saves the dirty resources of one page.
type Coordinator struct {
	tracker   *Tracker
	endpoints Endpoints
	busy      atomic.Bool
	log       *slog.Logger
}

func NewCoordinator(t *Tracker, eps Endpoints) *Coordinator {
	return &Coordinator{tracker: t, endpoints: eps, log: applog.WithComponent("save")}
}

// Tracker returns the tracker the coordinator reads dirty flags from.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// SetEndpoints replaces the endpoint routing. It must not be called during a save.
func (c *Coordinator) SetEndpoints(eps Endpoints) { c.endpoints = eps }

// Save writes every dirty resource concurrently. A failing resource does not
// stop the others; only resources that were saved get their flag cleared.
// The returned error is ErrSaveInProgress or nil; per-resource failures are
// in the Report.
func (c *Coordinator) Save(ctx context.Context, payloads Payloads) (Report, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Report{}, ErrSaveInProgress
	}
	defer c.busy.Store(false)

	rep := Report{ID: uuid.NewString(), StartedAt: time.Now(), Results: map[Resource]ResourceResult{}}
	l := applog.WithOperation(c.log, "save").With(slog.String("save_id", rep.ID))
	if page, ok := applog.PageFromContext(ctx); ok {
		l = l.With(slog.String("page", page))
	}

	dirty := c.tracker.Dirty()
	if len(dirty) == 0 {
		rep.Outcome = OutcomeNothing
		l.Debug("nothing to save")
		return rep, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, r := range dirty {
		gen := c.tracker.generation(r)
		payload, hasPayload := payloads[r]
		ep := c.endpoints[r]
		g.Go(func() error {
			rr := ResourceResult{Needed: true}
			switch {
			case ep == nil:
				rr.Err = &ResourceSaveError{Resource: r, Message: "no endpoint configured"}
			case !hasPayload:
				rr.Err = &ResourceSaveError{Resource: r, Message: "no payload"}
			default:
				res, err := ep.Save(ctx, r, payload)
				rr.Message = res.Message
				switch {
				case err != nil:
					rr.Err = &ResourceSaveError{Resource: r, Message: res.Message, Err: err}
				case !res.Success:
					rr.Err = &ResourceSaveError{Resource: r, Message: res.Message}
				default:
					rr.Succeeded = true
					c.tracker.saved(r, gen, payload)
				}
			}
			if rr.Err != nil {
				rr.Message = rr.Err.Error()
				l.Warn("resource save failed", slog.String("resource", string(r)), slog.Any("err", rr.Err))
			}
			mu.Lock()
			rep.Results[r] = rr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, rr := range rep.Results {
		if rr.Succeeded {
			ok++
		}
	}
	switch {
	case ok == len(dirty):
		rep.Outcome = OutcomeAllSucceeded
	case ok == 0:
		rep.Outcome = OutcomeAllFailed
	default:
		rep.Outcome = OutcomePartial
	}
	rep.Duration = time.Since(rep.StartedAt)
	l.Info("save finished", slog.String("outcome", string(rep.Outcome)),
		slog.Int("resources", len(dirty)), slog.Duration("took", rep.Duration))
	return rep, nil
}
