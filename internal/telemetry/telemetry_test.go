/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pagegrid/internal/save"
)

type collector struct {
	mu      sync.Mutex
	events  [][]byte
	crashes [][]byte
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events), len(c.crashes)
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	t.Helper()
	col := &collector{}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		col.mu.Lock()
		col.events = append(col.events, b)
		col.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		col.mu.Lock()
		col.crashes = append(col.crashes, b)
		col.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return col, srv
}

func TestClient_EventAndUploadCrash(t *testing.T) {
	col, srv := newCollector(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()

	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
	c.Track("started", map[string]any{"k": "v"})
	c.Flush(context.Background())
	if n, _ := col.counts(); n != 1 {
		t.Fatalf("Flush returned before the event was sent, events = %d", n)
	}

	var ev Event
	col.mu.Lock()
	err := json.Unmarshal(col.events[0], &ev)
	col.mu.Unlock()
	if err != nil {
		t.Fatalf("bad event json: %v", err)
	}
	if ev.Name != "started" || ev.Props["k"] != "v" || ev.TS.IsZero() || ev.OS == "" {
		t.Fatalf("event mismatch: %+v", ev)
	}

	c.UploadCrash([]byte("STACKTRACE"))
	c.Flush(context.Background())
	if _, n := col.counts(); n != 1 {
		t.Fatalf("Flush returned before the crash upload, crashes = %d", n)
	}
}

func TestClient_PageSaved(t *testing.T) {
	col, srv := newCollector(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: 2 * time.Second})
	defer c.Close()

	c.PageSaved(save.Report{Outcome: save.OutcomeNothing})
	c.PageSaved(save.Report{
		Outcome:  save.OutcomePartial,
		Duration: 42 * time.Millisecond,
		Results: map[save.Resource]save.ResourceResult{
			save.Layout:     {Needed: true, Succeeded: true},
			save.Stylesheet: {Needed: true},
		},
	})
	c.Flush(context.Background())
	if n, _ := col.counts(); n != 1 {
		t.Fatalf("nothing-to-save must not be reported, got %d events", n)
	}
	var ev Event
	col.mu.Lock()
	_ = json.Unmarshal(col.events[0], &ev)
	col.mu.Unlock()
	if ev.Name != EventPageSaved || ev.Props["outcome"] != "partial" || ev.Props["duration_ms"] != float64(42) {
		t.Fatalf("unexpected event: %+v", ev)
	}
	failed, _ := ev.Props["failed"].([]any)
	if len(failed) != 1 || failed[0] != "stylesheet" {
		t.Fatalf("failed list: %v", ev.Props["failed"])
	}
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: time.Second})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Track("ignored", nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	defer c2.Close()
	c2.Track("", nil)
	c2.Flush(context.Background())
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

// Use an unroutable address to trigger the client.Do error path.
func TestClient_SendErrorBranches(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
		QueueSize:    1,
	})
	defer c.Close()
	for i := 0; i < 5; i++ {
		c.Track("err", map[string]any{"i": i})
	}
	c.UploadCrash([]byte("oops"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)
	if ctx.Err() != nil {
		t.Fatalf("failed sends must still drain the queue")
	}
	if n := c.pending.Load(); n != 0 {
		t.Fatalf("pending = %d after flush", n)
	}
}

func TestFromEnvAndDefaultClient(t *testing.T) {
	t.Setenv(EnvOptIn, "true")
	t.Setenv(EnvEventsURL, "http://127.0.0.1:0")
	t.Setenv(EnvCrashURL, "")
	t.Setenv(EnvTimeoutMs, "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	NewDefault(cfg)
	if !Enabled() {
		t.Fatalf("default Enabled should be true with env config")
	}
}

func TestNewDefaultReplacesClient(t *testing.T) {
	col, srv := newCollector(t)
	NewDefault(Config{})
	if Enabled() {
		t.Fatalf("empty config must be disabled")
	}
	NewDefault(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	t.Cleanup(func() { NewDefault(Config{}) })
	Track("hello", nil)
	Flush()
	if n, _ := col.counts(); n != 1 {
		t.Fatalf("events = %d", n)
	}
}
