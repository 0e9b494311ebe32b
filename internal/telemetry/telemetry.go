/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in usage events and crash reports. Nothing is
// sent unless the user opted in and an endpoint URL is configured; events
// carry counts and outcomes, never page content.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
	"pagegrid/internal/version"
)

// Environment variables read by FromEnv.
const (
	EnvOptIn     = "PAGEGRID_TELEMETRY_OPT_IN"
	EnvEventsURL = "PAGEGRID_TELEMETRY_URL"
	EnvCrashURL  = "PAGEGRID_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "PAGEGRID_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "PAGEGRID_TELEMETRY_DEBUG"
)

// EventPageSaved is sent after every save that had something to save.
const EventPageSaved = "page_saved"

const (
	defaultTimeout   = 1500 * time.Millisecond
	defaultQueueSize = 64
)

type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
	// DebugLogging logs dropped events and failed sends.
	DebugLogging bool
	// QueueSize bounds pending events; 64 when zero.
	QueueSize int
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(EnvOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvTimeoutMs))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Event is the JSON body posted to the events URL.
type Event struct {
	Name    string         `json:"name"`
	TS      time.Time      `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Client posts events from a bounded queue on its own goroutine. Callers
// never block: a full queue drops the event.
type Client struct {
	cfg     Config
	log     *slog.Logger
	http    *http.Client
	queue   chan Event
	pending atomic.Int64
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(cfg Config) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		http:   &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan Event, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.run()
	return c
}

// Enabled reports whether events would be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Track queues an event named name with props.
func (c *Client) Track(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	ev := Event{
		Name:    name,
		TS:      time.Now().UTC(),
		Version: version.Version,
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Props:   props,
	}
	c.pending.Add(1)
	select {
	case c.queue <- ev:
	default:
		c.pending.Add(-1)
		c.debug("event dropped, queue full", slog.String("event", name))
	}
}

// PageSaved reports the outcome of a save: outcome, resource count, failed
// resource names and duration.
func (c *Client) PageSaved(rep save.Report) {
	if rep.Outcome == save.OutcomeNothing {
		return
	}
	failed := []string{}
	for _, r := range rep.Failed() {
		failed = append(failed, string(r))
	}
	c.Track(EventPageSaved, map[string]any{
		"outcome":     string(rep.Outcome),
		"resources":   len(rep.Results),
		"failed":      failed,
		"duration_ms": rep.Duration.Milliseconds(),
	})
}

// UploadCrash posts a crash report in the background. Flush waits for it.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	body := append([]byte(nil), report...)
	c.pending.Add(1)
	go func() {
		defer c.pending.Add(-1)
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", body)
	}()
}

// Flush waits until queued events and crash uploads are sent or ctx is done.
func (c *Client) Flush(ctx context.Context) {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// Close aborts requests in flight and stops the sender.
func (c *Client) Close() { c.cancel() }

func (c *Client) run() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.queue:
			if b, err := json.Marshal(ev); err == nil {
				c.post(c.cfg.EventsURL, "application/json", b)
			}
			c.pending.Add(-1)
		}
	}
}

func (c *Client) post(url, contentType string, body []byte) {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.debug("build request", slog.Any("err", err))
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		c.debug("send failed", slog.String("url", url), slog.Any("err", err))
		return
	}
	_ = resp.Body.Close()
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.cfg.DebugLogging {
		c.log.Debug(msg, attrs...)
	}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// NewDefault replaces the package client used by the helpers below.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// current returns the package client, built from the environment on first use.
func current() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

func Enabled() bool { return current().Enabled() }

func Track(name string, props map[string]any) { current().Track(name, props) }

func PageSaved(rep save.Report) { current().PageSaved(rep) }

func UploadCrash(report []byte) { current().UploadCrash(report) }

// Flush gives the package client up to a second to drain.
func Flush() {
	defaultMu.Lock()
	c := defaultClient
	defaultMu.Unlock()
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Flush(ctx)
}
