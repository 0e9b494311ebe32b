/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

type memTokens struct {
	m map[string]string
}

func (s *memTokens) Get(service, key string) (string, error) {
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (s *memTokens) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}

func (s *memTokens) Delete(service, key string) error {
	if _, ok := s.m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(s.m, service+"/"+key)
	return nil
}

// isolate points the config file at a temp dir and stubs the keychain.
func isolate(t *testing.T) (string, *memTokens) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigFile, path)
	store := &memTokens{m: map[string]string{}}
	t.Cleanup(SetTokenStore(store))
	return path, store
}

func TestDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected no token, got %q", tok)
	}
	if cfg.Editor.HistoryDepth != 50 || cfg.Editor.Viewport != "small" || cfg.Editor.CellMarker != "cell" {
		t.Fatalf("unexpected editor defaults: %#v", cfg.Editor)
	}
	if cfg.Backend.Kind != BackendFile {
		t.Fatalf("default backend kind = %q", cfg.Backend.Kind)
	}
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
	if env, ok := EnvOverrideFor("backend.base_url"); !ok || env != EnvBackendURL {
		t.Fatalf("EnvOverrideFor = %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("backend.page_id"); ok {
		t.Fatalf("page_id is not overridden")
	}
}

func TestEnvOverridesTelemetryAndEditor(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	t.Setenv(EnvHistoryDepth, "20")
	t.Setenv(EnvViewport, "LARGE")
	t.Setenv(EnvCellMarker, "col")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
	if cfg.Editor.HistoryDepth != 20 || cfg.Editor.Viewport != "large" || cfg.Editor.CellMarker != "col" {
		t.Fatalf("editor overrides not applied: %#v", cfg.Editor)
	}
}

func TestFileMergeAndEnvPrecedence(t *testing.T) {
	path, _ := isolate(t)
	data := []byte(`config_version: 1
editor:
  history_depth: 30
  catalog_file: /tmp/widgets.yaml
backend:
  kind: HTTP
  page_id: home
  timeout_ms: 2500
logging:
  level: DEBUG
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvPageID, "about")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Editor.HistoryDepth != 30 || cfg.Editor.CatalogFile != "/tmp/widgets.yaml" || cfg.Editor.Viewport != "small" {
		t.Fatalf("editor not merged: %#v", cfg.Editor)
	}
	if cfg.Backend.Kind != BackendHTTP || cfg.Backend.PageID != "about" {
		t.Fatalf("backend not merged: %#v", cfg.Backend)
	}
	if cfg.Backend.Timeout() != 2500*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.Backend.Timeout())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level = %q", cfg.Logging.Level)
	}
}

func TestMalformedFileIsAnError(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("editor: [1, 2"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/pagegrid.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/pagegrid.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	opts := dst.Logging.LogOptions()
	if opts.Level != "debug" || opts.Format != "json" || !opts.AddSource || opts.File != "/tmp/pagegrid.log" {
		t.Fatalf("log options: %#v", opts)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/tmp/pg.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "/tmp/pg.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestSaveRoundTripKeepsTokenOutOfFile(t *testing.T) {
	path, store := isolate(t)
	cfg := Defaults()
	cfg.Backend.Kind = BackendPostgres
	cfg.Backend.DatabaseURL = "postgres://localhost/pagegrid"
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) == "" || bytes.Contains(raw, []byte("s3cret")) {
		t.Fatalf("token must not be written to the config file:\n%s", raw)
	}
	if store.m[keyringService+"/"+keyringToken] != "s3cret" {
		t.Fatalf("token not stored in keychain")
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "s3cret" || got.Backend.Kind != BackendPostgres || got.Backend.DatabaseURL != cfg.Backend.DatabaseURL {
		t.Fatalf("round trip mismatch: %#v tok=%q", got.Backend, tok)
	}
	if err := DeleteToken(); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := DeleteToken(); err != nil {
		t.Fatalf("second DeleteToken must be a no-op: %v", err)
	}
}

