/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "pagegrid/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

// Backend kinds select where a page is saved.
const (
	BackendFile     = "file"
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

type EditorConfig struct {
	HistoryDepth    int    `yaml:"history_depth"`
	HistoryMaxBytes int    `yaml:"history_max_bytes"`
	CoalesceMs      int    `yaml:"coalesce_ms"` // 0 disables coalescing
	Viewport        string `yaml:"viewport"`    // small | medium | large
	CellMarker      string `yaml:"cell_marker"`
	CatalogFile     string `yaml:"catalog_file"`
	KeepRevisions   int    `yaml:"keep_revisions"`
}

type BackendConfig struct {
	Kind        string `yaml:"kind"` // file | http | postgres
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	PageID      string `yaml:"page_id"`
	DatabaseURL string `yaml:"database_url"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Editor        EditorConfig  `yaml:"editor"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Editor: EditorConfig{
			HistoryDepth:    50,
			HistoryMaxBytes: 0,
			CoalesceMs:      0,
			Viewport:        "small",
			CellMarker:      "cell",
		},
		Backend: BackendConfig{Kind: BackendFile, BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile       = "PAGEGRID_CONFIG"
	EnvBackendKind      = "PAGEGRID_BACKEND"
	EnvBackendURL       = "PAGEGRID_BACKEND_URL"
	EnvBackendTimeoutMs = "PAGEGRID_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "PAGEGRID_TLS_INSECURE"
	EnvPageID           = "PAGEGRID_PAGE_ID"
	EnvDatabaseURL      = "PAGEGRID_DATABASE_URL"
	EnvTelemetryOptIn   = "PAGEGRID_TELEMETRY_OPT_IN"
	EnvHistoryDepth     = "PAGEGRID_HISTORY_DEPTH"
	EnvViewport         = "PAGEGRID_VIEWPORT"
	EnvCellMarker       = "PAGEGRID_CELL_MARKER"
	EnvCatalogFile      = "PAGEGRID_CATALOG_FILE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "PAGEGRID_LOG_LEVEL"
	EnvLogFormat = "PAGEGRID_LOG_FORMAT"
	EnvLogSource = "PAGEGRID_LOG_SOURCE"
	EnvLogFile   = "PAGEGRID_LOG_FILE"
)

// ConfigPath returns the per-user config file path. PAGEGRID_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "pagegrid")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "pagegrid")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "pagegrid")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "pagegrid")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from the keychain (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file yields defaults;
// a malformed one is an error.
func LoadFrom(path string) (AppConfig, string, error) {
	cfg := Defaults()
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", err
		}
		mergeInto(&cfg, &fileCfg)
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	tok, err := LoadToken()
	if err != nil {
		applog.WithComponent("config").Debug("no backend token", "err", err)
	}
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into the keychain (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg, token)
}

// SaveTo is Save with an explicit file path.
func SaveTo(path string, cfg AppConfig, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := StoreToken(token); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	// editor
	if src.Editor.HistoryDepth > 0 {
		dst.Editor.HistoryDepth = src.Editor.HistoryDepth
	}
	if src.Editor.HistoryMaxBytes > 0 {
		dst.Editor.HistoryMaxBytes = src.Editor.HistoryMaxBytes
	}
	if src.Editor.CoalesceMs > 0 {
		dst.Editor.CoalesceMs = src.Editor.CoalesceMs
	}
	if v := strings.TrimSpace(src.Editor.Viewport); v != "" {
		dst.Editor.Viewport = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Editor.CellMarker); v != "" {
		dst.Editor.CellMarker = v
	}
	if v := strings.TrimSpace(src.Editor.CatalogFile); v != "" {
		dst.Editor.CatalogFile = v
	}
	if src.Editor.KeepRevisions > 0 {
		dst.Editor.KeepRevisions = src.Editor.KeepRevisions
	}
	// backend
	if v := strings.TrimSpace(src.Backend.Kind); v != "" {
		dst.Backend.Kind = strings.ToLower(v)
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Backend.PageID != "" {
		dst.Backend.PageID = src.Backend.PageID
	}
	if src.Backend.DatabaseURL != "" {
		dst.Backend.DatabaseURL = src.Backend.DatabaseURL
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendKind)); v != "" {
		cfg.Backend.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTLSInsec)); v != "" {
		cfg.Backend.TLSInsecure = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvPageID)); v != "" {
		cfg.Backend.PageID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Backend.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryDepth)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Editor.HistoryDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvViewport)); v != "" {
		cfg.Editor.Viewport = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCellMarker)); v != "" {
		cfg.Editor.CellMarker = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCatalogFile)); v != "" {
		cfg.Editor.CatalogFile = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"backend.kind":             EnvBackendKind,
		"backend.base_url":         EnvBackendURL,
		"backend.timeout_ms":       EnvBackendTimeoutMs,
		"backend.tls_insecure":     EnvBackendTLSInsec,
		"backend.page_id":          EnvPageID,
		"backend.database_url":     EnvDatabaseURL,
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"editor.history_depth":     EnvHistoryDepth,
		"editor.viewport":          EnvViewport,
		"editor.cell_marker":       EnvCellMarker,
		"editor.catalog_file":      EnvCatalogFile,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}
	env, ok := names[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend request timeout, falling back to the default.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// CoalesceInterval is the history coalescing window; zero when disabled.
func (e EditorConfig) CoalesceInterval() time.Duration {
	return time.Duration(e.CoalesceMs) * time.Millisecond
}

// LogOptions maps the logging section onto logger options.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
