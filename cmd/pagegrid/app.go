/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pagegrid/internal/backend"
	"pagegrid/internal/catalog"
	"pagegrid/internal/config"
	"pagegrid/internal/editor"
	"pagegrid/internal/grid"
	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
	"pagegrid/internal/storage"
	"pagegrid/internal/telemetry"
	"pagegrid/internal/undo"
	"pagegrid/internal/version"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	pageDir    string
	configPath string
	viewport   string
	quiet      bool

	cfg   config.AppConfig
	token string
	log   *slog.Logger

	sess *session
}

// session is an opened page with an editor on top of it.
type session struct {
	ph     *storage.PageHandle
	ed     *editor.Editor
	pageID string
}

func newApp() *app { return &app{} }

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pagegrid",
		Short:         "Edit responsive grid page layouts on the command line.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.pageDir, "page", "p", ".", "Page directory to operate on.")
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: per-user pagegrid/config.yaml).")
	cmd.PersistentFlags().StringVar(&a.viewport, "viewport", "", "Viewport for width edits: small, medium or large.")
	cmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Only log errors.")

	addVersion(cmd)
	addInit(cmd, a)
	addShow(cmd, a)
	addRowCommands(cmd, a)
	addColumnCommands(cmd, a)
	addResize(cmd, a)
	addWidgetCommands(cmd, a)
	addPageCommands(cmd, a)
	addValidate(cmd, a)
	addRevisions(cmd, a)
	addWatch(cmd, a)
	addPush(cmd, a)
	addToken(cmd, a)
	addStylepack(cmd, a)
	return cmd
}

// setup loads configuration and initializes logging and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	var (
		cfg config.AppConfig
		tok string
		err error
	)
	if a.configPath != "" {
		cfg, tok, err = config.LoadFrom(a.configPath)
	} else {
		cfg, tok, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg, a.token = cfg, tok
	if a.viewport != "" {
		a.cfg.Editor.Viewport = a.viewport
	}

	opts := a.cfg.Logging.LogOptions()
	opts.Writer = cmd.ErrOrStderr()
	if a.quiet {
		opts.Level = "error"
	}
	applog.Init(opts)
	a.log = applog.WithComponent("cli")
	a.log.Debug("start", slog.String("cmd", cmd.CommandPath()), slog.String("version", version.Version))

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || a.cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)
	return nil
}

func (a *app) codec() grid.Codec { return grid.Codec{Marker: a.cfg.Editor.CellMarker} }

func (a *app) root() string {
	abs, err := filepath.Abs(a.pageDir)
	if err != nil {
		return a.pageDir
	}
	return abs
}

func (a *app) pageID(root string) string {
	if id := strings.TrimSpace(a.cfg.Backend.PageID); id != "" {
		return id
	}
	return filepath.Base(root)
}

// open loads the page directory into an editor that saves back into it.
func (a *app) open(ctx context.Context) (*session, error) {
	root := a.root()
	ph, err := storage.Open(root, a.codec())
	if err != nil {
		return nil, err
	}
	if ph.Recovered {
		a.log.Warn("layout.json was unreadable; continuing from the latest backup", slog.String("root", root))
	}
	cat, err := catalog.Load(a.cfg.Editor.CatalogFile)
	if err != nil {
		return nil, err
	}
	vp, err := grid.ParseViewport(a.cfg.Editor.Viewport)
	if err != nil {
		return nil, err
	}
	id := a.pageID(root)
	ed := editor.New(ctx, editor.Options{
		PageID:  id,
		Catalog: cat,
		Codec:   a.codec(),
		History: undo.Config{
			MaxEntries:  a.cfg.Editor.HistoryDepth,
			MaxBytes:    a.cfg.Editor.HistoryMaxBytes,
			MinInterval: a.cfg.Editor.CoalesceInterval(),
		},
		Endpoints: save.All(storage.FileEndpoint{Root: root, KeepRevisions: a.cfg.Editor.KeepRevisions}),
		Viewport:  vp,
	})
	if err := ed.Load(editor.Page{Structure: ph.Structure, Metadata: ph.Metadata, Stylesheet: ph.Stylesheet}); err != nil {
		return nil, err
	}
	a.sess = &session{ph: ph, ed: ed, pageID: id}
	return a.sess, nil
}

// edit opens the page, applies fn and saves what changed.
func (a *app) edit(cmd *cobra.Command, fn func(ed *editor.Editor) error) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	if err := fn(s.ed); err != nil {
		return err
	}
	s.ph.Structure = s.ed.Structure()
	s.ph.Metadata = s.ed.Metadata()
	s.ph.Stylesheet = s.ed.Stylesheet()
	rep, err := s.ed.Save(ctx)
	if err != nil {
		return err
	}
	telemetry.PageSaved(rep)
	printReport(cmd.OutOrStdout(), rep)
	return rep.Err()
}

// pageHandle reports the page as last seen by the CLI, for crash autosave.
func (a *app) pageHandle() *storage.PageHandle {
	if a.sess == nil {
		return nil
	}
	return a.sess.ph
}

// remoteEndpoints builds the endpoints selected by backend.kind. The
// returned closer releases database connections.
func (a *app) remoteEndpoints(ctx context.Context, root string) (save.Endpoints, io.Closer, error) {
	b := a.cfg.Backend
	id := a.pageID(root)
	switch b.Kind {
	case "", config.BackendFile:
		return save.All(storage.FileEndpoint{Root: root, KeepRevisions: a.cfg.Editor.KeepRevisions}), nopCloser{}, nil
	case config.BackendHTTP:
		opts := []backend.ClientOption{backend.WithTimeout(b.Timeout())}
		if b.TLSInsecure {
			opts = append(opts, backend.WithInsecureTLS())
		}
		return save.All(backend.NewClient(b.BaseURL, a.token, id, opts...)), nopCloser{}, nil
	case config.BackendPostgres:
		if b.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("backend.database_url is required for the %s backend", b.Kind)
		}
		db, err := backend.OpenPG(ctx, b.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return save.All(backend.NewPGEndpoint(db, id)), dbCloser{db}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", b.Kind)
	}
}

func (a *app) close() {
	telemetry.Flush()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type dbCloser struct{ db *sql.DB }

func (c dbCloser) Close() error { return c.db.Close() }

func addVersion(topLevel *cobra.Command) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})
}
