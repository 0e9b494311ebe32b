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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"pagegrid/internal/catalog"
	"pagegrid/internal/grid"
	"pagegrid/internal/layout"
	"pagegrid/internal/save"
	"pagegrid/internal/storage"
)

func addInit(topLevel *cobra.Command, a *app) {
	var m save.PageMetadata
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create an empty page directory.",
		Example: `
pagegrid init ./home --title "Home"
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(args) == 1 {
				a.pageDir = args[0]
			}
			if strings.TrimSpace(m.Title) == "" {
				m.Title = filepath.Base(a.root())
			}
			if err := m.Validate(); err != nil {
				return err
			}
			ph, err := storage.InitPage(a.root(), m, a.codec())
			if err != nil {
				return err
			}
			a.log.Info("init page", slog.String("root", ph.Root))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Created page at", ph.Root)
			return nil
		},
	}
	cmd.Flags().StringVar(&m.Title, "title", "", "Page title (default: directory name).")
	cmd.Flags().StringVar(&m.Slug, "slug", "", "URL slug.")
	topLevel.AddCommand(cmd)
}

func addShow(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the rows, columns and widths of the page.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			meta := s.ed.Metadata()
			_, _ = fmt.Fprintf(out, "%s (%s)\n", bold.Sprint(meta.Title), s.ph.Root)
			if s.ph.Recovered {
				_, _ = fmt.Fprintln(out, warn.Sprint("layout.json was unreadable; showing the latest backup"))
			}
			_, _ = fmt.Fprintln(out, structureTable(s.ed.Structure(), s.ed.Viewport()))
			return nil
		},
	}
	widgets := &cobra.Command{
		Use:   "widgets",
		Short: "List the widget types of the catalog.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cat, err := catalog.Load(a.cfg.Editor.CatalogFile)
			if err != nil {
				return err
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("TYPE"), bold.Sprint("LABEL"))
			for _, t := range cat.Types() {
				spec, _ := cat.Get(t)
				tbl.AddRow(t, spec.Label)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}
	topLevel.AddCommand(cmd, widgets)
}

func addValidate(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check layout.json against the schema and the grid rules.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			root := a.root()
			b, err := os.ReadFile(filepath.Join(root, storage.LayoutFileName))
			if err != nil {
				return err
			}
			if err := storage.ValidateLayout(b); err != nil {
				var se *storage.SchemaError
				if errors.As(err, &se) {
					for _, p := range se.Problems {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), fail.Sprint("✗"), p)
					}
				}
				return err
			}
			s, err := layout.Unmarshal(b, a.codec())
			if err == nil {
				err = s.Validate()
			}
			if err != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), fail.Sprint("✗"), err)
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), good.Sprint("✓"), "layout is valid")
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addRevisions(topLevel *cobra.Command, a *app) {
	var (
		limit int
		prune int
	)
	cmd := &cobra.Command{
		Use:   "revisions [resource]",
		Short: "List saved revisions of a resource (default layout).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			r := save.Layout
			if len(args) == 1 {
				pr, err := save.ParseResource(args[0])
				if err != nil {
					return err
				}
				r = pr
			}
			ctx := cmd.Context()
			root := a.root()
			if _, err := storage.DetectAndRebuildIndex(ctx, root); err != nil {
				return err
			}
			if prune > 0 {
				n, err := storage.PruneRevisions(ctx, root, r, prune)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d revisions\n", n)
			}
			revs, err := storage.ListRevisions(ctx, root, r, limit)
			if err != nil {
				return err
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("ID"), bold.Sprint("SAVED"), bold.Sprint("SIZE"), bold.Sprint("SHA256"))
			for _, rev := range revs {
				tbl.AddRow(rev.ID, rev.TS.Local().Format(time.DateTime), rev.Size, shortHash(rev.SHA256))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of revisions to list.")
	cmd.Flags().IntVar(&prune, "prune", 0, "Keep only the newest N revisions before listing.")

	restore := &cobra.Command{
		Use:   "restore <revision>",
		Short: "Write a saved revision back as the current resource.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			root := a.root()
			rev, err := storage.GetRevision(cmd.Context(), root, args[0])
			if err != nil {
				return err
			}
			if err := storage.WriteResource(root, rev.Resource, rev.Blob); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", rev.Resource, rev.ID)
			return nil
		},
	}
	topLevel.AddCommand(cmd, restore)
}

func addWatch(topLevel *cobra.Command, a *app) {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print changes made to the page files by other programs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "watching", a.root())
			err := storage.Watch(ctx, a.root(), debounce, func(c storage.Change) {
				_, _ = fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.TimeOnly), c.Resource, c.Op)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "Coalesce bursts of events.")
	topLevel.AddCommand(cmd)
}

// structureTable renders one line per column with its widths at every viewport.
func structureTable(s layout.Structure, active grid.Viewport) *uitable.Table {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	head := []any{bold.Sprint("ROW"), bold.Sprint("COLUMN")}
	for _, v := range grid.Viewports {
		name := strings.ToUpper(v.String())
		if v == active {
			name += "*"
		}
		head = append(head, bold.Sprint(name))
	}
	head = append(head, bold.Sprint("WIDGETS"))
	tbl.AddRow(head...)
	for _, r := range s.Rows {
		for i, c := range r.Columns {
			rowID := ""
			if i == 0 {
				rowID = r.ID
			}
			cells := []any{rowID, c.ID}
			for _, v := range grid.Viewports {
				w := fmt.Sprint(c.Widths.Effective(v))
				if _, explicit := c.Widths.Explicit(v); !explicit {
					w = faint.Sprint(w)
				}
				cells = append(cells, w)
			}
			var ws []string
			for _, w := range c.Widgets {
				ws = append(ws, w.ID+":"+w.Type)
			}
			cells = append(cells, strings.Join(ws, " "))
			tbl.AddRow(cells...)
		}
	}
	return tbl
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
