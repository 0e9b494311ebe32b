/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pagegrid/internal/editor"
	"pagegrid/internal/grid"
	"pagegrid/internal/resize"
	"pagegrid/internal/save"
)

func addRowCommands(topLevel *cobra.Command, a *app) {
	add := &cobra.Command{
		Use:   "add-row [small-widths...]",
		Short: "Append a row; widths are small-viewport units summing to 12.",
		Example: `
pagegrid add-row
pagegrid add-row 8 4
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			widths, err := parseInts(args)
			if err != nil {
				return err
			}
			if len(widths) == 0 {
				widths = []int{grid.Units}
			}
			return a.edit(cmd, func(ed *editor.Editor) error {
				id, err := ed.AddRow(widths)
				if err == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "added", id)
				}
				return err
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete-row <row>",
		Short: "Delete a row and everything in it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error { return ed.DeleteRow(args[0]) })
		},
	}
	move := &cobra.Command{
		Use:       "move-row <row> up|down",
		Short:     "Move a row one position up or down.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error {
				switch args[1] {
				case "up":
					return ed.MoveRowUp(args[0])
				case "down":
					return ed.MoveRowDown(args[0])
				}
				return fmt.Errorf("direction must be up or down, got %q", args[1])
			})
		},
	}
	topLevel.AddCommand(add, del, move)
}

func addColumnCommands(topLevel *cobra.Command, a *app) {
	var before bool
	add := &cobra.Command{
		Use:   "add-column <row> <column>",
		Short: "Insert a column next to an existing one; the row is redistributed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error {
				insert := ed.AddColumnAfter
				if before {
					insert = ed.AddColumnBefore
				}
				id, err := insert(args[0], args[1])
				if err == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "added", id)
				}
				return err
			})
		},
	}
	add.Flags().BoolVar(&before, "before", false, "Insert before the column instead of after it.")

	del := &cobra.Command{
		Use:   "delete-column <row> <column>",
		Short: "Delete a column and its widgets; the row is redistributed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error { return ed.DeleteColumn(args[0], args[1]) })
		},
	}
	move := &cobra.Command{
		Use:       "move-column <row> <column> left|right",
		Short:     "Swap a column with its neighbour.",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"left", "right"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error {
				switch args[2] {
				case "left":
					return ed.MoveColumnLeft(args[0], args[1])
				case "right":
					return ed.MoveColumnRight(args[0], args[1])
				}
				return fmt.Errorf("direction must be left or right, got %q", args[2])
			})
		},
	}
	topLevel.AddCommand(add, del, move)
}

func addResize(topLevel *cobra.Command, a *app) {
	var (
		side  string
		dx    float64
		track float64
	)
	cmd := &cobra.Command{
		Use:   "resize <row> <column>",
		Short: "Drag a column edge by --dx pixels on a --track pixel wide row.",
		Example: `
pagegrid resize row-1 col-1 --dx 100 --track 1200
pagegrid --viewport medium resize row-1 col-2 --side left --dx -200
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resize.ParseSide(side)
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ed *editor.Editor) error {
				if err := ed.BeginResize(args[0], args[1], s); err != nil {
					return err
				}
				if up, ok := ed.UpdateResize(dx, track); ok {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s=%d %s=%d (%s)\n",
						up.ColumnID, up.Width, up.AdjacentID, up.AdjacentWidth, up.Viewport)
				}
				return ed.EndResize()
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "right", "Edge being dragged: left or right.")
	cmd.Flags().Float64Var(&dx, "dx", 0, "Horizontal drag distance in pixels.")
	cmd.Flags().Float64Var(&track, "track", 1200, "Width of the row in pixels.")
	topLevel.AddCommand(cmd)
}

func addWidgetCommands(topLevel *cobra.Command, a *app) {
	var (
		index int
		props []string
	)
	add := &cobra.Command{
		Use:   "add-widget <row> <column> <type>",
		Short: "Place a widget from the catalog into a column.",
		Example: `
pagegrid add-widget row-1 col-1 heading --prop text="Welcome" --prop level=1
`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProps(props)
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ed *editor.Editor) error {
				id, err := ed.AddWidget(args[0], args[1], args[2], index, p)
				if err == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "added", id)
				}
				return err
			})
		},
	}
	add.Flags().IntVar(&index, "index", -1, "Position inside the column; -1 appends.")
	add.Flags().StringArrayVar(&props, "prop", nil, "Property as key=value; JSON values are decoded.")

	var setProps []string
	set := &cobra.Command{
		Use:   "set-widget <row> <column> <widget>",
		Short: "Update properties of a widget.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProps(setProps)
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ed *editor.Editor) error {
				return ed.UpdateWidgetProperties(args[0], args[1], args[2], p)
			})
		},
	}
	set.Flags().StringArrayVar(&setProps, "prop", nil, "Property as key=value; JSON values are decoded.")

	del := &cobra.Command{
		Use:   "delete-widget <row> <column> <widget>",
		Short: "Remove a widget.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error { return ed.DeleteWidget(args[0], args[1], args[2]) })
		},
	}
	topLevel.AddCommand(add, set, del)
}

func addPageCommands(topLevel *cobra.Command, a *app) {
	var m save.PageMetadata
	var keywords string
	meta := &cobra.Command{
		Use:   "set-meta",
		Short: "Update page metadata; unset flags keep their value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.edit(cmd, func(ed *editor.Editor) error {
				cur := ed.Metadata()
				if cmd.Flags().Changed("title") {
					cur.Title = m.Title
				}
				if cmd.Flags().Changed("slug") {
					cur.Slug = m.Slug
				}
				if cmd.Flags().Changed("description") {
					cur.Description = m.Description
				}
				if cmd.Flags().Changed("keywords") {
					cur.Keywords = splitList(keywords)
				}
				return ed.SetMetadata(cur)
			})
		},
	}
	meta.Flags().StringVar(&m.Title, "title", "", "Page title.")
	meta.Flags().StringVar(&m.Slug, "slug", "", "URL slug.")
	meta.Flags().StringVar(&m.Description, "description", "", "Meta description.")
	meta.Flags().StringVar(&keywords, "keywords", "", "Comma separated keywords.")

	css := &cobra.Command{
		Use:   "set-css <file|->",
		Short: "Replace the page stylesheet with the contents of a file or stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if args[0] == "-" {
				b, err = io.ReadAll(cmd.InOrStdin())
			} else {
				b, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			return a.edit(cmd, func(ed *editor.Editor) error {
				ed.SetStylesheet(string(b))
				return nil
			})
		},
	}
	topLevel.AddCommand(meta, css)
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, s := range args {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("width %q is not a number", s)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseProps turns key=value pairs into properties. Values that parse as
// JSON keep their type; anything else is a string.
func parseProps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("property %q must be key=value", p)
		}
		var decoded any
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err == nil && !dec.More() {
			out[k] = decoded
			continue
		}
		out[k] = v
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
