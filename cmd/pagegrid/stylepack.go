/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pagegrid/internal/storage"
	"pagegrid/internal/stylepack"
)

func addStylepack(topLevel *cobra.Command, a *app) {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "stylepack",
		Short: "Share the styles directory between pages as a zip archive.",
	}
	export := &cobra.Command{
		Use:   "export <zip>",
		Short: "Bundle styles/ of the page into a zip with a hashed manifest.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			root := a.root()
			ph, err := storage.Open(root, a.codec())
			if err != nil {
				return err
			}
			m, err := stylepack.Export(root, args[0], ph.Metadata.Title)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d files to %s\n", len(m.Files), args[0])
			return nil
		},
	}
	install := &cobra.Command{
		Use:   "install <zip>",
		Short: "Extract a style pack into styles/ of the page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			res, err := stylepack.Install(a.root(), args[0], overwrite)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range res.Installed {
				_, _ = fmt.Fprintln(out, good.Sprint("+"), p)
			}
			if len(res.Skipped) > 0 {
				_, _ = fmt.Fprintln(out, faint.Sprint("skipped: "+strings.Join(res.Skipped, ", ")))
			}
			return nil
		},
	}
	install.Flags().BoolVar(&overwrite, "overwrite", false, "Replace files that already exist.")
	cmd.AddCommand(export, install)
	topLevel.AddCommand(cmd)
}
