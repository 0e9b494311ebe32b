/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pagegrid/internal/config"
	"pagegrid/internal/layout"
	"pagegrid/internal/save"
	"pagegrid/internal/storage"
	"pagegrid/internal/telemetry"
)

func addPush(topLevel *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Save every resource of the page through the configured backend.",
		Long: `Reads the page directory and writes layout, metadata and stylesheet through
backend.kind (file, http or postgres). Resources are saved independently; a
failed resource does not stop the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			root := a.root()
			ph, err := storage.Open(root, a.codec())
			if err != nil {
				return err
			}
			a.sess = &session{ph: ph, pageID: a.pageID(root)}
			eps, closer, err := a.remoteEndpoints(ctx, root)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			layoutBytes, err := layout.Marshal(ph.Structure, ph.Codec)
			if err != nil {
				return err
			}
			metaBytes, err := save.MarshalMetadata(ph.Metadata)
			if err != nil {
				return err
			}
			tr := save.NewTracker()
			for _, r := range save.Resources {
				tr.MarkDirty(r)
			}
			rep, err := save.NewCoordinator(tr, eps).Save(ctx, save.Payloads{
				save.Layout:     layoutBytes,
				save.Metadata:   metaBytes,
				save.Stylesheet: save.StylesheetPayload(ph.Stylesheet),
			})
			if err != nil {
				return err
			}
			telemetry.PageSaved(rep)
			printReport(cmd.OutOrStdout(), rep)
			return rep.Err()
		},
	}
	topLevel.AddCommand(cmd)
}

func addToken(topLevel *cobra.Command, _ *app) {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the backend bearer token kept in the OS keychain.",
	}
	set := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the token; read from stdin when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			tok := ""
			if len(args) == 1 {
				tok = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				tok = line
			}
			tok = strings.TrimSpace(tok)
			if tok == "" {
				return fmt.Errorf("token is empty")
			}
			if err := config.StoreToken(tok); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token stored")
			return nil
		},
	}
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored token.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			if err := config.DeleteToken(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token deleted")
			return nil
		},
	}
	cmd.AddCommand(set, del)
	topLevel.AddCommand(cmd)
}
