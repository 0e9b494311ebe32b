/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"pagegrid/internal/grid"
	"pagegrid/internal/save"
)

func TestWatchReportsResourceWrites(t *testing.T) {
	root := t.TempDir()
	if _, err := InitPage(root, save.PageMetadata{Title: "W"}, grid.DefaultCodec); err != nil {
		t.Fatalf("InitPage error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	changes := make(chan Change, 16)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, root, 0, func(c Change) {
		select {
		case changes <- c:
		default:
		}
	}) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changes:
			if c.Resource != save.Stylesheet {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			// the watcher may not be registered yet; keep touching the file
			_ = os.WriteFile(ResourcePath(root, save.Stylesheet), []byte("x{}\n"), 0o644)
		case <-deadline:
			t.Fatalf("no change reported")
		}
	}
}
