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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
)

// Change reports that a resource file of a page was modified on disk.
type Change struct {
	Resource save.Resource
	Path     string
	Op       string
}

// Watch reports external modifications of the page's resource files until
// ctx is done. Bursts of events for the same file within debounce are
// reported once.
func Watch(ctx context.Context, root string, debounce time.Duration, fn func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	for _, dir := range []string{root, filepath.Join(root, StylesDirName)} {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	watched := map[string]save.Resource{}
	for _, r := range save.Resources {
		watched[filepath.Clean(ResourcePath(root, r))] = r
	}
	l := applog.WithComponent("storage").With(slog.String("root", root))
	l.Debug("watching page")

	last := map[string]time.Time{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch error", slog.Any("err", err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(ev.Name)
			r, ok := watched[path]
			if !ok || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			now := time.Now()
			if t, seen := last[path]; seen && now.Sub(t) < debounce {
				continue
			}
			last[path] = now
			fn(Change{Resource: r, Path: path, Op: ev.Op.String()})
		}
	}
}
