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
	"log/slog"
	"time"

	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
)

// FileEndpoint saves resources into a page directory. After a successful
// write the payload is recorded as a revision; a failing index only logs.
type FileEndpoint struct {
	Root string
	// KeepRevisions prunes older revisions per resource after each save (0 keeps all).
	KeepRevisions int
	// DisableRevisions skips the sqlite revision index.
	DisableRevisions bool
}

var _ save.Endpoint = FileEndpoint{}

func (f FileEndpoint) Save(ctx context.Context, r save.Resource, payload []byte) (save.Result, error) {
	if err := ctx.Err(); err != nil {
		return save.Result{}, err
	}
	if err := WriteResource(f.Root, r, payload); err != nil {
		return save.Result{Success: false, Message: err.Error()}, nil
	}
	res := save.Result{Success: true, Message: ResourcePath(f.Root, r)}
	if f.DisableRevisions {
		return res, nil
	}
	l := applog.WithComponent("storage").With(slog.String("resource", string(r)))
	rev, err := SaveRevision(ctx, f.Root, r, payload, time.Now())
	if err != nil {
		l.Warn("record revision failed", slog.Any("err", err))
		return res, nil
	}
	l.Debug("revision recorded", slog.String("revision", rev.ID))
	if f.KeepRevisions > 0 {
		if _, err := PruneRevisions(ctx, f.Root, r, f.KeepRevisions); err != nil {
			l.Warn("prune revisions failed", slog.Any("err", err))
		}
	}
	return res, nil
}
