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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pagegrid/internal/save"
)

// ErrRevisionNotFound is returned when a revision id is unknown.
var ErrRevisionNotFound = errors.New("revision not found")

// language=SQL
// dialect=SQLite
const insertRevisionSQL = `INSERT INTO revisions(id, resource, ts, size, blob, sha256) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestRevisionSQL = `SELECT id, resource, ts, size, sha256, blob FROM revisions WHERE resource = ? ORDER BY ts DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const selectRevisionSQL = `SELECT id, resource, ts, size, sha256, blob FROM revisions WHERE id = ?`

// language=SQL
// dialect=SQLite
const listRevisionsSQL = `SELECT id, resource, ts, size, sha256, blob FROM revisions WHERE resource = ? ORDER BY ts DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldRevisionsSQL = `DELETE FROM revisions WHERE resource = ? AND id NOT IN (
	SELECT id FROM revisions WHERE resource = ? ORDER BY ts DESC LIMIT ?
)`

// tsLayout is fixed width so that ORDER BY ts sorts chronologically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Revision is one saved version of a resource.
type Revision struct {
	ID       string
	Resource save.Resource
	TS       time.Time
	Size     int
	SHA256   string
	Blob     []byte
}

// SaveRevision records payload as the newest revision of r. A payload equal
// to the latest revision is not stored again; the latest one is returned.
func SaveRevision(ctx context.Context, pageRoot string, r save.Resource, payload []byte, ts time.Time) (Revision, error) {
	db, err := InitOrOpenIndex(pageRoot)
	if err != nil {
		return Revision{}, err
	}
	defer func() { _ = db.Close() }()
	if latest, err := scanRevision(db.QueryRowContext(ctx, selectLatestRevisionSQL, string(r))); err == nil && latest.SHA256 == digest(payload) {
		return latest, nil
	}
	return insertRevision(ctx, db, r, payload, ts)
}

func insertRevision(ctx context.Context, db *sql.DB, r save.Resource, payload []byte, ts time.Time) (Revision, error) {
	rev := Revision{ID: uuid.NewString(), Resource: r, TS: ts.UTC(), Size: len(payload), SHA256: digest(payload), Blob: payload}
	if _, err := db.ExecContext(ctx, insertRevisionSQL, rev.ID, string(r), rev.TS.Format(tsLayout), rev.Size, payload, rev.SHA256); err != nil {
		return Revision{}, fmt.Errorf("insert revision: %w", err)
	}
	return rev, nil
}

// LatestRevision returns the newest revision of r, or ErrRevisionNotFound.
func LatestRevision(ctx context.Context, pageRoot string, r save.Resource) (Revision, error) {
	db, err := InitOrOpenIndex(pageRoot)
	if err != nil {
		return Revision{}, err
	}
	defer func() { _ = db.Close() }()
	return scanRevision(db.QueryRowContext(ctx, selectLatestRevisionSQL, string(r)))
}

// GetRevision returns a revision by id.
func GetRevision(ctx context.Context, pageRoot, id string) (Revision, error) {
	db, err := InitOrOpenIndex(pageRoot)
	if err != nil {
		return Revision{}, err
	}
	defer func() { _ = db.Close() }()
	return scanRevision(db.QueryRowContext(ctx, selectRevisionSQL, id))
}

// ListRevisions returns up to limit most recent revisions of r.
func ListRevisions(ctx context.Context, pageRoot string, r save.Resource, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(pageRoot)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listRevisionsSQL, string(r), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// PruneRevisions keeps at most keepLast revisions of r and deletes older ones.
func PruneRevisions(ctx context.Context, pageRoot string, r save.Resource, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(pageRoot)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneOldRevisionsSQL, string(r), string(r), keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRevision(s scanner) (Revision, error) {
	var (
		rev      Revision
		resource string
		tsStr    string
	)
	err := s.Scan(&rev.ID, &resource, &tsStr, &rev.Size, &rev.SHA256, &rev.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, err
	}
	rev.Resource = save.Resource(resource)
	rev.TS, _ = time.Parse(tsLayout, tsStr)
	return rev, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
