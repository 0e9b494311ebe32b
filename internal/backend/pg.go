/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
)

// pgSchema is applied idempotently by EnsureSchema.
const pgSchema = `
CREATE TABLE IF NOT EXISTS page_resources (
	page_id    TEXT        NOT NULL,
	resource   TEXT        NOT NULL,
	payload    BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	version    BIGINT      NOT NULL DEFAULT 1,
	PRIMARY KEY (page_id, resource)
);
CREATE INDEX IF NOT EXISTS idx_page_resources_updated ON page_resources(updated_at DESC);
`

const upsertResourceSQL = `
INSERT INTO page_resources (page_id, resource, payload, updated_at, version)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (page_id, resource) DO UPDATE
SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at, version = page_resources.version + 1
RETURNING version`

const selectResourceSQL = `SELECT payload, updated_at, version FROM page_resources WHERE page_id = $1 AND resource = $2`

// ErrResourceNotFound is returned by Load when nothing was stored yet.
var ErrResourceNotFound = errors.New("backend: resource not stored")

// OpenPG opens a pgx-backed database, pings it and applies the schema.
func OpenPG(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the page_resources table if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, pgSchema)
	return err
}

// PGEndpoint stores every resource of one page as a row in page_resources.
type PGEndpoint struct {
	DB     *sql.DB
	PageID string
	now    func() time.Time
}

// NewPGEndpoint binds db to pageID.
func NewPGEndpoint(db *sql.DB, pageID string) *PGEndpoint {
	return &PGEndpoint{DB: db, PageID: pageID, now: time.Now}
}

var _ save.Endpoint = (*PGEndpoint)(nil)

// Save upserts the payload and bumps the stored version. Database errors
// are returned as errors so the resource stays dirty.
func (p *PGEndpoint) Save(ctx context.Context, r save.Resource, payload []byte) (save.Result, error) {
	if p.PageID == "" {
		return save.Result{}, ErrNoPage
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	var version int64
	row := p.DB.QueryRowContext(ctx, upsertResourceSQL, p.PageID, string(r), payload, now().UTC())
	if err := row.Scan(&version); err != nil {
		return save.Result{}, fmt.Errorf("upsert %s: %w", r, err)
	}
	applog.WithComponent("backend").Debug("pg save done",
		slog.String("page", p.PageID), slog.String("resource", string(r)), slog.Int64("version", version))
	return save.Result{Success: true, Message: fmt.Sprintf("stored version %d", version)}, nil
}

// StoredResource is one row of page_resources.
type StoredResource struct {
	Payload   []byte
	UpdatedAt time.Time
	Version   int64
}

// Load reads back the stored payload of r.
func (p *PGEndpoint) Load(ctx context.Context, r save.Resource) (StoredResource, error) {
	var s StoredResource
	err := p.DB.QueryRowContext(ctx, selectResourceSQL, p.PageID, string(r)).Scan(&s.Payload, &s.UpdatedAt, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredResource{}, ErrResourceNotFound
	}
	if err != nil {
		return StoredResource{}, err
	}
	return s, nil
}
