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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagegrid/internal/grid"
	"pagegrid/internal/layout"
	"pagegrid/internal/save"
)

func sampleStructure() layout.Structure {
	return layout.Structure{Rows: []layout.Row{{
		ID: "row-1",
		Columns: []layout.Column{
			{ID: "col-1", Widths: grid.Widths{4, 6}},
			{ID: "col-2", Widths: grid.Widths{8, 6}, ExtraTags: []string{"highlight"}, Widgets: []layout.Widget{
				{ID: "widget-1", Type: "text", Properties: map[string]any{"body": "hi"}},
			}},
		},
	}}}
}

func TestInitPageCreatesStructureAndFiles(t *testing.T) {
	root := t.TempDir()
	ph, err := InitPage(root, save.PageMetadata{Title: "Home"}, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("InitPage error: %v", err)
	}
	for _, d := range []string{StylesDirName, "assets", BackupsDirName} {
		p := filepath.Join(root, d)
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s to exist", p)
		}
	}
	for _, r := range save.Resources {
		if _, err := os.Stat(ResourcePath(root, r)); err != nil {
			t.Fatalf("expected %s file: %v", r, err)
		}
	}
	if ph.Metadata.Title != "Home" {
		t.Fatalf("metadata = %+v", ph.Metadata)
	}
	if _, err := InitPage(root, save.PageMetadata{}, grid.DefaultCodec); err == nil {
		t.Fatalf("second InitPage should refuse an existing page")
	}
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	ph, err := InitPage(root, save.PageMetadata{Title: "Home", Slug: "home"}, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("InitPage error: %v", err)
	}
	ph.Structure = sampleStructure()
	ph.Stylesheet = ".hero { color: red; }"
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	b, _ := os.ReadFile(ResourcePath(root, save.Layout))
	if !strings.Contains(string(b), "\n  \"rows\"") {
		t.Fatalf("layout.json should be indented:\n%s", b)
	}
	opened, err := Open(root, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	c := opened.Structure.Rows[0].Columns[1]
	if c.Widths.Effective(grid.Medium) != 6 || c.ExtraTags[0] != "highlight" || c.Widgets[0].Properties["body"] != "hi" {
		t.Fatalf("column = %+v", c)
	}
	if opened.Metadata.Slug != "home" || opened.Stylesheet != ".hero { color: red; }\n" || opened.Recovered {
		t.Fatalf("opened = %+v", opened)
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	root := t.TempDir()
	ph, err := InitPage(root, save.PageMetadata{Title: "Backup"}, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("InitPage error: %v", err)
	}
	ph.Structure = sampleStructure()
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	baks, err := Backups(root, LayoutFileName)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(baks) == 0 {
		t.Fatalf("expected at least one layout backup, found 0")
	}
}

func TestOpenFallsBackToLatestBackupOnCorruption(t *testing.T) {
	root := t.TempDir()
	ph, err := InitPage(root, save.PageMetadata{Title: "Recover"}, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("InitPage error: %v", err)
	}
	ph.Structure = sampleStructure()
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := os.WriteFile(ResourcePath(root, save.Layout), []byte("{ this is not json"), 0o644); err != nil {
		t.Fatalf("corrupt layout: %v", err)
	}
	opened, err := Open(root, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if !opened.Recovered {
		t.Fatalf("expected recovery from backup")
	}
	if opened.Metadata.Title != "Recover" {
		t.Fatalf("metadata should still load: %+v", opened.Metadata)
	}
}

func TestOpenRejectsUnbalancedLayoutWithoutBackup(t *testing.T) {
	root := t.TempDir()
	doc := `{"version":1,"rows":[{"id":"row-1","styleTags":[],"columns":[{"id":"col-1","styleTags":["small-5","cell"],"widgets":[]}]}]}`
	if err := os.WriteFile(filepath.Join(root, LayoutFileName), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(root, grid.DefaultCodec); err == nil {
		t.Fatalf("expected error for unbalanced layout")
	}
}

func TestWriteResourceRejectsInvalidLayout(t *testing.T) {
	root := t.TempDir()
	err := WriteResource(root, save.Layout, []byte(`{"version":1,"rows":[{"id":"r1","columns":[]}]}`))
	var se *SchemaError
	if !errors.As(err, &se) || !errors.Is(err, layout.ErrInvalidLayout) || len(se.Problems) == 0 {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(ResourcePath(root, save.Layout)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid layout must not be written")
	}
}

func TestMarshalledLayoutConformsToSchema(t *testing.T) {
	data, err := layout.Marshal(sampleStructure(), grid.DefaultCodec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := ValidateLayout(data); err != nil {
		t.Fatalf("ValidateLayout: %v", err)
	}
	empty, _ := layout.Marshal(layout.Structure{}, grid.DefaultCodec)
	if err := ValidateLayout(empty); err != nil {
		t.Fatalf("empty layout: %v", err)
	}
}

func TestFileEndpointWritesAndRecordsRevision(t *testing.T) {
	root := t.TempDir()
	ep := FileEndpoint{Root: root, KeepRevisions: 2}
	ctx := context.Background()
	for _, css := range []string{"a{}", "b{}", "c{}"} {
		res, err := ep.Save(ctx, save.Stylesheet, save.StylesheetPayload(css))
		if err != nil || !res.Success {
			t.Fatalf("Save: res=%+v err=%v", res, err)
		}
	}
	b, _ := os.ReadFile(ResourcePath(root, save.Stylesheet))
	if string(b) != "c{}\n" {
		t.Fatalf("stylesheet = %q", b)
	}
	revs, err := ListRevisions(ctx, root, save.Stylesheet, 10)
	if err != nil || len(revs) != 2 {
		t.Fatalf("revisions = %d err %v", len(revs), err)
	}
	if string(revs[0].Blob) != "c{}\n" {
		t.Fatalf("newest revision = %q", revs[0].Blob)
	}
	res, _ := ep.Save(ctx, save.Layout, []byte(`{"rows":`))
	if res.Success {
		t.Fatalf("malformed layout must not succeed")
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	root := t.TempDir()
	ph, err := InitPage(root, save.PageMetadata{Title: "Crash"}, grid.DefaultCodec)
	if err != nil {
		t.Fatalf("InitPage error: %v", err)
	}
	ph.Structure = sampleStructure()
	path, err := AutosaveCrashSnapshot(ph)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	s, err := layout.Unmarshal(b, grid.DefaultCodec)
	if err != nil || len(s.Rows) != 1 {
		t.Fatalf("snapshot content: rows=%d err=%v", len(s.Rows), err)
	}
	on, _ := Open(root, grid.DefaultCodec)
	if len(on.Structure.Rows) != 0 {
		t.Fatalf("crash snapshot must not replace layout.json")
	}
}
