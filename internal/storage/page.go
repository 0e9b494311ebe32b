/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pagegrid/internal/grid"
	"pagegrid/internal/layout"
	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
)

const (
	LayoutFileName     = "layout.json"
	MetadataFileName   = "metadata.json"
	StylesDirName      = "styles"
	StylesheetFileName = "page.css"
	BackupsDirName     = "backups"
)

var standardSubDirs = []string{
	StylesDirName,
	"assets",
	BackupsDirName,
}

// PageHandle is a page directory and the page content last loaded from or
// written to it.
type PageHandle struct {
	Root       string
	Codec      grid.Codec
	Structure  layout.Structure
	Metadata   save.PageMetadata
	Stylesheet string
	// Recovered is set when layout.json was unreadable and a backup was loaded instead.
	Recovered bool
}

// ResourcePath returns where r is stored inside root.
func ResourcePath(root string, r save.Resource) string {
	switch r {
	case save.Metadata:
		return filepath.Join(root, MetadataFileName)
	case save.Stylesheet:
		return filepath.Join(root, StylesDirName, StylesheetFileName)
	default:
		return filepath.Join(root, LayoutFileName)
	}
}

// InitPage creates a page directory at root (creating it if it doesn't exist),
// scaffolds the standard subfolders and writes an empty page.
func InitPage(root string, meta save.PageMetadata, codec grid.Codec) (*PageHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if _, err := os.Stat(filepath.Join(root, LayoutFileName)); err == nil {
		return nil, fmt.Errorf("%s already contains a page", root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create page root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	ph := &PageHandle{Root: root, Codec: codec, Metadata: meta}
	if err := Save(ph); err != nil {
		return nil, err
	}
	applog.WithComponent("storage").Info("page initialized", slog.String("root", root))
	return ph, nil
}

// Open loads a page from root. If layout.json cannot be read, fails schema
// validation or is unbalanced, the latest backup is used. Missing metadata or
// stylesheet files yield empty values.
func Open(root string, codec grid.Codec) (*PageHandle, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("root", root))
	ph := &PageHandle{Root: root, Codec: codec}
	s, err := readLayout(filepath.Join(root, LayoutFileName), codec)
	if err != nil {
		bpath, berr := openFromLatestBackup(root, LayoutFileName, func(b []byte) error {
			bs, perr := parseLayout(b, codec)
			if perr == nil {
				s = bs
			}
			return perr
		})
		if berr != nil {
			return nil, fmt.Errorf("open layout: %w; backup attempt: %v", err, berr)
		}
		l.Warn("layout unreadable, recovered from backup", slog.Any("err", err), slog.String("backup", bpath))
		ph.Recovered = true
	}
	ph.Structure = s

	if b, err := os.ReadFile(ResourcePath(root, save.Metadata)); err == nil {
		m, perr := save.UnmarshalMetadata(b)
		if perr != nil {
			return nil, perr
		}
		ph.Metadata = m
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if b, err := os.ReadFile(ResourcePath(root, save.Stylesheet)); err == nil {
		ph.Stylesheet = string(b)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read stylesheet: %w", err)
	}
	return ph, nil
}

func readLayout(path string, codec grid.Codec) (layout.Structure, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return layout.Structure{}, err
	}
	return parseLayout(b, codec)
}

// parseLayout validates data against the layout schema and the width
// invariant before returning the structure.
func parseLayout(data []byte, codec grid.Codec) (layout.Structure, error) {
	if err := ValidateLayout(data); err != nil {
		return layout.Structure{}, err
	}
	s, err := layout.Unmarshal(data, codec)
	if err != nil {
		return layout.Structure{}, err
	}
	if err := s.Validate(); err != nil {
		return layout.Structure{}, err
	}
	return s, nil
}

// Save writes every resource of ph to disk.
func Save(ph *PageHandle) error {
	if ph == nil {
		return errors.New("nil PageHandle")
	}
	if ph.Root == "" {
		return errors.New("invalid PageHandle: missing root")
	}
	layoutBytes, err := layout.Marshal(ph.Structure, ph.Codec)
	if err != nil {
		return err
	}
	metaBytes, err := save.MarshalMetadata(ph.Metadata)
	if err != nil {
		return err
	}
	payloads := save.Payloads{
		save.Layout:     layoutBytes,
		save.Metadata:   metaBytes,
		save.Stylesheet: save.StylesheetPayload(ph.Stylesheet),
	}
	for _, r := range save.Resources {
		if err := WriteResource(ph.Root, r, payloads[r]); err != nil {
			return err
		}
	}
	return nil
}

// WriteResource writes one resource payload with transactional semantics and
// a timestamped backup of the previous file. Layout payloads are validated
// and stored indented.
func WriteResource(root string, r save.Resource, payload []byte) error {
	path := ResourcePath(root, r)
	data := payload
	if r == save.Layout {
		if err := ValidateLayout(payload); err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err != nil {
			return fmt.Errorf("indent layout: %w", err)
		}
		buf.WriteByte('\n')
		data = buf.Bytes()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", r, err)
	}

	bdir := filepath.Join(root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current %s: %w", r, cerr)
		}
	}
	return writeAtomic(path, data)
}

// writeAtomic writes to a temp file in the same directory, then renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", name, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp %s: %w", name, werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", name, rerr)
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups lists the backups of fileName, oldest first.
func Backups(root, fileName string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, fileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// openFromLatestBackup feeds backups of fileName to accept, newest first,
// until one is accepted. It returns the accepted backup's path.
func openFromLatestBackup(root, fileName string, accept func([]byte) error) (string, error) {
	candidates, err := Backups(root, fileName)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", errors.New("no backups found")
	}
	var lastErr error
	for i := len(candidates) - 1; i >= 0; i-- {
		b, err := os.ReadFile(candidates[i])
		if err != nil {
			lastErr = err
			continue
		}
		if err := accept(b); err != nil {
			lastErr = err
			continue
		}
		return candidates[i], nil
	}
	return "", fmt.Errorf("no usable backup: %w", lastErr)
}
