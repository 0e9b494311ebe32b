/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package stylepack bundles the styles directory of a page into a zip archive
// and installs such archives into other pages.
package stylepack

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "pagegrid/internal/log"
	"pagegrid/internal/storage"
)

// ManifestName is the archive entry describing the pack.
const ManifestName = "stylepack.yaml"

// ErrChecksum is returned when an archive entry does not match its manifest hash.
var ErrChecksum = errors.New("style pack checksum mismatch")

type File struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

type Manifest struct {
	Name    string    `yaml:"name"`
	Created time.Time `yaml:"created"`
	Files   []File    `yaml:"files"`
}

func (m Manifest) lookup(p string) (File, bool) {
	for _, f := range m.Files {
		if f.Path == p {
			return f, true
		}
	}
	return File{}, false
}

// Export zips <page>/styles into destZip. Entry names are relative to the
// styles directory and a manifest with per-file hashes is added at the root.
// A page without styles yields an archive holding only the manifest.
func Export(pageRoot, destZip, name string) (Manifest, error) {
	l := applog.WithOperation(applog.WithComponent("stylepack"), "export").With(slog.String("page", pageRoot))
	if strings.TrimSpace(pageRoot) == "" || strings.TrimSpace(destZip) == "" {
		return Manifest{}, errors.New("page root and destination are required")
	}
	stylesDir := filepath.Join(pageRoot, storage.StylesDirName)
	m := Manifest{Name: name, Created: time.Now().UTC().Truncate(time.Second)}
	var paths []string
	err := filepath.WalkDir(stylesDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && p == stylesDir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(stylesDir, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("scan styles: %w", err)
	}
	sort.Strings(paths)

	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return Manifest{}, fmt.Errorf("ensure zip dir: %w", err)
	}
	tmp := destZip + ".tmp"
	zf, err := os.Create(tmp)
	if err != nil {
		return Manifest{}, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()
	zw := zip.NewWriter(zf)
	for _, rel := range paths {
		f, err := addFile(zw, filepath.Join(stylesDir, filepath.FromSlash(rel)), rel)
		if err != nil {
			_ = zw.Close()
			_ = zf.Close()
			return Manifest{}, fmt.Errorf("add %s: %w", rel, err)
		}
		m.Files = append(m.Files, f)
	}
	b, err := yaml.Marshal(m)
	if err == nil {
		var w io.Writer
		if w, err = zw.Create(ManifestName); err == nil {
			_, err = w.Write(b)
		}
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := zf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("write zip: %w", err)
	}
	if err := os.Rename(tmp, destZip); err != nil {
		return Manifest{}, fmt.Errorf("finalize zip: %w", err)
	}
	l.Info("style pack exported", slog.Int("files", len(m.Files)), slog.String("zip", destZip))
	return m, nil
}

func addFile(zw *zip.Writer, src, name string) (File, error) {
	in, err := os.Open(src)
	if err != nil {
		return File{}, err
	}
	defer func() { _ = in.Close() }()
	w, err := zw.Create(name)
	if err != nil {
		return File{}, err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), in)
	if err != nil {
		return File{}, err
	}
	return File{Path: name, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Result summarizes an install.
type Result struct {
	Manifest  Manifest
	Installed []string
	Skipped   []string
}

// Install extracts packZip into <page>/styles. Existing files are skipped
// unless overwrite is set. Entries escaping the styles directory are ignored;
// entries listed in the manifest must match their hash.
func Install(pageRoot, packZip string, overwrite bool) (Result, error) {
	l := applog.WithOperation(applog.WithComponent("stylepack"), "install").With(slog.String("page", pageRoot))
	var res Result
	if strings.TrimSpace(pageRoot) == "" || strings.TrimSpace(packZip) == "" {
		return res, errors.New("page root and pack are required")
	}
	r, err := zip.OpenReader(packZip)
	if err != nil {
		return res, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return res, fmt.Errorf("open manifest: %w", err)
		}
		err = yaml.NewDecoder(rc).Decode(&res.Manifest)
		_ = rc.Close()
		if err != nil {
			return res, fmt.Errorf("parse manifest: %w", err)
		}
	}

	stylesDir := filepath.Join(pageRoot, storage.StylesDirName)
	for _, f := range r.File {
		if f.Name == ManifestName || f.FileInfo().IsDir() {
			continue
		}
		rel, ok := entryPath(f.Name)
		if !ok {
			l.Warn("skip unsafe entry", slog.String("entry", f.Name))
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		target := filepath.Join(stylesDir, filepath.FromSlash(rel))
		if _, err := os.Stat(target); err == nil && !overwrite {
			l.Debug("skip existing file", slog.String("path", target))
			res.Skipped = append(res.Skipped, rel)
			continue
		}
		want, listed := res.Manifest.lookup(rel)
		if err := extract(f, target, want.SHA256, listed); err != nil {
			return res, fmt.Errorf("install %s: %w", rel, err)
		}
		res.Installed = append(res.Installed, rel)
	}
	l.Info("style pack installed", slog.Int("files", len(res.Installed)), slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

// entryPath maps an archive entry to a path below styles/. Older packs carry
// a leading "styles/" prefix.
func entryPath(name string) (string, bool) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), storage.StylesDirName+"/")
	if name == "" || path.IsAbs(name) {
		return "", false
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func extract(f *zip.File, target, wantSum string, verify bool) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if verify {
		sum := sha256.Sum256(b)
		if hex.EncodeToString(sum[:]) != wantSum {
			return ErrChecksum
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, b, 0o644)
}
