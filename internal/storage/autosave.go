/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pagegrid/internal/layout"
)

// AutosaveCrashSnapshot writes the in-memory layout of ph next to the backups
// without touching layout.json, and returns the written path.
func AutosaveCrashSnapshot(ph *PageHandle) (string, error) {
	if ph == nil || ph.Root == "" {
		return "", errors.New("nil or rootless PageHandle")
	}
	data, err := layout.MarshalIndent(ph.Structure, ph.Codec)
	if err != nil {
		return "", err
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.json", LayoutFileName, stamp))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
