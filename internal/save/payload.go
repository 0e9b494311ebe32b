/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package save

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PageMetadata is the payload of the metadata resource.
type PageMetadata struct {
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Validate checks the fields a page cannot be published without.
func (m PageMetadata) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("metadata: title is required")
	}
	if m.Slug != "" && strings.ContainsAny(m.Slug, " /?#") {
		return fmt.Errorf("metadata: invalid slug %q", m.Slug)
	}
	return nil
}

// MarshalMetadata returns the persisted form of m.
func MarshalMetadata(m PageMetadata) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return append(b, '\n'), nil
}

func UnmarshalMetadata(b []byte) (PageMetadata, error) {
	var m PageMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		return PageMetadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	return m, nil
}

// StylesheetPayload returns the stylesheet text as saved, newline terminated.
func StylesheetPayload(css string) []byte {
	if css != "" && !strings.HasSuffix(css, "\n") {
		css += "\n"
	}
	return []byte(css)
}
