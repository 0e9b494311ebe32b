/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pagegrid/internal/grid"
)

// DocumentVersion is the version of the persisted layout format.
const DocumentVersion = 1

// Document is the persisted form of a Structure. Column widths travel as
// style tags ("small-6 medium-4 cell") so the renderer can use them directly.
type Document struct {
	Version int      `json:"version"`
	Rows    []RowDoc `json:"rows"`
}

type RowDoc struct {
	ID        string      `json:"id"`
	StyleTags []string    `json:"styleTags"`
	Columns   []ColumnDoc `json:"columns"`
}

type ColumnDoc struct {
	ID        string      `json:"id"`
	StyleTags []string    `json:"styleTags"`
	Widgets   []WidgetDoc `json:"widgets"`
}

type WidgetDoc struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// ToDocument converts s to its persisted form.
func ToDocument(s Structure, codec grid.Codec) Document {
	doc := Document{Version: DocumentVersion, Rows: make([]RowDoc, 0, len(s.Rows))}
	for _, r := range s.Rows {
		rd := RowDoc{ID: r.ID, StyleTags: nonNil(r.StyleTags), Columns: make([]ColumnDoc, 0, len(r.Columns))}
		for _, c := range r.Columns {
			cd := ColumnDoc{ID: c.ID, StyleTags: codec.Encode(c.Widths, c.ExtraTags), Widgets: make([]WidgetDoc, 0, len(c.Widgets))}
			for _, w := range c.Widgets {
				props := w.Properties
				if props == nil {
					props = map[string]any{}
				}
				cd.Widgets = append(cd.Widgets, WidgetDoc{ID: w.ID, Type: w.Type, Properties: props})
			}
			rd.Columns = append(rd.Columns, cd)
		}
		doc.Rows = append(doc.Rows, rd)
	}
	return doc
}

// FromDocument converts a persisted document back into a Structure.
func FromDocument(doc Document, codec grid.Codec) (Structure, error) {
	if doc.Version > DocumentVersion {
		return Structure{}, fmt.Errorf("layout document version %d is newer than supported %d", doc.Version, DocumentVersion)
	}
	s := Structure{Rows: make([]Row, 0, len(doc.Rows))}
	for _, rd := range doc.Rows {
		r := Row{ID: rd.ID, StyleTags: cloneStrings(rd.StyleTags), Columns: make([]Column, 0, len(rd.Columns))}
		if len(r.StyleTags) == 0 {
			r.StyleTags = nil
		}
		for _, cd := range rd.Columns {
			w, extra := codec.Decode(cd.StyleTags)
			c := Column{ID: cd.ID, Widths: w, ExtraTags: extra}
			for _, wd := range cd.Widgets {
				c.Widgets = append(c.Widgets, Widget{ID: wd.ID, Type: wd.Type, Properties: cloneMap(wd.Properties)})
			}
			r.Columns = append(r.Columns, c)
		}
		s.Rows = append(s.Rows, r)
	}
	return s, nil
}

// Marshal serializes s compactly. Output is deterministic, so two equal
// structures yield equal bytes.
func Marshal(s Structure, codec grid.Codec) ([]byte, error) {
	b, err := json.Marshal(ToDocument(s, codec))
	if err != nil {
		return nil, fmt.Errorf("marshal layout: %w", err)
	}
	return b, nil
}

// MarshalIndent serializes s in the human-readable on-disk form.
func MarshalIndent(s Structure, codec grid.Codec) ([]byte, error) {
	b, err := json.MarshalIndent(ToDocument(s, codec), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal layout: %w", err)
	}
	return append(b, '\n'), nil
}

// Unmarshal parses a persisted layout. Numbers inside widget properties are
// kept as json.Number so they re-encode byte for byte.
func Unmarshal(data []byte, codec grid.Codec) (Structure, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return Structure{}, fmt.Errorf("parse layout: %w", err)
	}
	return FromDocument(doc, codec)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
