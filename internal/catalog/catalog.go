/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog provides the widget types a page may contain, loaded from YAML.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"pagegrid/internal/layout"
	applog "pagegrid/internal/log"
)

//go:embed default.yaml
var defaultYAML []byte

var typeRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

type entry struct {
	Type     string         `yaml:"type"`
	Label    string         `yaml:"label"`
	Defaults map[string]any `yaml:"defaults"`
}

type file struct {
	Widgets []entry `yaml:"widgets"`
}

// Catalog is a read-only set of widget specs. It implements layout.Catalog.
type Catalog struct {
	order []string
	specs map[string]layout.WidgetSpec
}

var _ layout.Catalog = (*Catalog)(nil)

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in catalog invalid: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	applog.WithComponent("catalog").Debug("catalog loaded", slog.String("path", path), slog.Int("widgets", len(c.order)))
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{specs: make(map[string]layout.WidgetSpec, len(f.Widgets))}
	for i, e := range f.Widgets {
		if !typeRe.MatchString(e.Type) {
			return nil, fmt.Errorf("catalog entry %d: invalid type %q", i, e.Type)
		}
		if _, dup := c.specs[e.Type]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate type %q", i, e.Type)
		}
		label := e.Label
		if label == "" {
			label = e.Type
		}
		defaults := e.Defaults
		if defaults == nil {
			defaults = map[string]any{}
		}
		c.specs[e.Type] = layout.WidgetSpec{Type: e.Type, Label: label, DefaultProperties: defaults}
		c.order = append(c.order, e.Type)
	}
	return c, nil
}

func (c *Catalog) Has(widgetType string) bool {
	_, ok := c.specs[widgetType]
	return ok
}

// Get returns the spec of widgetType. Callers must not modify DefaultProperties.
func (c *Catalog) Get(widgetType string) (layout.WidgetSpec, bool) {
	s, ok := c.specs[widgetType]
	return s, ok
}

// Types lists the widget types in file order.
func (c *Catalog) Types() []string { return append([]string(nil), c.order...) }
