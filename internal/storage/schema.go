/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"fmt"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"pagegrid/internal/layout"
)

//go:embed layout.schema.json
var layoutSchema []byte

var layoutSchemaLoader = gojsonschema.NewBytesLoader(layoutSchema)

// SchemaError lists why a layout document does not conform to the schema.
// It matches layout.ErrInvalidLayout.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("layout does not conform to schema: %s", strings.Join(e.Problems, "; "))
}

func (e *SchemaError) Unwrap() error { return layout.ErrInvalidLayout }

// ValidateLayout checks a serialized layout document against the embedded
// JSON schema. It does not check width balance; see layout.Structure.Validate.
func ValidateLayout(data []byte) error {
	res, err := gojsonschema.Validate(layoutSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", layout.ErrInvalidLayout, err)
	}
	if res.Valid() {
		return nil
	}
	se := &SchemaError{}
	for _, e := range res.Errors() {
		se.Problems = append(se.Problems, e.String())
	}
	return se
}
