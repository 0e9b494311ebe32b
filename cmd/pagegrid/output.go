/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"pagegrid/internal/save"
)

var (
	bold  = color.New(color.Bold)
	faint = color.New(color.Faint)
	good  = color.New(color.FgGreen)
	warn  = color.New(color.FgYellow)
	fail  = color.New(color.FgRed)
)

// printReport writes one line per saved resource and a summary line.
func printReport(w io.Writer, rep save.Report) {
	if rep.Outcome == save.OutcomeNothing {
		_, _ = fmt.Fprintln(w, faint.Sprint("nothing to save"))
		return
	}
	for _, r := range save.Resources {
		rr, needed := rep.Results[r]
		if !needed || !rr.Needed {
			continue
		}
		if rr.Succeeded {
			_, _ = fmt.Fprintf(w, "%s %s\n", good.Sprint("✓"), r)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", fail.Sprint("✗"), r, rr.Message)
	}
	c := good
	switch rep.Outcome {
	case save.OutcomePartial:
		c = warn
	case save.OutcomeAllFailed:
		c = fail
	}
	_, _ = fmt.Fprintf(w, "%s in %s\n", c.Sprint(string(rep.Outcome)), rep.Duration.Round(time.Millisecond))
}
