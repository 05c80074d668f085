// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package enrichment

import (
	"fmt"
	"strings"

	"github.com/kraklabs/ragd/pkg/indexstore"
)

// SchemaVersion is recorded on every stored enrichment.
const SchemaVersion = "enrichment.v1"

const (
	maxSummaryWords    = 120
	maxUsageLines      = 12
	maxSummaryChars    = 1200
	maxUsageChars      = 1200
)

// Completion is the raw shape an LLM completion client returns.
type Completion struct {
	Summary120w  string                     `json:"summary_120w"`
	Inputs       []string                   `json:"inputs"`
	Outputs      []string                   `json:"outputs"`
	SideEffects  []string                   `json:"side_effects"`
	Pitfalls     []string                   `json:"pitfalls"`
	UsageSnippet *string                    `json:"usage_snippet"`
	Evidence     []indexstore.EvidenceEntry `json:"evidence"`
	Tags         []string                   `json:"tags,omitempty"`
}

// Validate checks a completion against the enrichment contract: required
// fields, size caps, and evidence line ranges falling within the span.
// Unknown top-level JSON keys are rejected earlier, at decode time.
func Validate(c Completion, spanStart, spanEnd int) []string {
	var errs []string

	if c.Evidence == nil {
		errs = append(errs, "schema: evidence is required")
	}
	if len(c.Summary120w) > maxSummaryChars {
		errs = append(errs, "schema: summary_120w exceeds max length")
	}
	if c.UsageSnippet != nil && len(*c.UsageSnippet) > maxUsageChars {
		errs = append(errs, "schema: usage_snippet exceeds max length")
	}

	for _, entry := range c.Evidence {
		if !withinRange(entry.Lines, spanStart, spanEnd) {
			errs = append(errs, fmt.Sprintf("evidence lines out of range: %+v", entry))
		}
	}

	if words := len(strings.Fields(c.Summary120w)); words > maxSummaryWords {
		errs = append(errs, "summary_120w exceeds 120 words")
	}

	if c.UsageSnippet != nil {
		lines := strings.Count(*c.UsageSnippet, "\n") + 1
		if lines > maxUsageLines {
			errs = append(errs, "usage_snippet exceeds 12 lines")
		}
	}

	return errs
}

func withinRange(lines [2]int, start, end int) bool {
	a, b := lines[0], lines[1]
	return start <= a && a <= end && start <= b && b <= end
}
