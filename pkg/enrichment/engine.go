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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/ragd/pkg/indexstore"
	"github.com/kraklabs/ragd/pkg/planner"
)

// CompletionClient invokes one LLM tier with a prompt and returns its raw
// text response. Transport failures are returned as err; everything else
// (malformed/truncated/invalid JSON) is the engine's job to classify.
type CompletionClient interface {
	Complete(ctx context.Context, tier Tier, prompt Prompt) (raw string, finishReason string, err error)
}

// Prompt is the fixed contract sent to a completion backend.
type Prompt struct {
	SpanHash     string
	Path         string
	Lang         string
	StartLine    int
	EndLine      int
	Code         string
	Instructions string
}

func buildPrompt(t planner.Task) Prompt {
	return Prompt{
		SpanHash:     t.SpanHash,
		Path:         t.FilePath,
		Lang:         t.Lang,
		StartLine:    t.StartLine,
		EndLine:      t.EndLine,
		Code:         t.Snippet,
		Instructions: "Return ONLY valid JSON per schema. Cite exact line ranges for every claim. If unsure, use null.",
	}
}

// LedgerRecord is one append-only enrichment attempt log line.
type LedgerRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	SpanHash    string    `json:"span_hash"`
	Path        string    `json:"path"`
	TierUsed    Tier      `json:"tier_used"`
	LineCount   int       `json:"line_count"`
	NestingDepth int      `json:"nesting_depth"`
	TokensIn    int       `json:"tokens_in"`
	TokensOut   int       `json:"tokens_out"`
	Result      string    `json:"result"` // pass|fail
	Reason      string    `json:"reason,omitempty"`
	WallMs      int64     `json:"wall_ms"`
	Promo       string    `json:"promo"`
}

// Ledger appends enrichment attempt records; never rewrites.
type Ledger interface {
	Append(rec LedgerRecord) error
}

// Engine drives the per-work-item enrichment loop: escalate tiers on
// failure, validate the model's JSON, and persist a ledger record either
// way.
type Engine struct {
	Store         *indexstore.Store
	Client        CompletionClient
	Ledger        Ledger
	Settings      RouterSettings
	QuarantineDir string
	Logger        *slog.Logger
}

// Run processes one task through the tier-escalation loop, persisting the
// enrichment on success and the ledger record in either case.
func (e *Engine) Run(ctx context.Context, task planner.Task) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := computeMetrics(task.Snippet)
	startTier := ChooseStartTier(metrics, e.Settings)

	var history []Tier
	current := startTier
	start := time.Now()

	for {
		history = append(history, current)
		raw, finishReason, err := e.Client.Complete(ctx, current, buildPrompt(task))
		if err != nil {
			next := ChooseNextTierOnFailure(FailureRuntime, current, history, e.Settings)
			if next == "" {
				return e.fail(ctx, task, history, metrics, start, FailureRuntime, err.Error(), "")
			}
			current = next
			continue
		}

		jsonText, ok := extractJSON(raw)
		if !ok {
			kind := FailureParse
			if isTruncated(raw, finishReason) {
				kind = FailureTruncation
			}
			next := ChooseNextTierOnFailure(kind, current, history, e.Settings)
			if next == "" {
				return e.fail(ctx, task, history, metrics, start, kind, "could not locate JSON object", raw)
			}
			current = next
			continue
		}

		var completion Completion
		dec := json.NewDecoder(strings.NewReader(jsonText))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&completion); err != nil {
			next := ChooseNextTierOnFailure(FailureParse, current, history, e.Settings)
			if next == "" {
				return e.fail(ctx, task, history, metrics, start, FailureParse, err.Error(), raw)
			}
			current = next
			continue
		}

		normalize(&completion, task.StartLine, task.EndLine)

		if errs := Validate(completion, task.StartLine, task.EndLine); len(errs) > 0 {
			next := ChooseNextTierOnFailure(FailureValidation, current, history, e.Settings)
			if next == "" {
				return e.fail(ctx, task, history, metrics, start, FailureValidation, strings.Join(errs, "; "), raw)
			}
			current = next
			continue
		}

		rec := indexstore.EnrichmentRecord{
			SpanHash:     task.SpanHash,
			Summary:      completion.Summary120w,
			Tags:         completion.Tags,
			Evidence:     completion.Evidence,
			Model:        string(current),
			SchemaVer:    SchemaVersion,
			Inputs:       completion.Inputs,
			Outputs:      completion.Outputs,
			SideEffects:  completion.SideEffects,
			Pitfalls:     completion.Pitfalls,
			UsageSnippet: derefOr(completion.UsageSnippet, ""),
		}
		if err := e.Store.StoreEnrichment(ctx, rec); err != nil {
			return err
		}

		e.appendLedger(task, history, metrics, start, "pass", "")
		return nil
	}
}

func (e *Engine) fail(ctx context.Context, task planner.Task, history []Tier, m SpanMetrics, start time.Time, kind FailureKind, reason, raw string) error {
	e.appendLedger(task, history, m, start, "fail", string(kind))
	if e.Store != nil {
		_ = e.Store.RecordEnrichmentFailure(ctx, task.SpanHash)
	}
	if raw != "" && e.QuarantineDir != "" {
		e.writeQuarantine(task.SpanHash, raw)
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("enrichment attempt exhausted", "span_hash", task.SpanHash, "kind", kind, "reason", reason)
	return nil // left pending for the next job cycle rather than failing the batch
}

func (e *Engine) appendLedger(task planner.Task, history []Tier, m SpanMetrics, start time.Time, result, reason string) {
	if e.Ledger == nil {
		return
	}
	last := Tier("")
	if len(history) > 0 {
		last = history[len(history)-1]
	}
	promo := "none"
	if len(history) > 1 {
		parts := make([]string, len(history))
		for i, t := range history {
			parts[i] = string(t)
		}
		promo = strings.Join(parts, "->")
	}
	_ = e.Ledger.Append(LedgerRecord{
		Timestamp:    time.Now().UTC(),
		SpanHash:     task.SpanHash,
		Path:         task.FilePath,
		TierUsed:     last,
		LineCount:    m.LineCount,
		NestingDepth: m.NestingDepth,
		TokensIn:     m.TokensIn,
		TokensOut:    m.TokensOut,
		Result:       result,
		Reason:       reason,
		WallMs:       time.Since(start).Milliseconds(),
		Promo:        promo,
	})
}

func (e *Engine) writeQuarantine(spanHash, raw string) {
	if err := os.MkdirAll(e.QuarantineDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(e.QuarantineDir, fmt.Sprintf("%s-%d.txt", spanHash, time.Now().UnixNano()))
	_ = os.WriteFile(path, []byte(raw), 0o644)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// computeMetrics estimates the router inputs from a snippet: char-based
// token approximation, brace/bracket/paren nesting depth, and a node count
// equal to the number of opening brackets. The snippet is never parsed as
// JSON, and SchemaDepth is left at zero.
func computeMetrics(snippet string) SpanMetrics {
	lineCount := strings.Count(snippet, "\n") + 1
	depth, maxDepth := 0, 0
	nodeCount := 0
	for _, r := range snippet {
		switch r {
		case '{', '[', '(':
			depth++
			nodeCount++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}', ']', ')':
			if depth > 0 {
				depth--
			}
		}
	}
	tokensIn := len(snippet) / 4
	tokensOut := tokensIn
	if tokensOut < 1200 {
		tokensOut = 1200
	}
	return SpanMetrics{
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		LineCount:    lineCount,
		NestingDepth: maxDepth,
		NodeCount:    nodeCount,
	}
}

// extractJSON locates the outermost {...} object in raw model output.
func extractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// isTruncated detects a cut-off response via finish reason or brace
// imbalance.
func isTruncated(raw, finishReason string) bool {
	if finishReason == "length" || finishReason == "max_tokens" {
		return true
	}
	deficit := 0
	for _, r := range raw {
		switch r {
		case '{', '[':
			deficit++
		case '}', ']':
			deficit--
		}
	}
	if deficit > 1 {
		return true
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return true
	}
	last := trimmed[len(trimmed)-1]
	return last != '}' && last != ']' && last != '"'
}

// normalize clamps usage_snippet to 12 lines and, for each populated field
// that has no evidence entry, adds one covering the span's full line range.
func normalize(c *Completion, spanStart, spanEnd int) {
	if c.UsageSnippet != nil {
		lines := strings.Split(*c.UsageSnippet, "\n")
		if len(lines) > maxUsageLines {
			clamped := strings.Join(lines[:maxUsageLines], "\n")
			c.UsageSnippet = &clamped
		}
	}
	have := map[string]bool{}
	for _, ev := range c.Evidence {
		have[ev.Field] = true
	}
	populated := []bool{c.Summary120w != "", len(c.Inputs) > 0, len(c.Outputs) > 0, len(c.SideEffects) > 0, len(c.Pitfalls) > 0, c.UsageSnippet != nil && *c.UsageSnippet != ""}
	for i, field := range []string{"summary_120w", "inputs", "outputs", "side_effects", "pitfalls", "usage_snippet"} {
		if populated[i] && !have[field] {
			c.Evidence = append(c.Evidence, indexstore.EvidenceEntry{Field: field, Lines: [2]int{spanStart, spanEnd}})
		}
	}
}
