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

// Package enrichment implements the Tier Router (C9, pure functions) and
// the Enrichment Engine (C7) driving span-level LLM calls.
package enrichment

import (
	"os"
	"strconv"
	"strings"
)

// Tier is one of the three LLM selection policies, increasing cost/context.
type Tier string

const (
	Tier7B   Tier = "7b"
	Tier14B  Tier = "14b"
	TierNano Tier = "nano"
)

// FailureKind classifies why a completion attempt failed, driving
// promotion decisions.
type FailureKind string

const (
	FailureTruncation FailureKind = "truncation"
	FailureParse      FailureKind = "parse"
	FailureValidation FailureKind = "validation"
	FailureNoEvidence FailureKind = "no_evidence"
	FailureTimeout    FailureKind = "timeout"
	FailureRuntime    FailureKind = "runtime"
	FailureUnknown    FailureKind = "unknown"
)

// RouterSettings holds the tunable thresholds, all overridable via
// ROUTER_* environment variables.
type RouterSettings struct {
	ContextLimit      int
	MaxTokensHeadroom int
	NodeLimit         int
	DepthLimit        int
	ArrayLimit        int
	CSVLimit          int
	NestingLimit      int
	LineThresholdLow  int
	LineThresholdHigh int
	DefaultTier       Tier
	PromoteOnce       bool
}

// DefaultRouterSettings returns the baseline thresholds used when no
// ROUTER_* overrides are set.
func DefaultRouterSettings() RouterSettings {
	return RouterSettings{
		ContextLimit:      32000,
		MaxTokensHeadroom: 2000,
		NodeLimit:         800,
		DepthLimit:        6,
		ArrayLimit:        5000,
		CSVLimit:          60,
		NestingLimit:      3,
		LineThresholdLow:  60,
		LineThresholdHigh: 100,
		DefaultTier:       Tier7B,
		PromoteOnce:       true,
	}
}

// LoadRouterSettingsFromEnv applies ROUTER_* overrides on top of defaults.
func LoadRouterSettingsFromEnv() RouterSettings {
	s := DefaultRouterSettings()
	if v, ok := envInt("ROUTER_CONTEXT_LIMIT"); ok {
		s.ContextLimit = v
	}
	if v, ok := envInt("ROUTER_MAX_TOKENS_HEADROOM"); ok {
		s.MaxTokensHeadroom = v
	}
	if v, ok := envInt("ROUTER_NODE_LIMIT"); ok {
		s.NodeLimit = v
	}
	if v, ok := envInt("ROUTER_DEPTH_LIMIT"); ok {
		s.DepthLimit = v
	}
	if v, ok := envInt("ROUTER_ARRAY_LIMIT"); ok {
		s.ArrayLimit = v
	}
	if v, ok := envInt("ROUTER_CSV_LIMIT"); ok {
		s.CSVLimit = v
	}
	if v, ok := envInt("ROUTER_NESTING_LIMIT"); ok {
		s.NestingLimit = v
	}
	if raw := os.Getenv("ROUTER_LINE_THRESHOLDS"); raw != "" {
		if low, high, ok := parseLineThresholds(raw); ok {
			s.LineThresholdLow, s.LineThresholdHigh = low, high
		}
	}
	if raw := os.Getenv("ROUTER_DEFAULT_TIER"); raw != "" {
		s.DefaultTier = Tier(raw)
	}
	if raw := os.Getenv("ROUTER_PROMOTE_ONCE"); raw != "" {
		s.PromoteOnce = raw != "0" && strings.ToLower(raw) != "false"
	}
	return s
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseLineThresholds parses "low,high", swapping them if reversed, and
// falling back to 60,100 on any parse error.
func parseLineThresholds(raw string) (int, int, bool) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 60, 100, false
	}
	low, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	high, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 60, 100, false
	}
	if low > high {
		low, high = high, low
	}
	return low, high, true
}

// SpanMetrics are the inputs to initial tier selection.
type SpanMetrics struct {
	TokensIn         int
	TokensOut        int
	LineCount        int
	NestingDepth     int
	NodeCount        int
	SchemaDepth      int
	ArrayElements    int
	CSVColumns       int
	RetrievedCount   int     // k
	RetrievedAvgScore float64 // only meaningful when RetrievedCount > 0
	HasRetrieval     bool
	Override         Tier // wins unconditionally if non-empty
}

// ChooseStartTier is the pure initial-tier-selection function.
func ChooseStartTier(m SpanMetrics, s RouterSettings) Tier {
	if m.Override != "" {
		return m.Override
	}

	if m.TokensIn+m.TokensOut > s.ContextLimit-s.MaxTokensHeadroom {
		return TierNano
	}
	if m.NodeCount > s.NodeLimit || m.SchemaDepth > s.DepthLimit ||
		m.ArrayElements > s.ArrayLimit || m.CSVColumns > s.CSVLimit {
		return TierNano
	}

	var tier Tier
	switch {
	case m.LineCount > s.LineThresholdHigh:
		tier = Tier14B
	case m.LineCount > s.LineThresholdLow || m.NestingDepth > s.NestingLimit:
		tier = Tier14B
	default:
		tier = Tier7B
	}

	weakRetrieval := m.HasRetrieval && (m.RetrievedCount == 0 || m.RetrievedAvgScore < 0.25)
	if tier == Tier7B && weakRetrieval {
		tier = Tier14B
	}

	return tier
}

// promotionTable is the fixed next-tier-on-failure mapping.
var promotionTable = map[Tier]map[FailureKind]Tier{
	Tier7B: {
		FailureTruncation: TierNano,
		FailureParse:      Tier14B,
		FailureValidation: Tier14B,
		FailureNoEvidence: Tier14B,
		FailureTimeout:    TierNano,
		FailureRuntime:    TierNano,
		FailureUnknown:    TierNano,
	},
	Tier14B: {
		FailureTruncation: TierNano,
		FailureParse:      TierNano,
		FailureValidation: TierNano,
		FailureNoEvidence: TierNano,
		FailureTimeout:    TierNano,
		FailureRuntime:    TierNano,
		FailureUnknown:    TierNano,
	},
}

// ChooseNextTierOnFailure returns the next tier to try, or "" to stop.
// tiersHistory enforces promote-once: a tier already visited in this task
// is never revisited.
func ChooseNextTierOnFailure(kind FailureKind, current Tier, tiersHistory []Tier, s RouterSettings) Tier {
	if !s.PromoteOnce {
		return ""
	}
	if current == TierNano {
		return "" // terminal
	}
	next, ok := promotionTable[current][kind]
	if !ok {
		next = TierNano
	}
	for _, seen := range tiersHistory {
		if seen == next {
			return ""
		}
	}
	return next
}
