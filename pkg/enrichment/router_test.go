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

import "testing"

func TestChooseStartTier_SmallSpanIsCheap(t *testing.T) {
	s := DefaultRouterSettings()
	tier := ChooseStartTier(SpanMetrics{LineCount: 10, TokensIn: 100}, s)
	if tier != Tier7B {
		t.Fatalf("want 7b, got %s", tier)
	}
}

func TestChooseStartTier_LargeSpanPromotes(t *testing.T) {
	s := DefaultRouterSettings()
	tier := ChooseStartTier(SpanMetrics{LineCount: 150}, s)
	if tier != Tier14B {
		t.Fatalf("want 14b, got %s", tier)
	}
}

func TestChooseStartTier_OverLimitGoesNano(t *testing.T) {
	s := DefaultRouterSettings()
	tier := ChooseStartTier(SpanMetrics{NodeCount: 5000}, s)
	if tier != TierNano {
		t.Fatalf("want nano, got %s", tier)
	}
}

func TestChooseStartTier_OverrideWins(t *testing.T) {
	s := DefaultRouterSettings()
	tier := ChooseStartTier(SpanMetrics{LineCount: 1, Override: TierNano}, s)
	if tier != TierNano {
		t.Fatalf("override should win, got %s", tier)
	}
}

func TestChooseStartTier_WeakRetrievalPromotesFrom7B(t *testing.T) {
	s := DefaultRouterSettings()
	tier := ChooseStartTier(SpanMetrics{LineCount: 5, HasRetrieval: true, RetrievedCount: 0}, s)
	if tier != Tier14B {
		t.Fatalf("want 14b on weak retrieval, got %s", tier)
	}
}

func TestChooseNextTierOnFailure_FollowsPromotionTable(t *testing.T) {
	s := DefaultRouterSettings()
	next := ChooseNextTierOnFailure(FailureParse, Tier7B, nil, s)
	if next != Tier14B {
		t.Fatalf("want 14b, got %s", next)
	}
}

func TestChooseNextTierOnFailure_NanoIsTerminal(t *testing.T) {
	s := DefaultRouterSettings()
	next := ChooseNextTierOnFailure(FailureParse, TierNano, nil, s)
	if next != "" {
		t.Fatalf("nano should be terminal, got %s", next)
	}
}

func TestChooseNextTierOnFailure_PromoteOnceBlocksRevisit(t *testing.T) {
	s := DefaultRouterSettings()
	history := []Tier{Tier14B}
	next := ChooseNextTierOnFailure(FailureParse, Tier7B, history, s)
	if next != "" {
		t.Fatalf("already-visited tier should not be revisited, got %s", next)
	}
}

func TestChooseNextTierOnFailure_PromoteOnceDisabledStopsImmediately(t *testing.T) {
	s := DefaultRouterSettings()
	s.PromoteOnce = false
	next := ChooseNextTierOnFailure(FailureParse, Tier7B, nil, s)
	if next != "" {
		t.Fatalf("want empty when promote-once disabled, got %s", next)
	}
}

func TestParseLineThresholds_SwapsReversedPair(t *testing.T) {
	low, high, ok := parseLineThresholds("100,60")
	if !ok || low != 60 || high != 100 {
		t.Fatalf("want swapped 60,100, got %d,%d,%v", low, high, ok)
	}
}

func TestParseLineThresholds_FallsBackOnGarbage(t *testing.T) {
	low, high, ok := parseLineThresholds("nope")
	if ok || low != 60 || high != 100 {
		t.Fatalf("want fallback 60,100,false, got %d,%d,%v", low, high, ok)
	}
}
