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

package planner

import (
	"strings"
	"testing"

	"github.com/kraklabs/ragd/pkg/indexstore"
)

func TestDiversify_RoundRobinsAcrossFiles(t *testing.T) {
	items := []indexstore.WorkItem{
		{FilePath: "a.py", SpanHash: "a1"},
		{FilePath: "a.py", SpanHash: "a2"},
		{FilePath: "a.py", SpanHash: "a3"},
		{FilePath: "b.py", SpanHash: "b1"},
	}
	got := diversify(items, 0)
	want := []string{"a1", "b1", "a2", "a3"}
	for i, w := range want {
		if got[i].SpanHash != w {
			t.Fatalf("index %d: want %s, got %s", i, w, got[i].SpanHash)
		}
	}
}

func TestDiversify_RespectsLimit(t *testing.T) {
	items := []indexstore.WorkItem{
		{FilePath: "a.py", SpanHash: "a1"},
		{FilePath: "b.py", SpanHash: "b1"},
		{FilePath: "c.py", SpanHash: "c1"},
	}
	got := diversify(items, 2)
	if len(got) != 2 {
		t.Fatalf("want 2 items, got %d", len(got))
	}
}

func TestSnippet_TruncatesWithEllipsis(t *testing.T) {
	text := strings.Repeat("x", 900)
	got := snippet(text, MaxSnippetChars)
	if len([]rune(got)) != MaxSnippetChars {
		t.Fatalf("want length %d, got %d", MaxSnippetChars, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("want ellipsis suffix, got %q", got[len(got)-10:])
	}
}

func TestSnippet_ShortTextUnchanged(t *testing.T) {
	text := "short"
	if got := snippet(text, MaxSnippetChars); got != text {
		t.Fatalf("want unchanged, got %q", got)
	}
}
