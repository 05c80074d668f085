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

// Package planner discovers pending enrichment/embedding work and attaches
// the source snippets and diversity ordering the engines need.
package planner

import (
	"context"
	"os"

	"github.com/kraklabs/ragd/pkg/indexstore"
)

// MaxSnippetChars caps how much source text a task snippet carries.
const MaxSnippetChars = 800

// Task pairs a pending WorkItem with its truncated source snippet.
type Task struct {
	indexstore.WorkItem
	Snippet string
}

// Source reads and returns a span's source bytes.
type Source interface {
	ReadSpan(repoRoot string, item indexstore.WorkItem) ([]byte, error)
}

// FileSource reads spans directly off disk by byte offset.
type FileSource struct{}

func (FileSource) ReadSpan(repoRoot string, item indexstore.WorkItem) ([]byte, error) {
	data, err := os.ReadFile(joinRepoPath(repoRoot, item.FilePath))
	if err != nil {
		return nil, err
	}
	if item.ByteEnd > 0 && item.ByteEnd <= len(data) && item.ByteStart >= 0 && item.ByteStart <= item.ByteEnd {
		return data[item.ByteStart:item.ByteEnd], nil
	}
	return data, nil
}

func joinRepoPath(root, rel string) string {
	if root == "" {
		return rel
	}
	return root + string(os.PathSeparator) + rel
}

// snippet truncates text to limit chars, appending an ellipsis marker when
// truncated.
func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

// EnrichmentPlan builds the next batch of enrichment tasks: pending spans
// with source snippets attached, diversified across files.
func EnrichmentPlan(ctx context.Context, store *indexstore.Store, src Source, repoRoot string, limit, cooldownSeconds, maxFailuresPerSpan int) ([]Task, error) {
	items, err := store.PendingEnrichments(ctx, limit, cooldownSeconds, maxFailuresPerSpan)
	if err != nil {
		return nil, err
	}
	return buildTasks(items, src, repoRoot, limit), nil
}

// EmbeddingPlan builds the next batch of embedding tasks for route.
func EmbeddingPlan(ctx context.Context, store *indexstore.Store, src Source, repoRoot, route string, limit int) ([]Task, error) {
	items, err := store.PendingEmbeddings(ctx, limit, route)
	if err != nil {
		return nil, err
	}
	return buildTasks(items, src, repoRoot, limit), nil
}

func buildTasks(items []indexstore.WorkItem, src Source, repoRoot string, limit int) []Task {
	diversified := diversify(items, limit)
	tasks := make([]Task, 0, len(diversified))
	for _, item := range diversified {
		code, err := src.ReadSpan(repoRoot, item)
		var snip string
		if err == nil {
			snip = snippet(string(code), MaxSnippetChars)
		}
		tasks = append(tasks, Task{WorkItem: item, Snippet: snip})
	}
	return tasks
}

// diversify reorders items round-robin across distinct files, so a batch
// doesn't exhaust its limit on one large file before touching others.
// Relative order within a file is preserved.
func diversify(items []indexstore.WorkItem, limit int) []indexstore.WorkItem {
	byFile := make(map[string][]indexstore.WorkItem)
	var order []string
	for _, it := range items {
		if _, seen := byFile[it.FilePath]; !seen {
			order = append(order, it.FilePath)
		}
		byFile[it.FilePath] = append(byFile[it.FilePath], it)
	}

	out := make([]indexstore.WorkItem, 0, len(items))
	for len(out) < len(items) {
		progressed := false
		for _, file := range order {
			remaining := byFile[file]
			if len(remaining) == 0 {
				continue
			}
			out = append(out, remaining[0])
			byFile[file] = remaining[1:]
			progressed = true
			if limit > 0 && len(out) == limit {
				return out
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
