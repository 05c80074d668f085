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

package indexstore

import "time"

// FileRecord is one source file under a repo.
type FileRecord struct {
	ID       int64
	Path     string
	Lang     string
	FileHash string
	Size     int64
	Mtime    float64 // unix seconds
}

// SpanRecord identifies a contiguous semantic unit of a file by content
// hash: span_hash = sha256(lang || 0x00 || span_bytes).
type SpanRecord struct {
	FileID    int64
	Symbol    string
	Kind      string
	StartLine int
	EndLine   int
	ByteStart int
	ByteEnd   int
	SpanHash  string
	DocHint   string
}

// EnrichmentRecord is structured LLM-generated metadata for one span.
// Last-writer-wins: a store with the same span_hash replaces the prior row.
type EnrichmentRecord struct {
	SpanHash     string
	Summary      string
	Tags         []string
	Evidence     []EvidenceEntry
	Model        string
	SchemaVer    string
	Inputs       []string
	Outputs      []string
	SideEffects  []string
	Pitfalls     []string
	UsageSnippet string
	CreatedAt    time.Time
}

// EvidenceEntry cites the line range supporting one enrichment field.
type EvidenceEntry struct {
	Field string `json:"field"`
	Lines [2]int `json:"lines"`
}

// EmbeddingRecord is a fixed-dimension vector for one span within a route.
type EmbeddingRecord struct {
	SpanHash    string
	RouteName   string
	ProfileName string
	Vec         []float32
}

// GraphEdgeRecord is the optional tech-docs graph primitive; no
// graph-builder logic is implemented here.
type GraphEdgeRecord struct {
	SourceSpanHash string
	TargetSpanHash string // may be empty (unresolved)
	TargetText     string
	EdgeType       string
	Confidence     float64
}

// WorkItem is an ephemeral pending-enrichment or pending-embedding task
// produced by the Planner.
type WorkItem struct {
	SpanHash  string
	FilePath  string
	Lang      string
	StartLine int
	EndLine   int
	ByteStart int
	ByteEnd   int
}
