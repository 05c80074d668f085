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

// Command ragd-job is the external per-repo refresh job invoked by
// pkg/jobrunner.SubprocessRunner as `ragd-job --repo <path> --workspace
// <path> [--profile <name>]`. It runs one index+enrich+embed pass and
// exits 0 on success, non-zero on failure.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ragd/internal/model"
	"github.com/kraklabs/ragd/pkg/embedding"
	"github.com/kraklabs/ragd/pkg/enrichment"
	"github.com/kraklabs/ragd/pkg/jobrunner"
	"github.com/kraklabs/ragd/pkg/planner"
)

func main() {
	var (
		repoPath      = flag.String("repo", "", "Path to the repo working tree")
		workspacePath = flag.String("workspace", "", "Path to the repo's rag workspace (indexes, ledger)")
		profile       = flag.String("profile", "", "rag profile name, used for logging only")
		interactive   = flag.Bool("interactive", false, "Show a progress bar (for manual single-repo runs)")
	)
	flag.SetInterspersed(false)
	flag.Parse()

	if *repoPath == "" || *workspacePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ragd-job --repo <repo_path> --workspace <workspace_path> [--profile <name>]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("ragd-job starting", "repo_path", *repoPath, "workspace_path", *workspacePath, "profile", *profile)

	var bar *progressbar.ProgressBar
	if *interactive {
		bar = progressbar.Default(-1, "enriching")
	}

	runner := buildRunner(logger, bar)
	desc := model.RepoDescriptor{
		RepoID:        *repoPath,
		RepoPath:      *repoPath,
		WorkspacePath: *workspacePath,
		Profile:       *profile,
	}

	ctx := context.Background()
	result, err := runner.Run(ctx, desc)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ragd-job: runner error:", err)
		os.Exit(1)
	}
	if !result.Success {
		fmt.Fprintln(os.Stderr, "ragd-job: job failed:", result.ErrorReason)
		os.Exit(1)
	}

	fmt.Printf("indexed=%v removed=%v enriched=%v embedded=%v\n",
		result.Summary["files_indexed"], result.Summary["files_removed"],
		result.Summary["spans_enriched"], result.Summary["spans_embedded"])
	os.Exit(0)
}

// buildRunner wires the InProcessRunner with the Go-only span extractor,
// an Ollama-backed enrichment engine, and deterministic-embedding routes,
// for a single repo refresh.
func buildRunner(logger *slog.Logger, bar *progressbar.ProgressBar) jobrunner.InProcessRunner {
	ledgerPath := os.Getenv("RAGD_ENRICHMENT_LEDGER")
	if ledgerPath == "" {
		ledgerPath = "enrichment-ledger.jsonl"
	}
	ledger := &enrichment.FileLedger{Path: ledgerPath}

	enrichEngine := &enrichment.Engine{
		Client:        progressClient{inner: enrichment.NewOllamaClientFromEnv(), bar: bar},
		Ledger:        ledger,
		Settings:      enrichment.LoadRouterSettingsFromEnv(),
		QuarantineDir: os.Getenv("RAGD_QUARANTINE_DIR"),
		Logger:        logger,
	}

	embedEngine := &embedding.Engine{
		Routes: map[string]embedding.Route{
			"default": {Name: "default", Profile: "default", Dim: 384, Backend: embedding.DeterministicBackend{Dim: 384}},
		},
		Logger: logger,
	}

	return jobrunner.InProcessRunner{
		Extractor:           jobrunner.GoExtractor{},
		EnrichmentEngine:    enrichEngine,
		EmbeddingEngine:     embedEngine,
		Source:              planner.FileSource{},
		EmbeddingRoutes:     []string{"default"},
		EnrichmentBatchSize: 20,
		EmbeddingBatchSize:  20,
		MaxBatches:          5,
		TimeBudget:          20 * time.Minute,
		LangForExt:          jobrunner.LangForExt,
		MaxFailuresPerSpan:  maxFailuresPerSpanFromEnv(),
		CooldownSeconds:     cooldownSecondsFromEnv(),
		Logger:              logger,
	}
}

// maxFailuresPerSpanFromEnv reads RAGD_MAX_FAILURES_PER_SPAN, defaulting to
// 3 exhausted attempts before the Planner stops resurfacing a span.
func maxFailuresPerSpanFromEnv() int {
	v := os.Getenv("RAGD_MAX_FAILURES_PER_SPAN")
	if v == "" {
		return 3
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 3
	}
	return n
}

// cooldownSecondsFromEnv reads RAGD_ENRICHMENT_COOLDOWN_SECONDS, defaulting
// to 0 (no cooldown) so a freshly edited span isn't held back unless the
// operator opts in.
func cooldownSecondsFromEnv() int {
	v := os.Getenv("RAGD_ENRICHMENT_COOLDOWN_SECONDS")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// progressClient wraps a CompletionClient to tick an optional progress bar
// per completion call, for interactive single-repo runs.
type progressClient struct {
	inner enrichment.CompletionClient
	bar   *progressbar.ProgressBar
}

func (p progressClient) Complete(ctx context.Context, tier enrichment.Tier, prompt enrichment.Prompt) (string, string, error) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
	return p.inner.Complete(ctx, tier, prompt)
}
