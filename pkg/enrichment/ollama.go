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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	ragerrors "github.com/kraklabs/ragd/internal/errors"
)

// OllamaClient is the default CompletionClient: a single POST to
// {OLLAMA_URL}/api/generate per tier, with the tier's model name resolved
// from an env var table.
type OllamaClient struct {
	BaseURL string
	Models  map[Tier]string
	HTTP    *http.Client
}

// NewOllamaClientFromEnv reads OLLAMA_URL and per-tier OLLAMA_MODEL_<TIER>
// overrides, falling back to qwen2.5 family defaults.
func NewOllamaClientFromEnv() OllamaClient {
	base := strings.TrimRight(os.Getenv("OLLAMA_URL"), "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	models := map[Tier]string{
		Tier7B:  envOr("OLLAMA_MODEL_7B", "qwen2.5:7b-instruct-q4_K_M"),
		Tier14B: envOr("OLLAMA_MODEL_14B", "qwen2.5:14b-instruct-q4_K_M"),
		TierNano: envOr("OLLAMA_MODEL_NANO", "qwen2.5:0.5b-instruct"),
	}
	return OllamaClient{BaseURL: base, Models: models, HTTP: &http.Client{Timeout: 180 * time.Second}}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

func (c OllamaClient) Complete(ctx context.Context, tier Tier, prompt Prompt) (string, string, error) {
	model, ok := c.Models[tier]
	if !ok {
		return "", "", ragerrors.NewTransportError("no ollama model configured", string(tier), "set OLLAMA_MODEL_<TIER>", nil)
	}

	body, err := json.Marshal(ollamaRequest{Model: model, Prompt: renderPrompt(prompt), Stream: false})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", "", ragerrors.NewTransportError("ollama request failed", c.BaseURL, "is the ollama daemon running", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", ragerrors.NewTransportError("ollama response unreadable", c.BaseURL, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", ragerrors.NewTransportError("ollama returned non-200", fmt.Sprintf("status=%d", resp.StatusCode), "", nil)
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", "", ragerrors.NewTransportError("ollama response malformed", string(raw[:min(len(raw), 200)]), "", err)
	}

	finishReason := out.DoneReason
	if !out.Done && finishReason == "" {
		finishReason = "length"
	}
	return out.Response, finishReason, nil
}

func renderPrompt(p Prompt) string {
	return fmt.Sprintf(`Return ONLY minified JSON:
{"summary_120w":"<what it does>","inputs":["params"],"outputs":["returns"],"side_effects":["mutations"],"pitfalls":["gotchas"],"usage_snippet":"brief example","evidence":[{"field":"summary_120w","lines":[%d,%d]}]}

Rules: summary<=120w, evidence for each populated field with lines [%d-%d], [] or null if unsupported.

%s L%d-%d:
%s

JSON only:`, p.StartLine, p.EndLine, p.StartLine, p.EndLine, p.Path, p.StartLine, p.EndLine, p.Code)
}
