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

package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kraklabs/ragd/internal/config"
)

// cmdConfig prints the effective configuration, mirroring _cmd_config in
// the original daemon's main.py: sorted "key: value" lines by default,
// or a single JSON object with --json.
func cmdConfig(cfg config.Config, jsonOutput bool) int {
	fields := map[string]any{
		"tick_interval_seconds":   cfg.TickIntervalSeconds,
		"max_concurrent_jobs":     cfg.MaxConcurrentJobs,
		"max_consecutive_failures": cfg.MaxConsecutiveFailures,
		"base_backoff_seconds":    cfg.BaseBackoffSeconds,
		"max_backoff_seconds":     cfg.MaxBackoffSeconds,
		"registry_path":           cfg.RegistryPath,
		"state_store_path":        cfg.StateStorePath,
		"log_path":                cfg.LogPath,
		"control_dir":             cfg.ControlDir,
		"job_runner_cmd":          cfg.JobRunnerCmd,
		"log_level":               cfg.LogLevel,
	}

	if jsonOutput {
		out, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			fmt.Println("error: failed to encode config:", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %v\n", k, fields[k])
	}
	return 0
}
