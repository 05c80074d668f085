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

// Package config loads the daemon's single immutable Config value at
// process start and threads it explicitly into every component; nothing
// in the core reads the environment ad hoc after that.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ragerrors "github.com/kraklabs/ragd/internal/errors"
)

// Config is the daemon's effective configuration, loaded once from YAML.
type Config struct {
	TickIntervalSeconds   int    `yaml:"tick_interval_seconds"`
	MaxConcurrentJobs     int    `yaml:"max_concurrent_jobs"`
	MaxConsecutiveFailures int   `yaml:"max_consecutive_failures"`
	BaseBackoffSeconds    int    `yaml:"base_backoff_seconds"`
	MaxBackoffSeconds     int    `yaml:"max_backoff_seconds"`
	RegistryPath          string `yaml:"registry_path"`
	StateStorePath        string `yaml:"state_store_path"`
	LogPath               string `yaml:"log_path"`
	ControlDir            string `yaml:"control_dir"`
	JobRunnerCmd          string `yaml:"job_runner_cmd"`
	LogLevel              string `yaml:"log_level"`
}

const envConfigPath = "LLMC_RAG_DAEMON_CONFIG"

// Default returns the same defaults as the original daemon's load_config.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		TickIntervalSeconds:    120,
		MaxConcurrentJobs:      2,
		MaxConsecutiveFailures: 5,
		BaseBackoffSeconds:     60,
		MaxBackoffSeconds:      3600,
		RegistryPath:           filepath.Join(home, ".llmc", "repos.yml"),
		StateStorePath:         filepath.Join(home, ".llmc", "rag-state"),
		LogPath:                filepath.Join(home, ".llmc", "logs", "rag-daemon"),
		ControlDir:             filepath.Join(home, ".llmc", "rag-control"),
		JobRunnerCmd:           "ragd-job",
		LogLevel:               "INFO",
	}
}

// Load reads the daemon config YAML at path, or from $LLMC_RAG_DAEMON_CONFIG,
// or ~/.llmc/rag-daemon.yml if path is empty. Unset fields take Default()'s
// values. Ensures state_store_path, log_path, control_dir exist.
func Load(path string) (Config, error) {
	if path == "" {
		if env := os.Getenv(envConfigPath); env != "" {
			path = env
		} else {
			home, _ := os.UserHomeDir()
			path = filepath.Join(home, ".llmc", "rag-daemon.yml")
		}
	}
	expanded, err := expand(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	raw, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ragerrors.NewConfigError(
				"daemon config not found",
				expanded,
				"create a daemon config at ~/.llmc/rag-daemon.yml or set LLMC_RAG_DAEMON_CONFIG / pass --config",
				err,
			)
		}
		return Config{}, ragerrors.NewConfigError("failed to read daemon config", expanded, "", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, ragerrors.NewConfigError("failed to parse daemon config", expanded, "check the YAML syntax", err)
	}

	for _, dir := range []string{cfg.StateStorePath, cfg.LogPath, cfg.ControlDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, ragerrors.NewConfigError("failed to create daemon directory", dir, "", err)
		}
	}
	return cfg, nil
}

func expand(path string) (string, error) {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, path[2:])
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}
