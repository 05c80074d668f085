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

// Package main implements the ragd daemon CLI: the scheduler + worker pool
// loop that keeps registered repos' indexes and enrichments fresh.
//
// Usage:
//
//	ragd run                  Run the daemon until interrupted (default)
//	ragd tick                 Run a single scheduler tick and exit
//	ragd config [--json]      Show the effective configuration
//	ragd doctor               Run basic health checks
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ragd/internal/config"
	ragerrors "github.com/kraklabs/ragd/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to rag-daemon.yml (default: $LLMC_RAG_DAEMON_CONFIG or ~/.llmc/rag-daemon.yml)")
		logLevel    = flag.String("log-level", "", "Override log level (DEBUG, INFO, WARNING, ERROR)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (config command only)")
		watchTrees  = flag.Bool("watch", false, "Watch registered repos' working trees and raise refresh events on change (run command only)")
		noColor     = flag.Bool("no-color", false, "Disable color output (respects NO_COLOR env var)")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ragd - refresh control plane and enrichment pipeline daemon

Usage:
  ragd [command] [options]

Commands:
  run         Run the daemon until interrupted (default)
  tick        Run a single scheduler tick and exit
  config      Show the effective configuration
  doctor      Run basic health checks (paths, registry, state store)

Global options:
  -c, --config PATH   Path to rag-daemon.yml
  --log-level LEVEL   DEBUG, INFO, WARNING, ERROR
  --json               JSON output (config command only)
  --watch               Raise refresh events on working tree changes (run only)
  --no-color            Disable color output (respects NO_COLOR env var)
  -V, --version        Show version and exit

Examples:
  ragd
  ragd run --config ~/.llmc/rag-daemon.yml
  ragd tick
  ragd config --json
`)
	}

	flag.Parse()

	if *noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	if *showVersion {
		fmt.Printf("ragd version %s (%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if re, ok := err.(*ragerrors.RagdError); ok {
			fmt.Fprintln(os.Stderr, ragerrors.Render(re))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	args := flag.Args()
	command := "run"
	if len(args) > 0 {
		command = args[0]
	}

	var exitCode int
	switch command {
	case "run":
		exitCode = cmdRun(cfg, *watchTrees)
	case "tick":
		exitCode = cmdTick(cfg)
	case "config":
		exitCode = cmdConfig(cfg, *jsonOutput)
	case "doctor":
		exitCode = cmdDoctor(cfg)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command '%s'\n", command)
		flag.Usage()
		exitCode = 2
	}
	os.Exit(exitCode)
}
