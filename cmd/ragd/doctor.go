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
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/kraklabs/ragd/internal/config"
)

// cmdDoctor validates the daemon's paths and permissions, mirroring
// _cmd_doctor in the original daemon's main.py: the registry file must
// exist and be readable; the state store, log, and control directories
// are created if missing and must be writable.
func cmdDoctor(cfg config.Config) int {
	ok := true

	if info, err := os.Stat(cfg.RegistryPath); err != nil {
		printStatus("ERROR", "registry file %s does not exist", cfg.RegistryPath)
		ok = false
	} else if info.IsDir() {
		printStatus("ERROR", "registry path %s is a directory, expected a file", cfg.RegistryPath)
		ok = false
	} else if f, err := os.Open(cfg.RegistryPath); err != nil {
		printStatus("ERROR", "registry file %s is not readable: %v", cfg.RegistryPath, err)
		ok = false
	} else {
		f.Close()
		printStatus("OK", "registry file %s is readable", cfg.RegistryPath)
	}

	for _, dir := range []struct {
		label string
		path  string
	}{
		{"state store directory", cfg.StateStorePath},
		{"log directory", cfg.LogPath},
		{"control directory", cfg.ControlDir},
	} {
		if dir.path == "" {
			printStatus("WARN", "%s is not configured", dir.label)
			continue
		}
		if _, err := os.Stat(dir.path); os.IsNotExist(err) {
			if err := os.MkdirAll(dir.path, 0o755); err != nil {
				printStatus("ERROR", "failed to create %s %s: %v", dir.label, dir.path, err)
				ok = false
				continue
			}
			printStatus("INFO", "created missing %s %s", dir.label, dir.path)
		}
		probe := dir.path + "/.ragd-doctor-probe"
		if f, err := os.Create(probe); err != nil {
			printStatus("ERROR", "%s %s is not writable: %v", dir.label, dir.path, err)
			ok = false
			continue
		} else {
			f.Close()
			os.Remove(probe)
		}
		printStatus("OK", "%s %s is writable", dir.label, dir.path)
	}

	if ok {
		return 0
	}
	return 1
}

func printStatus(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case "OK":
		fmt.Printf("[%s] %s\n", color.GreenString("OK"), msg)
	case "WARN":
		fmt.Printf("[%s] %s\n", color.YellowString("WARN"), msg)
	case "ERROR":
		fmt.Printf("[%s] %s\n", color.RedString("ERROR"), msg)
	default:
		fmt.Printf("[%s] %s\n", level, msg)
	}
}
