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
	"context"

	"github.com/kraklabs/ragd/internal/config"
)

// cmdTick runs a single scheduler tick and exits, mirroring _cmd_tick in
// the original daemon's main.py. It drives one pass of eligibility and
// submission, then waits for the jobs submitted during that pass to finish
// before returning.
func cmdTick(cfg config.Config) int {
	logger := newLogger(cfg)
	s := buildScheduler(cfg, logger)

	s.Tick(context.Background())
	s.Pool.Wait()
	return 0
}
