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

// Package metrics exposes the daemon's Prometheus collectors: tick
// counters, job duration, tier-promotion counts, and the running-set
// gauge, using github.com/prometheus/client_golang so the enrichment
// pipeline can be observed in production.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the daemon's collectors. Neither cmd/ragd nor
// cmd/ragd-job creates a Registry, so the collectors are not registered or
// updated by the binaries.
type Registry struct {
	TicksTotal          prometheus.Counter
	JobDuration         prometheus.Histogram
	JobsTotal           *prometheus.CounterVec
	TierPromotionsTotal *prometheus.CounterVec
	RunningRepos        prometheus.Gauge
	EnrichmentResults   *prometheus.CounterVec
}

// NewRegistry builds and registers the daemon's collectors on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks executed.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragd",
			Name:      "job_duration_seconds",
			Help:      "Duration of a per-repo refresh job.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "jobs_total",
			Help:      "Total refresh jobs run, by outcome.",
		}, []string{"outcome"}),
		TierPromotionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "tier_promotions_total",
			Help:      "Total enrichment tier promotions, by from/to tier.",
		}, []string{"from_tier", "to_tier"}),
		RunningRepos: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragd",
			Name:      "running_repos",
			Help:      "Number of repos currently owned by a worker.",
		}),
		EnrichmentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragd",
			Name:      "enrichment_results_total",
			Help:      "Total enrichment attempts, by result (pass/fail).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.TicksTotal,
		r.JobDuration,
		r.JobsTotal,
		r.TierPromotionsTotal,
		r.RunningRepos,
		r.EnrichmentResults,
	)
	return r
}
