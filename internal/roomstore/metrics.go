// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package roomstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names and label sets follow internal/staging/stage/metrics.go's
// convention: a duration histogram, a count, and an error count per
// concern, labeled by the dimension that varies (there, table; here,
// the caller-supplied source tag).
var (
	transactDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomstore_transaction_duration_seconds",
		Help:    "the length of time a transaction body ran for, including commit",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	transactTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomstore_transactions_total",
		Help: "the number of committed transactions, labeled by whether the clock advanced",
	}, []string{"source", "changed"})

	transactErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomstore_transaction_errors_total",
		Help: "the number of transactions that failed to begin, were rolled back, or failed to commit",
	}, []string{"source"})

	pruneRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomstore_prune_runs_total",
		Help: "the number of tombstone-pruner transactions that ran",
	})

	pruneTombstonesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomstore_prune_tombstones_dropped_total",
		Help: "the number of tombstone rows removed by the pruner",
	})

	pruneDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomstore_prune_duration_seconds",
		Help:    "the length of time a tombstone-pruner run took",
		Buckets: prometheus.DefBuckets,
	})
)
