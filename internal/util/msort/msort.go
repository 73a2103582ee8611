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

// Package msort contains utility functions for sorting and grouping
// batches of clock-tagged records. It originally implemented a
// "last-one-wins" de-duplication pass over mutation batches; the
// tombstone pruner needs a related but distinct operation, so the
// backwards-scan shape is kept but repointed at finding a cohort
// boundary in a clock-sorted slice instead of deduplicating by key.
package msort

import "sort"

// SortDescByClock sorts xs in place so that the highest clock value
// comes first, using clockOf to project each element's clock.
func SortDescByClock[T any](xs []T, clockOf func(T) uint64) {
	sort.Slice(xs, func(i, j int) bool {
		return clockOf(xs[i]) > clockOf(xs[j])
	})
}

// CohortBoundary returns the smallest index k >= minIdx such that
// extending the retained prefix xs[:k] would never split a run of
// elements that share a clock value. xs must already be sorted
// descending by clock (see SortDescByClock). A minIdx past the end of
// xs is clamped to len(xs).
//
// This guarantees that xs[:k] and xs[k:] each contain only whole
// clock cohorts: if xs[k-1] and xs[k] shared a clock, k is advanced
// until they don't, or until xs is exhausted.
func CohortBoundary[T any](xs []T, minIdx int, clockOf func(T) uint64) int {
	k := minIdx
	if k < 0 {
		k = 0
	}
	if k > len(xs) {
		k = len(xs)
	}
	for k > 0 && k < len(xs) && clockOf(xs[k-1]) == clockOf(xs[k]) {
		k++
	}
	return k
}
