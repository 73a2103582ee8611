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

package msort_test

import (
	"testing"

	"github.com/roomsync/roomstore/internal/util/msort"
	"github.com/stretchr/testify/require"
)

type clocked struct{ clock uint64 }

func clockOf(c clocked) uint64 { return c.clock }

func TestSortDescByClock(t *testing.T) {
	xs := []clocked{{1}, {5}, {3}, {5}, {2}}
	msort.SortDescByClock(xs, clockOf)
	var got []uint64
	for _, x := range xs {
		got = append(got, x.clock)
	}
	require.Equal(t, []uint64{5, 5, 3, 2, 1}, got)
}

func TestCohortBoundaryNeverSplitsACohort(t *testing.T) {
	xs := []clocked{{10}, {9}, {9}, {9}, {8}, {7}, {7}}

	// minIdx lands mid-cohort (index 2 is inside the run of 9s starting
	// at index 1), so the boundary must move forward to index 4.
	k := msort.CohortBoundary(xs, 2, clockOf)
	require.Equal(t, 4, k)

	// minIdx already lands on a cohort boundary: no adjustment needed.
	k = msort.CohortBoundary(xs, 4, clockOf)
	require.Equal(t, 4, k)

	// minIdx lands on the first element of the final cohort (the run of
	// 7s at indexes 5 and 6): already a boundary, no adjustment needed.
	k = msort.CohortBoundary(xs, 5, clockOf)
	require.Equal(t, 5, k)
}

func TestCohortBoundaryAtOrPastEnd(t *testing.T) {
	xs := []clocked{{3}, {2}, {1}}
	require.Equal(t, 3, msort.CohortBoundary(xs, 3, clockOf))
	require.Equal(t, 3, msort.CohortBoundary(xs, 10, clockOf))
}

func TestCohortBoundaryEmpty(t *testing.T) {
	require.Equal(t, 0, msort.CohortBoundary[clocked](nil, 0, clockOf))
}
