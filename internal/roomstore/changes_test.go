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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideChangesSinceUpToDate(t *testing.T) {
	empty, wipeAll, since := decideChangesSince(10, 10, 0)
	assert.True(t, empty)
	assert.False(t, wipeAll)
	assert.EqualValues(t, 10, since)
}

func TestDecideChangesSinceOrdinaryCatchUp(t *testing.T) {
	// sinceClock is behind clock but still within retained history.
	empty, wipeAll, since := decideChangesSince(5, 10, 2)
	assert.False(t, empty)
	assert.False(t, wipeAll)
	assert.EqualValues(t, 5, since)
}

func TestDecideChangesSinceFromTheBeginningWithNoPrunedHistory(t *testing.T) {
	// Scenario S3: watermark is 0, so a brand-new client's sinceClock=0
	// needs no WIPE_ALL even though it is also the watermark.
	empty, wipeAll, since := decideChangesSince(0, 10, 0)
	assert.False(t, empty)
	assert.False(t, wipeAll)
	assert.EqualValues(t, 0, since)
}

func TestDecideChangesSinceBelowWatermarkRequiresWipeAll(t *testing.T) {
	// Scenario S4: history before the watermark has been pruned away.
	empty, wipeAll, since := decideChangesSince(1, 10, 3)
	assert.False(t, empty)
	assert.True(t, wipeAll)
	assert.EqualValues(t, -1, since)
}

func TestDecideChangesSinceCursorAheadOfClockIsTreatedAsCorrupt(t *testing.T) {
	// An impossible cursor always forces a full resync, independent of
	// whether any tombstone history has actually been pruned.
	empty, wipeAll, since := decideChangesSince(99, 10, 0)
	assert.False(t, empty)
	assert.True(t, wipeAll)
	assert.EqualValues(t, -1, since)
}

func TestDecideChangesSinceCursorAheadOfClockBelowWatermarkAlsoWipes(t *testing.T) {
	empty, wipeAll, since := decideChangesSince(99, 10, 5)
	assert.False(t, empty)
	assert.True(t, wipeAll)
	assert.EqualValues(t, -1, since)
}
