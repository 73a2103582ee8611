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
	"context"

	"github.com/pkg/errors"
)

// clockState is the single row of the clock table (spec §3).
type clockState struct {
	documentClock                 uint64
	tombstoneHistoryStartsAtClock uint64
}

// readClock loads the single clock row. Because the row is created
// exactly once by bootstrap or seed and never deleted (invariant 1),
// sql.ErrNoRows here means the store was never correctly initialized.
func readClock(ctx context.Context, h Host, dialect Dialect, clockTable string) (clockState, error) {
	var cs clockState
	row := h.QueryRow(ctx, selectClockQuery(dialect, clockTable))
	if err := row.Scan(&cs.documentClock, &cs.tombstoneHistoryStartsAtClock); err != nil {
		if isNoRows(err) {
			return clockState{}, errors.Wrap(ErrClockRowMissing, err.Error())
		}
		return clockState{}, errors.WithStack(err)
	}
	return cs, nil
}

// writeClock overwrites the single clock row. There is never a need to
// insert: bootstrap (or seed) always leaves exactly one row, and it is
// never deleted (invariant 1).
func writeClock(ctx context.Context, h Host, dialect Dialect, clockTable string, cs clockState) error {
	_, err := h.Exec(ctx, updateClockQuery(dialect, clockTable),
		cs.documentClock, cs.tombstoneHistoryStartsAtClock)
	return errors.WithStack(err)
}

// insertClock is used once, by bootstrap/seed, to create the table's
// only row.
func insertClock(ctx context.Context, h Host, dialect Dialect, clockTable string, cs clockState) error {
	_, err := h.Exec(ctx, insertClockQuery(dialect, clockTable),
		cs.documentClock, cs.tombstoneHistoryStartsAtClock)
	return errors.WithStack(err)
}
