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

import "encoding/json"

// SnapshotDocument is one entry of Snapshot.Documents: a document's
// state, which must itself carry an "id" field, plus the clock at
// which it was last changed.
type SnapshotDocument struct {
	State            json.RawMessage `json:"state"`
	LastChangedClock uint64          `json:"lastChangedClock"`
}

// Snapshot is the self-contained, serialized room state used to
// bootstrap or replace a store, per spec §6's snapshot ingestion
// format.
type Snapshot struct {
	// DocumentClock is the resolved clock value. Marshaling always
	// uses this field; unmarshaling also accepts the legacy "clock"
	// name (see UnmarshalJSON).
	DocumentClock uint64 `json:"documentClock"`

	// TombstoneHistoryStartsAtClock defaults to DocumentClock if the
	// wire form omits it.
	TombstoneHistoryStartsAtClock uint64 `json:"tombstoneHistoryStartsAtClock"`

	Documents   []SnapshotDocument `json:"documents"`
	Tombstones  map[string]uint64  `json:"tombstones,omitempty"`
	Schema      json.RawMessage    `json:"schema,omitempty"`
}

// wireSnapshot mirrors Snapshot but leaves the clock fields as
// pointers so that UnmarshalJSON can tell "absent" from "zero" and
// apply spec §4.A's resolution rules:
//
//	documentClock := snapshot.documentClock, falling back to the
//	legacy snapshot.clock, else 0.
//	tombstoneHistoryStartsAtClock := snapshot's value, else equal to
//	the resolved documentClock.
type wireSnapshot struct {
	DocumentClock                 *uint64            `json:"documentClock"`
	LegacyClock                   *uint64            `json:"clock"`
	TombstoneHistoryStartsAtClock *uint64            `json:"tombstoneHistoryStartsAtClock"`
	Documents                     []SnapshotDocument `json:"documents"`
	Tombstones                    map[string]uint64  `json:"tombstones"`
	Schema                        json.RawMessage    `json:"schema"`
}

// UnmarshalJSON implements the documentClock/clock legacy-field
// fallback and the tombstoneHistoryStartsAtClock default described in
// spec §4.A and §9 ("Snapshot legacy field").
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case w.DocumentClock != nil:
		s.DocumentClock = *w.DocumentClock
	case w.LegacyClock != nil:
		s.DocumentClock = *w.LegacyClock
	default:
		s.DocumentClock = 0
	}

	if w.TombstoneHistoryStartsAtClock != nil {
		s.TombstoneHistoryStartsAtClock = *w.TombstoneHistoryStartsAtClock
	} else {
		s.TombstoneHistoryStartsAtClock = s.DocumentClock
	}

	s.Documents = w.Documents
	s.Tombstones = w.Tombstones
	s.Schema = w.Schema
	return nil
}

// idFromState extracts the "id" field from a document's serialized
// state, as required to reconstruct the documents table's primary key
// from a Snapshot's Documents entries (spec §3: "id is extracted from
// the record and used as the primary key").
func idFromState(state json.RawMessage) (string, error) {
	var withID struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(state, &withID); err != nil {
		return "", err
	}
	if withID.ID == "" {
		return "", errDocumentMissingID
	}
	return withID.ID, nil
}
