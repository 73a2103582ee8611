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

// Package roomstore implements the clock-ordered, tombstoned document
// store that backs one collaborative sync room: the schema bootstrap,
// the monotonic clock, the transactional mutation API, the bounded
// tombstone history, and the change-feed/listener protocol that let a
// lagging client catch up or be told to reset.
package roomstore

import "encoding/json"

// Document is a single live record as stored in the documents table:
// an opaque, self-describing blob plus the clock value at which it was
// last written.
type Document struct {
	State            json.RawMessage
	LastChangedClock uint64
}

// Tombstone records that a document was deleted at a given clock.
type Tombstone struct {
	ID    string
	Clock uint64
}

// ChangeKind enumerates the three wire-level change variants of spec
// §4.C and §6.
type ChangeKind int

const (
	// ChangeWipeAll instructs a consumer to discard all local state
	// before applying the rest of the batch. It appears at most once
	// per batch and, if present, is always first.
	ChangeWipeAll ChangeKind = iota
	// ChangePut carries a document's current state.
	ChangePut
	// ChangeDelete carries the id of a deleted document.
	ChangeDelete
)

// String renders the kind for logging.
func (k ChangeKind) String() string {
	switch k {
	case ChangeWipeAll:
		return "WIPE_ALL"
	case ChangePut:
		return "PUT"
	case ChangeDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Change is one element of the sequence returned by Txn.ChangesSince.
// Only the fields relevant to Kind are populated.
type Change struct {
	Kind  ChangeKind
	State json.RawMessage // set when Kind == ChangePut
	ID    string          // set when Kind == ChangeDelete
}
