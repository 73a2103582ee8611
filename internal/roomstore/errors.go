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

import "github.com/pkg/errors"

var (
	// ErrClockRowMissing is returned if the single-row clock table is
	// found empty after bootstrap. This should never happen outside of
	// a corrupted database, since bootstrap always leaves exactly one
	// row (invariant 1).
	ErrClockRowMissing = errors.New("roomstore: clock table has no row")

	// ErrNoSnapshot is returned by Seed if called with a nil snapshot.
	ErrNoSnapshot = errors.New("roomstore: seed requires a non-nil snapshot")

	// errDocumentMissingID is returned when a snapshot document's
	// state has no "id" field to extract.
	errDocumentMissingID = errors.New("roomstore: document state has no id field")
)
