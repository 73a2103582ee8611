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

// Package ident holds the small naming type used to derive a room's
// four table names from its slug. It is a deliberately trimmed-down
// stand-in for cdc-sink's internal/util/ident package, which carries a
// much larger identifier-quoting system for arbitrary multi-part SQL
// names; a room store only ever needs one identifier (the room slug)
// per table family, so the richer system has no work to do here.
package ident

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var validSlug = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// A Room identifies the SQL table family backing one collaborative
// sync room.
type Room struct {
	raw string
}

// NewRoom validates and wraps a room slug. The slug is used verbatim
// as a SQL identifier suffix, so it is restricted to a safe subset:
// it must start with a letter and contain only letters, digits, and
// underscores.
func NewRoom(slug string) (Room, error) {
	if !validSlug.MatchString(slug) {
		return Room{}, errors.Errorf("invalid room slug %q: must match %s", slug, validSlug)
	}
	return Room{raw: strings.ToLower(slug)}, nil
}

// Raw returns the slug as given to NewRoom (lower-cased).
func (r Room) Raw() string { return r.raw }

// String implements fmt.Stringer.
func (r Room) String() string { return r.raw }

// Table returns the fully-qualified name of one of the room's four
// tables, e.g. Table("documents") -> "room_<slug>_documents".
func (r Room) Table(suffix string) string {
	return "room_" + r.raw + "_" + suffix
}

// NewRandomRoom generates a fresh Room with a random slug, for callers
// that don't have a natural external identifier to hand. The UUID is
// rendered without dashes and prefixed with a letter so it always
// satisfies validSlug.
func NewRandomRoom() Room {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return Room{raw: "r" + raw}
}
