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
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/roomsync/roomstore/internal/ident"
)

// Dialect selects the SQL flavor used for DDL and upsert statements.
// This plays the same role as cdc-sink's types.Product enum: the core
// algorithms are dialect-independent, but column types and upsert
// syntax are not.
type Dialect int

const (
	// DialectPostgres targets Postgres or CockroachDB.
	DialectPostgres Dialect = iota
	// DialectMySQL targets MySQL or MariaDB.
	DialectMySQL
)

// tableNames holds the four physical table names derived from a room
// slug (spec §3).
type tableNames struct {
	Documents  string
	Tombstones string
	Metadata   string
	Clock      string
}

func tablesFor(room ident.Room) tableNames {
	return tableNames{
		Documents:  room.Table("documents"),
		Tombstones: room.Table("tombstones"),
		Metadata:   room.Table("metadata"),
		Clock:      room.Table("clock"),
	}
}

// schemaKey is the one reserved metadata key (spec §3, §6).
const schemaKey = "schema"

const postgresSchemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
  id                 STRING PRIMARY KEY,
  state              JSONB NOT NULL,
  last_changed_clock INT8 NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_last_changed_clock_idx ON %[1]s (last_changed_clock);

CREATE TABLE IF NOT EXISTS %[2]s (
  id    STRING PRIMARY KEY,
  clock INT8 NOT NULL
);

CREATE TABLE IF NOT EXISTS %[3]s (
  key   STRING PRIMARY KEY,
  value STRING NOT NULL
);

CREATE TABLE IF NOT EXISTS %[4]s (
  document_clock                    INT8 NOT NULL,
  tombstone_history_starts_at_clock INT8 NOT NULL
);`

const mysqlSchemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
  id                 VARCHAR(255) PRIMARY KEY,
  state              JSON NOT NULL,
  last_changed_clock BIGINT UNSIGNED NOT NULL,
  KEY %[1]s_last_changed_clock_idx (last_changed_clock)
);

CREATE TABLE IF NOT EXISTS %[2]s (
  id    VARCHAR(255) PRIMARY KEY,
  clock BIGINT UNSIGNED NOT NULL
);

CREATE TABLE IF NOT EXISTS %[3]s (
  `+"`key`"+`   VARCHAR(255) PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[4]s (
  document_clock                    BIGINT UNSIGNED NOT NULL,
  tombstone_history_starts_at_clock BIGINT UNSIGNED NOT NULL
);`

// createTablesIdempotent issues the four-table DDL plus the
// lastChangedClock index, exactly as spec §4.A requires: it must
// succeed whether or not the tables already exist, and it never
// touches existing data.
func createTablesIdempotent(ctx context.Context, h Host, tables tableNames, dialect Dialect) error {
	var tmpl string
	switch dialect {
	case DialectMySQL:
		tmpl = mysqlSchemaTemplate
	default:
		tmpl = postgresSchemaTemplate
	}

	ddl := fmt.Sprintf(tmpl, tables.Documents, tables.Tombstones, tables.Metadata, tables.Clock)
	if _, err := h.Exec(ctx, ddl); err != nil {
		return errors.Wrap(err, "roomstore: creating tables")
	}
	return nil
}

const selectOneFromClockTemplate = `SELECT 1 FROM %s LIMIT 1`

// hasBeenInitialized probes for a pre-existing clock row. Any error,
// including "relation does not exist", is swallowed and treated as
// "not initialized" per spec §4.A and the error-handling design in
// §7 ("any exception raised by the clock table probe is swallowed").
func hasBeenInitialized(ctx context.Context, h Host, tables tableNames) bool {
	var discard int
	err := h.QueryRow(ctx, fmt.Sprintf(selectOneFromClockTemplate, tables.Clock)).Scan(&discard)
	if err != nil {
		log.WithError(err).WithField("table", tables.Clock).Trace("roomstore: not-initialized probe failed")
		return false
	}
	return true
}

// truncateAllTables empties all four of a room's tables. Seed uses
// this to honor spec §3's "if a snapshot is supplied, all four tables
// are wiped and repopulated from it" unconditionally, regardless of
// whether the room was previously initialized. MySQL's TRUNCATE TABLE
// takes a single table reference, so the four tables are truncated
// one statement at a time rather than in one multi-table statement.
func truncateAllTables(ctx context.Context, htx HostTx, tables tableNames) error {
	for _, t := range []string{tables.Documents, tables.Tombstones, tables.Metadata, tables.Clock} {
		if _, err := htx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", t)); err != nil {
			return errors.Wrapf(err, "roomstore: truncating %s", t)
		}
	}
	return nil
}

// HasBeenInitialized reports whether a room's tables already exist and
// carry a clock row, per spec §4.A's hasBeenInitialized predicate.
// Callers use this to choose between opening the store directly and
// running the cold-load path first.
func HasBeenInitialized(ctx context.Context, h Host, room ident.Room) bool {
	return hasBeenInitialized(ctx, h, tablesFor(room))
}
