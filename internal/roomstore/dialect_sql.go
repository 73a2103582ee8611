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

import "fmt"

// ph returns the dialect-appropriate bind-parameter marker for
// position n (1-based): pgx accepts only its native "$n" markers,
// while go-sql-driver/mysql accepts only "?".
func ph(dialect Dialect, n int) string {
	if dialect == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// upsertDocumentQuery builds the per-dialect upsert used by SetDocument
// and by seeding. CockroachDB's UPSERT INTO (used for DialectPostgres,
// which this package also uses for plain Postgres for simplicity) and
// MySQL's INSERT ... ON DUPLICATE KEY UPDATE both replace a row with a
// matching primary key wholesale.
func upsertDocumentQuery(dialect Dialect, table string) string {
	if dialect == DialectMySQL {
		return fmt.Sprintf(
			"INSERT INTO %[1]s (id, state, last_changed_clock) VALUES (?, ?, ?) "+
				"ON DUPLICATE KEY UPDATE state = VALUES(state), last_changed_clock = VALUES(last_changed_clock)",
			table)
	}
	return fmt.Sprintf("UPSERT INTO %s (id, state, last_changed_clock) VALUES ($1, $2, $3)", table)
}

func upsertTombstoneQuery(dialect Dialect, table string) string {
	if dialect == DialectMySQL {
		return fmt.Sprintf(
			"INSERT INTO %[1]s (id, clock) VALUES (?, ?) ON DUPLICATE KEY UPDATE clock = VALUES(clock)",
			table)
	}
	return fmt.Sprintf("UPSERT INTO %s (id, clock) VALUES ($1, $2)", table)
}

func upsertMetadataQuery(dialect Dialect, table string) string {
	if dialect == DialectMySQL {
		return fmt.Sprintf(
			"INSERT INTO %[1]s (`key`, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
			table)
	}
	return fmt.Sprintf(`UPSERT INTO %s (key, value) VALUES ($1, $2)`, table)
}

func getDocumentQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("SELECT state, last_changed_clock FROM %s WHERE id = %s", table, ph(dialect, 1))
}

func deleteDocumentQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, ph(dialect, 1))
}

func deleteTombstoneQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, ph(dialect, 1))
}

func getMetadataQuery(dialect Dialect, table string) string {
	col := "key"
	if dialect == DialectMySQL {
		col = "`key`"
	}
	return fmt.Sprintf("SELECT value FROM %s WHERE %s = %s", table, col, ph(dialect, 1))
}

func selectChangedDocumentsQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("SELECT state FROM %s WHERE last_changed_clock > %s", table, ph(dialect, 1))
}

func selectDeletedTombstonesQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("SELECT id FROM %s WHERE clock > %s", table, ph(dialect, 1))
}

func selectClockQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("SELECT document_clock, tombstone_history_starts_at_clock FROM %s", table)
}

func updateClockQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("UPDATE %s SET document_clock = %s, tombstone_history_starts_at_clock = %s",
		table, ph(dialect, 1), ph(dialect, 2))
}

func insertClockQuery(dialect Dialect, table string) string {
	return fmt.Sprintf("INSERT INTO %s (document_clock, tombstone_history_starts_at_clock) VALUES (%s, %s)",
		table, ph(dialect, 1), ph(dialect, 2))
}
