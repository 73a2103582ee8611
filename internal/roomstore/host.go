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
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Row is satisfied by a single-row query result, such as
// [database/sql.Row] or [github.com/jackc/pgx/v5.Row].
type Row interface {
	Scan(dest ...any) error
}

// Rows is satisfied by a multi-row query result, such as
// [database/sql.Rows] or [github.com/jackc/pgx/v5.Rows]. Err must be
// checked after Next returns false to distinguish "no more rows" from
// a failure mid-scan.
type Rows interface {
	Row
	Next() bool
	Err() error
	Close() error
}

// Host is the SQL surface the store requires of whatever connection
// or transaction it is handed. It intentionally mirrors cdc-sink's
// StagingQuerier (internal/types.StagingQuerier): a narrow interface
// satisfied by both a pool and a transaction handle, so that store
// code is agnostic to which one it's holding.
type Host interface {
	Exec(ctx context.Context, query string, args ...any) (rowsAffected int64, err error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// HostTx is a Host that is also an open transaction.
type HostTx interface {
	Host
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// HostPool is a Host that can also open new transactions. This is the
// "host environment" contract of spec §6: sql.exec plus
// storage.transactionSync, expressed as BeginTx/Commit/Rollback since
// Go has no ambient transaction scope to hook into.
type HostPool interface {
	Host
	BeginTx(ctx context.Context) (HostTx, error)
}

// isNoRows reports whether err is the "no rows found" sentinel of
// either backing driver this package's hostpool adapters wrap.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
