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

package hostpool

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/roomsync/roomstore/internal/roomstore"
	"github.com/roomsync/roomstore/internal/util/stopper"
)

// OpenMySQL opens a database/sql pool using go-sql-driver/mysql and
// adapts it to roomstore.HostPool, matching stdpool's
// OpenMySQLAsTarget's "setting sql_mode so we can use quotes" caveat
// by requiring the DSN to already carry whatever session settings the
// caller's schema needs.
func OpenMySQL(sc *stopper.Context, dsn string) (roomstore.HostPool, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "hostpool: opening mysql pool")
	}
	if err := db.PingContext(sc); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "hostpool: pinging mysql")
	}

	sc.Go(func() error {
		<-sc.Stopping()
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("hostpool: could not close mysql pool")
		}
		return nil
	})

	return &sqlHost{db}, nil
}

type sqlHost struct {
	db *sql.DB
}

func (h *sqlHost) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return n, errors.WithStack(err)
}

func (h *sqlHost) Query(ctx context.Context, query string, args ...any) (roomstore.Rows, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return sqlRows{rows}, nil
}

func (h *sqlHost) QueryRow(ctx context.Context, query string, args ...any) roomstore.Row {
	return h.db.QueryRowContext(ctx, query, args...)
}

func (h *sqlHost) BeginTx(ctx context.Context) (roomstore.HostTx, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &sqlHostTx{tx}, nil
}

type sqlHostTx struct {
	tx *sql.Tx
}

func (h *sqlHostTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := h.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return n, errors.WithStack(err)
}

func (h *sqlHostTx) Query(ctx context.Context, query string, args ...any) (roomstore.Rows, error) {
	rows, err := h.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return sqlRows{rows}, nil
}

func (h *sqlHostTx) QueryRow(ctx context.Context, query string, args ...any) roomstore.Row {
	return h.tx.QueryRowContext(ctx, query, args...)
}

func (h *sqlHostTx) Commit(ctx context.Context) error   { return errors.WithStack(h.tx.Commit()) }
func (h *sqlHostTx) Rollback(ctx context.Context) error { return errors.WithStack(h.tx.Rollback()) }

// sqlRows adapts *sql.Rows to roomstore.Rows; the two already share
// the same Scan/Next/Err/Close shape, this exists only so Close and
// Err return wrapped errors consistently with the pgx adapter.
type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Scan(dest ...any) error { return errors.WithStack(r.rows.Scan(dest...)) }
func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Err() error             { return errors.WithStack(r.rows.Err()) }
func (r sqlRows) Close() error           { return errors.WithStack(r.rows.Close()) }
