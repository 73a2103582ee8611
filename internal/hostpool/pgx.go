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

// Package hostpool creates standardized connection pools and adapts
// them to roomstore.HostPool, the same role internal/util/stdpool
// plays for cdc-sink's own target/staging pools.
package hostpool

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/roomsync/roomstore/internal/roomstore"
	"github.com/roomsync/roomstore/internal/util/stopper"
)

// OpenPostgres opens a pgxpool-backed connection pool and adapts it to
// roomstore.HostPool. The pool is closed automatically when sc stops.
func OpenPostgres(sc *stopper.Context, connString string) (roomstore.HostPool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "hostpool: parsing postgres connection string")
	}
	pool, err := pgxpool.NewWithConfig(sc, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "hostpool: opening postgres pool")
	}
	if err := pool.Ping(sc); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "hostpool: pinging postgres")
	}

	sc.Go(func() error {
		<-sc.Stopping()
		pool.Close()
		log.Trace("hostpool: postgres pool closed")
		return nil
	})

	return &pgxHost{pool}, nil
}

type pgxHost struct {
	pool *pgxpool.Pool
}

func (h *pgxHost) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := h.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return tag.RowsAffected(), nil
}

func (h *pgxHost) Query(ctx context.Context, query string, args ...any) (roomstore.Rows, error) {
	rows, err := h.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pgxRows{rows}, nil
}

func (h *pgxHost) QueryRow(ctx context.Context, query string, args ...any) roomstore.Row {
	return h.pool.QueryRow(ctx, query, args...)
}

func (h *pgxHost) BeginTx(ctx context.Context) (roomstore.HostTx, error) {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &pgxHostTx{tx}, nil
}

type pgxHostTx struct {
	tx pgx.Tx
}

func (h *pgxHostTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := h.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return tag.RowsAffected(), nil
}

func (h *pgxHostTx) Query(ctx context.Context, query string, args ...any) (roomstore.Rows, error) {
	rows, err := h.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pgxRows{rows}, nil
}

func (h *pgxHostTx) QueryRow(ctx context.Context, query string, args ...any) roomstore.Row {
	return h.tx.QueryRow(ctx, query, args...)
}

func (h *pgxHostTx) Commit(ctx context.Context) error {
	return errors.WithStack(h.tx.Commit(ctx))
}

func (h *pgxHostTx) Rollback(ctx context.Context) error {
	return errors.WithStack(h.tx.Rollback(ctx))
}

// pgxRows adapts pgx.Rows, whose Close takes no return value, to
// roomstore.Rows, whose Close does.
type pgxRows struct {
	rows pgx.Rows
}

func (r pgxRows) Scan(dest ...any) error { return errors.WithStack(r.rows.Scan(dest...)) }
func (r pgxRows) Next() bool             { return r.rows.Next() }
func (r pgxRows) Err() error             { return errors.WithStack(r.rows.Err()) }
func (r pgxRows) Close() error {
	r.rows.Close()
	return nil
}
