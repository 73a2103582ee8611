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
	"time"

	"github.com/pkg/errors"

	"github.com/roomsync/roomstore/internal/ident"
	"github.com/roomsync/roomstore/internal/util/notify"
	"github.com/roomsync/roomstore/internal/util/stopper"
)

// Store is one collaborative sync room's document store: the schema,
// the clock, and the transactional access to both, bound to a single
// Host pool. A process may open many Stores, one per room, sharing a
// single underlying connection pool (spec §1, §3).
type Store struct {
	pool    HostPool
	room    ident.Room
	tables  tableNames
	dialect Dialect
	cfg     Config

	pruner *pruner
	bus    *notify.Bus[ChangeEvent]
}

// ChangeEvent is published on a Store's listener bus once per
// clock-advancing commit (spec §5, guarantee 2: "exactly once per
// clock-advancing transaction, never for a no-op transaction").
type ChangeEvent struct {
	// Room identifies which store published the event; useful when a
	// single process subscribes across many rooms.
	Room ident.Room
	// Clock is the new documentClock value after the commit.
	Clock uint64
	// Source is the caller-supplied label passed to Transact.
	Source string
}

// New opens a Store over an already-initialized room: it assumes
// createTablesIdempotent has already run (directly, or via Seed). Use
// HasBeenInitialized beforehand to decide whether a cold bootstrap is
// needed. sc, if non-nil, is used to run the store's background
// tombstone pruner; a nil sc disables background pruning, which is
// appropriate for short-lived tooling.
func New(sc *stopper.Context, pool HostPool, room ident.Room, dialect Dialect, cfg Config) (*Store, error) {
	if err := cfg.Preflight(); err != nil {
		return nil, err
	}
	s := &Store{
		pool:    pool,
		room:    room,
		tables:  tablesFor(room),
		dialect: dialect,
		cfg:     cfg,
		bus:     notify.NewBus[ChangeEvent](),
	}
	s.pruner = newPruner(s, cfg.PruneDebounce)
	if sc != nil {
		s.pruner.run(sc)
	}
	return s, nil
}

// Seed bootstraps or replaces a room from a Snapshot: it creates the
// four tables if they don't already exist, then unconditionally wipes
// and repopulates them from snap, per spec §3 ("if a snapshot is
// supplied, all four tables are wiped and repopulated from it") and
// Testable Property 8 ("constructing with a snapshot replaces it
// exactly"). Seed always clobbers an already-initialized room; callers
// that want bootstrap-if-absent semantics instead should check
// HasBeenInitialized themselves before deciding to call Seed at all.
func Seed(ctx context.Context, pool HostPool, room ident.Room, dialect Dialect, snap *Snapshot) error {
	if snap == nil {
		return ErrNoSnapshot
	}
	tables := tablesFor(room)
	if err := createTablesIdempotent(ctx, pool, tables, dialect); err != nil {
		return err
	}

	htx, err := pool.BeginTx(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := truncateAllTables(ctx, htx, tables); err != nil {
		_ = htx.Rollback(ctx)
		return err
	}
	if err := seedInto(ctx, htx, dialect, tables, snap); err != nil {
		_ = htx.Rollback(ctx)
		return err
	}
	return errors.WithStack(htx.Commit(ctx))
}

func seedInto(ctx context.Context, htx HostTx, dialect Dialect, tables tableNames, snap *Snapshot) error {
	for _, d := range snap.Documents {
		id, err := idFromState(d.State)
		if err != nil {
			return err
		}
		if _, err := htx.Exec(ctx, upsertDocumentQuery(dialect, tables.Documents),
			id, []byte(d.State), d.LastChangedClock); err != nil {
			return errors.WithStack(err)
		}
	}
	for id, clock := range snap.Tombstones {
		if _, err := htx.Exec(ctx, upsertTombstoneQuery(dialect, tables.Tombstones), id, clock); err != nil {
			return errors.WithStack(err)
		}
	}
	if snap.Schema != nil {
		if _, err := htx.Exec(ctx, upsertMetadataQuery(dialect, tables.Metadata),
			schemaKey, string(snap.Schema)); err != nil {
			return errors.WithStack(err)
		}
	}
	cs := clockState{
		documentClock:                 snap.DocumentClock,
		tombstoneHistoryStartsAtClock: snap.TombstoneHistoryStartsAtClock,
	}
	return insertClock(ctx, htx, dialect, tables.Clock, cs)
}

// Snapshot exports the room's entire current state in the same format
// Seed consumes, per spec §6's snapshot export. The export runs inside
// its own read-only transaction so it observes a single consistent
// clock value throughout.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	result, err := Transact(ctx, s, "snapshot", func(ctx context.Context, txn *Txn) (*Snapshot, error) {
		clock, err := txn.GetClock(ctx)
		if err != nil {
			return nil, err
		}
		watermark, err := txn.tombstoneHistoryStart(ctx)
		if err != nil {
			return nil, err
		}

		snap := &Snapshot{
			DocumentClock:                 clock,
			TombstoneHistoryStartsAtClock: watermark,
			Tombstones:                    map[string]uint64{},
		}

		docs, err := txn.Documents(ctx)
		if err != nil {
			return nil, err
		}
		defer docs.Close()
		for docs.Next() {
			_, doc := docs.Document()
			snap.Documents = append(snap.Documents, SnapshotDocument{
				State:            doc.State,
				LastChangedClock: doc.LastChangedClock,
			})
		}
		if err := docs.Err(); err != nil {
			return nil, err
		}

		tombs, err := txn.Tombstones(ctx)
		if err != nil {
			return nil, err
		}
		defer tombs.Close()
		for tombs.Next() {
			t := tombs.Tombstone()
			snap.Tombstones[t.ID] = t.Clock
		}
		if err := tombs.Err(); err != nil {
			return nil, err
		}

		schema, err := txn.GetMetadata(ctx, schemaKey)
		if err != nil {
			return nil, err
		}
		if schema != nil {
			snap.Schema = []byte(*schema)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// OnChange registers fn to be called synchronously, once per
// clock-advancing commit against this Store. The returned function
// removes the registration and is safe to call more than once.
func (s *Store) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// TransactResult is the outcome of a single Transact call.
type TransactResult[T any] struct {
	// NewClock is the documentClock as of commit: unchanged from the
	// value observed at the start if the body made no mutating call.
	NewClock uint64
	// DidChange reports whether any SetDocument/DeleteDocument call
	// occurred in body, i.e. whether the clock advanced.
	DidChange bool
	Result    T
}

// Transact runs body in a single atomic transaction against s and
// returns its result alongside the clock bookkeeping spec §4.C
// requires: at most one clock increment no matter how many mutating
// calls body makes, and a ChangeEvent published on the store's
// listener bus exactly once, and only if the clock actually advanced.
//
// Transact is a package-level function rather than a Store method
// because Go does not permit a generic method on a non-generic
// receiver type.
func Transact[T any](
	ctx context.Context, s *Store, source string, body func(ctx context.Context, txn *Txn) (T, error),
) (TransactResult[T], error) {
	start := time.Now()
	defer func() { transactDurations.WithLabelValues(source).Observe(time.Since(start).Seconds()) }()

	htx, err := s.pool.BeginTx(ctx)
	if err != nil {
		transactErrors.WithLabelValues(source).Inc()
		return TransactResult[T]{}, errors.WithStack(err)
	}

	txn := newTxn(ctx, s, htx)
	result, bodyErr := body(ctx, txn)
	if bodyErr != nil {
		_ = htx.Rollback(ctx)
		transactErrors.WithLabelValues(source).Inc()
		return TransactResult[T]{}, bodyErr
	}

	// Make sure the clock is known even if body never called GetClock
	// or performed a mutation, so NewClock always reflects reality.
	if err := txn.ensureClockLoaded(ctx); err != nil {
		_ = htx.Rollback(ctx)
		transactErrors.WithLabelValues(source).Inc()
		return TransactResult[T]{}, err
	}

	if err := htx.Commit(ctx); err != nil {
		transactErrors.WithLabelValues(source).Inc()
		return TransactResult[T]{}, errors.WithStack(err)
	}

	out := TransactResult[T]{
		NewClock:  txn.clock.documentClock,
		DidChange: txn.incremented,
		Result:    result,
	}
	transactTotal.WithLabelValues(source, fmt.Sprintf("%t", out.DidChange)).Inc()

	if out.DidChange {
		s.bus.Publish(ChangeEvent{Room: s.room, Clock: out.NewClock, Source: source})
	}
	return out, nil
}
