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
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Txn is the handle a transaction body operates on (spec §4.C). Every
// method hits SQL immediately within the enclosing atomic scope; there
// is no write buffering, so reads within the same Txn always observe
// its own prior writes (read-your-writes, spec §5 ordering guarantee
// 1).
type Txn struct {
	ctx   context.Context
	store *Store
	htx   HostTx

	clockLoaded bool
	clock       clockState
	incremented bool
}

func newTxn(ctx context.Context, store *Store, htx HostTx) *Txn {
	return &Txn{ctx: ctx, store: store, htx: htx}
}

func (t *Txn) ensureClockLoaded(ctx context.Context) error {
	if t.clockLoaded {
		return nil
	}
	cs, err := readClock(ctx, t.htx, t.store.dialect, t.store.tables.Clock)
	if err != nil {
		return err
	}
	t.clock = cs
	t.clockLoaded = true
	return nil
}

// GetClock returns the clock as observed within this transaction: the
// value at the start of the transaction, or the advanced value if a
// mutation has already occurred in it.
func (t *Txn) GetClock(ctx context.Context) (uint64, error) {
	if err := t.ensureClockLoaded(ctx); err != nil {
		return 0, err
	}
	return t.clock.documentClock, nil
}

// tombstoneHistoryStart returns the tombstoneHistoryStartsAtClock
// watermark as observed within this transaction.
func (t *Txn) tombstoneHistoryStart(ctx context.Context) (uint64, error) {
	if err := t.ensureClockLoaded(ctx); err != nil {
		return 0, err
	}
	return t.clock.tombstoneHistoryStartsAtClock, nil
}

// advanceClockOnce bumps documentClock by one the first time it is
// called within a transaction, and returns the (possibly already
// advanced) clock on every subsequent call — spec §4.B/§4.C: "at most
// one increment of documentClock occurs regardless of how many
// mutations are performed."
func (t *Txn) advanceClockOnce(ctx context.Context) (uint64, error) {
	if err := t.ensureClockLoaded(ctx); err != nil {
		return 0, err
	}
	if t.incremented {
		return t.clock.documentClock, nil
	}
	next := t.clock
	next.documentClock++
	if err := writeClock(ctx, t.htx, t.store.dialect, t.store.tables.Clock, next); err != nil {
		return 0, err
	}
	t.clock = next
	t.incremented = true
	return t.clock.documentClock, nil
}

// setTombstoneHistoryStart overwrites the watermark without touching
// documentClock. Used only by the tombstone pruner.
func (t *Txn) setTombstoneHistoryStart(ctx context.Context, watermark uint64) error {
	if err := t.ensureClockLoaded(ctx); err != nil {
		return err
	}
	next := t.clock
	next.tombstoneHistoryStartsAtClock = watermark
	if err := writeClock(ctx, t.htx, t.store.dialect, t.store.tables.Clock, next); err != nil {
		return err
	}
	t.clock = next
	return nil
}

// GetDocument returns the document with the given id, or (nil, nil) if
// no such document exists (documents and tombstones share a disjoint
// keyspace, so at most one of GetDocument/the tombstone scan can find
// a given id).
func (t *Txn) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	row := t.htx.QueryRow(ctx, getDocumentQuery(t.store.dialect, t.store.tables.Documents), id)
	switch err := row.Scan(&doc.State, &doc.LastChangedClock); {
	case err == nil:
		return &doc, nil
	case isNoRows(err):
		return nil, nil
	default:
		return nil, errors.WithStack(err)
	}
}

// SetDocument upserts a document's state. The first call to
// SetDocument or DeleteDocument within a transaction advances the
// clock once; that advanced value becomes the document's
// lastChangedClock. Any existing tombstone for id is removed, since
// documents and tombstones keep a disjoint keyspace (invariant 2).
func (t *Txn) SetDocument(ctx context.Context, id string, state json.RawMessage) error {
	clock, err := t.advanceClockOnce(ctx)
	if err != nil {
		return err
	}
	if _, err := t.htx.Exec(ctx, upsertDocumentQuery(t.store.dialect, t.store.tables.Documents),
		id, []byte(state), clock); err != nil {
		return errors.WithStack(err)
	}
	if _, err := t.htx.Exec(ctx, deleteTombstoneQuery(t.store.dialect, t.store.tables.Tombstones), id); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// DeleteDocument removes a document (if present) and records a
// tombstone at the transaction's (possibly newly advanced) clock.
// Calling DeleteDocument for an id with no live document still writes
// a tombstone at the new clock, matching spec §4.C. Deletion schedules
// a debounced tombstone prune.
func (t *Txn) DeleteDocument(ctx context.Context, id string) error {
	clock, err := t.advanceClockOnce(ctx)
	if err != nil {
		return err
	}
	if _, err := t.htx.Exec(ctx, deleteDocumentQuery(t.store.dialect, t.store.tables.Documents), id); err != nil {
		return errors.WithStack(err)
	}
	if _, err := t.htx.Exec(ctx, upsertTombstoneQuery(t.store.dialect, t.store.tables.Tombstones), id, clock); err != nil {
		return errors.WithStack(err)
	}
	t.store.pruner.Schedule()
	return nil
}

// deleteTombstoneRow removes one tombstone row outright, without
// advancing the clock. Used only by the pruner, which trims history
// rather than mutating documents.
func (t *Txn) deleteTombstoneRow(ctx context.Context, id string) error {
	_, err := t.htx.Exec(ctx, deleteTombstoneQuery(t.store.dialect, t.store.tables.Tombstones), id)
	return errors.WithStack(err)
}

// GetMetadata returns the value for key, or (nil, nil) if unset.
func (t *Txn) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	row := t.htx.QueryRow(ctx, getMetadataQuery(t.store.dialect, t.store.tables.Metadata), key)
	switch err := row.Scan(&value); {
	case err == nil:
		return &value, nil
	case isNoRows(err):
		return nil, nil
	default:
		return nil, errors.WithStack(err)
	}
}

// SetMetadata upserts an application- or core-reserved (spec §6:
// "schema") key. It has no effect on the clock.
func (t *Txn) SetMetadata(ctx context.Context, key, value string) error {
	_, err := t.htx.Exec(ctx, upsertMetadataQuery(t.store.dialect, t.store.tables.Metadata), key, value)
	return errors.WithStack(err)
}

const selectAllDocumentsTemplate = `SELECT id, state, last_changed_clock FROM %s`

// DocumentCursor iterates over every row of the documents table.
// Iteration order is unspecified; a cursor is single-use (spec §4.C:
// "restartable only by re-invoking").
type DocumentCursor struct {
	rows Rows
	id   string
	doc  Document
	err  error
}

// Next advances the cursor. It returns false once rows are exhausted
// or an error occurred; check Err afterward to tell the two apart.
func (c *DocumentCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	if err := c.rows.Scan(&c.id, &c.doc.State, &c.doc.LastChangedClock); err != nil {
		c.err = err
		return false
	}
	return true
}

// Document returns the current row. Valid only after a Next call that
// returned true.
func (c *DocumentCursor) Document() (id string, doc Document) { return c.id, c.doc }

// Err returns the first error encountered, if any.
func (c *DocumentCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor's resources. Safe to call after Err.
func (c *DocumentCursor) Close() error { return c.rows.Close() }

// Documents returns a cursor over every row of the documents table.
func (t *Txn) Documents(ctx context.Context) (*DocumentCursor, error) {
	rows, err := t.htx.Query(ctx, fmt.Sprintf(selectAllDocumentsTemplate, t.store.tables.Documents))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &DocumentCursor{rows: rows}, nil
}

const selectAllDocumentIDsTemplate = `SELECT id FROM %s`

// IDCursor iterates over a column of ids.
type IDCursor struct {
	rows Rows
	id   string
	err  error
}

// Next advances the cursor.
func (c *IDCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	if err := c.rows.Scan(&c.id); err != nil {
		c.err = err
		return false
	}
	return true
}

// ID returns the current row's id.
func (c *IDCursor) ID() string { return c.id }

// Err returns the first error encountered, if any.
func (c *IDCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor's resources.
func (c *IDCursor) Close() error { return c.rows.Close() }

// DocumentIDs returns a cursor over every id in the documents table.
func (t *Txn) DocumentIDs(ctx context.Context) (*IDCursor, error) {
	rows, err := t.htx.Query(ctx, fmt.Sprintf(selectAllDocumentIDsTemplate, t.store.tables.Documents))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &IDCursor{rows: rows}, nil
}

const selectAllTombstonesTemplate = `SELECT id, clock FROM %s`

// TombstoneCursor iterates over every row of the tombstones table.
type TombstoneCursor struct {
	rows Rows
	ts   Tombstone
	err  error
}

// Next advances the cursor.
func (c *TombstoneCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	if err := c.rows.Scan(&c.ts.ID, &c.ts.Clock); err != nil {
		c.err = err
		return false
	}
	return true
}

// Tombstone returns the current row.
func (c *TombstoneCursor) Tombstone() Tombstone { return c.ts }

// Err returns the first error encountered, if any.
func (c *TombstoneCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor's resources.
func (c *TombstoneCursor) Close() error { return c.rows.Close() }

// Tombstones returns a cursor over every row of the tombstones table.
func (t *Txn) Tombstones(ctx context.Context) (*TombstoneCursor, error) {
	rows, err := t.htx.Query(ctx, fmt.Sprintf(selectAllTombstonesTemplate, t.store.tables.Tombstones))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &TombstoneCursor{rows: rows}, nil
}

// decideChangesSince implements the pure decision logic of spec
// §4.C's getChangesSince algorithm, split out from the SQL-touching
// parts so it can be unit tested without a database: given the
// caller's cursor and the transaction's current clock and tombstone
// watermark, it decides whether the result is trivially empty, and
// whether a WIPE_ALL marker is required because either the cursor is
// impossible (ahead of the current clock) or it names a point whose
// tombstone history has already been pruned away.
//
// effectiveSince is the cursor value the PUT/DELETE queries should
// use; it is -1 whenever wipeAll is true, since -1 compares less than
// every non-negative clock and so selects every row still on hand.
func decideChangesSince(sinceClock int64, clock, tombstoneHistoryStart uint64) (empty, wipeAll bool, effectiveSince int64) {
	if sinceClock == int64(clock) {
		return true, false, sinceClock
	}
	if sinceClock > int64(clock) || sinceClock < int64(tombstoneHistoryStart) {
		return false, true, -1
	}
	return false, false, sinceClock
}

// ChangesSince computes the incremental change feed for a client whose
// last-seen clock is sinceClock, per spec §4.C. sinceClock is signed
// so that callers (and this package internally) can represent "no
// prior cursor" as a negative value; in practice external callers pass
// 0 for a brand-new client and their last-observed clock otherwise.
func (t *Txn) ChangesSince(ctx context.Context, sinceClock int64) ([]Change, error) {
	clock, err := t.GetClock(ctx)
	if err != nil {
		return nil, err
	}
	watermark, err := t.tombstoneHistoryStart(ctx)
	if err != nil {
		return nil, err
	}

	if sinceClock > int64(clock) {
		log.WithFields(log.Fields{
			"sinceClock": sinceClock,
			"clock":      clock,
		}).Warn("roomstore: getChangesSince cursor is ahead of the current clock; resetting")
	}

	empty, wipeAll, effectiveSince := decideChangesSince(sinceClock, clock, watermark)
	if empty {
		return nil, nil
	}

	var changes []Change
	if wipeAll {
		changes = append(changes, Change{Kind: ChangeWipeAll})
	}

	docRows, err := t.htx.Query(ctx,
		selectChangedDocumentsQuery(t.store.dialect, t.store.tables.Documents), effectiveSince)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var state json.RawMessage
		if err := docRows.Scan(&state); err != nil {
			return nil, errors.WithStack(err)
		}
		changes = append(changes, Change{Kind: ChangePut, State: state})
	}
	if err := docRows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	tombRows, err := t.htx.Query(ctx,
		selectDeletedTombstonesQuery(t.store.dialect, t.store.tables.Tombstones), effectiveSince)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer tombRows.Close()
	for tombRows.Next() {
		var id string
		if err := tombRows.Scan(&id); err != nil {
			return nil, errors.WithStack(err)
		}
		changes = append(changes, Change{Kind: ChangeDelete, ID: id})
	}
	if err := tombRows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return changes, nil
}
