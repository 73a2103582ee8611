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

//go:build integration

package roomstore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomsync/roomstore/internal/roomstore"
	"github.com/roomsync/roomstore/internal/roomstoretest"
)

func doc(id string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"id": id, "text": "hello"})
	return b
}

func idOf(t *testing.T, state json.RawMessage) string {
	t.Helper()
	var v struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(state, &v))
	return v.ID
}

// mustTransact runs a mutation-shaped body (no result value) and fails
// the test on error, to cut the struct{}-returning boilerplate from
// tests that only care about the side effect.
func mustTransact(
	t *testing.T, store *roomstore.Store, source string, body func(ctx context.Context, txn *roomstore.Txn) error,
) roomstore.TransactResult[struct{}] {
	t.Helper()
	result, err := roomstore.Transact(context.Background(), store, source, func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		return struct{}{}, body(ctx, txn)
	})
	require.NoError(t, err)
	return result
}

// chaosPool wraps a HostPool so every transaction it opens has
// WithHostTxChaos applied, for exercising the rollback path of
// scenario S6 deterministically.
type chaosPool struct {
	roomstore.HostPool
	prob float32
}

func (p chaosPool) BeginTx(ctx context.Context) (roomstore.HostTx, error) {
	htx, err := p.HostPool.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return roomstore.WithHostTxChaos(htx, p.prob), nil
}

// TestRoundTripPutGetDelete covers scenario S1 of the store's
// lifecycle: a document written in one transaction is visible in the
// next, and a subsequent delete makes it unreadable.
func TestRoundTripPutGetDelete(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	_, err := roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		return struct{}{}, txn.SetDocument(ctx, "doc-1", doc("doc-1"))
	})
	require.NoError(t, err)

	result, err := roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) (*roomstore.Document, error) {
		return txn.GetDocument(ctx, "doc-1")
	})
	require.NoError(t, err)
	require.NotNil(t, result.Result)
	assert.False(t, result.DidChange, "a read-only transaction must not advance the clock")

	_, err = roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		return struct{}{}, txn.DeleteDocument(ctx, "doc-1")
	})
	require.NoError(t, err)

	afterDelete, err := roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) (*roomstore.Document, error) {
		return txn.GetDocument(ctx, "doc-1")
	})
	require.NoError(t, err)
	assert.Nil(t, afterDelete.Result)
}

// TestMultipleMutationsAdvanceClockOnce covers the invariant that a
// transaction with several mutating calls still advances documentClock
// exactly once.
func TestMultipleMutationsAdvanceClockOnce(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	before, err := roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)

	after, err := roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		if err := txn.SetDocument(ctx, "a", doc("a")); err != nil {
			return struct{}{}, err
		}
		if err := txn.SetDocument(ctx, "b", doc("b")); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, txn.DeleteDocument(ctx, "a")
	})
	require.NoError(t, err)
	assert.True(t, after.DidChange)
	assert.Equal(t, before.NewClock+1, after.NewClock)
}

// TestChangesSinceFromZeroWithNoPrunedHistoryHasNoWipeAll covers the
// ordinary catch-up path: with no tombstone history pruned, a client
// whose cursor is 0 gets just the PUT for the document written since,
// and no WIPE_ALL marker.
func TestChangesSinceFromZeroWithNoPrunedHistoryHasNoWipeAll(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	result, err := roomstore.Transact(ctx, store, "test", func(ctx context.Context, txn *roomstore.Txn) ([]roomstore.Change, error) {
		if err := txn.SetDocument(ctx, "c", doc("c")); err != nil {
			return nil, err
		}
		return txn.ChangesSince(ctx, 0)
	})
	require.NoError(t, err)
	require.Len(t, result.Result, 1)
	assert.Equal(t, roomstore.ChangePut, result.Result[0].Kind)
}

// TestSettingADocumentClearsAnyExistingTombstone covers Testable
// Property 3: documents and tombstones keep a disjoint keyspace, even
// after a delete-then-reset round trip on the same id.
func TestSettingADocumentClearsAnyExistingTombstone(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	mustTransact(t, store, "set", func(ctx context.Context, txn *roomstore.Txn) error {
		return txn.SetDocument(ctx, "dup", doc("dup"))
	})
	mustTransact(t, store, "delete", func(ctx context.Context, txn *roomstore.Txn) error {
		return txn.DeleteDocument(ctx, "dup")
	})
	mustTransact(t, store, "reset", func(ctx context.Context, txn *roomstore.Txn) error {
		return txn.SetDocument(ctx, "dup", doc("dup"))
	})

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	_, stillTombstoned := snap.Tombstones["dup"]
	assert.False(t, stillTombstoned, "re-setting a deleted id must clear its tombstone")
	require.Len(t, snap.Documents, 1)
	assert.Equal(t, "dup", idOf(t, snap.Documents[0].State))
}

// TestNoOpTransactionLeavesClockUnchangedAndFiresNoListener covers
// Testable Property 9: a transaction body that performs no mutation
// must not advance documentClock or publish a ChangeEvent.
func TestNoOpTransactionLeavesClockUnchangedAndFiresNoListener(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	before := mustTransact(t, store, "seed", func(ctx context.Context, txn *roomstore.Txn) error {
		return txn.SetDocument(ctx, "x", doc("x"))
	})

	var fired int
	unsubscribe := store.OnChange(func(roomstore.ChangeEvent) { fired++ })
	defer unsubscribe()

	after, err := roomstore.Transact(ctx, store, "noop", func(ctx context.Context, txn *roomstore.Txn) (*roomstore.Document, error) {
		return txn.GetDocument(ctx, "x")
	})
	require.NoError(t, err)

	assert.False(t, after.DidChange)
	assert.Equal(t, before.NewClock, after.NewClock)
	assert.Zero(t, fired, "a read-only transaction must not notify listeners")
}

// TestOnChangeFiresExactlyOnceAndUnsubscribeStopsFurtherDelivery covers
// spec §5's listener guarantee: exactly one ChangeEvent per
// clock-advancing commit, and none after unsubscribing.
func TestOnChangeFiresExactlyOnceAndUnsubscribeStopsFurtherDelivery(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	var events []roomstore.ChangeEvent
	unsubscribe := store.OnChange(func(ev roomstore.ChangeEvent) { events = append(events, ev) })

	first, err := roomstore.Transact(ctx, store, "one", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		return struct{}{}, txn.SetDocument(ctx, "y", doc("y"))
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first.NewClock, events[0].Clock)
	assert.Equal(t, fx.Room.Raw(), events[0].Room.Raw())
	assert.Equal(t, "one", events[0].Source)

	unsubscribe()

	_, err = roomstore.Transact(ctx, store, "two", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		return struct{}{}, txn.SetDocument(ctx, "z", doc("z"))
	})
	require.NoError(t, err)
	assert.Len(t, events, 1, "unsubscribe must stop further delivery")
}

// TestSnapshotRoundTrip covers Testable Property 7: constructing with a
// snapshot and immediately reading it back via Store.Snapshot
// reconstructs the same state.
func TestSnapshotRoundTrip(t *testing.T) {
	fx := roomstoretest.New(t)
	ctx := context.Background()

	snap := &roomstore.Snapshot{
		DocumentClock:                 5,
		TombstoneHistoryStartsAtClock: 2,
		Documents: []roomstore.SnapshotDocument{
			{State: doc("alpha"), LastChangedClock: 4},
			{State: doc("beta"), LastChangedClock: 5},
		},
		Tombstones: map[string]uint64{"gamma": 3},
		Schema:     json.RawMessage(`{"version":1}`),
	}
	require.NoError(t, roomstore.Seed(ctx, fx.Pool, fx.Room, roomstore.DialectPostgres, snap))

	store, err := roomstore.New(nil, fx.Pool, fx.Room, roomstore.DialectPostgres, *roomstore.DefaultConfig())
	require.NoError(t, err)

	got, err := store.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, snap.DocumentClock, got.DocumentClock)
	assert.Equal(t, snap.TombstoneHistoryStartsAtClock, got.TombstoneHistoryStartsAtClock)
	assert.Equal(t, snap.Tombstones, got.Tombstones)

	wantByID := map[string]roomstore.SnapshotDocument{}
	for _, d := range snap.Documents {
		wantByID[idOf(t, d.State)] = d
	}
	require.Len(t, got.Documents, len(wantByID))
	for _, d := range got.Documents {
		want, ok := wantByID[idOf(t, d.State)]
		require.True(t, ok)
		assert.JSONEq(t, string(want.State), string(d.State))
		assert.Equal(t, want.LastChangedClock, d.LastChangedClock)
	}
}

// TestSeedReplacesAnAlreadyInitializedRoomExactly covers Testable
// Property 8's "constructing with a snapshot replaces it exactly":
// re-seeding a populated room must not leave any of its prior state
// behind.
func TestSeedReplacesAnAlreadyInitializedRoomExactly(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	mustTransact(t, store, "seed", func(ctx context.Context, txn *roomstore.Txn) error {
		if err := txn.SetDocument(ctx, "stale", doc("stale")); err != nil {
			return err
		}
		return txn.DeleteDocument(ctx, "also-stale")
	})

	fresh := &roomstore.Snapshot{
		DocumentClock: 9,
		Documents:     []roomstore.SnapshotDocument{{State: doc("fresh"), LastChangedClock: 9}},
	}
	require.NoError(t, roomstore.Seed(ctx, fx.Pool, fx.Room, roomstore.DialectPostgres, fresh))

	got, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "fresh", idOf(t, got.Documents[0].State))
	assert.Equal(t, uint64(9), got.DocumentClock)
	assert.Empty(t, got.Tombstones)
}

// TestRollbackLeavesStoreUnchangedAndFiresNoListener covers scenario
// S6: a transaction whose body fails partway through must leave the
// store byte-identical to its pre-transaction state and must not
// publish a ChangeEvent. The failure is injected deterministically via
// WithHostTxChaos (at probability 1, every SQL call the transaction
// makes fails) rather than relying on a real driver error.
func TestRollbackLeavesStoreUnchangedAndFiresNoListener(t *testing.T) {
	fx := roomstoretest.New(t)
	store := fx.NewStore(t)
	ctx := context.Background()

	mustTransact(t, store, "seed", func(ctx context.Context, txn *roomstore.Txn) error {
		return txn.SetDocument(ctx, "keep", doc("keep"))
	})
	before, err := store.Snapshot(ctx)
	require.NoError(t, err)

	chaosStore, err := roomstore.New(nil, chaosPool{HostPool: fx.Pool, prob: 1}, fx.Room, roomstore.DialectPostgres, *roomstore.DefaultConfig())
	require.NoError(t, err)

	var fired int
	unsubscribe := chaosStore.OnChange(func(roomstore.ChangeEvent) { fired++ })
	defer unsubscribe()

	_, err = roomstore.Transact(ctx, chaosStore, "chaos", func(ctx context.Context, txn *roomstore.Txn) (struct{}, error) {
		if err := txn.SetDocument(ctx, "a", doc("a")); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, txn.SetDocument(ctx, "b", doc("b"))
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "roomstore: chaos")
	assert.Zero(t, fired, "a rolled-back transaction must not notify listeners")

	after, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestPrunerRespectsClockCohorts covers Testable Property 4 and
// scenario S5: once tombstones exceed MaxTombstones, the pruner trims
// down to whole clock cohorts only, and the new
// tombstoneHistoryStartsAtClock watermark equals the oldest retained
// tombstone's clock.
func TestPrunerRespectsClockCohorts(t *testing.T) {
	fx := roomstoretest.New(t)
	cfg := roomstore.Config{MaxTombstones: 4, PruneBuffer: 2, PruneDebounce: 20 * time.Millisecond}
	store, err := roomstore.New(fx.Context, fx.Pool, fx.Room, roomstore.DialectPostgres, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	// Three transactions, each setting then deleting a pair of
	// documents: every transaction's two deletes share one clock value,
	// producing three two-wide cohorts.
	for batch := 0; batch < 3; batch++ {
		a := fmt.Sprintf("b%d-a", batch)
		b := fmt.Sprintf("b%d-b", batch)
		mustTransact(t, store, "seed", func(ctx context.Context, txn *roomstore.Txn) error {
			if err := txn.SetDocument(ctx, a, doc(a)); err != nil {
				return err
			}
			return txn.SetDocument(ctx, b, doc(b))
		})
		mustTransact(t, store, "delete", func(ctx context.Context, txn *roomstore.Txn) error {
			if err := txn.DeleteDocument(ctx, a); err != nil {
				return err
			}
			return txn.DeleteDocument(ctx, b)
		})
	}

	var snap *roomstore.Snapshot
	require.Eventually(t, func() bool {
		got, err := store.Snapshot(ctx)
		if err != nil {
			return false
		}
		snap = got
		return len(snap.Tombstones) <= 2
	}, 2*time.Second, 20*time.Millisecond, "the pruner never trimmed the tombstone table")

	require.Len(t, snap.Tombstones, 2, "the pruner must retain a whole cohort, never split one")
	var retainedClock uint64
	for _, clock := range snap.Tombstones {
		retainedClock = clock
	}
	assert.Equal(t, retainedClock, snap.TombstoneHistoryStartsAtClock,
		"watermark must equal the oldest retained tombstone's clock")
}
