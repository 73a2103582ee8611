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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/roomsync/roomstore/internal/util/msort"
	"github.com/roomsync/roomstore/internal/util/stopper"
)

// pruner implements the debounced, trailing-edge tombstone sweep of
// spec §4.D: a delete Schedules a run, and a burst of deletes within
// the debounce window collapses into a single prune transaction,
// mirroring the backupTimer idiom of the resolver loop (a timer is
// preferred to time.AfterFunc so the goroutine count stays fixed).
type pruner struct {
	store    *Store
	debounce time.Duration
	wake     chan struct{}
}

func newPruner(store *Store, debounce time.Duration) *pruner {
	return &pruner{
		store:    store,
		debounce: debounce,
		// Buffered by one: Schedule never blocks, and a pending wakeup
		// that hasn't yet been drained by loop already implies a run is
		// coming, so further Schedule calls need not queue anything.
		wake: make(chan struct{}, 1),
	}
}

// Schedule requests a prune run after the debounce window. Calling it
// repeatedly before the window elapses only delays the run; it never
// causes more than one pending run.
func (p *pruner) Schedule() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run starts the pruner's background loop and registers it with sc so
// that it is waited on during shutdown.
func (p *pruner) run(sc *stopper.Context) {
	sc.Go(func() error {
		p.loop(sc)
		return nil
	})
}

func (p *pruner) loop(sc *stopper.Context) {
	timer := time.NewTimer(p.debounce)
	defer timer.Stop()
	// The timer starts running immediately above but nothing has been
	// scheduled yet; stop and drain it so the first real Schedule call
	// is the one that starts the debounce window.
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-p.wake:
			timer.Stop()
			select {
			case <-timer.C:
			default:
			}
			timer.Reset(p.debounce)
		case <-timer.C:
			if err := p.pruneOnce(sc); err != nil {
				log.WithError(err).Warn("roomstore: tombstone prune run failed")
			}
		case <-sc.Stopping():
			return
		}
	}
}

// pruneOnce runs exactly one prune pass: once rows exceed
// MaxTombstones, it keeps the newest PruneBuffer tombstones (extended
// to the end of their clock cohort, so no cohort is split) and drops
// every older tombstone.
func (p *pruner) pruneOnce(ctx context.Context) error {
	start := time.Now()
	pruneRuns.Inc()
	defer func() { pruneDurations.Observe(time.Since(start).Seconds()) }()

	_, err := Transact(ctx, p.store, "pruner", func(ctx context.Context, txn *Txn) (struct{}, error) {
		cur, err := txn.Tombstones(ctx)
		if err != nil {
			return struct{}{}, err
		}
		defer cur.Close()

		var all []Tombstone
		for cur.Next() {
			all = append(all, cur.Tombstone())
		}
		if err := cur.Err(); err != nil {
			return struct{}{}, err
		}

		cfg := p.store.cfg
		if len(all) <= cfg.MaxTombstones {
			return struct{}{}, nil
		}

		msort.SortDescByClock(all, func(t Tombstone) uint64 { return t.Clock })
		keep := msort.CohortBoundary(all, cfg.PruneBuffer, func(t Tombstone) uint64 { return t.Clock })
		if keep >= len(all) {
			return struct{}{}, nil
		}

		dropped := all[keep:]
		// The new watermark is the oldest retained tombstone's clock
		// (spec §4.D step 5, scenario S5), not an offset from the
		// dropped cohort: the two only coincide when clocks happen to
		// be consecutive integers, which general operation does not
		// guarantee. If nothing is retained, fall back to the current
		// clock, meaning no tombstone history is retained at all.
		var watermark uint64
		if keep > 0 {
			watermark = all[keep-1].Clock
		} else {
			watermark, err = txn.GetClock(ctx)
			if err != nil {
				return struct{}{}, err
			}
		}
		for _, t := range dropped {
			if err := txn.deleteTombstoneRow(ctx, t.ID); err != nil {
				return struct{}{}, err
			}
		}
		if err := txn.setTombstoneHistoryStart(ctx, watermark); err != nil {
			return struct{}{}, err
		}
		pruneTombstonesDropped.Add(float64(len(dropped)))
		return struct{}{}, nil
	})
	return err
}
