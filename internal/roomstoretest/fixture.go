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

// Package roomstoretest builds a self-contained test fixture against a
// live Postgres instance, mirroring the role of cdc-sink's
// internal/sinktest/base.Fixture: tests that need a real database ask
// this package for one instead of hand-rolling connection setup.
package roomstoretest

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roomsync/roomstore/internal/hostpool"
	"github.com/roomsync/roomstore/internal/ident"
	"github.com/roomsync/roomstore/internal/roomstore"
	"github.com/roomsync/roomstore/internal/util/stopper"
)

// DSNEnvVar names the environment variable that points at a live
// Postgres instance to run integration tests against. It is never set
// in ordinary unit-test runs, so tests that need it call Skip
// themselves via RequireLive.
const DSNEnvVar = "ROOMSTORE_TEST_POSTGRES_DSN"

// Fixture bundles everything an integration test needs: a stopper
// scope, an open pool, and a freshly seeded, uniquely-named room.
type Fixture struct {
	Context *stopper.Context
	Pool    roomstore.HostPool
	Room    ident.Room
}

// RequireLive skips t unless DSNEnvVar is set, and otherwise returns a
// DSN to connect with.
func RequireLive(t *testing.T) string {
	dsn := os.Getenv(DSNEnvVar)
	if dsn == "" {
		t.Skipf("set %s to a live postgres DSN to run this test", DSNEnvVar)
	}
	return dsn
}

// New opens a pool against the live database named by DSNEnvVar,
// bootstraps a uniquely named room with an empty snapshot, and
// registers cleanup to stop the pool when the test ends.
func New(t *testing.T) *Fixture {
	dsn := RequireLive(t)
	sc := stopper.New(context.Background())
	t.Cleanup(sc.Stop)

	pool, err := hostpool.OpenPostgres(sc, dsn)
	require.NoError(t, err)

	room, err := ident.NewRoom(fmt.Sprintf("test_%s_%d", uuid.New().String()[:8], rand.Intn(1_000_000)))
	require.NoError(t, err)

	empty := &roomstore.Snapshot{}
	require.NoError(t, roomstore.Seed(sc, pool, room, roomstore.DialectPostgres, empty))

	return &Fixture{Context: sc, Pool: pool, Room: room}
}

// NewStore opens a Store over the fixture's room, with background
// pruning enabled.
func (f *Fixture) NewStore(t *testing.T) *roomstore.Store {
	s, err := roomstore.New(f.Context, f.Pool, f.Room, roomstore.DialectPostgres, *roomstore.DefaultConfig())
	require.NoError(t, err)
	return s
}
