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
	"github.com/google/wire"
	"github.com/pkg/errors"

	"github.com/roomsync/roomstore/internal/hostpool"
	"github.com/roomsync/roomstore/internal/ident"
	"github.com/roomsync/roomstore/internal/util/stopper"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideConfig,
	ProvidePool,
	ProvideStore,
)

// ProvideConfig runs Preflight on the user-supplied Config before
// anything downstream consumes it, the same role ProvideBaseConfig
// plays for cdc-sink's per-dialect configs.
func ProvideConfig(cfg *Config) (*Config, error) {
	if err := cfg.Preflight(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvidePool opens whichever of Postgres or MySQL the Config names.
// Config.Preflight rejects a Config with both PostgresConn and
// MySQLConn set; if neither is set, ProvidePool returns an error.
func ProvidePool(sc *stopper.Context, cfg *Config) (HostPool, error) {
	switch {
	case cfg.PostgresConn != "":
		return hostpool.OpenPostgres(sc, cfg.PostgresConn)
	case cfg.MySQLConn != "":
		return hostpool.OpenMySQL(sc, cfg.MySQLConn)
	default:
		return nil, errors.New("roomstore: config names neither a postgres nor a mysql connection")
	}
}

// dialectFor reports which Dialect a Config's connection string
// implies, for use by providers that need it alongside a pool.
func dialectFor(cfg *Config) Dialect {
	if cfg.MySQLConn != "" {
		return DialectMySQL
	}
	return DialectPostgres
}

// ProvideStore opens a Store for one room over a pool already wired
// up by ProvidePool.
func ProvideStore(sc *stopper.Context, pool HostPool, room ident.Room, cfg *Config) (*Store, error) {
	return New(sc, pool, room, dialectFor(cfg), *cfg)
}
