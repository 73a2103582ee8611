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
	"time"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config contains the user-visible, per-process tuning knobs for the
// store. It mirrors internal/source/server/config.go's Config: a
// plain struct with a Bind method for wiring up flags and a Preflight
// method for validating (and defaulting) the result.
type Config struct {
	// MaxTombstones is the soft upper bound on tombstone rows before
	// the pruner trims the oldest tombstones (spec §4.D MAX_TOMBSTONES).
	MaxTombstones int

	// PruneBuffer is the minimum number of most-recent tombstones the
	// pruner always retains (spec §4.D PRUNE_BUFFER).
	PruneBuffer int

	// PruneDebounce is the trailing-edge debounce window applied to
	// scheduled prune runs (spec §4.D, §9).
	PruneDebounce time.Duration

	// PostgresConn and MySQLConn are connection strings consumed by
	// internal/hostpool; exactly one is expected to be set for a given
	// deployment.
	PostgresConn string
	MySQLConn    string
}

// DefaultConfig returns the configuration spec.md assumes throughout:
// MAX_TOMBSTONES = 5000, PRUNE_BUFFER = 1000, a one-second trailing
// debounce.
func DefaultConfig() *Config {
	return &Config{
		MaxTombstones: 5000,
		PruneBuffer:   1000,
		PruneDebounce: time.Second,
	}
}

// Bind registers flags for every tunable field, matching
// internal/source/server/config.go's Config.Bind.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.IntVar(&c.MaxTombstones, "roomstore.maxTombstones", 5000,
		"soft upper bound on tombstone rows per room before pruning")
	flags.IntVar(&c.PruneBuffer, "roomstore.pruneBuffer", 1000,
		"minimum number of most-recent tombstones always retained")
	flags.DurationVar(&c.PruneDebounce, "roomstore.pruneDebounce", time.Second,
		"trailing-edge debounce window for scheduled tombstone pruning")
	flags.StringVar(&c.PostgresConn, "roomstore.postgresConn", "",
		"connection string for a Postgres-backed room host")
	flags.StringVar(&c.MySQLConn, "roomstore.mysqlConn", "",
		"connection string for a MySQL-backed room host")
}

// Preflight fills in any zero-valued fields from DefaultConfig and
// validates the result, matching the fill-then-validate shape of
// internal/source/server/config.go's Config.Preflight.
func (c *Config) Preflight() error {
	merged := DefaultConfig()
	if err := mergo.Merge(merged, c, mergo.WithOverride); err != nil {
		return errors.WithStack(err)
	}
	*c = *merged

	if c.MaxTombstones <= 0 {
		return errors.New("roomstore.maxTombstones must be positive")
	}
	if c.PruneBuffer <= 0 {
		return errors.New("roomstore.pruneBuffer must be positive")
	}
	if c.PruneBuffer > c.MaxTombstones {
		return errors.New("roomstore.pruneBuffer must not exceed roomstore.maxTombstones")
	}
	if c.PruneDebounce <= 0 {
		return errors.New("roomstore.pruneDebounce must be positive")
	}
	if c.PostgresConn != "" && c.MySQLConn != "" {
		return errors.New("only one of roomstore.postgresConn or roomstore.mysqlConn may be set")
	}
	return nil
}
