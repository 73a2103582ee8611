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
	"math/rand"

	"github.com/pkg/errors"
)

// ErrChaos is the error injected by WithChaos.
var ErrChaos = errors.New("roomstore: chaos")

// WithChaos returns a Host wrapper that randomly fails calls with
// probability prob, for exercising the rollback path of Transact
// under test. delegate is returned unwrapped if prob <= 0.
func WithChaos(delegate Host, prob float32) Host {
	if prob <= 0 {
		return delegate
	}
	return &chaosHost{delegate: delegate, prob: prob}
}

// This intentionally carries no *rand.Rand: once this wraps a Host
// used from multiple goroutines there is no hope of repeatable
// behavior anyway.
type chaosHost struct {
	delegate Host
	prob     float32
}

func (h *chaosHost) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if rand.Float32() < h.prob {
		return 0, errors.Wrap(ErrChaos, "Exec")
	}
	return h.delegate.Exec(ctx, query, args...)
}

func (h *chaosHost) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if rand.Float32() < h.prob {
		return nil, errors.Wrap(ErrChaos, "Query")
	}
	return h.delegate.Query(ctx, query, args...)
}

func (h *chaosHost) QueryRow(ctx context.Context, query string, args ...any) Row {
	if rand.Float32() < h.prob {
		return chaosRow{}
	}
	return h.delegate.QueryRow(ctx, query, args...)
}

// chaosRow is returned by QueryRow when chaos strikes, so the error is
// surfaced through the usual Scan path rather than a nil dereference.
type chaosRow struct{}

func (chaosRow) Scan(dest ...any) error {
	return errors.Wrap(ErrChaos, "QueryRow")
}

// WithHostTxChaos wraps a HostTx the same way WithChaos wraps a Host,
// additionally injecting failures into Commit.
func WithHostTxChaos(delegate HostTx, prob float32) HostTx {
	if prob <= 0 {
		return delegate
	}
	return &chaosHostTx{
		chaosHost: chaosHost{delegate: delegate, prob: prob},
		delegate:  delegate,
		prob:      prob,
	}
}

type chaosHostTx struct {
	chaosHost
	delegate HostTx
	prob     float32
}

func (h *chaosHostTx) Commit(ctx context.Context) error {
	if rand.Float32() < h.prob {
		return errors.Wrap(ErrChaos, "Commit")
	}
	return h.delegate.Commit(ctx)
}

func (h *chaosHostTx) Rollback(ctx context.Context) error {
	return h.delegate.Rollback(ctx)
}
