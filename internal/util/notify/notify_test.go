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

package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarGetSet(t *testing.T) {
	v := NewVar(1)
	val, ch := v.Get()
	assert.Equal(t, 1, val)

	select {
	case <-ch:
		t.Fatal("channel should not be closed yet")
	default:
	}

	v.Set(2)
	select {
	case <-ch:
	default:
		t.Fatal("channel should have been closed by Set")
	}

	val, ch2 := v.Get()
	assert.Equal(t, 2, val)
	assert.NotEqual(t, ch, ch2)
}

func TestBusPublishInRegistrationOrder(t *testing.T) {
	bus := NewBus[int]()
	var order []int
	bus.Subscribe(func(v int) { order = append(order, v*10+1) })
	bus.Subscribe(func(v int) { order = append(order, v*10+2) })

	bus.Publish(5)
	assert.Equal(t, []int{51, 52}, order)
}

func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus[int]()
	var calls int
	unsub := bus.Subscribe(func(int) { calls++ })

	bus.Publish(1)
	require.Equal(t, 1, calls)

	unsub()
	unsub() // must not panic or double-remove anything

	bus.Publish(2)
	assert.Equal(t, 1, calls, "no further delivery after unsubscribe")
}

func TestBusUnsubscribeDuringPublishDoesNotAffectInFlightDelivery(t *testing.T) {
	bus := NewBus[int]()
	var secondCalled bool
	var unsub func()
	unsub = bus.Subscribe(func(int) { unsub() })
	bus.Subscribe(func(int) { secondCalled = true })

	bus.Publish(1)
	assert.True(t, secondCalled, "unsubscribing mid-publish must not skip later listeners")

	secondCalled = false
	bus.Publish(2)
	assert.True(t, secondCalled, "second listener should still be registered for a later publish")
}
