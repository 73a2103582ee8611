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

package ident_test

import (
	"testing"

	"github.com/roomsync/roomstore/internal/ident"
	"github.com/stretchr/testify/require"
)

func TestNewRoom(t *testing.T) {
	r, err := ident.NewRoom("Room_42")
	require.NoError(t, err)
	require.Equal(t, "room_42", r.Raw())
	require.Equal(t, "room_room_42_documents", r.Table("documents"))
}

func TestNewRoomRejectsBadSlugs(t *testing.T) {
	for _, bad := range []string{"", "1abc", "has space", "has-dash", "has.dot"} {
		_, err := ident.NewRoom(bad)
		require.Errorf(t, err, "expected %q to be rejected", bad)
	}
}

func TestNewRandomRoomIsValidAndUnique(t *testing.T) {
	a := ident.NewRandomRoom()
	b := ident.NewRandomRoom()
	require.NotEqual(t, a.Raw(), b.Raw())

	reparsed, err := ident.NewRoom(a.Raw())
	require.NoError(t, err)
	require.Equal(t, a.Raw(), reparsed.Raw())
}
