// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/groupshare/common"
)

func TestSessionAudience(t *testing.T) {
	s := &session{g: &globalFlags{storageAddr: "127.0.0.1:4321"}}
	require.Equal(t, "FilePile4321", s.audience())

	s.g.audience = "Elsewhere"
	require.Equal(t, "Elsewhere", s.audience())
}

func TestSessionFlags(t *testing.T) {
	_, err := newSession(&globalFlags{logLevel: "ERROR"})
	require.ErrorIs(t, err, common.ErrUsage)

	_, err = newSession(&globalFlags{user: "alice", logLevel: "LOUD"})
	require.ErrorIs(t, err, common.ErrUsage)

	s, err := newSession(&globalFlags{user: "alice", logLevel: "ERROR", password: "pw"})
	require.NoError(t, err)
	pw, err := s.readPassword()
	require.NoError(t, err)
	require.Equal(t, "pw", pw)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	for _, path := range [][]string{
		{"token"},
		{"user", "create"},
		{"group", "members"},
		{"files", "download"},
	} {
		c, _, err := cmd.Find(path)
		require.NoError(t, err)
		require.Equal(t, path[len(path)-1], c.Name())
	}
}
