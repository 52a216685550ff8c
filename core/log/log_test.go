// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBackendAndRotate(t *testing.T) {
	f := filepath.Join(t.TempDir(), "groupshare.log")
	b, err := New(f, "DEBUG", false)
	require.NoError(t, err)

	log := b.GetLogger("test")
	log.Noticef("hello %s", "world")

	raw, err := os.ReadFile(f)
	require.NoError(t, err)
	require.Contains(t, string(raw), "NOTI test: hello world")

	require.NoError(t, os.Rename(f, f+".1"))
	require.NoError(t, b.Rotate())
	log.Info("after rotate")

	raw, err = os.ReadFile(f)
	require.NoError(t, err)
	require.Contains(t, string(raw), "after rotate")
	require.NotContains(t, string(raw), "hello world")
}

func TestLevels(t *testing.T) {
	require.True(t, IsValidLevel("debug"))
	require.True(t, IsValidLevel("NOTICE"))
	require.False(t, IsValidLevel("LOUD"))

	_, err := New("", "LOUD", false)
	require.Error(t, err)

	b, err := New("", "ERROR", true)
	require.NoError(t, err)
	require.False(t, b.IsEnabledFor(4, "x"))
	b.GetGoLogger("gol", "ERROR").Print("discarded")
}
