// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRejection(t *testing.T) {
	for _, s := range []string{Fail, FailBadMessage, FailUnauthorized, ErrorTransfer, ErrorFileMissing, ErrorDelete} {
		require.True(t, IsRejection(s), s)
	}
	for _, s := range []string{OK, Ready, Chunk, EOF, DownloadFile} {
		require.False(t, IsRejection(s), s)
	}
}

func TestListFits(t *testing.T) {
	require.True(t, ListFits(nil))
	require.True(t, ListFits([]string{"a", "b"}))
	require.False(t, ListFits(make([]string, MaxListEntries+1)))

	long := strings.Repeat("p", 4096)
	paths := make([]string, 0, MaxListLength/len(long)+1)
	for ListFits(append(paths, long)) {
		paths = append(paths, long)
	}
	require.False(t, ListFits(append(paths, long)))

	// The largest accepted listing still encodes well under a 1 MiB frame
	// and decodes back.
	b, err := New(OK, paths).ToBytes()
	require.NoError(t, err)
	require.Less(t, len(b), 1<<20)
	env, err := FromBytes(b)
	require.NoError(t, err)
	var got []string
	require.NoError(t, env.Field(0, &got))
	require.Len(t, got, len(paths))
}
