// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeFields(t *testing.T) {
	e := New(UploadFile, "/docs/a.txt", nil, []byte{1, 2, 3}, uint64(42), []string{"ADMIN", "dev"})
	e.Seq = 7

	raw, err := e.ToBytes()
	require.NoError(t, err)

	d, err := FromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, UploadFile, d.Verb)
	require.Equal(t, uint64(7), d.Seq)
	require.Equal(t, 5, d.Len())

	require.Equal(t, "/docs/a.txt", d.String(0))
	require.True(t, d.IsNull(1))
	require.ErrorIs(t, d.Field(1, new(string)), ErrMissingField)
	require.Equal(t, []byte{1, 2, 3}, d.Bytes(2))

	var n uint64
	require.NoError(t, d.Field(3, &n))
	require.Equal(t, uint64(42), n)

	var groups []string
	require.NoError(t, d.Field(4, &groups))
	require.Equal(t, []string{"ADMIN", "dev"}, groups)

	require.True(t, d.IsNull(5))
	require.ErrorIs(t, d.Field(0, &n), ErrMalformedField)

	again, err := d.ToBytes()
	require.NoError(t, err)
	require.Equal(t, raw, again)
}

func TestEnvelopeMalformed(t *testing.T) {
	_, err := FromBytes([]byte{0xff, 0x00})
	require.ErrorIs(t, err, ErrMalformedEnvelope)

	raw, err := (&Envelope{}).ToBytes()
	require.NoError(t, err)
	_, err = FromBytes(raw)
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}
