// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package groupcipher

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func encrypt(t *testing.T, key, iv, pt []byte, chunk int) []byte {
	var ct bytes.Buffer
	w, err := NewWriter(&ct, key, iv)
	require.NoError(t, err)
	for off := 0; off < len(pt); off += chunk {
		end := off + chunk
		if end > len(pt) {
			end = len(pt)
		}
		n, err := w.Write(pt[off:end])
		require.NoError(t, err)
		require.Equal(t, end-off, n)
	}
	require.NoError(t, w.Close())
	return ct.Bytes()
}

func TestRoundTrip(t *testing.T) {
	key, iv, err := NewKey()
	require.NoError(t, err)

	for _, size := range []int{0, 1, 15, 16, 17, 4096, 10000} {
		pt := make([]byte, size)
		_, err := rand.Read(pt)
		require.NoError(t, err)

		for _, chunk := range []int{1, 7, 4096} {
			ct := encrypt(t, key, iv, pt, chunk)
			require.Equal(t, (size/16+1)*16, len(ct))

			r, err := NewReader(iotest.OneByteReader(bytes.NewReader(ct)), key, iv)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, pt, got)

			r, err = NewReader(bytes.NewReader(ct), key, iv)
			require.NoError(t, err)
			got, err = io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, pt, got)
		}
	}
}

func TestWrongKey(t *testing.T) {
	key, iv, err := NewKey()
	require.NoError(t, err)
	otherKey, _, err := NewKey()
	require.NoError(t, err)

	pt := bytes.Repeat([]byte("confidential "), 100)
	ct := encrypt(t, key, iv, pt, 100)
	require.False(t, bytes.Contains(ct, []byte("confidential")))

	r, err := NewReader(bytes.NewReader(ct), otherKey, iv)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	if err == nil {
		require.NotEqual(t, pt, got)
	}
}

func TestTruncated(t *testing.T) {
	key, iv, err := NewKey()
	require.NoError(t, err)
	ct := encrypt(t, key, iv, []byte("hello world"), 4)

	r, err := NewReader(bytes.NewReader(ct[:len(ct)-3]), key, iv)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrTruncated)

	r, err = NewReader(bytes.NewReader(nil), key, iv)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestInvalidParameters(t *testing.T) {
	_, err := NewWriter(io.Discard, make([]byte, 16), make([]byte, IVSize))
	require.Error(t, err)
	_, err = NewReader(bytes.NewReader(nil), make([]byte, KeySize), make([]byte, 4))
	require.Error(t, err)

	w, err := NewWriter(io.Discard, make([]byte, KeySize), make([]byte, IVSize))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = w.Write([]byte{1})
	require.ErrorIs(t, err, ErrClosed)
}
