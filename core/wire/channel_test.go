// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/groupshare/core/wire/commands"
)

func newTestChannel(t *testing.T, seq uint64) *SymmetricChannel {
	sk := make([]byte, SessionKeySize)
	mk := make([]byte, MACKeySize)
	iv := make([]byte, IVSize)
	for _, b := range [][]byte{sk, mk, iv} {
		_, err := rand.Read(b)
		require.NoError(t, err)
	}
	c, err := NewSymmetricChannel(sk, mk, iv, seq)
	require.NoError(t, err)
	return c
}

func TestChannelRoundTrip(t *testing.T) {
	c := newTestChannel(t, 100)

	for _, env := range []*commands.Envelope{
		commands.New(commands.OK),
		commands.New(commands.Chunk, bytes.Repeat([]byte{0x5a}, commands.MaxChunkLength), uint64(commands.MaxChunkLength)),
		commands.New(commands.UploadFile, "/x", "g", nil, []byte{1}, []string{"a", "b"}),
	} {
		c.Advance()
		env.Seq = c.Seq()

		ct, err := c.Encrypt(env)
		require.NoError(t, err)
		require.Zero(t, len(ct)%IVSize)

		got, err := c.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, env.Verb, got.Verb)
		require.Equal(t, env.Seq, got.Seq)
		require.Equal(t, env.Fields, got.Fields)

		tag, err := c.Digest(env)
		require.NoError(t, err)
		require.Len(t, tag, TagSize)
		require.True(t, c.Verify(got, tag, env.Seq))
		require.False(t, c.Verify(got, tag, env.Seq+1))
		require.False(t, c.Verify(got, tag, env.Seq-1))
	}
}

func TestChannelTamper(t *testing.T) {
	c := newTestChannel(t, 0)
	c.Advance()
	env := commands.New(commands.Get, "alice", "secret", "FilePile4321")
	env.Seq = c.Seq()
	tag, err := c.Digest(env)
	require.NoError(t, err)

	forged := commands.New(commands.Get, "mallory", "secret", "FilePile4321")
	forged.Seq = env.Seq
	require.False(t, c.Verify(forged, tag, env.Seq))

	badTag := append([]byte{}, tag...)
	badTag[0] ^= 0x01
	require.False(t, c.Verify(env, badTag, env.Seq))

	other := newTestChannel(t, 0)
	require.False(t, other.Verify(env, tag, env.Seq))
}

func TestChannelDecryptCorrupt(t *testing.T) {
	c := newTestChannel(t, 0)
	ct, err := c.Encrypt(commands.New(commands.OK))
	require.NoError(t, err)

	var cryptoErr *CryptoError
	_, err = c.Decrypt(ct[:len(ct)-1])
	require.True(t, errors.As(err, &cryptoErr))

	_, err = c.Decrypt(nil)
	require.True(t, errors.As(err, &cryptoErr))

	other := newTestChannel(t, 0)
	_, err = other.Decrypt(ct)
	require.Error(t, err)
}

func TestChannelKeySizes(t *testing.T) {
	_, err := NewSymmetricChannel(make([]byte, 16), make([]byte, MACKeySize), make([]byte, IVSize), 0)
	require.Error(t, err)
	_, err = NewSymmetricChannel(make([]byte, SessionKeySize), make([]byte, 1), make([]byte, IVSize), 0)
	require.Error(t, err)
	_, err = NewSymmetricChannel(make([]byte, SessionKeySize), make([]byte, MACKeySize), make([]byte, 8), 0)
	require.Error(t, err)
}
