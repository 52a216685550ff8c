// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"errors"
	"net"
	"testing"

	"github.com/katzenpost/hpqc/kem"
	"github.com/katzenpost/hpqc/sign"
	signschemes "github.com/katzenpost/hpqc/sign/schemes"
	"github.com/stretchr/testify/require"
)

type handshakeResult struct {
	s   *Session
	err error
}

func newLinkKey(t *testing.T) (kem.PublicKey, kem.PrivateKey) {
	pk, sk, err := DefaultKEMScheme().GenerateKeyPair()
	require.NoError(t, err)
	return pk, sk
}

func newSignKey(t *testing.T) (sign.PublicKey, sign.PrivateKey) {
	pk, sk, err := signschemes.ByName("Ed25519").GenerateKey()
	require.NoError(t, err)
	return pk, sk
}

func runHandshake(icfg *InitiatorConfig, rcfg *ResponderConfig, respond challengeResponse) (handshakeResult, handshakeResult) {
	ic, rc := net.Pipe()
	ch := make(chan handshakeResult, 1)
	go func() {
		s, err := accept(rc, rcfg, respond)
		ch <- handshakeResult{s, err}
	}()
	s, err := Initiate(ic, icfg)
	return handshakeResult{s, err}, <-ch
}

func sessionPair(t *testing.T) (*Session, *Session) {
	_, sk := newLinkKey(t)
	i, r := runHandshake(&InitiatorConfig{}, &ResponderConfig{PrivateKey: sk}, incrementChallenge)
	require.NoError(t, i.err)
	require.NoError(t, r.err)
	t.Cleanup(func() {
		i.s.Close()
		r.s.Close()
	})
	return i.s, r.s
}

func TestHandshakeEstablishes(t *testing.T) {
	pk, sk := newLinkKey(t)
	i, r := runHandshake(&InitiatorConfig{PinnedKey: pk}, &ResponderConfig{PrivateKey: sk}, incrementChallenge)
	require.NoError(t, i.err)
	require.NoError(t, r.err)
	defer i.s.Close()
	defer r.s.Close()

	require.True(t, pk.Equal(i.s.Peer().PublicKey))
	require.Empty(t, i.s.Peer().Identity)
	require.Nil(t, r.s.Peer().ForwardedKey)
	require.Equal(t, i.s.Seq(), r.s.Seq())
}

func TestHandshakeStorageVariant(t *testing.T) {
	_, sk := newLinkKey(t)
	authPk, _ := newSignKey(t)
	signScheme := signschemes.ByName("Ed25519")

	i, r := runHandshake(
		&InitiatorConfig{ExpectIdentity: true, ForwardKey: authPk},
		&ResponderConfig{PrivateKey: sk, Identity: "FilePile4321", ForwardedKeyScheme: signScheme, PinnedForwardedKey: authPk},
		incrementChallenge,
	)
	require.NoError(t, i.err)
	require.NoError(t, r.err)
	defer i.s.Close()
	defer r.s.Close()

	require.Equal(t, "FilePile4321", i.s.Peer().Identity)
	require.True(t, authPk.Equal(r.s.Peer().ForwardedKey))
}

func TestHandshakeChallengeMismatch(t *testing.T) {
	_, sk := newLinkKey(t)
	offByTwo := func(rc uint64) uint64 { return rc + 2 }

	i, r := runHandshake(&InitiatorConfig{}, &ResponderConfig{PrivateKey: sk}, offByTwo)
	require.NoError(t, r.err)
	defer r.s.Close()

	var he *HandshakeError
	require.True(t, errors.As(i.err, &he))
	require.True(t, he.IsInitiator)
	require.Equal(t, HandshakeStateChallenge, he.State)
	require.ErrorIs(t, i.err, ErrChallengeMismatch)
}

func TestHandshakeWrongKey(t *testing.T) {
	otherPk, _ := newLinkKey(t)
	_, sk := newLinkKey(t)
	scheme := DefaultKEMScheme()

	ic, rc := net.Pipe()
	respErr := make(chan error, 1)
	go func() {
		// Presents a key it does not hold the private half of.
		defer rc.Close()
		raw, err := otherPk.MarshalBinary()
		if err != nil {
			respErr <- err
			return
		}
		if err := writeFrame(rc, raw); err != nil {
			respErr <- err
			return
		}
		ct, err := readFrame(rc)
		if err != nil {
			respErr <- err
			return
		}
		_, err = openField(scheme, sk, fieldSeq, ct, 8)
		respErr <- err
	}()

	_, err := Initiate(ic, &InitiatorConfig{})
	var he *HandshakeError
	require.True(t, errors.As(err, &he))
	require.True(t, he.IsInitiator)
	require.ErrorIs(t, <-respErr, ErrMalformedField)
}

func TestHandshakePinnedKeyMismatch(t *testing.T) {
	_, sk := newLinkKey(t)
	pinned, _ := newLinkKey(t)

	i, r := runHandshake(&InitiatorConfig{PinnedKey: pinned}, &ResponderConfig{PrivateKey: sk}, incrementChallenge)
	require.ErrorIs(t, i.err, ErrUnexpectedPeerKey)
	require.Error(t, r.err)
}

func TestHandshakeForwardedKeyMismatch(t *testing.T) {
	_, sk := newLinkKey(t)
	authPk, _ := newSignKey(t)
	impostorPk, _ := newSignKey(t)

	i, r := runHandshake(
		&InitiatorConfig{ExpectIdentity: true, ForwardKey: impostorPk},
		&ResponderConfig{PrivateKey: sk, Identity: "FilePile4321", ForwardedKeyScheme: authPk.Scheme(), PinnedForwardedKey: authPk},
		incrementChallenge,
	)
	require.ErrorIs(t, r.err, ErrUnexpectedPeerKey)
	require.Error(t, i.err)
}

func TestHandshakeNoPrivateKey(t *testing.T) {
	i, r := runHandshake(&InitiatorConfig{}, &ResponderConfig{}, incrementChallenge)
	require.Error(t, r.err)
	require.Error(t, i.err)
}
