// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/katzenpost/hpqc/kem"
	"github.com/katzenpost/hpqc/kem/schemes"
	"github.com/katzenpost/hpqc/rand"
	"github.com/katzenpost/hpqc/sign"

	"github.com/katzenpost/groupshare/core/wire/commands"
)

const (
	// DefaultKEMSchemeName names the KEM used to seal the handshake fields.
	DefaultKEMSchemeName = "x25519"

	// MaxIdentityLength bounds the storage server identity string.
	MaxIdentityLength = 255
)

// Sealed handshake fields, in the order they are sent.
const (
	fieldSeq byte = iota
	fieldSessionKey
	fieldMACKey
	fieldIV
	fieldChallenge
)

// DefaultKEMScheme returns the KEM scheme named by DefaultKEMSchemeName.
func DefaultKEMScheme() kem.Scheme {
	return schemes.ByName(DefaultKEMSchemeName)
}

// InitiatorConfig configures the client side of the handshake.
type InitiatorConfig struct {
	// KEMScheme defaults to DefaultKEMScheme.
	KEMScheme kem.Scheme

	// ExpectIdentity is set when the responder is a storage server, which
	// sends its identity string after its public key.
	ExpectIdentity bool

	// PinnedKey, if set, must equal the public key sent by the responder.
	PinnedKey kem.PublicKey

	// ForwardKey, if set, is sent to the responder after the sealed fields.
	// Storage servers use it to verify capability tokens.
	ForwardKey sign.PublicKey

	// Rand defaults to the hpqc random source.
	Rand io.Reader
}

// ResponderConfig configures the server side of the handshake.
type ResponderConfig struct {
	// KEMScheme defaults to DefaultKEMScheme.
	KEMScheme kem.Scheme

	// PrivateKey is the responder's long lived link key.
	PrivateKey kem.PrivateKey

	// Identity, if not empty, is sent in the clear after the public key.
	Identity string

	// ForwardedKeyScheme, if set, makes the responder read a forwarded
	// signing public key after the sealed fields.
	ForwardedKeyScheme sign.Scheme

	// PinnedForwardedKey, if set, must equal the forwarded key.
	PinnedForwardedKey sign.PublicKey
}

// PeerInfo is what the handshake learned about the other side.
type PeerInfo struct {
	// PublicKey is the responder's link key.
	PublicKey kem.PublicKey

	// Identity is the responder's identity string, if any.
	Identity string

	// ForwardedKey is the signing key forwarded by the initiator, if any.
	ForwardedKey sign.PublicKey
}

type challengeResponse func(rc uint64) uint64

func incrementChallenge(rc uint64) uint64 {
	return rc + 1
}

// Initiate runs the initiator side of the handshake over conn.  On failure
// the connection is closed and a *HandshakeError returned.
func Initiate(conn net.Conn, cfg *InitiatorConfig) (*Session, error) {
	s := newSession(conn, true)
	if err := s.initiate(cfg); err != nil {
		conn.Close()
		err.IsInitiator = true
		err.RemoteAddr = remoteAddr(conn)
		return nil, err
	}
	return s, nil
}

// Accept runs the responder side of the handshake over conn.  On failure
// the connection is closed and a *HandshakeError returned.
func Accept(conn net.Conn, cfg *ResponderConfig) (*Session, error) {
	return accept(conn, cfg, incrementChallenge)
}

func accept(conn net.Conn, cfg *ResponderConfig, respond challengeResponse) (*Session, error) {
	s := newSession(conn, false)
	if err := s.respond(cfg, respond); err != nil {
		conn.Close()
		err.RemoteAddr = remoteAddr(conn)
		return nil, err
	}
	return s, nil
}

func (s *Session) initiate(cfg *InitiatorConfig) *HandshakeError {
	scheme := cfg.KEMScheme
	if scheme == nil {
		scheme = DefaultKEMScheme()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.Reader
	}

	raw, err := readFrame(s.conn)
	if err != nil {
		return newHandshakeError(HandshakeStateKeyExchange, "failed to read responder key", err)
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(raw)
	if err != nil {
		return newHandshakeError(HandshakeStateKeyExchange, "malformed responder key", err)
	}
	if cfg.PinnedKey != nil && !cfg.PinnedKey.Equal(pk) {
		return newHandshakeError(HandshakeStateKeyExchange, "responder key does not match pinned key", ErrUnexpectedPeerKey)
	}
	s.peer.PublicKey = pk

	if cfg.ExpectIdentity {
		id, err := readFrame(s.conn)
		if err != nil {
			return newHandshakeError(HandshakeStateIdentity, "failed to read responder identity", err)
		}
		if len(id) == 0 || len(id) > MaxIdentityLength {
			return newHandshakeError(HandshakeStateIdentity, "invalid responder identity", ErrMalformedField)
		}
		s.peer.Identity = string(id)
	}

	var seqBuf, rcBuf [8]byte
	sessionKey := make([]byte, SessionKeySize)
	macKey := make([]byte, MACKeySize)
	iv := make([]byte, IVSize)
	for _, b := range [][]byte{seqBuf[:], sessionKey, macKey, iv, rcBuf[:]} {
		if _, err := io.ReadFull(rng, b); err != nil {
			return newHandshakeError(HandshakeStateInit, "failed to generate session material", err)
		}
	}

	fields := [][]byte{
		fieldSeq:        seqBuf[:],
		fieldSessionKey: sessionKey,
		fieldMACKey:     macKey,
		fieldIV:         iv,
		fieldChallenge:  rcBuf[:],
	}
	for i, f := range fields {
		ct, err := sealField(scheme, pk, byte(i), f)
		if err != nil {
			return newHandshakeError(HandshakeStateFields, fmt.Sprintf("failed to seal field %d", i), err)
		}
		if err := writeFrame(s.conn, ct); err != nil {
			return newHandshakeError(HandshakeStateFields, "failed to send sealed field", err)
		}
	}

	if cfg.ForwardKey != nil {
		b, err := cfg.ForwardKey.MarshalBinary()
		if err != nil {
			return newHandshakeError(HandshakeStateForwardedKey, "failed to serialize forwarded key", err)
		}
		if err := writeFrame(s.conn, b); err != nil {
			return newHandshakeError(HandshakeStateForwardedKey, "failed to send forwarded key", err)
		}
	}

	ch, err := NewSymmetricChannel(sessionKey, macKey, iv, binary.BigEndian.Uint64(seqBuf[:]))
	if err != nil {
		return newHandshakeError(HandshakeStateChallenge, "failed to build channel", err)
	}
	s.ch = ch

	env, err := s.recvEnvelope()
	if err != nil {
		return newHandshakeError(HandshakeStateChallenge, "failed to receive challenge response", err)
	}
	if env.Verb != commands.HandshakeReply {
		return newHandshakeError(HandshakeStateChallenge, "unexpected verb "+env.Verb, ErrChallengeMismatch)
	}
	var got uint64
	if err := env.Field(0, &got); err != nil {
		return newHandshakeError(HandshakeStateChallenge, "malformed challenge response", err)
	}
	if got != binary.BigEndian.Uint64(rcBuf[:])+1 {
		return newHandshakeError(HandshakeStateChallenge, "responder failed the challenge", ErrChallengeMismatch)
	}

	s.state.Store(stateEstablished)
	return nil
}

func (s *Session) respond(cfg *ResponderConfig, respond challengeResponse) *HandshakeError {
	scheme := cfg.KEMScheme
	if scheme == nil {
		scheme = DefaultKEMScheme()
	}
	if cfg.PrivateKey == nil {
		return newHandshakeError(HandshakeStateInit, "no link key configured", errors.New("nil private key"))
	}

	raw, err := cfg.PrivateKey.Public().MarshalBinary()
	if err != nil {
		return newHandshakeError(HandshakeStateKeyExchange, "failed to serialize link key", err)
	}
	if err := writeFrame(s.conn, raw); err != nil {
		return newHandshakeError(HandshakeStateKeyExchange, "failed to send link key", err)
	}
	if cfg.Identity != "" {
		if err := writeFrame(s.conn, []byte(cfg.Identity)); err != nil {
			return newHandshakeError(HandshakeStateIdentity, "failed to send identity", err)
		}
	}

	sizes := []int{
		fieldSeq:        8,
		fieldSessionKey: SessionKeySize,
		fieldMACKey:     MACKeySize,
		fieldIV:         IVSize,
		fieldChallenge:  8,
	}
	fields := make([][]byte, len(sizes))
	for i, size := range sizes {
		ct, err := readFrame(s.conn)
		if err != nil {
			return newHandshakeError(HandshakeStateFields, "failed to read sealed field", err)
		}
		fields[i], err = openField(scheme, cfg.PrivateKey, byte(i), ct, size)
		if err != nil {
			return newHandshakeError(HandshakeStateFields, fmt.Sprintf("failed to open field %d", i), err)
		}
	}

	if cfg.ForwardedKeyScheme != nil {
		raw, err := readFrame(s.conn)
		if err != nil {
			return newHandshakeError(HandshakeStateForwardedKey, "failed to read forwarded key", err)
		}
		fk, err := cfg.ForwardedKeyScheme.UnmarshalBinaryPublicKey(raw)
		if err != nil {
			return newHandshakeError(HandshakeStateForwardedKey, "malformed forwarded key", err)
		}
		if cfg.PinnedForwardedKey != nil && !cfg.PinnedForwardedKey.Equal(fk) {
			return newHandshakeError(HandshakeStateForwardedKey, "forwarded key does not match pinned key", ErrUnexpectedPeerKey)
		}
		s.peer.ForwardedKey = fk
	}

	seq := binary.BigEndian.Uint64(fields[fieldSeq])
	ch, err := NewSymmetricChannel(fields[fieldSessionKey], fields[fieldMACKey], fields[fieldIV], seq)
	if err != nil {
		return newHandshakeError(HandshakeStateChallenge, "failed to build channel", err)
	}
	s.ch = ch

	rc := binary.BigEndian.Uint64(fields[fieldChallenge])
	if err := s.sendEnvelope(commands.New(commands.HandshakeReply, respond(rc))); err != nil {
		return newHandshakeError(HandshakeStateChallenge, "failed to send challenge response", err)
	}

	s.state.Store(stateEstablished)
	return nil
}

func newHandshakeError(state HandshakeState, msg string, err error) *HandshakeError {
	return &HandshakeError{
		State:           state,
		Message:         msg,
		UnderlyingError: err,
	}
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
