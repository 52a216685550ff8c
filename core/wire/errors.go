// SPDX-FileCopyrightText: Copyright (C) 2025 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"errors"
	"fmt"
	"strings"
)

// HandshakeState represents the current state of the handshake.
type HandshakeState string

const (
	HandshakeStateInit         HandshakeState = "initialization"
	HandshakeStateKeyExchange  HandshakeState = "responder_key"
	HandshakeStateIdentity     HandshakeState = "responder_identity"
	HandshakeStateFields       HandshakeState = "sealed_fields"
	HandshakeStateForwardedKey HandshakeState = "forwarded_key"
	HandshakeStateChallenge    HandshakeState = "challenge_response"
)

var (
	// ErrInvalidState is returned when a session is used after it has been
	// invalidated by a fatal error or by Close.
	ErrInvalidState = errors.New("wire/session: invalid state")

	// ErrVerificationFailed is returned when an inbound envelope fails its
	// MAC or sequence check.
	ErrVerificationFailed = errors.New("wire/session: verification failed")

	// ErrFrameTooLarge is returned for frames exceeding MaxFrameLength.
	ErrFrameTooLarge = errors.New("wire/session: invalid frame size")

	// ErrChallengeMismatch is returned when the responder does not echo the
	// challenge incremented by one.
	ErrChallengeMismatch = errors.New("wire/session: challenge mismatch")

	// ErrUnexpectedPeerKey is returned when a pinned key does not match the
	// key presented by the peer.
	ErrUnexpectedPeerKey = errors.New("wire/session: unexpected peer key")

	// ErrMalformedField is returned when a sealed handshake field fails to
	// open or has the wrong length.
	ErrMalformedField = errors.New("wire/session: malformed handshake field")
)

// CryptoError is a failure of the symmetric channel's cipher layer, such as
// corrupted padding or a ciphertext that is not a whole number of blocks.
type CryptoError struct {
	Reason string
}

func (e *CryptoError) Error() string {
	return "wire/session: crypto error: " + e.Reason
}

// HandshakeError describes a failed handshake.  The connection is always
// closed when one is returned.
type HandshakeError struct {
	State           HandshakeState
	Message         string
	UnderlyingError error
	IsInitiator     bool
	RemoteAddr      string
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "wire/session: handshake failed at %s", e.State)
	if e.IsInitiator {
		b.WriteString(" (initiator)")
	} else {
		b.WriteString(" (responder)")
	}
	if e.RemoteAddr != "" {
		fmt.Fprintf(&b, " with peer %s", e.RemoteAddr)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.UnderlyingError != nil {
		fmt.Fprintf(&b, " (underlying error: %v)", e.UnderlyingError)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *HandshakeError) Unwrap() error {
	return e.UnderlyingError
}

// ProtocolError is a fatal failure of an established session.  The session
// is invalidated and the connection closed.
type ProtocolError struct {
	Op         string
	Err        error
	RemoteAddr string
}

func (e *ProtocolError) Error() string {
	if e.RemoteAddr != "" {
		return fmt.Sprintf("wire/session: %s failed with peer %s: %v", e.Op, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("wire/session: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is, or wraps, a fatal session error.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	var he *HandshakeError
	return errors.As(err, &pe) || errors.As(err, &he)
}
