// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package token implements the capability token issued by the authority
// and verified by storage servers.
package token

import (
	"errors"
	"fmt"

	"github.com/katzenpost/hpqc/sign"
	"github.com/katzenpost/hpqc/sign/schemes"
	"github.com/ugorji/go/codec"
)

const (
	// TokenVersion is the token format version.
	TokenVersion = 0

	// DefaultSchemeName is the signature scheme of the authority identity.
	DefaultSchemeName = "Ed25519"
)

// DefaultScheme returns the authority identity signature scheme.
func DefaultScheme() sign.Scheme {
	return schemes.ByName(DefaultSchemeName)
}

var (
	// ErrBadSignature indicates the signature does not sign the claims.
	ErrBadSignature = errors.New("token: signature does not sign claims")

	// ErrWrongAudience indicates the token was issued for another server.
	ErrWrongAudience = errors.New("token: audience mismatch")

	// ErrVersionMismatch indicates an unknown token format.
	ErrVersionMismatch = errors.New("token: version mismatch")

	// ErrMalformed indicates the token failed to decode.
	ErrMalformed = errors.New("token: malformed")

	cborHandle *codec.CborHandle
)

// Claims are the facts asserted by the issuer.  Groups is a snapshot of the
// subject's memberships at issuance time and is never revalidated.
type Claims struct {
	Version  uint32
	Issuer   string
	Subject  string
	Groups   []string
	Audience string
}

// Token is a signed set of claims.
type Token struct {
	Claims

	KeyType   string
	Signature []byte
}

func (c *Claims) message() ([]byte, error) {
	out := []byte{}
	enc := codec.NewEncoderBytes(&out, cborHandle)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return out, nil
}

// Issue signs a new token binding subject and groups to audience.
func Issue(signer sign.PrivateKey, issuer, subject string, groups []string, audience string) (*Token, error) {
	t := &Token{
		Claims: Claims{
			Version:  TokenVersion,
			Issuer:   issuer,
			Subject:  subject,
			Groups:   append([]string{}, groups...),
			Audience: audience,
		},
		KeyType: signer.Scheme().Name(),
	}
	mesg, err := t.message()
	if err != nil {
		return nil, err
	}
	t.Signature = signer.Scheme().Sign(signer, mesg, nil)
	return t, nil
}

// VerifySignature checks only the signature, and is used by the issuer
// itself, which is never the audience of its own tokens.
func (t *Token) VerifySignature(verifier sign.PublicKey) (*Claims, error) {
	if t.Version != TokenVersion {
		return nil, ErrVersionMismatch
	}
	if t.KeyType != verifier.Scheme().Name() {
		return nil, ErrBadSignature
	}
	mesg, err := t.message()
	if err != nil {
		return nil, err
	}
	if !verifier.Scheme().Verify(verifier, mesg, t.Signature, nil) {
		return nil, ErrBadSignature
	}
	c := t.Claims
	return &c, nil
}

// Verify returns the claims iff the signature verifies under the issuer's
// public key and the audience matches the verifying server's identity.
func Verify(t *Token, verifier sign.PublicKey, expectedAudience string) (*Claims, error) {
	c, err := t.VerifySignature(verifier)
	if err != nil {
		return nil, err
	}
	if c.Audience != expectedAudience {
		return nil, fmt.Errorf("%w: issued for %q", ErrWrongAudience, c.Audience)
	}
	return c, nil
}

// HasGroup returns true if the claims list the group.
func (c *Claims) HasGroup(name string) bool {
	for _, g := range c.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// Marshal serializes the token.
func (t *Token) Marshal() ([]byte, error) {
	out := []byte{}
	enc := codec.NewEncoderBytes(&out, cborHandle)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return out, nil
}

// Unmarshal deserializes a token.  The result is unverified.
func Unmarshal(b []byte) (*Token, error) {
	t := new(Token)
	dec := codec.NewDecoderBytes(b, cborHandle)
	if err := dec.Decode(t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return t, nil
}

func init() {
	cborHandle = new(codec.CborHandle)
	cborHandle.Canonical = true
}
