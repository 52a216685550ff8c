// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/katzenpost/chacha20poly1305"
	"github.com/katzenpost/hpqc/kem"
	"golang.org/x/crypto/hkdf"
)

var sealContext = []byte("groupshare-handshake-field-v0")

// fieldKey derives the per-field AEAD key from a KEM shared secret.  The
// field index is mixed into the expansion so a field cannot be moved to
// another position.
func fieldKey(ss []byte, index byte) ([]byte, error) {
	prk := hkdf.Extract(sha256.New, ss, nil)
	info := append(append([]byte{}, sealContext...), index)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), key); err != nil {
		return nil, err
	}
	return key, nil
}

// sealField encrypts one handshake field to the responder's public key with
// a fresh encapsulation.  The output is the KEM ciphertext followed by the
// AEAD ciphertext.
func sealField(scheme kem.Scheme, pk kem.PublicKey, index byte, pt []byte) ([]byte, error) {
	kemCt, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, err
	}
	key, err := fieldKey(ss, index)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	out := make([]byte, 0, len(kemCt)+len(pt)+chacha20poly1305.Overhead)
	out = append(out, kemCt...)
	return aead.Seal(out, nonce[:], pt, []byte{index}), nil
}

// openField reverses sealField, and requires the plaintext to be exactly
// size bytes long.
func openField(scheme kem.Scheme, sk kem.PrivateKey, index byte, b []byte, size int) ([]byte, error) {
	ctLen := scheme.CiphertextSize()
	if len(b) != ctLen+size+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: field %d is %d bytes", ErrMalformedField, index, len(b))
	}
	ss, err := scheme.Decapsulate(sk, b[:ctLen])
	if err != nil {
		return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedField, index, err)
	}
	key, err := fieldKey(ss, index)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], b[ctLen:], []byte{index})
	if err != nil {
		return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedField, index, err)
	}
	return pt, nil
}
