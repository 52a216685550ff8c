// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/katzenpost/groupshare/core/crypto/pkcs7"
	"github.com/katzenpost/groupshare/core/wire/commands"
)

const (
	// SessionKeySize is the size of the AES-256 session key.
	SessionKeySize = 32

	// MACKeySize is the size of the keyed BLAKE2b MAC key.
	MACKeySize = 32

	// IVSize is the size of the fixed per-session CBC IV.
	IVSize = aes.BlockSize

	// TagSize is the size of an envelope authentication tag.
	TagSize = blake2b.Size256
)

// SymmetricChannel holds the cipher, MAC key and sequence counter of one
// established session.  It is not safe for concurrent use; Session
// serializes access to it.
type SymmetricChannel struct {
	block  cipher.Block
	iv     [IVSize]byte
	macKey [MACKeySize]byte
	seq    uint64
}

// NewSymmetricChannel builds a channel from the material negotiated during
// the handshake.
func NewSymmetricChannel(sessionKey, macKey, iv []byte, seq uint64) (*SymmetricChannel, error) {
	if len(sessionKey) != SessionKeySize {
		return nil, &CryptoError{Reason: fmt.Sprintf("session key is %d bytes", len(sessionKey))}
	}
	if len(macKey) != MACKeySize {
		return nil, &CryptoError{Reason: fmt.Sprintf("mac key is %d bytes", len(macKey))}
	}
	if len(iv) != IVSize {
		return nil, &CryptoError{Reason: fmt.Sprintf("iv is %d bytes", len(iv))}
	}
	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, &CryptoError{Reason: err.Error()}
	}
	c := &SymmetricChannel{
		block: block,
		seq:   seq,
	}
	copy(c.iv[:], iv)
	copy(c.macKey[:], macKey)
	return c, nil
}

// Seq returns the current value of the sequence counter.
func (c *SymmetricChannel) Seq() uint64 {
	return c.seq
}

// Advance increments the sequence counter by exactly one.
func (c *SymmetricChannel) Advance() {
	c.seq++
}

// Encrypt serializes env and encrypts it.  The counter is not touched.
func (c *SymmetricChannel) Encrypt(env *commands.Envelope) ([]byte, error) {
	pt, err := env.ToBytes()
	if err != nil {
		return nil, err
	}
	pt = pkcs7.Pad(pt, aes.BlockSize)
	ct := make([]byte, len(pt))
	cipher.NewCBCEncrypter(c.block, c.iv[:]).CryptBlocks(ct, pt)
	return ct, nil
}

// Decrypt reverses Encrypt.
func (c *SymmetricChannel) Decrypt(ct []byte) (*commands.Envelope, error) {
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, &CryptoError{Reason: fmt.Sprintf("ciphertext length %d", len(ct))}
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, c.iv[:]).CryptBlocks(pt, ct)
	pt, err := pkcs7.Unpad(pt, aes.BlockSize)
	if err != nil {
		return nil, &CryptoError{Reason: err.Error()}
	}
	env, err := commands.FromBytes(pt)
	if err != nil {
		return nil, &CryptoError{Reason: err.Error()}
	}
	return env, nil
}

// Digest returns the keyed MAC of the serialized envelope.
func (c *SymmetricChannel) Digest(env *commands.Envelope) ([]byte, error) {
	b, err := env.ToBytes()
	if err != nil {
		return nil, err
	}
	h, err := blake2b.New256(c.macKey[:])
	if err != nil {
		return nil, err
	}
	h.Write(b)
	return h.Sum(nil), nil
}

// Verify returns true iff tag authenticates env and env carries expectedSeq.
func (c *SymmetricChannel) Verify(env *commands.Envelope, tag []byte, expectedSeq uint64) bool {
	want, err := c.Digest(env)
	if err != nil {
		return false
	}
	macOK := subtle.ConstantTimeCompare(want, tag) == 1
	return macOK && env.Seq == expectedSeq
}
