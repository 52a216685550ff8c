// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import (
	"crypto/subtle"
	"io"

	"github.com/katzenpost/hpqc/rand"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16

	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
)

// Verifier is a salted password hash.
type Verifier struct {
	Salt []byte
	Hash []byte
}

func newVerifier(password string) (*Verifier, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return &Verifier{
		Salt: salt,
		Hash: hashPassword(password, salt),
	}, nil
}

func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func (v *Verifier) matches(password string) bool {
	return subtle.ConstantTimeCompare(hashPassword(password, v.Salt), v.Hash) == 1
}
