// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package keys loads the long lived key pairs of the daemons from their data
// directory, generating them on first run.
package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/katzenpost/hpqc/kem"
	kempem "github.com/katzenpost/hpqc/kem/pem"
	"github.com/katzenpost/hpqc/sign"
	signpem "github.com/katzenpost/hpqc/sign/pem"
)

const (
	linkPrivateKeyFile     = "link.private.pem"
	linkPublicKeyFile      = "link.public.pem"
	identityPrivateKeyFile = "identity.private.pem"
	identityPublicKeyFile  = "identity.public.pem"
)

// LinkPublicKeyPath returns the path of the link public key in dataDir.
func LinkPublicKeyPath(dataDir string) string {
	return filepath.Join(dataDir, linkPublicKeyFile)
}

// IdentityPublicKeyPath returns the path of the identity public key in
// dataDir.
func IdentityPublicKeyPath(dataDir string) string {
	return filepath.Join(dataDir, identityPublicKeyFile)
}

// LinkKey loads or generates the KEM key pair used by the handshake.
func LinkKey(dataDir string, scheme kem.Scheme) (kem.PrivateKey, error) {
	privFile := filepath.Join(dataDir, linkPrivateKeyFile)
	pubFile := filepath.Join(dataDir, linkPublicKeyFile)

	switch {
	case bothExist(privFile, pubFile):
		sk, err := kempem.FromPrivatePEMFile(privFile, scheme)
		if err != nil {
			return nil, err
		}
		pk, err := kempem.FromPublicPEMFile(pubFile, scheme)
		if err != nil {
			return nil, err
		}
		if !pk.Equal(sk.Public()) {
			return nil, fmt.Errorf("keys: %s does not match %s", pubFile, privFile)
		}
		return sk, nil
	case neitherExist(privFile, pubFile):
		pk, sk, err := scheme.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := kempem.PrivateKeyToFile(privFile, sk); err != nil {
			return nil, err
		}
		if err := kempem.PublicKeyToFile(pubFile, pk); err != nil {
			return nil, err
		}
		return sk, nil
	default:
		return nil, fmt.Errorf("keys: %s and %s must either both exist or not exist", privFile, pubFile)
	}
}

// IdentityKey loads or generates the signing key pair of the authority.
func IdentityKey(dataDir string, scheme sign.Scheme) (sign.PublicKey, sign.PrivateKey, error) {
	privFile := filepath.Join(dataDir, identityPrivateKeyFile)
	pubFile := filepath.Join(dataDir, identityPublicKeyFile)

	switch {
	case bothExist(privFile, pubFile):
		sk, err := signpem.FromPrivatePEMFile(privFile, scheme)
		if err != nil {
			return nil, nil, err
		}
		pk, err := signpem.FromPublicPEMFile(pubFile, scheme)
		if err != nil {
			return nil, nil, err
		}
		return pk, sk, nil
	case neitherExist(privFile, pubFile):
		pk, sk, err := scheme.GenerateKey()
		if err != nil {
			return nil, nil, err
		}
		if err := signpem.PrivateKeyToFile(privFile, sk); err != nil {
			return nil, nil, err
		}
		if err := signpem.PublicKeyToFile(pubFile, pk); err != nil {
			return nil, nil, err
		}
		return pk, sk, nil
	default:
		return nil, nil, fmt.Errorf("keys: %s and %s must either both exist or not exist", privFile, pubFile)
	}
}

func exists(f string) bool {
	_, err := os.Stat(f)
	return !errors.Is(err, os.ErrNotExist)
}

func bothExist(a, b string) bool {
	return exists(a) && exists(b)
}

func neitherExist(a, b string) bool {
	return !exists(a) && !exists(b)
}
