// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package token

import (
	"testing"

	"github.com/katzenpost/hpqc/sign"
	"github.com/katzenpost/hpqc/sign/schemes"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (sign.PublicKey, sign.PrivateKey) {
	pk, sk, err := schemes.ByName("Ed25519").GenerateKey()
	require.NoError(t, err)
	return pk, sk
}

func TestIssueVerify(t *testing.T) {
	pk, sk := newKey(t)
	tok, err := Issue(sk, "ALPHA", "alice", []string{"ADMIN", "dev"}, "FilePile4321")
	require.NoError(t, err)

	raw, err := tok.Marshal()
	require.NoError(t, err)
	decoded, err := Unmarshal(raw)
	require.NoError(t, err)

	c, err := Verify(decoded, pk, "FilePile4321")
	require.NoError(t, err)
	require.Equal(t, "ALPHA", c.Issuer)
	require.Equal(t, "alice", c.Subject)
	require.True(t, c.HasGroup("dev"))
	require.False(t, c.HasGroup("ops"))
}

func TestAudienceBinding(t *testing.T) {
	pk, sk := newKey(t)
	tok, err := Issue(sk, "ALPHA", "alice", []string{"dev"}, "FilePile4321")
	require.NoError(t, err)

	_, err = Verify(tok, pk, "FilePile9999")
	require.ErrorIs(t, err, ErrWrongAudience)

	c, err := tok.VerifySignature(pk)
	require.NoError(t, err)
	require.Equal(t, "FilePile4321", c.Audience)
}

func TestTamperDetection(t *testing.T) {
	pk, sk := newKey(t)
	otherPk, _ := newKey(t)

	mutations := map[string]func(*Token){
		"issuer":   func(t *Token) { t.Issuer = "BETA" },
		"subject":  func(t *Token) { t.Subject = "mallory" },
		"groups":   func(t *Token) { t.Groups = append(t.Groups, "ADMIN") },
		"reorder":  func(t *Token) { t.Groups[0], t.Groups[1] = t.Groups[1], t.Groups[0] },
		"audience": func(t *Token) { t.Audience = "FilePile9999" },
		"sig":      func(t *Token) { t.Signature[0] ^= 0xff },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tok, err := Issue(sk, "ALPHA", "alice", []string{"dev", "ops"}, "FilePile4321")
			require.NoError(t, err)
			mutate(tok)
			_, err = tok.VerifySignature(pk)
			require.ErrorIs(t, err, ErrBadSignature)
		})
	}

	tok, err := Issue(sk, "ALPHA", "alice", nil, "FilePile4321")
	require.NoError(t, err)
	_, err = Verify(tok, otherPk, "FilePile4321")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestUnmarshalMalformed(t *testing.T) {
	_, err := Unmarshal([]byte{0xa5, 0x01})
	require.ErrorIs(t, err, ErrMalformed)
}
