// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
[Server]
  DataDir = "/var/lib/groupshare/storage"
  AuthorityPublicKeyPem = "authority.public.pem"
`), false)
	require.NoError(t, err)

	require.Equal(t, []string{DefaultAddress}, cfg.Server.Addresses)
	require.Equal(t, "FilePile4321", cfg.Server.Identifier)
	require.Equal(t, "/var/lib/groupshare/storage/authority.public.pem", cfg.Server.AuthorityPublicKeyPem)
	require.Equal(t, 2*time.Minute, cfg.Persistence.Interval())
}

func TestIdentifierFollowsPort(t *testing.T) {
	cfg, err := Load([]byte(`
[Server]
  DataDir = "/srv"
  Addresses = [ "0.0.0.0:5555" ]
`), true)
	require.NoError(t, err)
	require.Equal(t, "FilePile5555", cfg.Server.Identifier)
	require.True(t, cfg.Debug.GenerateOnly)
}

func TestLoadRejectsBootstrap(t *testing.T) {
	_, err := Load([]byte(`
[Server]
  DataDir = "/srv"

[Bootstrap]
  AdminUser = "admin"
`), false)
	require.Error(t, err)
}
