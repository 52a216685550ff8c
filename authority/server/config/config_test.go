// config_test.go - Tests for groupshare authority config.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load([]byte(`
[Server]
  DataDir = "/var/lib/groupshare/authority"
`), false)
	require.NoError(t, err)

	require.Equal(t, "ALPHA", cfg.Server.Identifier)
	require.Equal(t, []string{DefaultAddress}, cfg.Server.Addresses)
	require.Equal(t, "NOTICE", cfg.Logging.Level)
	require.Equal(t, 2*time.Minute, cfg.Persistence.Interval())
	require.Equal(t, "admin", cfg.Bootstrap.AdminUser)
	require.False(t, cfg.Debug.GenerateOnly)
}

func TestLoadFull(t *testing.T) {
	f := filepath.Join(t.TempDir(), "authority.toml")
	require.NoError(t, os.WriteFile(f, []byte(`
[Server]
  Identifier = "BETA"
  Addresses = [ "0.0.0.0:9000", "[::1]:9000" ]
  DataDir = "/tmp/authority"
  MaxConnections = 16

[Logging]
  Level = "debug"
  File = "authority.log"

[Persistence]
  SnapshotInterval = 5

[Metrics]
  Address = "127.0.0.1:9100"

[Bootstrap]
  AdminUser = "root"
  AdminPassword = "changeme"

[Debug]
  HandshakeTimeout = 10
`), 0600))

	cfg, err := LoadFile(f, true)
	require.NoError(t, err)
	require.Equal(t, "BETA", cfg.Server.Identifier)
	require.Len(t, cfg.Server.Addresses, 2)
	require.Equal(t, 16, cfg.Server.MaxConnections)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, 5*time.Second, cfg.Persistence.Interval())
	require.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)
	require.Equal(t, "root", cfg.Bootstrap.AdminUser)
	require.Equal(t, 10, cfg.Debug.HandshakeTimeout)
	require.True(t, cfg.Debug.GenerateOnly)
}

func TestLoadInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"no server":     `[Logging]` + "\n" + `Level = "DEBUG"`,
		"relative dir":  `[Server]` + "\n" + `DataDir = "relative"`,
		"bad address":   `[Server]` + "\n" + `DataDir = "/a"` + "\n" + `Addresses = ["nope"]`,
		"bad level":     `[Server]` + "\n" + `DataDir = "/a"` + "\n" + `[Logging]` + "\n" + `Level = "LOUD"`,
		"undecoded key": `[Server]` + "\n" + `DataDir = "/a"` + "\n" + `Bogus = 1`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body), false)
			require.Error(t, err)
		})
	}
}
