// main.go - groupshare authority binary.
// Copyright (C) 2023  Yawning Angel, Masala
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

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/katzenpost/groupshare/authority/server"
	"github.com/katzenpost/groupshare/authority/server/config"
	"github.com/katzenpost/groupshare/common"
	"github.com/katzenpost/groupshare/core/compat"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
	GenOnly    bool
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "authority",
		Short: "groupshare authorization authority",
		Long: `The groupshare authority keeps the catalog of users, groups and group keys.

It authenticates users by password, issues signed capability tokens bound to
one storage server, and releases group keys to the members named in a token.
Storage servers never talk to the authority directly: clients forward the
authority's identity key to them during the handshake.

On first start the authority generates its link and identity keys in DataDir,
and creates the administrator account from the [Bootstrap] section.`,
		Example: `  # Start the authority
  authority -f /etc/groupshare/authority.toml

  # Generate the link and identity keys and exit
  authority -f /etc/groupshare/authority.toml --generate-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthority(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "authority.toml",
		"path to the authority configuration file (TOML format)")
	cmd.Flags().BoolVarP(&cfg.GenOnly, "generate-only", "g", false,
		"generate keys and exit without starting the authority")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runAuthority(cfg Config) error {
	// Set the umask to something "paranoid".
	compat.Umask(0077)

	authorityCfg, err := config.LoadFile(cfg.ConfigFile, cfg.GenOnly)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	svr, err := server.New(authorityCfg)
	if err != nil {
		if errors.Is(err, server.ErrGenerateOnly) {
			return nil
		}
		return fmt.Errorf("failed to spawn authority instance: %v", err)
	}
	defer svr.Shutdown()

	go func() {
		<-ch
		svr.Shutdown()
	}()

	go func() {
		for range rotateCh {
			svr.RotateLog()
		}
	}()

	svr.Wait()
	return nil
}
