// main.go - groupshare storage server binary.
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

	"github.com/katzenpost/groupshare/common"
	"github.com/katzenpost/groupshare/core/compat"
	"github.com/katzenpost/groupshare/storage/server"
	"github.com/katzenpost/groupshare/storage/server/config"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
	GenOnly    bool
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "storage",
		Short: "groupshare storage server",
		Long: `The groupshare storage server keeps group encrypted files.

Every request carries a capability token issued by the authority and bound
to this server's identifier.  Files are encrypted on upload with the group
key supplied by the client and are only listed, read or deleted for members
of the owning group.

Set AuthorityPublicKeyPem to pin the authority identity key, otherwise the
key forwarded by each client is trusted.`,
		Example: `  # Start the storage server
  storage -f /etc/groupshare/storage.toml

  # Generate the link key and exit
  storage -f /etc/groupshare/storage.toml -g`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorage(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "storage.toml",
		"path to the storage server configuration file (TOML format)")
	cmd.Flags().BoolVarP(&cfg.GenOnly, "generate-only", "g", false,
		"generate keys and exit without starting the server")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runStorage(cfg Config) error {
	compat.Umask(0077)

	storageCfg, err := config.LoadFile(cfg.ConfigFile, cfg.GenOnly)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	svr, err := server.New(storageCfg)
	if err != nil {
		if errors.Is(err, server.ErrGenerateOnly) {
			return nil
		}
		return fmt.Errorf("failed to spawn storage server instance: %v", err)
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
