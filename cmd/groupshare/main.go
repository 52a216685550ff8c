// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// groupshare - command line client for the groupshare authority and storage
// servers.
package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/katzenpost/groupshare/common"
)

const defaultTimeout = 30 * time.Second

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func newRootCommand() *cobra.Command {
	g := new(globalFlags)

	cmd := &cobra.Command{
		Use:   "groupshare",
		Short: "groupshare client",
		Long: `A command line client for groupshare.

Every command logs in to the authority with --user and a password taken from
--password, the GROUPSHARE_PASSWORD environment variable or a terminal
prompt, in that order.  The resulting token is bound to the storage server
the command talks to.

File commands need the authority identity public key (--authority-key) so
that the storage server can verify tokens.`,
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.authorityAddr, "authority", "127.0.0.1:8765", "authority address")
	f.StringVar(&g.storageAddr, "storage", "127.0.0.1:4321", "storage server address")
	f.StringVar(&g.authorityKey, "authority-key", "", "authority identity public key PEM file")
	f.StringVar(&g.authorityLinkKey, "pin-authority", "", "authority link public key PEM file to pin")
	f.StringVar(&g.storageLinkKey, "pin-storage", "", "storage server link public key PEM file to pin")
	f.StringVar(&g.audience, "audience", "", "storage server identifier tokens are bound to (default FilePile<storage port>)")
	f.StringVarP(&g.user, "user", "u", "", "user to log in as")
	f.StringVar(&g.password, "password", "", "password, prefer GROUPSHARE_PASSWORD or the prompt")
	f.DurationVar(&g.timeout, "timeout", defaultTimeout, "connection and handshake timeout")
	f.StringVar(&g.logLevel, "log-level", "ERROR", "log level (ERROR, WARNING, NOTICE, INFO, DEBUG)")
	f.StringVar(&g.logFile, "log-file", "", "log file, stdout if omitted")

	cmd.AddCommand(newTokenCommand(g))
	cmd.AddCommand(newUserCommand(g))
	cmd.AddCommand(newGroupCommand(g))
	cmd.AddCommand(newFilesCommand(g))

	return cmd
}
