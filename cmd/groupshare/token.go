// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCommand(g *globalFlags) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Log in and show the issued token",
		Long: `Log in to the authority and print the claims of the issued token.

The group list is a snapshot taken at issuance: log in again after a
membership change to pick it up.`,
		Example: `  groupshare token -u alice --audience FilePile4321
  groupshare token -u alice --raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				tok, err := s.token(ctx)
				if err != nil {
					return err
				}
				if raw {
					b, err := tok.Marshal()
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(b))
					return nil
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Issuer:   %s\n", tok.Issuer)
				fmt.Fprintf(w, "Subject:  %s\n", tok.Subject)
				fmt.Fprintf(w, "Audience: %s\n", tok.Audience)
				fmt.Fprintf(w, "Groups:   %s\n", strings.Join(tok.Groups, ", "))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the serialized token as base64")
	return cmd
}
