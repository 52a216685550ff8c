// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users (ADMIN only)",
	}

	var newPassword string
	create := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a user",
		Example: `  groupshare user create bob -u admin --new-password hunter3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				tok, err := s.token(ctx)
				if err != nil {
					return err
				}
				if err = s.ac.CreateUser(args[0], newPassword, tok); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s.\n", args[0])
				return nil
			})
		},
	}
	create.Flags().StringVar(&newPassword, "new-password", "", "password of the new user")
	create.MarkFlagRequired("new-password")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a user and every group it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				tok, err := s.token(ctx)
				if err != nil {
					return err
				}
				if err = s.ac.DeleteUser(args[0], tok); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s.\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, del)
	return cmd
}
