// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katzenpost/groupshare/client"
	"github.com/katzenpost/groupshare/core/token"
)

func newGroupCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
		Long: `Manage groups.  Any user may create a group and becomes its owner.
Only the owner or an ADMIN member may change or list a group.`,
	}

	// simple builds a subcommand calling one AuthorityClient method.
	simple := func(use, short, done string, nArgs int, fn func(ac *client.AuthorityClient, args []string, tok *token.Token) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(g, func(ctx context.Context, s *session) error {
					tok, err := s.token(ctx)
					if err != nil {
						return err
					}
					if err = fn(s.ac, args, tok); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), done+"\n", toAny(args)...)
					return nil
				})
			},
		}
	}

	members := &cobra.Command{
		Use:   "members <group>",
		Short: "List a group's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				tok, err := s.token(ctx)
				if err != nil {
					return err
				}
				names, err := s.ac.ListMembers(args[0], tok)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(
		simple("create <group>", "Create a group", "Created group %s.", 1,
			func(ac *client.AuthorityClient, args []string, tok *token.Token) error {
				return ac.CreateGroup(args[0], tok)
			}),
		simple("delete <group>", "Delete a group", "Deleted group %s.", 1,
			func(ac *client.AuthorityClient, args []string, tok *token.Token) error {
				return ac.DeleteGroup(args[0], tok)
			}),
		simple("add <user> <group>", "Add a user to a group", "Added %s to %s.", 2,
			func(ac *client.AuthorityClient, args []string, tok *token.Token) error {
				return ac.AddUserToGroup(args[0], args[1], tok)
			}),
		simple("remove <user> <group>", "Remove a user from a group, removing the owner deletes it", "Removed %s from %s.", 2,
			func(ac *client.AuthorityClient, args []string, tok *token.Token) error {
				return ac.DeleteUserFromGroup(args[0], args[1], tok)
			}),
		members,
	)
	return cmd
}

func toAny(args []string) []interface{} {
	out := make([]interface{}, 0, len(args))
	for _, a := range args {
		out = append(out, a)
	}
	return out
}
