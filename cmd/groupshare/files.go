// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/katzenpost/groupshare/client"
	"github.com/katzenpost/groupshare/core/token"
)

func newFilesCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List, upload, download and delete files",
	}
	cmd.AddCommand(
		newFilesListCommand(g),
		newFilesUploadCommand(g),
		newFilesDownloadCommand(g),
		newFilesDeleteCommand(g),
	)
	return cmd
}

// storageToken connects to the storage server first, so that the token is
// bound to the identifier it announced.
func storageToken(ctx context.Context, s *session) (*client.StorageClient, *token.Token, error) {
	sc, err := s.storage(ctx)
	if err != nil {
		return nil, nil, err
	}
	tok, err := s.token(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sc, tok, nil
}

func groupKey(ctx context.Context, s *session, group string, tok *token.Token) (*client.GroupKey, error) {
	ac, err := s.authority(ctx)
	if err != nil {
		return nil, err
	}
	return ac.GetGroupKey(group, tok)
}

func newFilesListCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the files visible to your groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				sc, tok, err := storageToken(ctx, s)
				if err != nil {
					return err
				}
				paths, err := sc.ListFiles(tok)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
}

func newFilesUploadCommand(g *globalFlags) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:     "upload <local file> <path>",
		Short:   "Upload a file, encrypted under a group key",
		Example: `  groupshare files upload -u alice --authority-key identity.public.pem --group proj report.pdf reports/q3.pdf`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				sc, tok, err := storageToken(ctx, s)
				if err != nil {
					return err
				}
				key, err := groupKey(ctx, s, group, tok)
				if err != nil {
					return err
				}
				if err = sc.Upload(f, args[1], group, key, tok); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s.\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "group owning the file")
	cmd.MarkFlagRequired("group")
	return cmd
}

func newFilesDownloadCommand(g *globalFlags) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "download <path> <local file>",
		Short: "Download a file, use - to write to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				sc, tok, err := storageToken(ctx, s)
				if err != nil {
					return err
				}
				key, err := groupKey(ctx, s, group, tok)
				if err != nil {
					return err
				}

				var dst io.Writer = cmd.OutOrStdout()
				if args[1] != "-" {
					f, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
					if err != nil {
						return err
					}
					defer f.Close()
					dst = f
				}
				if err = sc.Download(dst, args[0], key, tok); err != nil {
					if args[1] != "-" {
						os.Remove(args[1])
					}
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "group owning the file")
	cmd.MarkFlagRequired("group")
	return cmd
}

func newFilesDeleteCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, func(ctx context.Context, s *session) error {
				sc, tok, err := storageToken(ctx, s)
				if err != nil {
					return err
				}
				if err = sc.Delete(args[0], tok); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			})
		},
	}
}
