// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	kempem "github.com/katzenpost/hpqc/kem/pem"
	signpem "github.com/katzenpost/hpqc/sign/pem"
	"golang.org/x/term"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/client"
	"github.com/katzenpost/groupshare/common"
	"github.com/katzenpost/groupshare/core/log"
	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire"
)

const passwordEnv = "GROUPSHARE_PASSWORD"

type globalFlags struct {
	authorityAddr    string
	storageAddr      string
	authorityKey     string
	authorityLinkKey string
	storageLinkKey   string
	audience         string
	user             string
	password         string
	timeout          time.Duration
	logLevel         string
	logFile          string
}

// session holds the connections a single command uses.
type session struct {
	g   *globalFlags
	log *logging.Logger

	ac *client.AuthorityClient
	sc *client.StorageClient
}

func newSession(g *globalFlags) (*session, error) {
	if g.user == "" {
		return nil, fmt.Errorf("%w: --user is required", common.ErrUsage)
	}
	if !log.IsValidLevel(g.logLevel) {
		return nil, fmt.Errorf("%w: invalid --log-level %q", common.ErrUsage, g.logLevel)
	}
	b, err := log.New(g.logFile, g.logLevel, false)
	if err != nil {
		return nil, err
	}
	return &session{g: g, log: b.GetLogger("client")}, nil
}

func (s *session) close() {
	if s.sc != nil {
		s.sc.Disconnect()
	}
	if s.ac != nil {
		s.ac.Disconnect()
	}
}

func (s *session) options(pemFile string) (*client.Options, error) {
	opts := &client.Options{Log: s.log}
	if pemFile != "" {
		pk, err := kempem.FromPublicPEMFile(pemFile, wire.DefaultKEMScheme())
		if err != nil {
			return nil, err
		}
		opts.PinnedKey = pk
	}
	return opts, nil
}

func (s *session) authority(ctx context.Context) (*client.AuthorityClient, error) {
	if s.ac != nil {
		return s.ac, nil
	}
	opts, err := s.options(s.g.authorityLinkKey)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, s.g.timeout)
	defer cancel()
	if s.ac, err = client.DialAuthority(dctx, s.g.authorityAddr, opts); err != nil {
		return nil, err
	}
	return s.ac, nil
}

func (s *session) storage(ctx context.Context) (*client.StorageClient, error) {
	if s.sc != nil {
		return s.sc, nil
	}
	if s.g.authorityKey == "" {
		return nil, fmt.Errorf("%w: --authority-key is required for file commands", common.ErrUsage)
	}
	authorityKey, err := signpem.FromPublicPEMFile(s.g.authorityKey, token.DefaultScheme())
	if err != nil {
		return nil, err
	}
	opts, err := s.options(s.g.storageLinkKey)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, s.g.timeout)
	defer cancel()
	if s.sc, err = client.DialStorage(dctx, s.g.storageAddr, authorityKey, opts); err != nil {
		return nil, err
	}
	return s.sc, nil
}

// audience is the identifier of the storage server in use, learned from its
// handshake when connected.
func (s *session) audience() string {
	switch {
	case s.sc != nil:
		return s.sc.ServerID()
	case s.g.audience != "":
		return s.g.audience
	}
	_, port, err := net.SplitHostPort(s.g.storageAddr)
	if err != nil {
		return ""
	}
	return "FilePile" + port
}

func (s *session) readPassword() (string, error) {
	if s.g.password != "" {
		return s.g.password, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: no password given and stdin is not a terminal", common.ErrUsage)
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", s.g.user)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if len(pw) == 0 {
		return "", errors.New("empty password")
	}
	return string(pw), nil
}

// token logs in and returns a token for the current audience.
func (s *session) token(ctx context.Context) (*token.Token, error) {
	ac, err := s.authority(ctx)
	if err != nil {
		return nil, err
	}
	pw, err := s.readPassword()
	if err != nil {
		return nil, err
	}
	return ac.GetToken(s.g.user, pw, s.audience())
}

// run opens a session, runs fn and tears the session down.
func run(g *globalFlags, fn func(ctx context.Context, s *session) error) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(context.Background(), s)
}
