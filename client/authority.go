// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/core/crypto/groupcipher"
	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/core/wire/commands"
)

// GroupKey is a group's file key and IV, as released by the authority.
type GroupKey struct {
	Key []byte
	IV  []byte
}

// AuthorityClient is a session with the authority.
type AuthorityClient struct {
	t   wire.SecureTransport
	log *logging.Logger
}

// NewAuthorityClient wraps an established transport.
func NewAuthorityClient(t wire.SecureTransport, log *logging.Logger) *AuthorityClient {
	return &AuthorityClient{t: t, log: log}
}

// DialAuthority connects and handshakes with the authority at addr.
func DialAuthority(ctx context.Context, addr string, opts *Options) (*AuthorityClient, error) {
	sess, err := dial(ctx, addr, &wire.InitiatorConfig{
		PinnedKey: opts.pinnedKey(),
	})
	if err != nil {
		return nil, err
	}
	c := NewAuthorityClient(sess, opts.logger())
	c.log.Debugf("Connected to authority %v.", sess.RemoteAddr())
	return c, nil
}

// GetToken logs in and returns a token bound to audience, the identity of
// the storage server it will be presented to.
func (c *AuthorityClient) GetToken(user, password, audience string) (*token.Token, error) {
	resp, err := roundTrip(c.t, commands.New(commands.Get, user, password, audience), commands.OK)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err = resp.Field(0, &raw); err != nil {
		return nil, err
	}
	return token.Unmarshal(raw)
}

func (c *AuthorityClient) call(tok *token.Token, verb string, args ...interface{}) (*commands.Envelope, error) {
	raw, err := tok.Marshal()
	if err != nil {
		return nil, err
	}
	return roundTrip(c.t, commands.New(verb, append(args, raw)...), commands.OK)
}

// CreateUser creates a user.  Requires an ADMIN token.
func (c *AuthorityClient) CreateUser(user, password string, tok *token.Token) error {
	_, err := c.call(tok, commands.CreateUser, user, password)
	return err
}

// DeleteUser deletes a user along with every group it owns.  Requires an
// ADMIN token.
func (c *AuthorityClient) DeleteUser(user string, tok *token.Token) error {
	_, err := c.call(tok, commands.DeleteUser, user)
	return err
}

// CreateGroup creates a group owned by the token's subject.
func (c *AuthorityClient) CreateGroup(group string, tok *token.Token) error {
	_, err := c.call(tok, commands.CreateGroup, group)
	return err
}

// DeleteGroup deletes a group.
func (c *AuthorityClient) DeleteGroup(group string, tok *token.Token) error {
	_, err := c.call(tok, commands.DeleteGroup, group)
	return err
}

// ListMembers lists a group's members.
func (c *AuthorityClient) ListMembers(group string, tok *token.Token) ([]string, error) {
	resp, err := c.call(tok, commands.ListMembers, group)
	if err != nil {
		return nil, err
	}
	var members []string
	if err = resp.Field(0, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// AddUserToGroup adds user to group.
func (c *AuthorityClient) AddUserToGroup(user, group string, tok *token.Token) error {
	_, err := c.call(tok, commands.AddToGroup, user, group)
	return err
}

// DeleteUserFromGroup removes user from group.  Removing the owner deletes
// the group.
func (c *AuthorityClient) DeleteUserFromGroup(user, group string, tok *token.Token) error {
	_, err := c.call(tok, commands.RemoveFromGrp, user, group)
	return err
}

// GetGroupKey fetches a group's key.  The token must list the group.
func (c *AuthorityClient) GetGroupKey(group string, tok *token.Token) (*GroupKey, error) {
	resp, err := c.call(tok, commands.GetGroupKey, group)
	if err != nil {
		return nil, err
	}
	k := new(GroupKey)
	if err = resp.Field(0, &k.Key); err != nil {
		return nil, err
	}
	if err = resp.Field(1, &k.IV); err != nil {
		return nil, err
	}
	if len(k.Key) != groupcipher.KeySize || len(k.IV) != groupcipher.IVSize {
		return nil, fmt.Errorf("%w: malformed group key", ErrUnexpectedResponse)
	}
	return k, nil
}

// Disconnect ends the session.
func (c *AuthorityClient) Disconnect() error {
	return disconnect(c.t)
}
