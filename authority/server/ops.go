// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"errors"
	"fmt"
	"net"

	"github.com/katzenpost/groupshare/authority/catalog"
	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire/commands"
)

var errWrongIssuer = errors.New("authority: token issued by another authority")

// Request field layouts, the requester's token is always last:
//
//	GET            user, password, audience
//	CUSER          user, password, token
//	DUSER          user, token
//	CGROUP         group, token
//	DGROUP         group, token
//	LMEMBERS       group, token
//	AUSERTOGROUP   user, group, token
//	RUSERFROMGROUP user, group, token
//	GETGROUPKEY    group, token
func (s *Server) dispatch(rAddr net.Addr, req *commands.Envelope) *commands.Envelope {
	var resp *commands.Envelope
	var err error

	switch req.Verb {
	case commands.Get:
		resp, err = s.onGet(req)
	case commands.CreateUser:
		err = s.withRequester(req, 2, func(requester string, _ *token.Claims, args []string) error {
			return s.state.catalog.CreateUser(requester, args[0], args[1])
		})
	case commands.DeleteUser:
		err = s.withRequester(req, 1, func(requester string, _ *token.Claims, args []string) error {
			return s.state.catalog.DeleteUser(requester, args[0])
		})
	case commands.CreateGroup:
		err = s.withRequester(req, 1, func(requester string, _ *token.Claims, args []string) error {
			return s.state.catalog.CreateGroup(requester, args[0])
		})
	case commands.DeleteGroup:
		err = s.withRequester(req, 1, func(requester string, _ *token.Claims, args []string) error {
			return s.state.catalog.DeleteGroup(requester, args[0])
		})
	case commands.ListMembers:
		err = s.withRequester(req, 1, func(requester string, _ *token.Claims, args []string) error {
			members, err := s.state.catalog.Members(requester, args[0])
			if err == nil {
				resp = commands.New(commands.OK, members)
			}
			return err
		})
	case commands.AddToGroup:
		err = s.withRequester(req, 2, func(requester string, _ *token.Claims, args []string) error {
			return s.state.catalog.AddMember(requester, args[0], args[1])
		})
	case commands.RemoveFromGrp:
		err = s.withRequester(req, 2, func(requester string, _ *token.Claims, args []string) error {
			return s.state.catalog.RemoveMember(requester, args[0], args[1])
		})
	case commands.GetGroupKey:
		err = s.withRequester(req, 1, func(_ string, claims *token.Claims, args []string) error {
			key, iv, err := s.groupKey(claims, args[0])
			if err == nil {
				resp = commands.New(commands.OK, key, iv)
			}
			return err
		})
	default:
		s.log.Debugf("Peer %v: Invalid request: %q", rAddr, req.Verb)
		return commands.New(commands.FailBadMessage, fmt.Sprintf("unknown verb %q", req.Verb))
	}

	if err != nil {
		s.log.Debugf("Peer %v: %s rejected: %v", rAddr, req.Verb, err)
		return commands.New(commands.Fail, err.Error())
	}
	if resp == nil {
		resp = commands.New(commands.OK)
	}
	return resp
}

func (s *Server) onGet(req *commands.Envelope) (*commands.Envelope, error) {
	args, err := stringArgs(req, 3)
	if err != nil {
		return nil, err
	}
	subject, groups, err := s.state.catalog.Login(args[0], args[1])
	if err != nil {
		return nil, err
	}
	tok, err := token.Issue(s.identityKey, s.Identifier(), subject, groups, args[2])
	if err != nil {
		return nil, err
	}
	b, err := tok.Marshal()
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Issued token for %s bound to %s.", subject, args[2])
	return commands.New(commands.OK, b), nil
}

// withRequester decodes nArgs string arguments followed by the requester's
// token, and runs fn with the authenticated subject.  The authority is the
// token's issuer, not its audience, so only the signature is checked.
func (s *Server) withRequester(req *commands.Envelope, nArgs int, fn func(string, *token.Claims, []string) error) error {
	args, err := stringArgs(req, nArgs)
	if err != nil {
		return err
	}
	var raw []byte
	if err = req.Field(nArgs, &raw); err != nil {
		return err
	}
	tok, err := token.Unmarshal(raw)
	if err != nil {
		return err
	}
	claims, err := tok.VerifySignature(s.identityPublicKey)
	if err != nil {
		return err
	}
	if claims.Issuer != s.Identifier() {
		return errWrongIssuer
	}
	return fn(claims.Subject, claims, args)
}

// groupKey releases a group key to holders of a token listing the group.
func (s *Server) groupKey(claims *token.Claims, group string) ([]byte, []byte, error) {
	key, iv, err := s.state.catalog.GroupKey(group)
	if err != nil {
		return nil, nil, err
	}
	if !claims.HasGroup(group) {
		return nil, nil, fmt.Errorf("%w: %s is not a member of %s", catalog.ErrPermissionDenied, claims.Subject, group)
	}
	return key, iv, nil
}

func stringArgs(req *commands.Envelope, n int) ([]string, error) {
	args := make([]string, n)
	for i := range args {
		if err := req.Field(i, &args[i]); err != nil {
			return nil, err
		}
	}
	return args, nil
}
