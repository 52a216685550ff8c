// client.go - groupshare client library.
// Copyright (C) 2018  David Stainton.
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

// Package client provides the groupshare client roles.  An AuthorityClient
// obtains tokens and group keys and manages users and groups, and a
// StorageClient moves files in and out of a storage server.  Each holds its
// own independent session.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/katzenpost/hpqc/kem"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/core/log"
	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/core/wire/commands"
)

// Options are the dial options shared by both client roles.
type Options struct {
	// PinnedKey, if set, aborts the handshake unless the server presents
	// this link key.
	PinnedKey kem.PublicKey

	// Log defaults to a discarding logger.
	Log *logging.Logger
}

func (o *Options) logger() *logging.Logger {
	if o != nil && o.Log != nil {
		return o.Log
	}
	b, err := log.New("", "ERROR", true)
	if err != nil {
		panic(err)
	}
	return b.GetLogger("client")
}

func (o *Options) pinnedKey() kem.PublicKey {
	if o == nil {
		return nil
	}
	return o.PinnedKey
}

// dial connects to addr and runs the initiator handshake.  The context
// bounds the connection attempt and the handshake only.
func dial(ctx context.Context, addr string, cfg *wire.InitiatorConfig) (*wire.Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sess, err := wire.Initiate(conn, cfg)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return sess, nil
}

// roundTrip sends req, and returns the response if its verb is one of
// accept.  Rejections become a *RemoteError.
func roundTrip(t wire.SecureTransport, req *commands.Envelope, accept ...string) (*commands.Envelope, error) {
	resp, err := t.Exchange(req)
	if err != nil {
		return nil, err
	}
	return expect(req.Verb, resp, accept...)
}

func expect(op string, resp *commands.Envelope, accept ...string) (*commands.Envelope, error) {
	for _, v := range accept {
		if resp.Verb == v {
			return resp, nil
		}
	}
	if commands.IsRejection(resp.Verb) {
		return nil, &RemoteError{Op: op, Status: resp.Verb, Reason: resp.String(0)}
	}
	return nil, fmt.Errorf("%w: %s answered with %q", ErrUnexpectedResponse, op, resp.Verb)
}

func disconnect(t wire.SecureTransport) error {
	err := t.SendEnvelope(commands.New(commands.Disconnect))
	if cerr := t.Close(); err == nil {
		err = cerr
	}
	return err
}
