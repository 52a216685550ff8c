// wire_handler.go - groupshare storage server connection handler.
// Copyright (C) 2018  Yawning Angel.
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

package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/katzenpost/hpqc/sign"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/core/wire/commands"
	"github.com/katzenpost/groupshare/internal/instrument"
)

// connHandler serves one established session.
type connHandler struct {
	s     *Server
	log   *logging.Logger
	sess  *wire.Session
	rAddr net.Addr

	authorityKey sign.PublicKey
}

func (s *Server) onConn(conn net.Conn) {
	rAddr := conn.RemoteAddr()
	s.log.Debugf("Accepted new connection: %v", rAddr)

	s.trackConn(conn, true)
	defer func() {
		s.trackConn(conn, false)
		conn.Close()
		s.Done()
	}()

	// Handshake.
	if t := s.cfg.Debug.HandshakeTimeout; t > 0 {
		conn.SetDeadline(time.Now().Add(time.Duration(t) * time.Second))
	}
	sess, err := wire.Accept(conn, &wire.ResponderConfig{
		PrivateKey:         s.linkKey,
		Identity:           s.Identifier(),
		ForwardedKeyScheme: token.DefaultScheme(),
		PinnedForwardedKey: s.authorityKey,
	})
	instrument.Handshake(serviceName, err == nil)
	if err != nil {
		s.log.Debugf("Peer %v: Failed session handshake: %v", rAddr, err)
		return
	}
	conn.SetDeadline(time.Time{})
	defer sess.Close()

	c := &connHandler{
		s:            s,
		log:          s.log,
		sess:         sess,
		rAddr:        rAddr,
		authorityKey: sess.Peer().ForwardedKey,
	}
	if err = c.serve(); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			s.log.Debugf("Peer %v: Connection closed.", rAddr)
			return
		}
		instrument.ProtocolError(serviceName)
		s.log.Warningf("Peer %v: Dropping session: %v", rAddr, err)
	}
}

func (c *connHandler) serve() error {
	for {
		req, err := c.recv()
		if err != nil {
			return err
		}

		switch req.Verb {
		case commands.Disconnect:
			c.log.Debugf("Peer %v: Disconnected.", c.rAddr)
			return nil
		case commands.ListFiles:
			err = c.onListFiles(req)
		case commands.UploadFile:
			err = c.onUpload(req)
		case commands.DownloadFile:
			err = c.onDownload(req)
		case commands.DeleteFile:
			err = c.onDelete(req)
		default:
			c.log.Debugf("Peer %v: Invalid request: %q", c.rAddr, req.Verb)
			err = c.reply(commands.FailBadMessage, fmt.Sprintf("unknown verb %q", req.Verb))
		}
		if err != nil {
			return err
		}
	}
}

func (c *connHandler) recv() (*commands.Envelope, error) {
	req, err := c.sess.RecvEnvelope()
	if err == nil {
		instrument.Request(serviceName, req.Verb)
	}
	return req, err
}

func (c *connHandler) reply(verb string, fields ...interface{}) error {
	instrument.Response(serviceName, verb)
	return c.sess.SendEnvelope(commands.New(verb, fields...))
}

// claims verifies the token in field i against the forwarded authority key
// and this server's identity.
func (c *connHandler) claims(req *commands.Envelope, i int) (*token.Claims, error) {
	var raw []byte
	if err := req.Field(i, &raw); err != nil {
		return nil, err
	}
	tok, err := token.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return token.Verify(tok, c.authorityKey, c.s.Identifier())
}
