// wire_handler.go - groupshare authority connection handler.
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
	"io"
	"net"
	"time"

	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/core/wire/commands"
	"github.com/katzenpost/groupshare/internal/instrument"
)

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
		PrivateKey: s.linkKey,
	})
	instrument.Handshake(serviceName, err == nil)
	if err != nil {
		s.log.Debugf("Peer %v: Failed session handshake: %v", rAddr, err)
		return
	}
	conn.SetDeadline(time.Time{})
	defer sess.Close()

	for {
		req, err := sess.RecvEnvelope()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.log.Debugf("Peer %v: Connection closed.", rAddr)
			} else {
				instrument.ProtocolError(serviceName)
				s.log.Warningf("Peer %v: Dropping session: %v", rAddr, err)
			}
			return
		}
		instrument.Request(serviceName, req.Verb)

		if req.Verb == commands.Disconnect {
			s.log.Debugf("Peer %v: Disconnected.", rAddr)
			return
		}

		resp := s.dispatch(rAddr, req)
		instrument.Response(serviceName, resp.Verb)
		if err = sess.SendEnvelope(resp); err != nil {
			instrument.ProtocolError(serviceName)
			s.log.Debugf("Peer %v: Failed to send response: %v", rAddr, err)
			return
		}
	}
}
