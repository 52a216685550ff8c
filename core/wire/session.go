// session.go - Wire protocol session.
// Copyright (C) 2017  David Anthony Stainton, Yawning Angel
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

// Package wire implements the groupshare wire protocol: a KEM bootstrapped
// handshake followed by an encrypted, authenticated and sequence checked
// envelope exchange.
package wire

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/katzenpost/groupshare/core/wire/commands"
)

const (
	stateInit        uint32 = 0
	stateEstablished uint32 = 1
	stateInvalid     uint32 = 2
)

// SecureTransport is the interface composed into every client role and
// server connection handler.
type SecureTransport interface {
	// SendEnvelope stamps env with the next sequence number and sends it.
	SendEnvelope(env *commands.Envelope) error

	// RecvEnvelope receives and verifies the next envelope.
	RecvEnvelope() (*commands.Envelope, error)

	// Exchange sends req and returns the peer's reply.
	Exchange(req *commands.Envelope) (*commands.Envelope, error)

	// Close tears down the session and the underlying connection.
	Close() error
}

// Session is a wire protocol session.  Every envelope is carried as two
// frames: the ciphertext followed by its MAC tag.
type Session struct {
	sync.Mutex

	conn        net.Conn
	ch          *SymmetricChannel
	peer        PeerInfo
	isInitiator bool

	state     atomic.Uint32
	closeOnce sync.Once
}

var _ SecureTransport = (*Session)(nil)

func newSession(conn net.Conn, isInitiator bool) *Session {
	s := &Session{
		conn:        conn,
		isInitiator: isInitiator,
	}
	s.state.Store(stateInit)
	return s
}

// Peer returns what the handshake learned about the peer.
func (s *Session) Peer() *PeerInfo {
	return &s.peer
}

// RemoteAddr returns the peer's network address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Seq returns the current sequence counter.
func (s *Session) Seq() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.ch.Seq()
}

// SendEnvelope implements SecureTransport.
func (s *Session) SendEnvelope(env *commands.Envelope) error {
	if s.state.Load() != stateEstablished {
		return ErrInvalidState
	}
	return s.sendEnvelope(env)
}

// RecvEnvelope implements SecureTransport.
func (s *Session) RecvEnvelope() (*commands.Envelope, error) {
	if s.state.Load() != stateEstablished {
		return nil, ErrInvalidState
	}
	return s.recvEnvelope()
}

// Exchange implements SecureTransport.
func (s *Session) Exchange(req *commands.Envelope) (*commands.Envelope, error) {
	if err := s.SendEnvelope(req); err != nil {
		return nil, err
	}
	return s.RecvEnvelope()
}

// Close implements SecureTransport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(stateInvalid)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) sendEnvelope(env *commands.Envelope) error {
	s.Lock()
	defer s.Unlock()

	s.ch.Advance()
	env.Seq = s.ch.Seq()
	ct, err := s.ch.Encrypt(env)
	if err != nil {
		return s.fatal("send", err)
	}
	tag, err := s.ch.Digest(env)
	if err != nil {
		return s.fatal("send", err)
	}
	if err := writeFrame(s.conn, ct); err != nil {
		return s.fatal("send", err)
	}
	if err := writeFrame(s.conn, tag); err != nil {
		return s.fatal("send", err)
	}
	return nil
}

func (s *Session) recvEnvelope() (*commands.Envelope, error) {
	s.Lock()
	defer s.Unlock()

	ct, err := readFrame(s.conn)
	if err != nil {
		return nil, s.fatal("receive", err)
	}
	tag, err := readFrame(s.conn)
	if err != nil {
		return nil, s.fatal("receive", err)
	}
	env, err := s.ch.Decrypt(ct)
	if err != nil {
		return nil, s.fatal("receive", err)
	}
	if !s.ch.Verify(env, tag, s.ch.Seq()+1) {
		return nil, s.fatal("receive", ErrVerificationFailed)
	}
	s.ch.Advance()
	return env, nil
}

// fatal invalidates the session.  Every error on an established session is
// unrecoverable since the peers' counters can no longer be in lockstep.
func (s *Session) fatal(op string, err error) error {
	s.closeOnce.Do(func() {
		s.state.Store(stateInvalid)
		s.conn.Close()
	})
	return &ProtocolError{
		Op:         op,
		Err:        err,
		RemoteAddr: remoteAddr(s.conn),
	}
}
