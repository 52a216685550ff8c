// server.go - groupshare storage server.
// Copyright (C) 2017  Yawning Angel.
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

// Package server implements the groupshare storage server, which holds group
// encrypted file content and serves it to holders of capability tokens bound
// to its identity.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/katzenpost/hpqc/hash"
	"github.com/katzenpost/hpqc/kem"
	"github.com/katzenpost/hpqc/sign"
	signpem "github.com/katzenpost/hpqc/sign/pem"
	"golang.org/x/net/netutil"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/storage/server/config"
	"github.com/katzenpost/groupshare/core/crypto/keys"
	"github.com/katzenpost/groupshare/core/log"
	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/internal/instrument"
	"github.com/katzenpost/groupshare/internal/profiling"
)

const serviceName = "storage"

// ErrGenerateOnly is the error returned when the server initialization
// terminates due to the `GenerateOnly` debug config option.
var ErrGenerateOnly = errors.New("server: GenerateOnly set")

// Server is a storage server instance.
type Server struct {
	sync.WaitGroup

	cfg *config.Config

	authorityKey sign.PublicKey
	linkKey      kem.PrivateKey

	logBackend *log.Backend
	log        *logging.Logger

	state     *state
	listeners []net.Listener
	metrics   *instrument.MetricsServer

	connsLock sync.Mutex
	conns     map[net.Conn]bool

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initDataDir() error {
	const dirMode = os.ModeDir | 0700
	d := s.cfg.Server.DataDir

	// Initialize the data directory, by ensuring that it exists (or can be
	// created), and that it has the appropriate permissions.
	if fi, err := os.Lstat(d); err != nil {
		// Directory doesn't exist, create one.
		if !os.IsNotExist(err) {
			return fmt.Errorf("storage: failed to stat() DataDir: %v", err)
		}
		if err = os.Mkdir(d, dirMode); err != nil {
			return fmt.Errorf("storage: failed to create DataDir: %v", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("storage: DataDir '%v' is not a directory", d)
		}
		if fi.Mode() != dirMode {
			return fmt.Errorf("storage: DataDir '%v' has invalid permissions '%v', should be '%v'", d, fi.Mode(), dirMode)
		}
	}

	return nil
}

func (s *Server) initLogging() error {
	p := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && s.cfg.Logging.File != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.cfg.Server.DataDir, p)
		}
	}

	var err error
	s.logBackend, err = log.New(p, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger(serviceName)
	}
	return err
}

// Identifier returns the identity string tokens must be bound to.
func (s *Server) Identifier() string {
	return s.cfg.Server.Identifier
}

// LinkKey returns the running Server's link public key.
func (s *Server) LinkKey() kem.PublicKey {
	return s.linkKey.Public()
}

// Addrs returns the addresses the server is listening on.
func (s *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		if l != nil {
			addrs = append(addrs, l.Addr())
		}
	}
	return addrs
}

// RotateLog rotates the log file
// if logging to a file is enabled.
func (s *Server) RotateLog() {
	if err := s.logBackend.Rotate(); err != nil {
		s.fatal(fmt.Errorf("failed to rotate log file, shutting down server: %v", err))
		return
	}
	s.log.Notice("Log rotated.")
}

// fatal asks the error watcher to shut the server down.  It is a no-op once
// the server has halted.
func (s *Server) fatal(err error) {
	select {
	case s.fatalErrCh <- err:
	case <-s.haltedCh:
	}
}

// Wait waits till the server is terminated for any reason.
func (s *Server) Wait() {
	<-s.haltedCh
}

// Shutdown cleanly shuts down a given Server instance.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) listenWorker(l net.Listener) {
	addr := l.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer func() {
		s.log.Noticef("Stopping listening on: %v", addr)
		l.Close()
		s.Done()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if e, ok := err.(net.Error); ok && !e.Timeout() {
				s.log.Errorf("Critical accept failure: %v", err)
				return
			}
			continue
		}

		s.Add(1)
		go s.onConn(conn)
	}

	// NOTREACHED
}

func (s *Server) trackConn(conn net.Conn, active bool) {
	s.connsLock.Lock()
	defer s.connsLock.Unlock()
	if active {
		s.conns[conn] = true
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")

	// Halt the listeners.
	for idx, l := range s.listeners {
		if l != nil {
			l.Close()
		}
		s.listeners[idx] = nil
	}

	// Tear down the connections, and wait for their handlers to return.
	s.connsLock.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsLock.Unlock()
	s.WaitGroup.Wait()

	// Halt the state worker, which writes the final index snapshot.
	if s.state != nil {
		s.state.Halt()
		s.state = nil
	}

	if s.metrics != nil {
		s.metrics.Close()
		s.metrics = nil
	}

	s.log.Notice("Shutdown complete.")
	close(s.haltedCh)
}

// New returns a new Server instance parameterized with the specific
// configuration.
func New(cfg *config.Config) (*Server, error) {
	s := new(Server)
	s.cfg = cfg
	s.conns = make(map[net.Conn]bool)
	s.fatalErrCh = make(chan error)
	s.haltedCh = make(chan interface{})

	// Do the early initialization and bring up logging.
	if err := s.initDataDir(); err != nil {
		return nil, err
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Unsafe Debug logging is enabled.")
	}

	// Initialize the link key, and the pinned authority key if any.
	var err error
	if s.linkKey, err = keys.LinkKey(s.cfg.Server.DataDir, wire.DefaultKEMScheme()); err != nil {
		s.log.Errorf("Failed to initialize link key: %v", err)
		return nil, err
	}
	linkHash := hash.Sum256From(s.linkKey.Public())
	s.log.Noticef("Storage server %s link public key hash is: %x", s.Identifier(), linkHash[:])
	if p := s.cfg.Server.AuthorityPublicKeyPem; p != "" {
		if s.authorityKey, err = signpem.FromPublicPEMFile(p, token.DefaultScheme()); err != nil {
			s.log.Errorf("Failed to load authority public key: %v", err)
			return nil, err
		}
		authHash := hash.Sum256From(s.authorityKey)
		s.log.Noticef("Pinned authority identity public key hash: %x", authHash[:])
	} else {
		s.log.Warning("No AuthorityPublicKeyPem configured, trusting the key forwarded by each client.")
	}

	if s.cfg.Debug.GenerateOnly {
		return nil, ErrGenerateOnly
	}

	// Past this point, failures need to call s.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			s.Shutdown()
		}
	}()

	// Start the fatal error watcher.
	go func() {
		select {
		case err := <-s.fatalErrCh:
			s.log.Warningf("Shutting down due to error: %v", err)
			s.Shutdown()
		case <-s.haltedCh:
		}
	}()

	if err := profiling.Start(s.log, serviceName); err != nil {
		s.log.Warningf("Failed to start profiler: %v", err)
	}

	// Start up the state worker.
	if s.state, err = newState(s); err != nil {
		return nil, err
	}

	if addr := s.cfg.Metrics.Address; addr != "" {
		if s.metrics, err = instrument.Serve(addr, s.logBackend.GetGoLogger("storage/metrics", "ERROR")); err != nil {
			s.log.Errorf("Failed to start metrics listener '%v': %v", addr, err)
			return nil, err
		}
		s.log.Noticef("Serving metrics on: %v", s.metrics.Addr())
	}

	// Start up the listeners.
	for _, v := range s.cfg.Server.Addresses {
		l, err := net.Listen("tcp", v)
		if err != nil {
			s.log.Errorf("Failed to start listener '%v': %v", v, err)
			continue
		}
		if n := s.cfg.Server.MaxConnections; n > 0 {
			l = netutil.LimitListener(l, n)
		}
		s.listeners = append(s.listeners, l)
		s.Add(1)
		go s.listenWorker(l)
	}
	if len(s.listeners) == 0 {
		s.log.Errorf("Failed to start all listeners.")
		return nil, fmt.Errorf("storage: failed to start all listeners")
	}

	isOk = true
	return s, nil
}
