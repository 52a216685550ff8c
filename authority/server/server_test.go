// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/groupshare/authority/server/config"
	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/core/wire/commands"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	cfg, err := config.Load([]byte(`
[Server]
  Addresses = [ "127.0.0.1:0" ]
  DataDir = "`+dataDir+`"

[Logging]
  Disable = true

[Bootstrap]
  AdminUser = "admin"
  AdminPassword = "hunter2"
`), false)
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, dataDir string) *Server {
	s, err := New(testConfig(t, dataDir))
	require.NoError(t, err)
	return s
}

func dial(t *testing.T, s *Server) *wire.Session {
	conn, err := net.Dial("tcp", s.Addrs()[0].String())
	require.NoError(t, err)
	sess, err := wire.Initiate(conn, &wire.InitiatorConfig{PinnedKey: s.LinkKey()})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func exchange(t *testing.T, sess *wire.Session, verb string, fields ...interface{}) *commands.Envelope {
	resp, err := sess.Exchange(commands.New(verb, fields...))
	require.NoError(t, err)
	return resp
}

func login(t *testing.T, sess *wire.Session, user, password string) []byte {
	resp := exchange(t, sess, commands.Get, user, password, "FilePile4321")
	require.Equal(t, commands.OK, resp.Verb, resp.String(0))
	return resp.Bytes(0)
}

func TestServerTokenIssuance(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "authority"))
	defer s.Shutdown()
	sess := dial(t, s)

	resp := exchange(t, sess, commands.Get, "admin", "wrong", "FilePile4321")
	require.Equal(t, commands.Fail, resp.Verb)

	raw := login(t, sess, "admin", "hunter2")
	tok, err := token.Unmarshal(raw)
	require.NoError(t, err)
	claims, err := token.Verify(tok, s.IdentityKey(), "FilePile4321")
	require.NoError(t, err)
	require.Equal(t, "ALPHA", claims.Issuer)
	require.Equal(t, "admin", claims.Subject)
	require.True(t, claims.HasGroup("ADMIN"))

	_, err = token.Verify(tok, s.IdentityKey(), "FilePile9999")
	require.ErrorIs(t, err, token.ErrWrongAudience)
}

func TestServerOperations(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "authority"))
	defer s.Shutdown()
	sess := dial(t, s)
	admin := login(t, sess, "admin", "hunter2")

	require.Equal(t, commands.OK, exchange(t, sess, commands.CreateUser, "alice", "pw-a", admin).Verb)
	require.Equal(t, commands.OK, exchange(t, sess, commands.CreateUser, "bob", "pw-b", admin).Verb)
	require.Equal(t, commands.Fail, exchange(t, sess, commands.CreateUser, "alice", "pw-a", admin).Verb)

	alice := login(t, sess, "alice", "pw-a")
	require.Equal(t, commands.Fail, exchange(t, sess, commands.CreateUser, "eve", "pw", alice).Verb)
	require.Equal(t, commands.OK, exchange(t, sess, commands.CreateGroup, "proj", alice).Verb)
	require.Equal(t, commands.OK, exchange(t, sess, commands.AddToGroup, "bob", "proj", alice).Verb)

	resp := exchange(t, sess, commands.ListMembers, "proj", alice)
	require.Equal(t, commands.OK, resp.Verb)
	var members []string
	require.NoError(t, resp.Field(0, &members))
	require.Equal(t, []string{"alice", "bob"}, members)

	// The token predates the group, so the group key is refused.
	require.Equal(t, commands.Fail, exchange(t, sess, commands.GetGroupKey, "proj", alice).Verb)
	alice = login(t, sess, "alice", "pw-a")
	resp = exchange(t, sess, commands.GetGroupKey, "proj", alice)
	require.Equal(t, commands.OK, resp.Verb)
	require.Len(t, resp.Bytes(0), 32)
	require.Len(t, resp.Bytes(1), 16)

	bob := login(t, sess, "bob", "pw-b")
	require.Equal(t, commands.Fail, exchange(t, sess, commands.ListMembers, "proj", bob).Verb)
	require.Equal(t, commands.Fail, exchange(t, sess, commands.DeleteGroup, "proj", bob).Verb)

	require.Equal(t, commands.OK, exchange(t, sess, commands.RemoveFromGrp, "bob", "proj", alice).Verb)
	require.Equal(t, commands.OK, exchange(t, sess, commands.DeleteUser, "alice", admin).Verb)
	require.Equal(t, commands.Fail, exchange(t, sess, commands.ListMembers, "proj", admin).Verb)

	resp = exchange(t, sess, "BOGUS")
	require.Equal(t, commands.FailBadMessage, resp.Verb)
	resp = exchange(t, sess, commands.CreateGroup, "side")
	require.Equal(t, commands.Fail, resp.Verb)
	require.NotEmpty(t, resp.String(0))
}

func TestServerRejectsForeignToken(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "authority"))
	defer s.Shutdown()
	sess := dial(t, s)

	_, sk, err := token.DefaultScheme().GenerateKey()
	require.NoError(t, err)
	forged, err := token.Issue(sk, "ALPHA", "admin", []string{"ADMIN"}, "FilePile4321")
	require.NoError(t, err)
	raw, err := forged.Marshal()
	require.NoError(t, err)

	require.Equal(t, commands.Fail, exchange(t, sess, commands.CreateUser, "eve", "pw", raw).Verb)
}

func TestServerPersistence(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "authority")

	s := newTestServer(t, dataDir)
	sess := dial(t, s)
	admin := login(t, sess, "admin", "hunter2")
	require.Equal(t, commands.OK, exchange(t, sess, commands.CreateUser, "carol", "pw-c", admin).Verb)
	require.NoError(t, sess.SendEnvelope(commands.New(commands.Disconnect)))
	idKey := s.IdentityKey()
	s.Shutdown()
	s.Wait()

	s = newTestServer(t, dataDir)
	defer s.Shutdown()
	require.True(t, idKey.Equal(s.IdentityKey()))
	sess = dial(t, s)
	login(t, sess, "carol", "pw-c")
}

func TestServerGenerateOnly(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "authority"))
	cfg.Debug.GenerateOnly = true
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrGenerateOnly)
}

func TestServerRotateLogFailure(t *testing.T) {
	root := t.TempDir()
	logDir := filepath.Join(root, "logs")
	require.NoError(t, os.Mkdir(logDir, 0700))

	cfg := testConfig(t, filepath.Join(root, "authority"))
	cfg.Logging.Disable = false
	cfg.Logging.File = filepath.Join(logDir, "authority.log")
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Shutdown()

	// A log file that cannot be reopened shuts the server down.
	require.NoError(t, os.RemoveAll(logDir))
	s.RotateLog()
	halted := make(chan struct{})
	go func() {
		s.Wait()
		close(halted)
	}()
	select {
	case <-halted:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not halt after a failed log rotation")
	}

	// Further failures after the halt neither block nor panic.
	done := make(chan struct{})
	go func() {
		s.RotateLog()
		s.RotateLog()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("RotateLog blocked on a halted server")
	}
}
