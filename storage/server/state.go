// state.go - groupshare storage server state.
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

package server

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/core/crypto/groupcipher"
	"github.com/katzenpost/groupshare/core/worker"
	"github.com/katzenpost/groupshare/internal/instrument"
	"github.com/katzenpost/groupshare/internal/snapshot"
	"github.com/katzenpost/groupshare/storage/index"
)

const (
	dbFile       = "files.db"
	snapshotName = "files"
	objectsDir   = "objects"
)

type state struct {
	worker.Worker

	s   *Server
	log *logging.Logger

	store   *snapshot.Store
	index   *index.Index
	objects string

	savedGeneration uint64
}

func (st *state) Halt() {
	st.Worker.Halt()
	st.persist()
	st.store.Close()
}

// persist writes a snapshot if the index changed since the last one.
func (st *state) persist() {
	if st.index.Generation() == st.savedGeneration {
		return
	}
	blob, gen, err := st.index.Snapshot()
	if err == nil {
		err = st.store.Save(snapshotName, blob)
	}
	instrument.Snapshot(serviceName, err == nil)
	if err != nil {
		st.log.Errorf("Failed to persist file index: %v", err)
		return
	}
	st.savedGeneration = gen
	st.log.Debugf("Persisted file index generation %d.", gen)
}

func (st *state) restore() error {
	blob, err := st.store.Load(snapshotName)
	if err != nil {
		return err
	}
	if blob == nil {
		st.index = index.New()
		return nil
	}
	if st.index, err = index.Restore(blob); err != nil {
		return err
	}
	st.savedGeneration = st.index.Generation()
	st.log.Noticef("Restored file index with %d files.", st.index.Len())
	return nil
}

// groupDir maps a group name to a directory name that cannot escape the
// object store.
func groupDir(group string) string {
	if filepath.IsLocal(group) && group != "." && !strings.ContainsAny(group, `/\`) {
		return group
	}
	return "x-" + hex.EncodeToString([]byte(group))
}

func (st *state) objectPath(group, object string) string {
	return filepath.Join(st.objects, groupDir(group), object)
}

// createObject creates a new, empty object file for group.
func (st *state) createObject(group string) (string, *os.File, error) {
	dir := filepath.Join(st.objects, groupDir(group))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	f, err := os.OpenFile(filepath.Join(dir, id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", nil, err
	}
	return id, f, nil
}

// sealObject creates a new object for group and wraps it in an encrypting
// writer.  The object is removed again if the cipher can not be keyed.
func (st *state) sealObject(group string, key, iv []byte) (string, *os.File, io.WriteCloser, error) {
	object, f, err := st.createObject(group)
	if err != nil {
		return "", nil, nil, err
	}
	w, err := groupcipher.NewWriter(f, key, iv)
	if err != nil {
		f.Close()
		st.removeObject(group, object)
		return "", nil, nil, err
	}
	return object, f, w, nil
}

func (st *state) openObject(f *index.File) (*os.File, error) {
	return os.Open(st.objectPath(f.Group, f.Object))
}

// unsealObject opens the object backing f behind a decrypting reader.
func (st *state) unsealObject(f *index.File, key, iv []byte) (*os.File, io.Reader, error) {
	obj, err := st.openObject(f)
	if err != nil {
		return nil, nil, err
	}
	r, err := groupcipher.NewReader(obj, key, iv)
	if err != nil {
		obj.Close()
		return nil, nil, err
	}
	return obj, r, nil
}

func (st *state) removeObject(group, object string) error {
	return os.Remove(st.objectPath(group, object))
}

func newState(s *Server) (*state, error) {
	st := new(state)
	st.s = s
	st.log = s.logBackend.GetLogger("storage/index")
	st.objects = filepath.Join(s.cfg.Server.DataDir, objectsDir)
	if err := os.MkdirAll(st.objects, 0700); err != nil {
		return nil, err
	}

	var err error
	st.store, err = snapshot.Open(filepath.Join(s.cfg.Server.DataDir, dbFile))
	if err != nil {
		return nil, err
	}
	if err = st.restore(); err != nil {
		st.store.Close()
		return nil, err
	}

	st.Every(s.cfg.Persistence.Interval(), st.persist)
	return st, nil
}
