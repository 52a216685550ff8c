// state.go - groupshare authority server state.
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
	"errors"
	"path/filepath"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/authority/catalog"
	"github.com/katzenpost/groupshare/core/worker"
	"github.com/katzenpost/groupshare/internal/instrument"
	"github.com/katzenpost/groupshare/internal/snapshot"
)

const (
	dbFile       = "catalog.db"
	snapshotName = "catalog"
)

var errNoAdminPassword = errors.New("authority: empty catalog and no Bootstrap.AdminPassword configured")

type state struct {
	worker.Worker

	s   *Server
	log *logging.Logger

	store   *snapshot.Store
	catalog *catalog.Catalog

	savedGeneration uint64
}

func (st *state) Halt() {
	st.Worker.Halt()
	st.persist()
	st.store.Close()
}

// persist writes a snapshot if the catalog changed since the last one.
func (st *state) persist() {
	if st.catalog.Generation() == st.savedGeneration {
		return
	}
	blob, gen, err := st.catalog.Snapshot()
	if err == nil {
		err = st.store.Save(snapshotName, blob)
	}
	instrument.Snapshot(serviceName, err == nil)
	if err != nil {
		st.log.Errorf("Failed to persist catalog: %v", err)
		return
	}
	st.savedGeneration = gen
	st.log.Debugf("Persisted catalog generation %d.", gen)
}

func (st *state) restore() error {
	blob, err := st.store.Load(snapshotName)
	if err != nil {
		return err
	}
	if blob == nil {
		st.catalog = catalog.New()
		return nil
	}
	if st.catalog, err = catalog.Restore(blob); err != nil {
		return err
	}
	st.savedGeneration = st.catalog.Generation()
	at, _ := st.store.SavedAt(snapshotName)
	st.log.Noticef("Restored catalog snapshot taken at %v.", at)
	return nil
}

func (st *state) bootstrap() error {
	if !st.catalog.IsEmpty() {
		return nil
	}
	bCfg := st.s.cfg.Bootstrap
	if bCfg.AdminPassword == "" {
		return errNoAdminPassword
	}
	if err := st.catalog.Bootstrap(bCfg.AdminUser, bCfg.AdminPassword); err != nil {
		return err
	}
	st.log.Noticef("Bootstrapped catalog with %s as the %s owner.", bCfg.AdminUser, catalog.AdminGroup)
	st.persist()
	return nil
}

func newState(s *Server) (*state, error) {
	st := new(state)
	st.s = s
	st.log = s.logBackend.GetLogger("authority/state")

	var err error
	st.store, err = snapshot.Open(filepath.Join(s.cfg.Server.DataDir, dbFile))
	if err != nil {
		return nil, err
	}
	if err = st.restore(); err == nil {
		err = st.bootstrap()
	}
	if err != nil {
		st.store.Close()
		return nil, err
	}

	st.Every(s.cfg.Persistence.Interval(), st.persist)
	return st, nil
}
