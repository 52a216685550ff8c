// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package snapshot persists opaque catalog snapshots in a bolt database.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket  = "metadata"
	snapshotsBucket = "snapshots"
	versionKey      = "version"
	savedAtSuffix   = ".saved_at"

	storeVersion = 0
)

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("snapshot: store closed")

// Store holds named snapshot blobs.  Each Save replaces the previous blob
// of the same name atomically.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(snapshotsBucket)); err != nil {
			return err
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != storeVersion {
				return fmt.Errorf("snapshot: incompatible version: %x", b)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{storeVersion})
	})
}

// Save stores blob under name.
func (s *Store) Save(name string, blob []byte) error {
	if s.db == nil {
		return ErrClosed
	}
	now, err := time.Now().UTC().MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(snapshotsBucket))
		if err := bkt.Put([]byte(name), blob); err != nil {
			return err
		}
		return bkt.Put([]byte(name+savedAtSuffix), now)
	})
}

// Load returns the blob stored under name, or nil if there is none.
func (s *Store) Load(name string) ([]byte, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(snapshotsBucket)).Get([]byte(name)); b != nil {
			out = append([]byte{}, b...)
		}
		return nil
	})
	return out, err
}

// SavedAt returns when name was last saved, or the zero time.
func (s *Store) SavedAt(name string) (time.Time, error) {
	var t time.Time
	if s.db == nil {
		return t, ErrClosed
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotsBucket)).Get([]byte(name + savedAtSuffix))
		if b == nil {
			return nil
		}
		return t.UnmarshalBinary(b)
	})
	return t, err
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.db.Sync()
	err := s.db.Close()
	s.db = nil
	return err
}
