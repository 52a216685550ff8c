// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package index is the storage server's file index, mapping logical paths
// to the group that owns them and the on-disk object holding their bytes.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const snapshotVersion = 0

var (
	// ErrExists is returned when adding a path that is already indexed.
	ErrExists = errors.New("index: file exists")

	// ErrNotFound is returned for paths that are not indexed.
	ErrNotFound = errors.New("index: file not found")
)

// File is an index entry.
type File struct {
	Path    string
	Group   string
	Owner   string
	Object  string
	Size    int64
	Created time.Time
}

// Index is the mutex guarded set of files.
type Index struct {
	sync.Mutex

	files      map[string]*File
	generation uint64
}

// New returns an empty index.
func New() *Index {
	return &Index{
		files: make(map[string]*File),
	}
}

// Add indexes f.
func (x *Index) Add(f *File) error {
	x.Lock()
	defer x.Unlock()

	if _, ok := x.files[f.Path]; ok {
		return ErrExists
	}
	c := *f
	x.files[f.Path] = &c
	x.generation++
	return nil
}

// Exists returns true if path is indexed.
func (x *Index) Exists(path string) bool {
	x.Lock()
	defer x.Unlock()

	_, ok := x.files[path]
	return ok
}

// Get returns a copy of the entry for path.
func (x *Index) Get(path string) (*File, error) {
	x.Lock()
	defer x.Unlock()

	f, ok := x.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	c := *f
	return &c, nil
}

// Remove drops the entry for path.
func (x *Index) Remove(path string) error {
	x.Lock()
	defer x.Unlock()

	if _, ok := x.files[path]; !ok {
		return ErrNotFound
	}
	delete(x.files, path)
	x.generation++
	return nil
}

// Visible returns the sorted paths of every file owned by one of groups.
func (x *Index) Visible(groups []string) []string {
	set := make(map[string]bool, len(groups))
	for _, g := range groups {
		set[g] = true
	}

	x.Lock()
	defer x.Unlock()

	paths := []string{}
	for p, f := range x.files {
		if set[f.Group] {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of indexed files.
func (x *Index) Len() int {
	x.Lock()
	defer x.Unlock()
	return len(x.files)
}

// Generation increases on every mutation.
func (x *Index) Generation() uint64 {
	x.Lock()
	defer x.Unlock()
	return x.generation
}

type snapshot struct {
	Version int
	Files   []File
}

// Snapshot serializes the index, and returns the generation it captures.
func (x *Index) Snapshot() ([]byte, uint64, error) {
	x.Lock()
	defer x.Unlock()

	s := &snapshot{Version: snapshotVersion}
	paths := make([]string, 0, len(x.files))
	for p := range x.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		s.Files = append(s.Files, *x.files[p])
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, 0, err
	}
	b, err := enc.Marshal(s)
	if err != nil {
		return nil, 0, err
	}
	return b, x.generation, nil
}

// Restore rebuilds an index from a Snapshot blob.
func Restore(b []byte) (*Index, error) {
	s := new(snapshot)
	if err := cbor.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("index: failed to decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("index: snapshot version %d not supported", s.Version)
	}
	x := New()
	for i := range s.Files {
		f := s.Files[i]
		x.files[f.Path] = &f
	}
	return x, nil
}
