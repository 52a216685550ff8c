// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const snapshotVersion = 0

type userRecord struct {
	Name   string
	Salt   []byte
	Hash   []byte
	Groups []string
	Owned  []string
}

type groupRecord struct {
	Name    string
	Owner   string
	Members []string
	Key     []byte
	IV      []byte
}

type snapshot struct {
	Version int
	Users   []userRecord
	Groups  []groupRecord
}

// Snapshot serializes the catalog for persistence.
func (c *Catalog) Snapshot() ([]byte, uint64, error) {
	c.Lock()
	defer c.Unlock()

	s := &snapshot{Version: snapshotVersion}
	for _, name := range sortedUsers(c.users) {
		u := c.users[name]
		s.Users = append(s.Users, userRecord{
			Name:   u.Name,
			Salt:   u.Password.Salt,
			Hash:   u.Password.Hash,
			Groups: sortedKeys(u.Groups),
			Owned:  sortedKeys(u.Owned),
		})
	}
	for _, name := range sortedGroups(c.groups) {
		g := c.groups[name]
		s.Groups = append(s.Groups, groupRecord{
			Name:    g.Name,
			Owner:   g.Owner,
			Members: sortedKeys(g.Members),
			Key:     g.Key,
			IV:      g.IV,
		})
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, 0, err
	}
	b, err := enc.Marshal(s)
	if err != nil {
		return nil, 0, err
	}
	return b, c.generation, nil
}

// Restore rebuilds a catalog from a Snapshot blob.
func Restore(b []byte) (*Catalog, error) {
	s := new(snapshot)
	if err := cbor.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("catalog: failed to decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("catalog: snapshot version %d not supported", s.Version)
	}

	c := New()
	for _, r := range s.Users {
		c.users[r.Name] = &User{
			Name:     r.Name,
			Password: &Verifier{Salt: r.Salt, Hash: r.Hash},
			Groups:   toSet(r.Groups),
			Owned:    toSet(r.Owned),
		}
	}
	for _, r := range s.Groups {
		if _, ok := c.users[r.Owner]; !ok {
			return nil, fmt.Errorf("catalog: group %q has unknown owner %q", r.Name, r.Owner)
		}
		c.groups[r.Name] = &Group{
			Name:    r.Name,
			Owner:   r.Owner,
			Members: toSet(r.Members),
			Key:     r.Key,
			IV:      r.IV,
		}
	}
	return c, nil
}

func toSet(l []string) map[string]bool {
	m := make(map[string]bool, len(l))
	for _, v := range l {
		m[v] = true
	}
	return m
}

func sortedUsers(m map[string]*User) []string {
	set := make(map[string]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return sortedKeys(set)
}

func sortedGroups(m map[string]*Group) []string {
	set := make(map[string]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return sortedKeys(set)
}
