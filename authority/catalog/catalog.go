// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package catalog is the authority's user and group catalog.
//
// A Catalog is a single mutex guarded value handed explicitly to every
// connection handler.  Each exported method is one critical section: the
// authorization decision and every record it touches are evaluated under
// the same lock, so compound updates such as the user deletion cascade are
// observed atomically by other connections.  Nothing is rolled back when a
// later step of a cascade fails.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/secure/precis"

	"github.com/katzenpost/groupshare/core/crypto/groupcipher"
)

// AdminGroup is the distinguished group whose members may manage users and
// any group regardless of ownership.
const AdminGroup = "ADMIN"

// User is a catalog user record.
type User struct {
	Name     string
	Password *Verifier
	Groups   map[string]bool
	Owned    map[string]bool
}

// Group is a catalog group record.
type Group struct {
	Name    string
	Owner   string
	Members map[string]bool
	Key     []byte
	IV      []byte
}

// Catalog holds every user and group.
type Catalog struct {
	sync.Mutex

	users  map[string]*User
	groups map[string]*Group

	generation uint64
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		users:  make(map[string]*User),
		groups: make(map[string]*Group),
	}
}

// NormalizeUser maps a user name to its canonical form.
func NormalizeUser(name string) (string, error) {
	s, err := precis.UsernameCaseMapped.String(name)
	if err != nil || s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return s, nil
}

// NormalizeGroup validates a group name, preserving case.
func NormalizeGroup(name string) (string, error) {
	s, err := precis.UsernameCasePreserved.String(name)
	if err != nil || s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return s, nil
}

// Generation increases on every mutation, and lets the persistence worker
// skip snapshots of an unchanged catalog.
func (c *Catalog) Generation() uint64 {
	c.Lock()
	defer c.Unlock()
	return c.generation
}

func (c *Catalog) touch() {
	c.generation++
}

// IsEmpty returns true if the catalog has no users.
func (c *Catalog) IsEmpty() bool {
	c.Lock()
	defer c.Unlock()
	return len(c.users) == 0
}

// Bootstrap creates the first user as sole member and owner of ADMIN.
func (c *Catalog) Bootstrap(admin, password string) error {
	name, err := NormalizeUser(admin)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()

	if len(c.users) != 0 || len(c.groups) != 0 {
		return ErrNotEmpty
	}
	if err := c.addUserLocked(name, password); err != nil {
		return err
	}
	return c.createGroupLocked(name, AdminGroup)
}

// Login verifies a password and returns a snapshot of the user's groups.
func (c *Catalog) Login(user, password string) (string, []string, error) {
	name, err := NormalizeUser(user)
	if err != nil {
		return "", nil, ErrBadCredentials
	}

	c.Lock()
	defer c.Unlock()

	u, ok := c.users[name]
	if !ok || !u.Password.matches(password) {
		return "", nil, ErrBadCredentials
	}
	return name, sortedKeys(u.Groups), nil
}

// UserGroups returns the user's current groups.
func (c *Catalog) UserGroups(user string) ([]string, error) {
	c.Lock()
	defer c.Unlock()

	u, ok := c.users[user]
	if !ok {
		return nil, ErrNoSuchUser
	}
	return sortedKeys(u.Groups), nil
}

// IsAdmin returns true if the user is currently a member of ADMIN.
func (c *Catalog) IsAdmin(user string) bool {
	c.Lock()
	defer c.Unlock()
	return c.isAdminLocked(user)
}

// CreateUser adds a user.  The requester must be in ADMIN.
func (c *Catalog) CreateUser(requester, user, password string) error {
	name, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()

	if err := c.requireAdminLocked(requester); err != nil {
		return err
	}
	return c.addUserLocked(name, password)
}

// DeleteUser removes a user and cascades.  The requester must be in ADMIN.
//
// The user first leaves every group it belongs to, which deletes any group
// it owns along with its members' membership records.  Any owned group
// still left is then deleted the same way, and finally the user record.
func (c *Catalog) DeleteUser(requester, user string) error {
	name, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()

	if err := c.requireAdminLocked(requester); err != nil {
		return err
	}
	u, ok := c.users[name]
	if !ok {
		return ErrNoSuchUser
	}
	if g, ok := c.groups[AdminGroup]; ok && g.Owner == name {
		return ErrProtected
	}

	for _, g := range sortedKeys(u.Groups) {
		c.removeMemberLocked(name, g)
	}
	for _, g := range sortedKeys(u.Owned) {
		if _, ok := c.groups[g]; ok {
			c.deleteGroupLocked(g)
		}
	}
	delete(c.users, name)
	c.touch()
	return nil
}

// CreateGroup creates a group owned by the requester, who becomes its sole
// member.  The name must already be in canonical form, since every later
// lookup, token group list and storage object refers to it verbatim.
func (c *Catalog) CreateGroup(requester, group string) error {
	name, err := NormalizeGroup(group)
	if err != nil {
		return err
	}
	if name != group {
		return fmt.Errorf("%w: %q is not canonical, use %q", ErrInvalidName, group, name)
	}

	c.Lock()
	defer c.Unlock()

	if _, ok := c.users[requester]; !ok {
		return ErrPermissionDenied
	}
	return c.createGroupLocked(requester, name)
}

// DeleteGroup deletes a group.  The requester must own it or be in ADMIN.
func (c *Catalog) DeleteGroup(requester, group string) error {
	c.Lock()
	defer c.Unlock()

	if _, err := c.requireManagerLocked(requester, group); err != nil {
		return err
	}
	if group == AdminGroup {
		return ErrProtected
	}
	c.deleteGroupLocked(group)
	return nil
}

// Members lists a group's members.  The requester must own the group or be
// in ADMIN.  An empty list is a valid result.
func (c *Catalog) Members(requester, group string) ([]string, error) {
	c.Lock()
	defer c.Unlock()

	g, err := c.requireManagerLocked(requester, group)
	if err != nil {
		return nil, err
	}
	return sortedKeys(g.Members), nil
}

// AddMember adds a user to a group.  The requester must own the group or be
// in ADMIN.
func (c *Catalog) AddMember(requester, user, group string) error {
	name, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()

	g, err := c.requireManagerLocked(requester, group)
	if err != nil {
		return err
	}
	u, ok := c.users[name]
	if !ok {
		return ErrNoSuchUser
	}
	if g.Members[name] {
		return ErrAlreadyMember
	}
	g.Members[name] = true
	u.Groups[group] = true
	c.touch()
	return nil
}

// RemoveMember removes a user from a group.  The requester must own the
// group or be in ADMIN.  Removing the owner deletes the group.
func (c *Catalog) RemoveMember(requester, user, group string) error {
	name, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()

	g, err := c.requireManagerLocked(requester, group)
	if err != nil {
		return err
	}
	if _, ok := c.users[name]; !ok {
		return ErrNoSuchUser
	}
	if !g.Members[name] {
		return ErrNotMember
	}
	if group == AdminGroup && g.Owner == name {
		return ErrProtected
	}
	c.removeMemberLocked(name, group)
	return nil
}

// Owner returns a group's owner.
func (c *Catalog) Owner(group string) (string, error) {
	c.Lock()
	defer c.Unlock()

	g, ok := c.groups[group]
	if !ok {
		return "", ErrNoSuchGroup
	}
	return g.Owner, nil
}

// GroupExists returns true if the group exists.
func (c *Catalog) GroupExists(group string) bool {
	c.Lock()
	defer c.Unlock()
	_, ok := c.groups[group]
	return ok
}

// UserExists returns true if the normalized user exists.
func (c *Catalog) UserExists(user string) bool {
	c.Lock()
	defer c.Unlock()
	_, ok := c.users[user]
	return ok
}

// GroupKey returns copies of a group's file key and IV.
func (c *Catalog) GroupKey(group string) ([]byte, []byte, error) {
	c.Lock()
	defer c.Unlock()

	g, ok := c.groups[group]
	if !ok {
		return nil, nil, ErrNoSuchGroup
	}
	return append([]byte{}, g.Key...), append([]byte{}, g.IV...), nil
}

func (c *Catalog) isAdminLocked(user string) bool {
	u, ok := c.users[user]
	return ok && u.Groups[AdminGroup]
}

func (c *Catalog) requireAdminLocked(requester string) error {
	if !c.isAdminLocked(requester) {
		return ErrPermissionDenied
	}
	return nil
}

func (c *Catalog) requireManagerLocked(requester, group string) (*Group, error) {
	if _, ok := c.users[requester]; !ok {
		return nil, ErrPermissionDenied
	}
	g, ok := c.groups[group]
	if !ok {
		return nil, ErrNoSuchGroup
	}
	if g.Owner != requester && !c.isAdminLocked(requester) {
		return nil, ErrPermissionDenied
	}
	return g, nil
}

func (c *Catalog) addUserLocked(name, password string) error {
	if _, ok := c.users[name]; ok {
		return ErrUserExists
	}
	v, err := newVerifier(password)
	if err != nil {
		return err
	}
	c.users[name] = &User{
		Name:     name,
		Password: v,
		Groups:   make(map[string]bool),
		Owned:    make(map[string]bool),
	}
	c.touch()
	return nil
}

func (c *Catalog) createGroupLocked(owner, name string) error {
	if _, ok := c.groups[name]; ok {
		return ErrGroupExists
	}
	key, iv, err := groupcipher.NewKey()
	if err != nil {
		return err
	}
	c.groups[name] = &Group{
		Name:    name,
		Owner:   owner,
		Members: map[string]bool{owner: true},
		Key:     key,
		IV:      iv,
	}
	u := c.users[owner]
	u.Groups[name] = true
	u.Owned[name] = true
	c.touch()
	return nil
}

func (c *Catalog) removeMemberLocked(user, group string) {
	g, ok := c.groups[group]
	if !ok {
		return
	}
	if g.Owner == user {
		c.deleteGroupLocked(group)
		return
	}
	delete(g.Members, user)
	if u, ok := c.users[user]; ok {
		delete(u.Groups, group)
	}
	c.touch()
}

func (c *Catalog) deleteGroupLocked(group string) {
	g := c.groups[group]
	for m := range g.Members {
		if u, ok := c.users[m]; ok {
			delete(u.Groups, group)
		}
	}
	if u, ok := c.users[g.Owner]; ok {
		delete(u.Owned, group)
	}
	delete(c.groups, group)
	c.touch()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
