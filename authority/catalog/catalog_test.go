// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import (
	"fmt"
	"testing"

	"github.com/schwarmco/go-cartesian-product"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) *Catalog {
	c := New()
	require.True(t, c.IsEmpty())
	require.NoError(t, c.Bootstrap("admin", "hunter2"))
	require.False(t, c.IsEmpty())

	for _, u := range []string{"owner", "member", "outsider", "target"} {
		require.NoError(t, c.CreateUser("admin", u, u+"-password"))
	}
	require.NoError(t, c.CreateGroup("owner", "proj"))
	require.NoError(t, c.AddMember("owner", "member", "proj"))
	return c
}

func TestBootstrap(t *testing.T) {
	c := New()
	require.NoError(t, c.Bootstrap("Admin", "pw"))
	require.ErrorIs(t, c.Bootstrap("other", "pw"), ErrNotEmpty)

	name, groups, err := c.Login("ADMIN", "pw")
	require.NoError(t, err)
	require.Equal(t, "admin", name)
	require.Equal(t, []string{AdminGroup}, groups)
	require.True(t, c.IsAdmin("admin"))

	owner, err := c.Owner(AdminGroup)
	require.NoError(t, err)
	require.Equal(t, "admin", owner)
}

func TestLogin(t *testing.T) {
	c := newFixture(t)

	_, _, err := c.Login("member", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)
	_, _, err = c.Login("nobody", "member-password")
	require.ErrorIs(t, err, ErrBadCredentials)

	_, groups, err := c.Login("member", "member-password")
	require.NoError(t, err)
	require.Equal(t, []string{"proj"}, groups)
}

func TestCreateUser(t *testing.T) {
	c := newFixture(t)

	require.ErrorIs(t, c.CreateUser("owner", "eve", "pw"), ErrPermissionDenied)
	require.ErrorIs(t, c.CreateUser("admin", "Member", "pw"), ErrUserExists)
	require.ErrorIs(t, c.CreateUser("admin", "", "pw"), ErrInvalidName)
	require.NoError(t, c.CreateUser("admin", "eve", "pw"))
	require.True(t, c.UserExists("eve"))
}

func TestGroupAuthorization(t *testing.T) {
	roles := []interface{}{"admin", "owner", "member", "outsider"}
	ops := []interface{}{"members", "add", "remove", "delete"}

	for p := range cartesian.Iter(roles, ops) {
		role, op := p[0].(string), p[1].(string)
		t.Run(fmt.Sprintf("%s/%s", role, op), func(t *testing.T) {
			c := newFixture(t)

			var err error
			switch op {
			case "members":
				_, err = c.Members(role, "proj")
			case "add":
				err = c.AddMember(role, "target", "proj")
			case "remove":
				err = c.RemoveMember(role, "member", "proj")
			case "delete":
				err = c.DeleteGroup(role, "proj")
			}

			switch role {
			case "admin", "owner":
				require.NoError(t, err)
			default:
				require.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}

func TestMembership(t *testing.T) {
	c := newFixture(t)

	require.ErrorIs(t, c.AddMember("owner", "member", "proj"), ErrAlreadyMember)
	require.ErrorIs(t, c.AddMember("owner", "nobody", "proj"), ErrNoSuchUser)
	require.ErrorIs(t, c.AddMember("owner", "target", "nope"), ErrNoSuchGroup)
	require.ErrorIs(t, c.RemoveMember("owner", "target", "proj"), ErrNotMember)

	members, err := c.Members("owner", "proj")
	require.NoError(t, err)
	require.Equal(t, []string{"member", "owner"}, members)

	require.NoError(t, c.RemoveMember("owner", "member", "proj"))
	groups, err := c.UserGroups("member")
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestGroupNameCanonical(t *testing.T) {
	c := newFixture(t)

	// A name that only normalizes to a valid group is refused, so that
	// every later lookup sees exactly the stored name.
	require.ErrorIs(t, c.CreateGroup("owner", "ｄｏｃｓ"), ErrInvalidName)
	require.False(t, c.GroupExists("docs"))
	require.False(t, c.GroupExists("ｄｏｃｓ"))
	require.ErrorIs(t, c.CreateGroup("owner", "ｐｒｏｊ"), ErrInvalidName)

	require.NoError(t, c.CreateGroup("owner", "docs"))
	require.NoError(t, c.AddMember("owner", "member", "docs"))
	members, err := c.Members("owner", "docs")
	require.NoError(t, err)
	require.Equal(t, []string{"member", "owner"}, members)
	groups, err := c.UserGroups("member")
	require.NoError(t, err)
	require.Equal(t, []string{"docs", "proj"}, groups)
	_, _, err = c.GroupKey("docs")
	require.NoError(t, err)
	require.NoError(t, c.DeleteGroup("owner", "docs"))
	require.False(t, c.GroupExists("docs"))
}

func TestRemoveOwnerDeletesGroup(t *testing.T) {
	c := newFixture(t)

	require.NoError(t, c.RemoveMember("admin", "owner", "proj"))
	require.False(t, c.GroupExists("proj"))

	groups, err := c.UserGroups("member")
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestDeleteUserCascade(t *testing.T) {
	c := newFixture(t)
	require.NoError(t, c.CreateGroup("member", "side"))
	require.NoError(t, c.AddMember("member", "owner", "side"))

	require.ErrorIs(t, c.DeleteUser("owner", "member"), ErrPermissionDenied)
	require.NoError(t, c.DeleteUser("admin", "owner"))

	require.False(t, c.UserExists("owner"))
	require.False(t, c.GroupExists("proj"))

	groups, err := c.UserGroups("member")
	require.NoError(t, err)
	require.Equal(t, []string{"side"}, groups)

	members, err := c.Members("member", "side")
	require.NoError(t, err)
	require.Equal(t, []string{"member"}, members)

	require.ErrorIs(t, c.DeleteUser("admin", "owner"), ErrNoSuchUser)
}

func TestAdminProtected(t *testing.T) {
	c := newFixture(t)
	require.NoError(t, c.AddMember("admin", "target", AdminGroup))

	require.ErrorIs(t, c.DeleteGroup("admin", AdminGroup), ErrProtected)
	require.ErrorIs(t, c.RemoveMember("target", "admin", AdminGroup), ErrProtected)
	require.ErrorIs(t, c.DeleteUser("target", "admin"), ErrProtected)

	require.NoError(t, c.CreateUser("target", "eve", "pw"))
	require.NoError(t, c.RemoveMember("admin", "target", AdminGroup))
	require.False(t, c.IsAdmin("target"))
}

func TestGroupKey(t *testing.T) {
	c := newFixture(t)
	require.ErrorIs(t, c.CreateGroup("owner", "proj"), ErrGroupExists)
	require.ErrorIs(t, c.CreateGroup("nobody", "other"), ErrPermissionDenied)

	key, iv, err := c.GroupKey("proj")
	require.NoError(t, err)
	require.Len(t, key, 32)
	require.Len(t, iv, 16)

	key[0] ^= 0xff
	again, _, err := c.GroupKey("proj")
	require.NoError(t, err)
	require.NotEqual(t, key, again)

	_, _, err = c.GroupKey("nope")
	require.ErrorIs(t, err, ErrNoSuchGroup)
}

func TestSnapshotRestore(t *testing.T) {
	c := newFixture(t)
	gen := c.Generation()

	blob, snapGen, err := c.Snapshot()
	require.NoError(t, err)
	require.Equal(t, gen, snapGen)

	r, err := Restore(blob)
	require.NoError(t, err)

	_, groups, err := r.Login("member", "member-password")
	require.NoError(t, err)
	require.Equal(t, []string{"proj"}, groups)
	require.True(t, r.IsAdmin("admin"))

	k1, iv1, err := c.GroupKey("proj")
	require.NoError(t, err)
	k2, iv2, err := r.GroupKey("proj")
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Equal(t, iv1, iv2)

	again, _, err := r.Snapshot()
	require.NoError(t, err)
	require.Equal(t, blob, again)

	_, err = Restore([]byte{0xff})
	require.Error(t, err)
}
