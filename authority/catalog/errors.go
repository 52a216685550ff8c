// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import "errors"

// Business rule rejections.  None of these are fatal to a session; the
// authority answers them with FAIL and keeps the connection open.
var (
	ErrBadCredentials   = errors.New("catalog: bad credentials")
	ErrPermissionDenied = errors.New("catalog: permission denied")
	ErrNoSuchUser       = errors.New("catalog: no such user")
	ErrUserExists       = errors.New("catalog: user already exists")
	ErrNoSuchGroup      = errors.New("catalog: no such group")
	ErrGroupExists      = errors.New("catalog: group already exists")
	ErrAlreadyMember    = errors.New("catalog: already a member")
	ErrNotMember        = errors.New("catalog: not a member")
	ErrInvalidName      = errors.New("catalog: invalid name")
	ErrProtected        = errors.New("catalog: the ADMIN group and its owner are protected")
	ErrNotEmpty         = errors.New("catalog: catalog already bootstrapped")
)
