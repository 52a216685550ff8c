// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !unix

package compat

// Umask is a no-op on platforms without a umask.
func Umask(mask int) int {
	return 0
}
