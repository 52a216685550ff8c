// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

//go:build unix

// Package compat hides the platform specific bits the binaries need.
package compat

import "golang.org/x/sys/unix"

// Umask sets the process umask and returns the previous value.
func Umask(mask int) int {
	return unix.Umask(mask)
}
