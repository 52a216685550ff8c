//go:build !pyroscope
// +build !pyroscope

// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package profiling optionally starts continuous profiling.  It is a no-op
// unless built with the pyroscope tag.
package profiling

import "gopkg.in/op/go-logging.v1"

// Start does nothing.
func Start(log *logging.Logger, service string) error {
	log.Debugf("Pyroscope is disabled for %s", service)
	return nil
}
