// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse is returned when a server answers with a verb that
// is not part of the exchange in progress.
var ErrUnexpectedResponse = errors.New("client: unexpected response")

// RemoteError is a rejection by the server.  The session remains usable.
type RemoteError struct {
	// Op is the request verb.
	Op string

	// Status is the response tag, such as FAIL or ERROR_PERMISSION.
	Status string

	// Reason is the optional human readable explanation.
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("client: %s rejected with %s: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("client: %s rejected with %s", e.Op, e.Status)
}

// Status returns the response tag of a RemoteError, or the empty string if
// err is not one.
func Status(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return ""
}
