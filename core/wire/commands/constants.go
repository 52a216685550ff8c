// SPDX-FileCopyrightText: Copyright (C) 2017  David Anthony Stainton, Yawning Angel
// SPDX-License-Identifier: AGPL-3.0-only

// Package commands implements the application level envelope exchanged over
// an established wire session, along with the verb and status vocabulary.
package commands

import "strings"

// Request verbs.
const (
	Get            = "GET"
	CreateUser     = "CUSER"
	DeleteUser     = "DUSER"
	CreateGroup    = "CGROUP"
	DeleteGroup    = "DGROUP"
	AddToGroup     = "AUSERTOGROUP"
	RemoveFromGrp  = "RUSERFROMGROUP"
	ListMembers    = "LMEMBERS"
	GetGroupKey    = "GETGROUPKEY"
	ListFiles      = "LFILES"
	UploadFile     = "UPLOADF"
	DownloadFile   = "DOWNLOADF"
	DeleteFile     = "DELETEF"
	Disconnect     = "DISCONNECT"
	HandshakeReply = "RC+1"
)

// Transfer verbs, used in both directions inside an upload or download.
const (
	Chunk = "CHUNK"
	EOF   = "EOF"
	Ready = "READY"
)

// Response status tags.
const (
	OK   = "OK"
	Fail = "FAIL"

	FailBadMessage   = "FAIL-BADMSG"
	FailBadContents  = "FAIL-BADCONTENTS"
	FailBadPath      = "FAIL-BADPATH"
	FailBadGroup     = "FAIL-BADGROUP"
	FailBadKey       = "FAIL-BADKEY"
	FailBadIV        = "FAIL-BADIV"
	FailBadToken     = "FAIL-BADTOKEN"
	FailFileExists   = "FAIL-FILEEXISTS"
	FailUnauthorized = "FAIL-UNAUTHORIZED"
	FailTooLarge     = "FAIL-TOOLARGE"

	ErrorTransfer    = "ERROR-TRANSFER"
	ErrorFileMissing = "ERROR_FILEMISSING"
	ErrorPermission  = "ERROR_PERMISSION"
	ErrorNotOnDisk   = "ERROR_NOTONDISK"
	ErrorDelete      = "ERROR_DELETE"
)

const (
	// MaxChunkLength is the largest file chunk carried by a single CHUNK
	// envelope.
	MaxChunkLength = 4096

	// MaxListEntries is the largest array a peer will decode.
	MaxListEntries = 1 << 16

	// MaxListLength bounds the total path bytes of one LFILES reply, leaving
	// headroom below the wire frame limit for encoding and sealing.
	MaxListLength = 1 << 19
)

// ListFits returns true if paths can be carried in a single reply envelope.
func ListFits(paths []string) bool {
	if len(paths) > MaxListEntries {
		return false
	}
	n := 0
	for _, p := range paths {
		// Each CBOR text string carries at most a 9 byte header.
		n += len(p) + 9
		if n > MaxListLength {
			return false
		}
	}
	return true
}

// IsRejection returns true for the FAIL and ERROR families of status tags.
func IsRejection(status string) bool {
	return strings.HasPrefix(status, Fail) || strings.HasPrefix(status, "ERROR")
}
