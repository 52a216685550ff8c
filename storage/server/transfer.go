// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/katzenpost/groupshare/core/crypto/groupcipher"
	"github.com/katzenpost/groupshare/core/wire/commands"
	"github.com/katzenpost/groupshare/internal/instrument"
	"github.com/katzenpost/groupshare/storage/index"
)

// Request field layouts, the requester's token is always last:
//
//	LFILES    token
//	UPLOADF   path, group, key, iv, token
//	DOWNLOADF path, key, iv, token
//	DELETEF   path, token
//	CHUNK     data, n

func (c *connHandler) onListFiles(req *commands.Envelope) error {
	if req.IsNull(0) {
		return c.reply(commands.FailBadContents)
	}
	claims, err := c.claims(req, 0)
	if err != nil {
		c.log.Debugf("Peer %v: LFILES with invalid token: %v", c.rAddr, err)
		return c.reply(commands.FailBadToken, err.Error())
	}
	paths := c.s.state.index.Visible(claims.Groups)
	if !commands.ListFits(paths) {
		c.log.Warningf("Peer %v: %d visible paths exceed the reply limit", c.rAddr, len(paths))
		return c.reply(commands.FailTooLarge)
	}
	return c.reply(commands.OK, paths)
}

func (c *connHandler) onUpload(req *commands.Envelope) error {
	if req.Len() < 5 {
		return c.reply(commands.FailBadContents)
	}
	for i, tag := range []string{
		commands.FailBadPath,
		commands.FailBadGroup,
		commands.FailBadKey,
		commands.FailBadIV,
		commands.FailBadToken,
	} {
		if req.IsNull(i) {
			return c.reply(tag)
		}
	}
	var path, group string
	var key, iv []byte
	if req.Field(0, &path) != nil || path == "" {
		return c.reply(commands.FailBadPath)
	}
	if req.Field(1, &group) != nil || group == "" {
		return c.reply(commands.FailBadGroup)
	}
	if req.Field(2, &key) != nil || len(key) != groupcipher.KeySize {
		return c.reply(commands.FailBadKey)
	}
	if req.Field(3, &iv) != nil || len(iv) != groupcipher.IVSize {
		return c.reply(commands.FailBadIV)
	}
	claims, err := c.claims(req, 4)
	if err != nil {
		c.log.Debugf("Peer %v: UPLOADF with invalid token: %v", c.rAddr, err)
		return c.reply(commands.FailBadToken, err.Error())
	}
	st := c.s.state
	if st.index.Exists(path) {
		return c.reply(commands.FailFileExists)
	}
	if !claims.HasGroup(group) {
		c.log.Debugf("Peer %v: %s may not write to %s", c.rAddr, claims.Subject, group)
		return c.reply(commands.FailUnauthorized)
	}

	object, f, w, err := st.sealObject(group, key, iv)
	if err != nil {
		c.log.Errorf("Failed to create object for %s: %v", path, err)
		return c.reply(commands.ErrorTransfer)
	}

	committed := false
	defer func() {
		f.Close()
		if !committed {
			st.removeObject(group, object)
		}
	}()

	if err = c.reply(commands.Ready); err != nil {
		return err
	}
	var size int64
	for {
		msg, err := c.recv()
		if err != nil {
			return err
		}

		switch msg.Verb {
		case commands.Chunk:
			var data []byte
			var n int
			if msg.Field(0, &data) != nil || msg.Field(1, &n) != nil ||
				n < 0 || n > len(data) || n > commands.MaxChunkLength {
				c.log.Debugf("Peer %v: Malformed chunk for %s", c.rAddr, path)
				return c.reply(commands.ErrorTransfer)
			}
			if _, err = w.Write(data[:n]); err != nil {
				c.log.Errorf("Failed to write %s: %v", path, err)
				return c.reply(commands.ErrorTransfer)
			}
			size += int64(n)
			instrument.Transfer(instrument.DirectionIn, n)
			if err = c.reply(commands.Ready); err != nil {
				return err
			}
		case commands.EOF:
			if err = w.Close(); err == nil {
				err = f.Sync()
			}
			if err == nil {
				err = st.index.Add(&index.File{
					Path:    path,
					Group:   group,
					Owner:   claims.Subject,
					Object:  object,
					Size:    size,
					Created: time.Now(),
				})
			}
			if err != nil {
				c.log.Errorf("Failed to commit %s: %v", path, err)
				return c.reply(commands.ErrorTransfer)
			}
			committed = true
			c.log.Noticef("Stored %s (%d bytes) for %s in %s.", path, size, claims.Subject, group)
			return c.reply(commands.OK)
		default:
			c.log.Debugf("Peer %v: Upload of %s aborted by %q", c.rAddr, path, msg.Verb)
			return c.reply(commands.ErrorTransfer)
		}
	}
}

func (c *connHandler) onDownload(req *commands.Envelope) error {
	if req.Len() < 4 || req.IsNull(0) || req.IsNull(1) || req.IsNull(2) || req.IsNull(3) {
		return c.reply(commands.FailBadContents)
	}
	var path string
	var key, iv []byte
	if req.Field(0, &path) != nil {
		return c.reply(commands.FailBadPath)
	}
	if req.Field(1, &key) != nil || len(key) != groupcipher.KeySize {
		return c.reply(commands.FailBadKey)
	}
	if req.Field(2, &iv) != nil || len(iv) != groupcipher.IVSize {
		return c.reply(commands.FailBadIV)
	}
	claims, err := c.claims(req, 3)
	if err != nil {
		c.log.Debugf("Peer %v: DOWNLOADF with invalid token: %v", c.rAddr, err)
		return c.reply(commands.FailBadToken, err.Error())
	}

	st := c.s.state
	sf, err := st.index.Get(path)
	if err != nil {
		return c.reply(commands.ErrorFileMissing)
	}
	if !claims.HasGroup(sf.Group) {
		c.log.Debugf("Peer %v: %s may not read %s", c.rAddr, claims.Subject, path)
		return c.reply(commands.ErrorPermission)
	}
	f, r, err := st.unsealObject(sf, key, iv)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.log.Warningf("Object for %s missing from disk", path)
			return c.reply(commands.ErrorNotOnDisk)
		}
		c.log.Errorf("Failed to open %s: %v", path, err)
		return c.reply(commands.ErrorTransfer)
	}
	defer f.Close()

	buf := make([]byte, commands.MaxChunkLength)
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			c.log.Debugf("Peer %v: Failed to decrypt %s: %v", c.rAddr, path, err)
			return c.reply(commands.ErrorTransfer)
		}
		if n > 0 {
			if sendErr := c.reply(commands.Chunk, buf[:n], n); sendErr != nil {
				return sendErr
			}
			instrument.Transfer(instrument.DirectionOut, n)
			ack, recvErr := c.recv()
			if recvErr != nil {
				return recvErr
			}
			if ack.Verb != commands.DownloadFile {
				c.log.Debugf("Peer %v: Download of %s aborted by %q", c.rAddr, path, ack.Verb)
				return nil
			}
		}
		if err != nil {
			break
		}
	}

	if err := c.reply(commands.EOF); err != nil {
		return err
	}
	ack, err := c.recv()
	if err != nil {
		return err
	}
	if ack.Verb != commands.OK {
		c.log.Debugf("Peer %v: Download of %s not acknowledged: %q", c.rAddr, path, ack.Verb)
	}
	return nil
}

func (c *connHandler) onDelete(req *commands.Envelope) error {
	if req.Len() < 2 || req.IsNull(0) || req.IsNull(1) {
		return c.reply(commands.FailBadContents)
	}
	path := req.String(0)
	claims, err := c.claims(req, 1)
	if err != nil {
		c.log.Debugf("Peer %v: DELETEF with invalid token: %v", c.rAddr, err)
		return c.reply(commands.FailBadToken, err.Error())
	}

	st := c.s.state
	sf, err := st.index.Get(path)
	if err != nil {
		return c.reply(commands.ErrorFileMissing)
	}
	if !claims.HasGroup(sf.Group) {
		return c.reply(commands.ErrorPermission)
	}
	if err = st.removeObject(sf.Group, sf.Object); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c.reply(commands.ErrorNotOnDisk)
		}
		c.log.Errorf("Failed to delete %s: %v", path, err)
		return c.reply(commands.ErrorDelete)
	}
	if err = st.index.Remove(path); err != nil {
		return c.reply(commands.ErrorFileMissing)
	}
	c.log.Noticef("Deleted %s for %s.", path, claims.Subject)
	return c.reply(commands.OK)
}
