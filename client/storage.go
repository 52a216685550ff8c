// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/sign"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/groupshare/core/token"
	"github.com/katzenpost/groupshare/core/wire"
	"github.com/katzenpost/groupshare/core/wire/commands"
)

// StorageClient is a session with a storage server.
type StorageClient struct {
	t        wire.SecureTransport
	log      *logging.Logger
	serverID string
}

// NewStorageClient wraps an established transport to the storage server
// identified as serverID.
func NewStorageClient(t wire.SecureTransport, serverID string, log *logging.Logger) *StorageClient {
	return &StorageClient{t: t, log: log, serverID: serverID}
}

// DialStorage connects and handshakes with the storage server at addr,
// forwarding authorityKey so the server can verify tokens.
func DialStorage(ctx context.Context, addr string, authorityKey sign.PublicKey, opts *Options) (*StorageClient, error) {
	if authorityKey == nil {
		return nil, errors.New("client: no authority key to forward")
	}
	sess, err := dial(ctx, addr, &wire.InitiatorConfig{
		ExpectIdentity: true,
		PinnedKey:      opts.pinnedKey(),
		ForwardKey:     authorityKey,
	})
	if err != nil {
		return nil, err
	}
	c := NewStorageClient(sess, sess.Peer().Identity, opts.logger())
	c.log.Debugf("Connected to storage server %s at %v.", c.serverID, sess.RemoteAddr())
	return c, nil
}

// ServerID returns the server's identity, the audience tokens presented to
// it must be bound to.
func (c *StorageClient) ServerID() string {
	return c.serverID
}

// ListFiles lists the paths visible to the token's groups.
func (c *StorageClient) ListFiles(tok *token.Token) ([]string, error) {
	raw, err := tok.Marshal()
	if err != nil {
		return nil, err
	}
	resp, err := roundTrip(c.t, commands.New(commands.ListFiles, raw), commands.OK)
	if err != nil {
		return nil, err
	}
	var paths []string
	if err = resp.Field(0, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// Upload streams src to path, owned by group.  Bytes are sent in
// MaxChunkLength chunks and encrypted by the server under key.  If reading
// src fails the server is told to abandon the transfer.
func (c *StorageClient) Upload(src io.Reader, path, group string, key *GroupKey, tok *token.Token) error {
	raw, err := tok.Marshal()
	if err != nil {
		return err
	}
	if _, err = roundTrip(c.t, commands.New(commands.UploadFile, path, group, key.Key, key.IV, raw), commands.Ready); err != nil {
		return err
	}

	buf := make([]byte, commands.MaxChunkLength)
	var total int
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, err = roundTrip(c.t, commands.New(commands.Chunk, buf[:n], n), commands.Ready); err != nil {
				return err
			}
			total += n
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			c.abort(commands.UploadFile)
			return fmt.Errorf("client: failed to read upload source: %w", rerr)
		}
	}

	if _, err = roundTrip(c.t, commands.New(commands.EOF), commands.OK); err != nil {
		return err
	}
	c.log.Debugf("Uploaded %s (%d bytes).", path, total)
	return nil
}

// Download streams path into dst.  The server decrypts under key.
func (c *StorageClient) Download(dst io.Writer, path string, key *GroupKey, tok *token.Token) error {
	raw, err := tok.Marshal()
	if err != nil {
		return err
	}
	req := commands.New(commands.DownloadFile, path, key.Key, key.IV, raw)
	if err = c.t.SendEnvelope(req); err != nil {
		return err
	}

	var total int
	for {
		resp, err := c.t.RecvEnvelope()
		if err != nil {
			return err
		}
		if _, err = expect(req.Verb, resp, commands.Chunk, commands.EOF); err != nil {
			return err
		}
		if resp.Verb == commands.EOF {
			break
		}

		var data []byte
		var n int
		if err = resp.Field(0, &data); err == nil {
			err = resp.Field(1, &n)
		}
		if err == nil && (n < 0 || n > len(data)) {
			err = fmt.Errorf("%w: chunk length %d", ErrUnexpectedResponse, n)
		}
		if err == nil {
			_, err = dst.Write(data[:n])
		}
		if err != nil {
			c.abort(commands.DownloadFile)
			return err
		}
		total += n
		if err = c.t.SendEnvelope(commands.New(commands.DownloadFile)); err != nil {
			return err
		}
	}

	if err = c.t.SendEnvelope(commands.New(commands.OK)); err != nil {
		return err
	}
	c.log.Debugf("Downloaded %s (%d bytes).", path, total)
	return nil
}

// abort interrupts a transfer in progress.  The server answers an aborted
// upload with ERROR-TRANSFER, and silently ends an aborted download.
func (c *StorageClient) abort(op string) {
	err := c.t.SendEnvelope(commands.New(commands.ErrorTransfer))
	if err == nil && op == commands.UploadFile {
		_, err = c.t.RecvEnvelope()
	}
	if err != nil {
		c.log.Debugf("Failed to abort %s: %v", op, err)
	}
}

// Delete deletes path.
func (c *StorageClient) Delete(path string, tok *token.Token) error {
	raw, err := tok.Marshal()
	if err != nil {
		return err
	}
	_, err = roundTrip(c.t, commands.New(commands.DeleteFile, path, raw), commands.OK)
	return err
}

// Disconnect ends the session.
func (c *StorageClient) Disconnect() error {
	return disconnect(c.t)
}
