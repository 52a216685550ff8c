// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MaxFrameLength is the largest frame accepted from a peer.
	MaxFrameLength = 1 << 20

	frameHeaderLength = 4
)

func writeFrame(w io.Writer, b []byte) error {
	if len(b) > MaxFrameLength {
		return ErrFrameTooLarge
	}
	buf := make([]byte, frameHeaderLength+len(b))
	binary.BigEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[frameHeaderLength:], b)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [frameHeaderLength]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
