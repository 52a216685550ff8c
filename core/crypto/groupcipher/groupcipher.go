// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

// Package groupcipher stream encrypts file content under a group key.
//
// Content is AES-256-CBC with PKCS#7 padding.  The writer encrypts whole
// blocks as they arrive and pads on Close.  The reader always holds back
// the final ciphertext block until the source is exhausted, since only that
// block carries padding.
package groupcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/groupshare/core/crypto/pkcs7"
)

const (
	// KeySize is the size of a group key.
	KeySize = 32

	// IVSize is the size of a group IV.
	IVSize = aes.BlockSize

	readBufferSize = 4096
)

var (
	// ErrTruncated is returned when the ciphertext is not a whole number of
	// blocks.
	ErrTruncated = errors.New("groupcipher: truncated ciphertext")

	// ErrBadPadding is returned when the final block fails to unpad, which
	// usually means the wrong key or IV was supplied.
	ErrBadPadding = errors.New("groupcipher: bad padding")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("groupcipher: write after close")
)

// NewKey generates a fresh group key and IV.
func NewKey() (key, iv []byte, err error) {
	key = make([]byte, KeySize)
	iv = make([]byte, IVSize)
	if _, err = io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, err
	}
	if _, err = io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("groupcipher: invalid key size %d", len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("groupcipher: invalid iv size %d", len(iv))
	}
	return aes.NewCipher(key)
}

type writer struct {
	dst    io.Writer
	mode   cipher.BlockMode
	buf    []byte
	closed bool
}

// NewWriter returns a WriteCloser encrypting to dst.  Close writes the final
// padded block but does not close dst.
func NewWriter(dst io.Writer, key, iv []byte) (io.WriteCloser, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return &writer{
		dst:  dst,
		mode: cipher.NewCBCEncrypter(block, iv),
	}, nil
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	full := len(w.buf) / aes.BlockSize * aes.BlockSize
	if full == 0 {
		return len(p), nil
	}
	ct := make([]byte, full)
	w.mode.CryptBlocks(ct, w.buf[:full])
	w.buf = append(w.buf[:0], w.buf[full:]...)
	if _, err := w.dst.Write(ct); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	pt := pkcs7.Pad(w.buf, aes.BlockSize)
	ct := make([]byte, len(pt))
	w.mode.CryptBlocks(ct, pt)
	w.buf = nil
	_, err := w.dst.Write(ct)
	return err
}

type reader struct {
	src  io.Reader
	mode cipher.BlockMode
	in   []byte
	out  []byte
	eof  bool
	err  error
}

// NewReader returns a Reader decrypting from src.
func NewReader(src io.Reader, key, iv []byte) (io.Reader, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return &reader{
		src:  src,
		mode: cipher.NewCBCDecrypter(block, iv),
	}, nil
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.eof {
			return 0, io.EOF
		}
		r.fill()
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func (r *reader) fill() {
	var buf [readBufferSize]byte
	n, err := r.src.Read(buf[:])
	r.in = append(r.in, buf[:n]...)

	switch {
	case err == io.EOF:
		r.finish()
		return
	case err != nil:
		r.err = err
		return
	}

	full := len(r.in) / aes.BlockSize * aes.BlockSize
	if full == len(r.in) {
		full -= aes.BlockSize
	}
	if full <= 0 {
		return
	}
	pt := make([]byte, full)
	r.mode.CryptBlocks(pt, r.in[:full])
	r.in = append(r.in[:0], r.in[full:]...)
	r.out = pt
}

func (r *reader) finish() {
	r.eof = true
	if len(r.in) == 0 || len(r.in)%aes.BlockSize != 0 {
		r.err = ErrTruncated
		return
	}
	pt := make([]byte, len(r.in))
	r.mode.CryptBlocks(pt, r.in)
	r.in = nil
	pt, err := pkcs7.Unpad(pt, aes.BlockSize)
	if err != nil {
		r.err = ErrBadPadding
		return
	}
	r.out = pt
}
