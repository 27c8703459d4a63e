// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
	"github.com/LeeDigitalWorks/zapgate/pkg/utils"
)

const (
	DefaultMemoryBodySize = 8 * humanize.MiByte
	DefaultMaxBodySize    = s3consts.MaxObjectSize
)

// Body is a fully received request body that can be replayed for every
// upstream attempt. Small bodies stay in memory, larger ones are spilled to a
// temporary file. The SHA-256 is computed while reading.
//
// Readers handed out by Reader keep the backing storage alive: the memory
// buffer goes back to the pool and the temp file is removed only after Close
// has been called and every reader has been closed.
type Body struct {
	size int64
	hash string

	mu     sync.Mutex
	refs   int
	closed bool
	buf    *bytes.Buffer
	file   *os.File
}

var errBodyClosed = errors.New("request body already released")

// ReadBody consumes r. Bodies larger than maxSize fail with ErrEntityTooLarge.
// Bodies up to memoryLimit bytes are kept in memory.
func ReadBody(r io.Reader, memoryLimit, maxSize int64) (*Body, error) {
	h := utils.Sha256PoolGetHasher()
	defer utils.Sha256PoolPutHasher(h)

	b := &Body{buf: utils.SyncPoolGetBuffer()}
	if r == nil {
		b.hash = hex.EncodeToString(h.Sum(nil))
		return b, nil
	}

	limited := io.LimitReader(r, maxSize+1)
	tee := io.TeeReader(limited, h)

	n, err := io.Copy(b.buf, io.LimitReader(tee, memoryLimit+1))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("read request body: %w", err)
	}

	if n > memoryLimit {
		if err := b.spill(tee); err != nil {
			b.Close()
			return nil, err
		}
	}

	b.size = b.sizeSoFar()
	if b.size > maxSize {
		b.Close()
		return nil, s3err.New(s3err.ErrEntityTooLarge, "")
	}

	b.hash = hex.EncodeToString(h.Sum(nil))
	return b, nil
}

// spill moves the buffered prefix to a temp file and copies the rest of rest
// after it.
func (b *Body) spill(rest io.Reader) error {
	f, err := os.CreateTemp("", "zapgate-body-*")
	if err != nil {
		return fmt.Errorf("create body spill file: %w", err)
	}
	b.file = f

	if _, err := b.buf.WriteTo(f); err != nil {
		return fmt.Errorf("write body spill file: %w", err)
	}
	buf := utils.GetBuffer(utils.CopyBufferSize)
	defer utils.PutBuffer(buf)
	if _, err := io.CopyBuffer(f, rest, buf); err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	return nil
}

func (b *Body) sizeSoFar() int64 {
	if b.file != nil {
		if fi, err := b.file.Stat(); err == nil {
			return fi.Size()
		}
	}
	return int64(b.buf.Len())
}

// Size returns the body length in bytes.
func (b *Body) Size() int64 {
	return b.size
}

// SHA256Hex returns the lowercase hex SHA-256 of the body.
func (b *Body) SHA256Hex() string {
	return b.hash
}

// Spilled reports whether the body is backed by a temp file.
func (b *Body) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader returns a fresh reader positioned at the start of the body. It has
// the signature of http.Request.GetBody. The reader must be closed.
func (b *Body) Reader() (io.ReadCloser, error) {
	if b.size == 0 {
		return http.NoBody, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBodyClosed
	}

	var r io.Reader
	if b.file != nil {
		r = io.NewSectionReader(b.file, 0, b.size)
	} else {
		r = bytes.NewReader(b.buf.Bytes())
	}
	b.refs++
	return &bodyReader{r: r, body: b}, nil
}

// Close marks the body as no longer needed by the request. Storage is
// released once every outstanding reader is closed too.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.refs > 0 {
		return nil
	}
	return b.free()
}

func (b *Body) releaseReader() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs--
	if b.closed && b.refs == 0 {
		return b.free()
	}
	return nil
}

// free must be called with b.mu held.
func (b *Body) free() error {
	if b.buf != nil {
		utils.SyncPoolPutBuffer(b.buf)
		b.buf = nil
	}
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	b.file = nil
	return err
}

// bodyReader is one replay of a Body. The transport may read and close it
// from its own goroutines after the request has been answered.
type bodyReader struct {
	mu     sync.Mutex
	r      io.Reader
	body   *Body
	closed bool
}

func (r *bodyReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errBodyClosed
	}
	return r.r.Read(p)
}

func (r *bodyReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.r = nil
	return r.body.releaseReader()
}
