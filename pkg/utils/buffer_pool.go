// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Copy buffer size classes (powers of 2), 4KB to 1MB.
const (
	minPoolSize   = 1 << 12
	maxPoolSize   = 1 << 20
	numPoolLevels = 9

	// CopyBufferSize is the buffer size used when streaming request and
	// response bodies.
	CopyBufferSize = 256 << 10
)

var bufferPools [numPoolLevels]sync.Pool

func init() {
	for i := range bufferPools {
		size := minPoolSize << i
		bufferPools[i] = sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
}

// poolIndex returns the pool index for a given size, or -1 if size is larger
// than maxPoolSize.
func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	if size > maxPoolSize {
		return -1
	}
	// Smallest power of 2 >= size, as an offset from minPoolSize
	return bits.Len(uint(size-1)) - 12
}

// GetBuffer returns a byte slice of the requested size. Sizes above the
// largest class are allocated directly. Use PutBuffer to return it.
func GetBuffer(size int) []byte {
	idx := poolIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool. Buffers
// whose capacity is not a pool size are dropped.
//
// WARNING: Do not use the buffer after calling PutBuffer.
func PutBuffer(buf []byte) {
	c := cap(buf)
	idx := poolIndex(c)
	if idx < 0 || c != minPoolSize<<idx {
		return
	}
	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}
