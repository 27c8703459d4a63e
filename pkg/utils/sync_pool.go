// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"encoding/hex"
	"hash"
	"sync"

	"github.com/minio/sha256-simd"
)

var (
	syncPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
)

func SyncPoolGetBuffer() *bytes.Buffer {
	return syncPool.Get().(*bytes.Buffer)
}

func SyncPoolPutBuffer(buffer *bytes.Buffer) {
	buffer.Reset()
	syncPool.Put(buffer)
}

func Sha256PoolGetHasher() hash.Hash {
	return sha256Pool.Get().(hash.Hash)
}

func Sha256PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha256Pool.Put(h)
}

// Sha256Hex returns the lowercase hex SHA-256 digest of data using a pooled hasher.
func Sha256Hex(data []byte) string {
	h := Sha256PoolGetHasher()
	h.Write(data)
	sum := hex.EncodeToString(h.Sum(nil))
	Sha256PoolPutHasher(h)
	return sum
}
