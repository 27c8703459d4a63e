// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size int
		want int
	}{
		{0, 0},
		{1, 0},
		{4096, 0},
		{4097, 1},
		{8192, 1},
		{CopyBufferSize, 6},
		{1 << 20, 8},
		{1<<20 + 1, -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, poolIndex(tt.size), "size %d", tt.size)
	}
}

func TestGetPutBuffer(t *testing.T) {
	t.Parallel()

	buf := GetBuffer(CopyBufferSize)
	assert.Len(t, buf, CopyBufferSize)
	assert.Equal(t, CopyBufferSize, cap(buf))
	PutBuffer(buf)

	small := GetBuffer(100)
	assert.Len(t, small, 100)
	assert.Equal(t, minPoolSize, cap(small))
	PutBuffer(small)

	large := GetBuffer(2 << 20)
	assert.Len(t, large, 2<<20)
	PutBuffer(large)

	// Foreign buffers are ignored
	PutBuffer(make([]byte, 5000))
}
