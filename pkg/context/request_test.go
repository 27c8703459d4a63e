// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUUID(t *testing.T) {
	t.Parallel()

	ctx, id := WithUUID(context.Background())
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, UUID(ctx))

	// A second call keeps the existing id
	ctx2, id2 := WithUUID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, ctx, ctx2)

	assert.Equal(t, "fixed", UUID(FromUUID(context.Background(), "fixed")))
	assert.Empty(t, UUID(context.Background()))
}
