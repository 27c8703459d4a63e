// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the response header carrying the proxy's request id.
	RequestIDHeader = "X-Zapgate-Request-Id"
)

type RequestID struct{}

// WithUUID attaches a new random request id to c unless one is present, and
// returns it.
func WithUUID(c context.Context) (context.Context, string) {
	if id, ok := c.Value(RequestID{}).(string); ok && id != "" {
		return c, id
	}
	newID := uuid.New().String()
	c = context.WithValue(c, RequestID{}, newID)
	return c, newID
}

// FromUUID stores reqID as the request id of c.
func FromUUID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, RequestID{}, reqID)
}

// UUID returns the request id stored in c, or "" when there is none.
func UUID(c context.Context) string {
	id, _ := c.Value(RequestID{}).(string)
	return id
}
