// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3consts

// http://docs.aws.amazon.com/AmazonS3/latest/dev/UploadingObjects.html
const (
	// MaxObjectSize is the maximum object size per PUT request (5GiB)
	MaxObjectSize = 1024 * 1024 * 1024 * 5

	// --- Core request / tracing ---
	XAmzDate        = "x-amz-date"
	XAmzRequestID   = "x-amz-request-id"
	XAmzSecurityTok = "x-amz-security-token"

	// --- Authorization ---
	Authorization = "Authorization"

	// --- Content / payload ---
	XAmzContentSHA256 = "x-amz-content-sha256"

	// --- Standard HTTP headers the proxy looks at ---
	Host         = "Host"
	Date         = "Date"
	Range        = "Range"
	ContentRange = "Content-Range"
	ContentType  = "Content-Type"
	CacheControl = "Cache-Control"
	Connection   = "Connection"

	// --- Proxy-injected headers ---
	XForwardedProto = "X-Forwarded-Proto"
	XForwardedFor   = "X-Forwarded-For"
	XRealIP         = "X-Real-Ip"
	XTrueClientIP   = "X-True-Client-Ip"
	AcceptEncoding  = "Accept-Encoding"
)
