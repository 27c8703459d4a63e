// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"crypto/hmac"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/minio/sha256-simd"
)

// AWS Signature Version 4 as used by S3:
// https://docs.aws.amazon.com/general/latest/gr/signature-version-4.html

const (
	AuthHeaderV4 = "AWS4-HMAC-SHA256"

	Iso8601BasicFormat = "20060102T150405Z"
	Iso8601DateFormat  = "20060102"

	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// StreamingPayloadPrefix marks aws-chunked uploads, whose per-chunk
	// signatures the proxy does not check.
	StreamingPayloadPrefix = "STREAMING-"

	// Precomputed SHA256 hash of an empty payload
	HashedEmptyPayload = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	ServiceS3 = "s3"

	scopeTerminator = "aws4_request"
)

// Credentials is the key pair plus the scope a signature is bound to.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Service         string
}

// Valid reports whether both halves of the key pair are set.
func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func (c Credentials) service() string {
	if c.Service == "" {
		return ServiceS3
	}
	return c.Service
}

// Scope is the credential scope of a signature.
type Scope struct {
	Date    string
	Region  string
	Service string
}

func (s Scope) String() string {
	return strings.Join([]string{s.Date, s.Region, s.Service, scopeTerminator}, "/")
}

// deriveSigningKey runs the four chained HMACs:
// kDate = HMAC("AWS4" + secret, date), then region, service and "aws4_request".
func deriveSigningKey(secretKey, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(scopeTerminator))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func calculateSignature(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))
}

// constantTimeCompare compares two signatures without leaking their common prefix length.
func constantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
