// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
)

// unsignableHeaders are never folded into an outbound signature.
var unsignableHeaders = map[string]struct{}{
	"authorization":     {},
	"content-type":      {},
	"content-length":    {},
	"user-agent":        {},
	"presigned-expires": {},
	"expect":            {},
	"x-amzn-trace-id":   {},
	"range":             {},
	"connection":        {},
}

// Signer produces SigV4 signatures for a fixed set of credentials. It is safe
// for concurrent use.
type Signer struct {
	creds Credentials

	mu      sync.RWMutex
	keyDate string
	key     []byte
}

func NewSigner(creds Credentials) *Signer {
	return &Signer{creds: creds}
}

// signingKey returns the derived key for date, reusing the previous one while
// the date does not change.
func (s *Signer) signingKey(date string) []byte {
	s.mu.RLock()
	if s.keyDate == date && s.key != nil {
		key := s.key
		s.mu.RUnlock()
		return key
	}
	s.mu.RUnlock()

	key := deriveSigningKey(s.creds.SecretAccessKey, date, s.creds.Region, s.creds.service())

	s.mu.Lock()
	s.keyDate = date
	s.key = key
	s.mu.Unlock()
	return key
}

// SignCanonical signs an already canonicalized request at amzDate
// (YYYYMMDDTHHMMSSZ). For fixed inputs the result is always the same, which
// is what verification by re-signing relies on.
func (s *Signer) SignCanonical(cr *CanonicalRequest, amzDate string) AuthorizationValue {
	date := amzDate
	if len(date) >= len(Iso8601DateFormat) {
		date = amzDate[:len(Iso8601DateFormat)]
	}
	scope := Scope{Date: date, Region: s.creds.Region, Service: s.creds.service()}

	stringToSign := strings.Join([]string{
		AuthHeaderV4,
		amzDate,
		scope.String(),
		cr.Hash(),
	}, "\n")

	return AuthorizationValue{
		Algorithm:     AuthHeaderV4,
		AccessKeyID:   s.creds.AccessKeyID,
		Scope:         scope,
		SignedHeaders: cr.SignedHeaders,
		Signature:     calculateSignature(s.signingKey(date), stringToSign),
	}
}

// Sign signs an outbound request in place. Stale signing headers are dropped,
// fresh x-amz-date and x-amz-content-sha256 headers are set, and every
// signable header plus host is folded into the signature. payloadHash is the
// hex SHA-256 of the body the request will carry.
func (s *Signer) Sign(req *http.Request, payloadHash string, t time.Time) AuthorizationValue {
	if payloadHash == "" {
		payloadHash = HashedEmptyPayload
	}
	amzDate := t.UTC().Format(Iso8601BasicFormat)

	req.Header.Del(s3consts.Authorization)
	req.Header.Del(s3consts.XAmzSecurityTok)
	req.Header.Set(s3consts.XAmzDate, amzDate)
	req.Header.Set(s3consts.XAmzContentSHA256, payloadHash)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	fields := []HeaderField{{Name: "host", Value: host}}
	for name, values := range req.Header {
		lname := strings.ToLower(name)
		if lname == "host" {
			continue
		}
		if _, skip := unsignableHeaders[lname]; skip {
			continue
		}
		for _, v := range values {
			fields = append(fields, HeaderField{Name: lname, Value: v})
		}
	}

	auth := s.SignCanonical(NewCanonicalRequest(req.Method, req.URL, fields, payloadHash), amzDate)
	req.Header.Set(s3consts.Authorization, auth.String())
	return auth
}
