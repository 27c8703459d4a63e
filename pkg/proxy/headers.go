// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"net/http"
	"strings"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
)

// DefaultStripHeaderPrefixes are the header prefixes injected by the edge in
// front of the proxy.
var DefaultStripHeaderPrefixes = []string{"cf-"}

// unsignableHeaders are rewritten or injected between the client and the
// proxy, so they can never be part of a signature the upstream checks.
var unsignableHeaders = map[string]struct{}{
	strings.ToLower(s3consts.XForwardedProto): {},
	strings.ToLower(s3consts.XForwardedFor):   {},
	strings.ToLower(s3consts.XRealIP):         {},
	strings.ToLower(s3consts.XTrueClientIP):   {},
	strings.ToLower(s3consts.AcceptEncoding):  {},
	strings.ToLower(s3consts.Host):            {},
}

// hopHeaders are hop-by-hop headers (RFC 9110 section 7.6.1).
var hopHeaders = map[string]struct{}{
	"connection":          {},
	"proxy-connection":    {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailer":             {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

// HeaderFilter drops headers that must not travel upstream.
type HeaderFilter struct {
	prefixes []string
}

// NewHeaderFilter returns a filter that also drops every header starting with
// one of prefixes, compared case-insensitively.
func NewHeaderFilter(prefixes []string) *HeaderFilter {
	lower := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lower = append(lower, p)
		}
	}
	return &HeaderFilter{prefixes: lower}
}

// Filter returns a copy of h without proxy-injected, hop-by-hop and
// prefixed headers. h is not modified.
func (f *HeaderFilter) Filter(h http.Header) http.Header {
	connectionTokens := make(map[string]struct{})
	for _, v := range h.Values(s3consts.Connection) {
		for _, token := range strings.Split(v, ",") {
			if token = strings.ToLower(strings.TrimSpace(token)); token != "" {
				connectionTokens[token] = struct{}{}
			}
		}
	}

	out := make(http.Header, len(h))
	for name, values := range h {
		lname := strings.ToLower(name)
		if f.drops(lname) {
			continue
		}
		if _, ok := connectionTokens[lname]; ok {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// FilterHeaders filters h with a one-off HeaderFilter for prefixes.
func FilterHeaders(h http.Header, prefixes []string) http.Header {
	return NewHeaderFilter(prefixes).Filter(h)
}

func (f *HeaderFilter) drops(lname string) bool {
	if _, ok := unsignableHeaders[lname]; ok {
		return true
	}
	if _, ok := hopHeaders[lname]; ok {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(lname, p) {
			return true
		}
	}
	return false
}

// removeHopHeaders strips hop-by-hop headers from an upstream response
// before it is copied to the client.
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values(s3consts.Connection) {
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				h.Del(token)
			}
		}
	}
	for name := range h {
		if _, ok := hopHeaders[strings.ToLower(name)]; ok {
			delete(h, name)
		}
	}
}
