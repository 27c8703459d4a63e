// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"net/url"
	"sort"
	"strings"

	"github.com/LeeDigitalWorks/zapgate/pkg/utils"
)

// HeaderField is a single header as it is folded into a canonical request.
type HeaderField struct {
	Name  string
	Value string
}

// CanonicalRequest is the normalized form of a request that gets hashed into
// the string to sign. SignedHeaders is exactly the sorted set of names in
// Headers.
type CanonicalRequest struct {
	Method        string
	URI           string
	Query         string
	Headers       []HeaderField
	SignedHeaders []string
	PayloadHash   string
}

// NewCanonicalRequest normalizes method, URL and header fields. Header names
// are lowercased, repeated names are joined with "," in the order given and
// values have their whitespace runs collapsed.
func NewCanonicalRequest(method string, u *url.URL, fields []HeaderField, payloadHash string) *CanonicalRequest {
	merged := make(map[string][]string, len(fields))
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			continue
		}
		merged[name] = append(merged[name], stripExcessSpaces(f.Value))
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]HeaderField, len(names))
	for i, name := range names {
		headers[i] = HeaderField{Name: name, Value: strings.Join(merged[name], ",")}
	}

	if payloadHash == "" {
		payloadHash = HashedEmptyPayload
	}

	return &CanonicalRequest{
		Method:        method,
		URI:           CanonicalURI(u),
		Query:         CanonicalQuery(u.Query()),
		Headers:       headers,
		SignedHeaders: names,
		PayloadHash:   payloadHash,
	}
}

func (c *CanonicalRequest) String() string {
	var b strings.Builder
	b.WriteString(c.Method)
	b.WriteByte('\n')
	b.WriteString(c.URI)
	b.WriteByte('\n')
	b.WriteString(c.Query)
	b.WriteByte('\n')
	for _, h := range c.Headers {
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(strings.Join(c.SignedHeaders, ";"))
	b.WriteByte('\n')
	b.WriteString(c.PayloadHash)
	return b.String()
}

// Hash returns the hex SHA-256 of the canonical request.
func (c *CanonicalRequest) Hash() string {
	return utils.Sha256Hex([]byte(c.String()))
}

// CanonicalURI returns the path of u in SigV4 form. Each segment of the
// escaped path is decoded once and re-encoded with only the RFC 3986
// unreserved set left bare, so a client that already escaped its key is not
// escaped twice and an encoded "/" inside a segment stays encoded.
func CanonicalURI(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" || path == "/" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			decoded = segment
		}
		segments[i] = uriEncode(decoded)
	}

	encoded := strings.Join(segments, "/")
	if !strings.HasPrefix(encoded, "/") {
		encoded = "/" + encoded
	}
	return encoded
}

// CanonicalQuery sorts parameters by name and then value and percent-encodes
// both, with spaces as %20.
func CanonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

func uriEncode(s string) string {
	const hexUpper = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexUpper[c>>4])
		b.WriteByte(hexUpper[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// stripExcessSpaces trims a header value and collapses inner runs of spaces
// and tabs into a single space.
func stripExcessSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
