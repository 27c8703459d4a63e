// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrMalformedAuthorization = errors.New("malformed authorization header")
	ErrMalformedCredential    = errors.New("malformed credential")

	authorizationRegexp = regexp.MustCompile(`^AWS4-HMAC-SHA256 Credential=([^,]+),\s*SignedHeaders=([^,]+),\s*Signature=(.+)$`)
)

// AuthorizationValue is a parsed or generated SigV4 Authorization header.
type AuthorizationValue struct {
	Algorithm     string
	AccessKeyID   string
	Scope         Scope
	SignedHeaders []string
	Signature     string
}

func (a AuthorizationValue) String() string {
	algorithm := a.Algorithm
	if algorithm == "" {
		algorithm = AuthHeaderV4
	}
	return algorithm +
		" Credential=" + a.AccessKeyID + "/" + a.Scope.String() +
		", SignedHeaders=" + strings.Join(a.SignedHeaders, ";") +
		", Signature=" + a.Signature
}

// ParseAuthorization parses an "AWS4-HMAC-SHA256 Credential=..., SignedHeaders=...,
// Signature=..." header value.
func ParseAuthorization(value string) (AuthorizationValue, error) {
	m := authorizationRegexp.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return AuthorizationValue{}, ErrMalformedAuthorization
	}

	// accessKey/date/region/service/aws4_request
	cred := strings.Split(m[1], "/")
	if len(cred) != 5 || cred[0] == "" || cred[4] != scopeTerminator {
		return AuthorizationValue{}, ErrMalformedCredential
	}

	signed := strings.Split(m[2], ";")
	for i, h := range signed {
		signed[i] = strings.ToLower(strings.TrimSpace(h))
	}

	return AuthorizationValue{
		Algorithm:   AuthHeaderV4,
		AccessKeyID: cred[0],
		Scope: Scope{
			Date:    cred[1],
			Region:  cred[2],
			Service: cred[3],
		},
		SignedHeaders: signed,
		Signature:     strings.TrimSpace(m[3]),
	}, nil
}
