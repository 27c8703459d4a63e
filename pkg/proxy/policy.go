// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"net/http"
	"strings"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
)

// Action is what the proxy does with a request.
type Action int

const (
	ActionReject Action = iota
	ActionForwardUnsigned
	ActionForwardSigned
)

func (a Action) String() string {
	switch a {
	case ActionReject:
		return "reject"
	case ActionForwardUnsigned:
		return "forward_unsigned"
	case ActionForwardSigned:
		return "forward_signed"
	default:
		return "unknown"
	}
}

// Decision is computed once per request. Err is set only for ActionReject.
type Decision struct {
	Action Action
	Err    *s3err.RequestError
}

func reject(err error) Decision {
	return Decision{Action: ActionReject, Err: s3err.FromError(err)}
}

// PolicyConfig holds the access flags. The signed-pulls and listing flags
// only take effect when unauthenticated pulls are allowed.
type PolicyConfig struct {
	AllowUnauthenticatedPulls        bool `mapstructure:"allow_unauthenticated_pulls"`
	AllowUnauthenticatedSignedPulls  bool `mapstructure:"allow_unauthenticated_signed_pulls"`
	AllowUnauthenticatedListingCalls bool `mapstructure:"allow_unauthenticated_listing_calls"`
}

func (c PolicyConfig) alwaysValidate() bool {
	return !c.AllowUnauthenticatedPulls
}

func (c PolicyConfig) signUnauthenticatedPulls() bool {
	return c.AllowUnauthenticatedPulls && c.AllowUnauthenticatedSignedPulls
}

func (c PolicyConfig) allowListing() bool {
	return c.AllowUnauthenticatedPulls && c.AllowUnauthenticatedListingCalls
}

// RequestMeta is the part of a request the policy looks at.
type RequestMeta struct {
	Method           string
	Path             string
	HasAuthorization bool
}

// IsListingPath reports whether path ends in one or more slashes. An empty
// path is the root.
func IsListingPath(path string) bool {
	return path == "" || strings.HasSuffix(path, "/")
}

func methodRequiresAuthorization(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// Decide applies the forwarding rules in order:
//  1. listing paths are denied unless listing is explicitly allowed
//  2. verification is mandatory when always validating, when the client sent
//     an Authorization header, or for any non read-only method
//  3. the remaining anonymous pulls go out signed or unsigned per config
//
// verify is only called under rule 2.
func Decide(cfg PolicyConfig, req RequestMeta, verify func() error) Decision {
	if !cfg.allowListing() && IsListingPath(req.Path) {
		return reject(s3err.New(s3err.ErrAccessDenied, ""))
	}

	if cfg.alwaysValidate() || req.HasAuthorization || methodRequiresAuthorization(req.Method) {
		if err := verify(); err != nil {
			return reject(err)
		}
		return Decision{Action: ActionForwardSigned}
	}

	if cfg.signUnauthenticatedPulls() {
		return Decision{Action: ActionForwardSigned}
	}
	return Decision{Action: ActionForwardUnsigned}
}
