// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	var (
		strict    = PolicyConfig{}
		anonymous = PolicyConfig{AllowUnauthenticatedPulls: true}
		signed    = PolicyConfig{AllowUnauthenticatedPulls: true, AllowUnauthenticatedSignedPulls: true}
		listing   = PolicyConfig{AllowUnauthenticatedPulls: true, AllowUnauthenticatedListingCalls: true}
		// Sub-flags without unauthenticated pulls have no effect
		ignored = PolicyConfig{AllowUnauthenticatedSignedPulls: true, AllowUnauthenticatedListingCalls: true}
	)

	verifyOK := func() error { return nil }
	verifyMissing := func() error { return s3err.New(s3err.ErrSignatureMissing, "Missing signature") }
	verifyInvalid := func() error { return s3err.New(s3err.ErrSignatureInvalid, "") }

	tests := []struct {
		name       string
		cfg        PolicyConfig
		req        RequestMeta
		verify     func() error
		wantAction Action
		wantCode   s3err.ErrorCode
		wantVerify bool
	}{
		{
			name:       "always validate, anonymous GET",
			cfg:        strict,
			req:        RequestMeta{Method: http.MethodGet, Path: "/foo"},
			verify:     verifyMissing,
			wantAction: ActionReject,
			wantCode:   s3err.ErrSignatureMissing,
			wantVerify: true,
		},
		{
			name:       "always validate, signed GET",
			cfg:        strict,
			req:        RequestMeta{Method: http.MethodGet, Path: "/foo", HasAuthorization: true},
			verify:     verifyOK,
			wantAction: ActionForwardSigned,
			wantVerify: true,
		},
		{
			name:       "always validate, bad signature",
			cfg:        strict,
			req:        RequestMeta{Method: http.MethodPut, Path: "/foo", HasAuthorization: true},
			verify:     verifyInvalid,
			wantAction: ActionReject,
			wantCode:   s3err.ErrSignatureInvalid,
			wantVerify: true,
		},
		{
			name:       "anonymous pull forwarded unsigned",
			cfg:        anonymous,
			req:        RequestMeta{Method: http.MethodGet, Path: "/foo"},
			verify:     verifyMissing,
			wantAction: ActionForwardUnsigned,
		},
		{
			name:       "anonymous HEAD",
			cfg:        anonymous,
			req:        RequestMeta{Method: http.MethodHead, Path: "/foo"},
			verify:     verifyMissing,
			wantAction: ActionForwardUnsigned,
		},
		{
			name:       "anonymous pull signed by the proxy",
			cfg:        signed,
			req:        RequestMeta{Method: http.MethodGet, Path: "/foo"},
			verify:     verifyMissing,
			wantAction: ActionForwardSigned,
		},
		{
			name:       "anonymous mode still verifies a presented signature",
			cfg:        signed,
			req:        RequestMeta{Method: http.MethodGet, Path: "/foo", HasAuthorization: true},
			verify:     verifyInvalid,
			wantAction: ActionReject,
			wantCode:   s3err.ErrSignatureInvalid,
			wantVerify: true,
		},
		{
			name:       "anonymous mode verifies writes",
			cfg:        anonymous,
			req:        RequestMeta{Method: http.MethodDelete, Path: "/foo"},
			verify:     verifyMissing,
			wantAction: ActionReject,
			wantCode:   s3err.ErrSignatureMissing,
			wantVerify: true,
		},
		{
			name:       "listing denied",
			cfg:        anonymous,
			req:        RequestMeta{Method: http.MethodGet, Path: "/"},
			verify:     verifyOK,
			wantAction: ActionReject,
			wantCode:   s3err.ErrAccessDenied,
		},
		{
			name:       "listing denied regardless of signature",
			cfg:        strict,
			req:        RequestMeta{Method: http.MethodPut, Path: "/dir//", HasAuthorization: true},
			verify:     verifyOK,
			wantAction: ActionReject,
			wantCode:   s3err.ErrAccessDenied,
		},
		{
			name:       "listing allowed",
			cfg:        listing,
			req:        RequestMeta{Method: http.MethodGet, Path: "/"},
			verify:     verifyMissing,
			wantAction: ActionForwardUnsigned,
		},
		{
			name:       "sub-flags ignored without unauthenticated pulls",
			cfg:        ignored,
			req:        RequestMeta{Method: http.MethodGet, Path: "/"},
			verify:     verifyOK,
			wantAction: ActionReject,
			wantCode:   s3err.ErrAccessDenied,
		},
		{
			name:       "sub-flags ignored, object path still verified",
			cfg:        ignored,
			req:        RequestMeta{Method: http.MethodGet, Path: "/foo"},
			verify:     verifyMissing,
			wantAction: ActionReject,
			wantCode:   s3err.ErrSignatureMissing,
			wantVerify: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			got := Decide(tt.cfg, tt.req, func() error {
				called = true
				return tt.verify()
			})

			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantVerify, called)
			if tt.wantAction == ActionReject {
				if assert.NotNil(t, got.Err) {
					assert.Equal(t, tt.wantCode, got.Err.Code)
					assert.Equal(t, tt.wantCode.HTTPStatusCode(), got.Err.HTTPStatusCode())
				}
			} else {
				assert.Nil(t, got.Err)
			}
		})
	}
}

func TestIsListingPath(t *testing.T) {
	t.Parallel()

	assert.True(t, IsListingPath(""))
	assert.True(t, IsListingPath("/"))
	assert.True(t, IsListingPath("/photos/"))
	assert.True(t, IsListingPath("/photos///"))
	assert.False(t, IsListingPath("/photos"))
	assert.False(t, IsListingPath("/photos/a.jpg"))
}
