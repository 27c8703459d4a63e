// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3err

import (
	"errors"
	"net/http"
	"strings"
)

// APIError represents an S3 API error with its code, description, and HTTP status.
// Based on: https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
type APIError struct {
	Code           string
	Description    string
	HTTPStatusCode int
}

// ErrorCode is the kind of a rejected request. The zero value means no error.
type ErrorCode int

const (
	ErrNone ErrorCode = iota

	// =========================================================================
	// Authentication
	// =========================================================================
	ErrSignatureMissing
	ErrSignatureInvalid

	// =========================================================================
	// Policy
	// =========================================================================
	ErrAccessDenied
	ErrSlowDown
	ErrEntityTooLarge

	// =========================================================================
	// Server
	// =========================================================================
	ErrServerMisconfigured
	ErrInternalError
	ErrBadGateway
)

var errorCodeResponse = map[ErrorCode]APIError{
	ErrSignatureMissing: {
		Code:           "AccessDenied",
		Description:    "Missing signature",
		HTTPStatusCode: http.StatusForbidden,
	},
	ErrSignatureInvalid: {
		Code:           "SignatureDoesNotMatch",
		Description:    "Signature validation failed.",
		HTTPStatusCode: http.StatusForbidden,
	},
	ErrAccessDenied: {
		Code:           "AccessDenied",
		Description:    "Unauthenticated requests are not allowed for this api",
		HTTPStatusCode: http.StatusForbidden,
	},
	ErrSlowDown: {
		Code:           "SlowDown",
		Description:    "Please reduce your request rate.",
		HTTPStatusCode: http.StatusServiceUnavailable,
	},
	ErrEntityTooLarge: {
		Code:           "EntityTooLarge",
		Description:    "Your proposed upload exceeds the maximum allowed object size.",
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
	},
	ErrServerMisconfigured: {
		Code:           "ServerError",
		Description:    "Server not configured",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrInternalError: {
		Code:           "ServerError",
		Description:    "Server error.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
	ErrBadGateway: {
		Code:           "ServerError",
		Description:    "Upstream request failed.",
		HTTPStatusCode: http.StatusBadGateway,
	},
}

// =========================================================================
// ErrorCode Methods
// =========================================================================

// APIError returns the full APIError struct for this error code.
func (e ErrorCode) APIError() APIError {
	if err, ok := errorCodeResponse[e]; ok {
		return err
	}
	return errorCodeResponse[ErrInternalError]
}

// Code returns the S3 error code string.
func (e ErrorCode) Code() string {
	return e.APIError().Code
}

// Description returns the error description.
func (e ErrorCode) Description() string {
	return e.APIError().Description
}

// Error implements the error interface.
func (e ErrorCode) Error() string {
	return e.Description()
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e ErrorCode) HTTPStatusCode() int {
	return e.APIError().HTTPStatusCode
}

func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrSignatureMissing:
		return "signature_missing"
	case ErrSignatureInvalid:
		return "signature_invalid"
	case ErrAccessDenied:
		return "access_denied"
	case ErrSlowDown:
		return "slow_down"
	case ErrEntityTooLarge:
		return "entity_too_large"
	case ErrServerMisconfigured:
		return "server_misconfigured"
	case ErrBadGateway:
		return "bad_gateway"
	default:
		return "internal_error"
	}
}

// RequestError is a rejected request: the error kind plus the message shown to
// the client. It is returned as a plain error value and never panics across
// package boundaries.
type RequestError struct {
	Code    ErrorCode
	Message string
}

// New returns a RequestError. An empty message falls back to the code's
// default description.
func New(code ErrorCode, message string) *RequestError {
	if message == "" {
		message = code.Description()
	}
	return &RequestError{Code: code, Message: message}
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.Code())
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// HTTPStatusCode returns the status carried by the error kind.
func (e *RequestError) HTTPStatusCode() int {
	return e.Code.HTTPStatusCode()
}

// Is reports whether target is the same error kind, so callers can write
// errors.Is(err, s3err.ErrSignatureInvalid).
func (e *RequestError) Is(target error) bool {
	var code ErrorCode
	if errors.As(target, &code) {
		return e.Code == code
	}
	return false
}

// FromError normalizes any error into a RequestError. Unknown errors become
// ErrInternalError with the generic description so no internal detail leaks.
func FromError(err error) *RequestError {
	if err == nil {
		return nil
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return New(code, "")
	}
	return New(ErrInternalError, "")
}
