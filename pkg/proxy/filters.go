// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	reqctx "github.com/LeeDigitalWorks/zapgate/pkg/context"
	"github.com/LeeDigitalWorks/zapgate/pkg/logger"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/signature"
	"github.com/LeeDigitalWorks/zapgate/pkg/utils"
)

const (
	FilterTypeRequestID = "RequestIDFilter"
	FilterTypeConfig    = "ConfigFilter"
	FilterTypeRateLimit = "RateLimitFilter"
	FilterTypeBody      = "BodyFilter"
	FilterTypePolicy    = "PolicyFilter"
)

// RequestIDFilter assigns the request id and attaches a request scoped logger
// to the context.
type RequestIDFilter struct {
	clientIPHeader string
}

func NewRequestIDFilter(clientIPHeader string) *RequestIDFilter {
	return &RequestIDFilter{clientIPHeader: clientIPHeader}
}

// An inbound request id is kept when it is a well formed UUID, so a caller
// can correlate its own logs with ours.
func (f *RequestIDFilter) Run(d *Data) (Response, error) {
	ctx := d.Ctx
	if inbound, err := uuid.Parse(d.Req.Header.Get(reqctx.RequestIDHeader)); err == nil {
		ctx = reqctx.FromUUID(ctx, inbound.String())
	}
	ctx, id := reqctx.WithUUID(ctx)
	d.RequestID = id
	d.ClientIP = utils.ClientIP(d.Req, f.clientIPHeader)

	l := logger.With().
		Str("request_id", id).
		Str("method", d.Req.Method).
		Str("path", d.Req.URL.EscapedPath()).
		Str("client_ip", d.ClientIP).
		Logger()
	d.Ctx = logger.WithLogger(ctx, &l)

	return Next{}, nil
}

func (f *RequestIDFilter) Type() string {
	return FilterTypeRequestID
}

// ConfigFilter rejects every request while the proxy lacks credentials or an
// upstream.
type ConfigFilter struct {
	configured bool
}

func (f *ConfigFilter) Run(d *Data) (Response, error) {
	if !f.configured {
		return nil, s3err.New(s3err.ErrServerMisconfigured, "")
	}
	return Next{}, nil
}

func (f *ConfigFilter) Type() string {
	return FilterTypeConfig
}

// RateLimitFilter applies Limiter per client IP.
type RateLimitFilter struct {
	limiter Limiter
}

func NewRateLimitFilter(limiter Limiter) *RateLimitFilter {
	return &RateLimitFilter{limiter: limiter}
}

func (f *RateLimitFilter) Run(d *Data) (Response, error) {
	allowed, err := f.limiter.Allow(d.Ctx, d.ClientIP)
	if err != nil {
		logger.Ctx(d.Ctx).Warn().Err(err).Msg("rate limit check failed")
		return nil, s3err.New(s3err.ErrSlowDown, "")
	}
	if !allowed {
		return nil, s3err.New(s3err.ErrSlowDown, "")
	}
	return Next{}, nil
}

func (f *RateLimitFilter) Type() string {
	return FilterTypeRateLimit
}

// BodyFilter buffers and hashes the inbound body so it can be verified,
// signed and replayed.
type BodyFilter struct {
	memoryLimit int64
	maxSize     int64
}

func NewBodyFilter(memoryLimit, maxSize int64) *BodyFilter {
	return &BodyFilter{memoryLimit: memoryLimit, maxSize: maxSize}
}

func (f *BodyFilter) Run(d *Data) (Response, error) {
	if d.Req.ContentLength > f.maxSize {
		return nil, s3err.New(s3err.ErrEntityTooLarge, "")
	}

	body, err := ReadBody(d.Req.Body, f.memoryLimit, f.maxSize)
	if err != nil {
		return nil, err
	}
	d.Body = body

	if body.Spilled() {
		BodySpilledTotal.Inc()
		logger.Ctx(d.Ctx).Debug().Str("size", humanize.IBytes(uint64(body.Size()))).Msg("request body buffered on disk")
	}
	return Next{}, nil
}

func (f *BodyFilter) Type() string {
	return FilterTypeBody
}

// PolicyFilter decides how the request is forwarded, verifying the inbound
// signature when the policy asks for it.
type PolicyFilter struct {
	cfg      PolicyConfig
	verifier *signature.V4Verifier
}

func NewPolicyFilter(cfg PolicyConfig, verifier *signature.V4Verifier) *PolicyFilter {
	return &PolicyFilter{cfg: cfg, verifier: verifier}
}

func (f *PolicyFilter) Run(d *Data) (Response, error) {
	meta := RequestMeta{
		Method:           d.Req.Method,
		Path:             d.Req.URL.EscapedPath(),
		HasAuthorization: len(d.Req.Header.Values(s3consts.Authorization)) > 0,
	}

	d.Decision = Decide(f.cfg, meta, func() error {
		return f.verifier.Verify(d.Req, d.Body.SHA256Hex())
	})

	if d.Decision.Action == ActionReject {
		logger.Ctx(d.Ctx).Info().
			Str("code", d.Decision.Err.Code.String()).
			Str("reason", d.Decision.Err.Message).
			Msg("request rejected")
		return nil, d.Decision.Err
	}
	return Next{}, nil
}

func (f *PolicyFilter) Type() string {
	return FilterTypePolicy
}
