// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/zapgate/pkg/logger"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3consts"
)

// RangeRetryAttempts bounds the attempts made for a range request whose
// response comes back without Content-Range.
const RangeRetryAttempts = 3

// Doer sends one HTTP request. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Forwarder sends prepared requests upstream. Range requests are retried
// while the upstream answers 2xx without Content-Range, which happens when an
// intermediate cache ignores the range and returns the whole object.
type Forwarder struct {
	client   Doer
	attempts int
}

func NewForwarder(client Doer) *Forwarder {
	return &Forwarder{client: client, attempts: RangeRetryAttempts}
}

// NewHTTPClient builds the upstream client. Bodies pass through without
// transparent decompression and redirects are returned to the client.
func NewHTTPClient(responseHeaderTimeout time.Duration, maxIdleConnsPerHost int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	transport.ResponseHeaderTimeout = responseHeaderTimeout
	if maxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = maxIdleConnsPerHost
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Forward sends req and returns the upstream response. req is used as a
// template: every attempt gets its own clone and a fresh body from
// req.GetBody. Only transport failures are returned as errors; any response
// the upstream produced, including a full object for a range request, is
// returned as is.
func (f *Forwarder) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get(s3consts.Range) == "" {
		attempt, err := newAttempt(ctx, req)
		if err != nil {
			return nil, err
		}
		return f.client.Do(attempt)
	}

	log := logger.Ctx(ctx)
	remaining := f.attempts
	for {
		actx, cancel := context.WithCancel(ctx)
		attempt, err := newAttempt(actx, req)
		if err != nil {
			cancel()
			return nil, err
		}

		resp, err := f.client.Do(attempt)
		if err != nil {
			cancel()
			return nil, err
		}

		if resp.Header.Get(s3consts.ContentRange) != "" {
			RangeAttemptsTotal.WithLabelValues("content_range").Inc()
			if remaining < f.attempts {
				log.Info().Str("url", req.URL.String()).Msg("range retry succeeded, response has content-range")
			}
			return withCancel(resp, cancel), nil
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			RangeAttemptsTotal.WithLabelValues("not_ok").Inc()
			return withCancel(resp, cancel), nil
		}

		RangeAttemptsTotal.WithLabelValues("missing_content_range").Inc()
		remaining--
		log.Warn().
			Str("url", req.URL.String()).
			Int("retries_left", remaining).
			Msg("range requested but response has no content-range")

		if remaining <= 0 {
			// The last response is kept open and handed back.
			RangeExhaustedTotal.Inc()
			log.Error().
				Str("url", req.URL.String()).
				Int("attempts", f.attempts).
				Msg("range request exhausted retries without content-range")
			return withCancel(resp, cancel), nil
		}

		cancel()
		resp.Body.Close()
	}
}

func newAttempt(ctx context.Context, req *http.Request) (*http.Request, error) {
	attempt := req.Clone(ctx)
	if req.GetBody == nil {
		attempt.Body = http.NoBody
		return attempt, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	attempt.Body = body
	return attempt, nil
}

// cancelOnClose releases an attempt's context once the caller is done with
// the response body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func withCancel(resp *http.Response, cancel context.CancelFunc) *http.Response {
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp
}
