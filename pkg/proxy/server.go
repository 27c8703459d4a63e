// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	reqctx "github.com/LeeDigitalWorks/zapgate/pkg/context"
	"github.com/LeeDigitalWorks/zapgate/pkg/logger"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/s3err"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/signature"
	"github.com/LeeDigitalWorks/zapgate/pkg/utils"
)

// Config is everything the proxy needs per process.
type Config struct {
	// Credentials verify inbound signatures.
	Credentials signature.Credentials
	// UpstreamCredentials sign outbound requests. Empty halves default to
	// Credentials.
	UpstreamCredentials signature.Credentials

	Upstream Upstream
	Policy   PolicyConfig

	StripHeaderPrefixes []string
	// ClientIPHeader names a header set by a trusted edge that carries the
	// client address. Empty uses the connection's remote address.
	ClientIPHeader string

	MemoryBodySize int64
	MaxBodySize    int64
}

// Configured reports whether the inbound key pair, the endpoint and the
// bucket are all present.
func (c Config) Configured() bool {
	return c.Credentials.Valid() && c.Upstream.Endpoint != "" && c.Upstream.Bucket != ""
}

func (c Config) upstreamCredentials() signature.Credentials {
	creds := c.UpstreamCredentials
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		creds.AccessKeyID = c.Credentials.AccessKeyID
		creds.SecretAccessKey = c.Credentials.SecretAccessKey
	}
	if creds.Region == "" {
		creds.Region = c.Credentials.Region
	}
	if creds.Service == "" {
		creds.Service = c.Credentials.Service
	}
	return creds
}

// Server is the proxy's http.Handler.
type Server struct {
	cfg       Config
	chain     *Chain
	headers   *HeaderFilter
	signer    *signature.Signer
	forwarder *Forwarder
	now       func() time.Time
}

type Option func(*Server)

// WithClient replaces the upstream HTTP client.
func WithClient(client Doer) Option {
	return func(s *Server) {
		s.forwarder = NewForwarder(client)
	}
}

// WithClock replaces the clock used for outbound signatures.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer builds the handler. A nil limiter disables rate limiting.
func NewServer(cfg Config, limiter Limiter, opts ...Option) *Server {
	if cfg.MemoryBodySize <= 0 {
		cfg.MemoryBodySize = DefaultMemoryBodySize
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.StripHeaderPrefixes == nil {
		cfg.StripHeaderPrefixes = DefaultStripHeaderPrefixes
	}

	region := cfg.Upstream.Region(cfg.Credentials.Region)
	cfg.Credentials.Region = region
	if cfg.Credentials.Service == "" {
		cfg.Credentials.Service = signature.ServiceS3
	}

	s := &Server{
		cfg:       cfg,
		headers:   NewHeaderFilter(cfg.StripHeaderPrefixes),
		signer:    signature.NewSigner(cfg.upstreamCredentials()),
		forwarder: NewForwarder(NewHTTPClient(0, 0)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.chain = NewChain()
	s.chain.AddFilter(NewRequestIDFilter(cfg.ClientIPHeader))
	s.chain.AddFilter(&ConfigFilter{configured: cfg.Configured()})
	if limiter != nil {
		s.chain.AddFilter(NewRateLimitFilter(limiter))
	}
	s.chain.AddFilter(NewBodyFilter(cfg.MemoryBodySize, cfg.MaxBodySize))
	s.chain.AddFilter(NewPolicyFilter(cfg.Policy, signature.NewV4Verifier(cfg.Credentials)))

	return s
}

// Configured reports whether requests can be served.
func (s *Server) Configured() bool {
	return s.cfg.Configured()
}

// Region returns the signing region in use.
func (s *Server) Region() string {
	return s.cfg.Credentials.Region
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wrappedWriter := &wrappedResponseRecorder{
		ResponseWriter: w,
	}

	d := NewData(r.Context(), r)
	defer d.Close()

	defer func() {
		// A client that went away is not a server error.
		if wrappedWriter.statusCode == 0 && errors.Is(r.Context().Err(), context.Canceled) {
			return
		}
		decision := d.Decision.Action.String()
		RequestsTotal.WithLabelValues(r.Method, decision, strconv.Itoa(wrappedWriter.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, decision).Observe(time.Since(start).Seconds())
	}()

	filterType, err := s.chain.Run(d)
	if id := reqctx.UUID(d.Ctx); id != "" {
		wrappedWriter.Header().Set(reqctx.RequestIDHeader, id)
	}
	if err != nil {
		if d.Ctx.Err() != nil {
			logger.Ctx(d.Ctx).Debug().Err(err).Str("filter", filterType).Msg("request cancelled")
			return
		}
		s3err.WriteErrorResponse(wrappedWriter, err, d.RequestID)
		return
	}

	s.forward(wrappedWriter, d)
}

// outboundRequest builds the upstream request from the inbound one: the URL is
// rewritten, headers are filtered and the buffered body is attached.
func (s *Server) outboundRequest(d *Data) (*http.Request, error) {
	u := s.cfg.Upstream.Rewrite(d.Req.URL, d.Req.Host)

	out, err := http.NewRequestWithContext(d.Ctx, d.Req.Method, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	out.Header = s.headers.Filter(d.Req.Header)
	out.ContentLength = d.Body.Size()
	out.GetBody = d.Body.Reader

	if d.Decision.Action == ActionForwardSigned {
		s.signer.Sign(out, d.Body.SHA256Hex(), s.now())
	}
	return out, nil
}

func (s *Server) forward(w http.ResponseWriter, d *Data) {
	log := logger.Ctx(d.Ctx)

	out, err := s.outboundRequest(d)
	if err != nil {
		log.Error().Err(err).Msg("failed to build upstream request")
		s3err.WriteErrorResponse(w, s3err.New(s3err.ErrInternalError, ""), d.RequestID)
		return
	}

	resp, err := s.forwarder.Forward(d.Ctx, out)
	if err != nil {
		if d.Ctx.Err() != nil {
			log.Debug().Err(err).Msg("client went away before upstream answered")
			return
		}
		UpstreamErrorsTotal.Inc()
		log.Error().Err(err).Str("upstream", out.URL.Host).Msg("upstream request failed")
		s3err.WriteErrorResponse(w, s3err.New(s3err.ErrBadGateway, ""), d.RequestID)
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	header := w.Header()
	for name, values := range resp.Header {
		header[name] = values
	}
	w.WriteHeader(resp.StatusCode)

	if d.Req.Method == http.MethodHead {
		return
	}
	buf := utils.GetBuffer(utils.CopyBufferSize)
	defer utils.PutBuffer(buf)
	if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil && d.Ctx.Err() == nil {
		log.Warn().Err(err).Msg("failed to copy upstream response body")
	}
}

// wrappedResponseRecorder remembers the status written to the client.
type wrappedResponseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrappedResponseRecorder) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *wrappedResponseRecorder) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *wrappedResponseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *wrappedResponseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
