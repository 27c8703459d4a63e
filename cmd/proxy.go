// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zapgate/pkg/debug"
	"github.com/LeeDigitalWorks/zapgate/pkg/logger"
	"github.com/LeeDigitalWorks/zapgate/pkg/proxy"
	"github.com/LeeDigitalWorks/zapgate/pkg/s3api/signature"
	"github.com/LeeDigitalWorks/zapgate/pkg/utils"

	"github.com/dustin/go-humanize"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ProxyServerOpts holds all configuration for the proxy server
type ProxyServerOpts struct {
	IP          string
	HTTPPort    int
	DebugPort   int
	LogLevel    string
	EnablePprof bool
	IdleTimeout time.Duration

	Proxy proxy.Config

	UpstreamTimeout      time.Duration
	UpstreamMaxIdleConns int

	RateLimit proxy.RateLimitConfig

	ShutdownTimeout time.Duration
}

// proxyEnvAliases keeps the environment variable names of existing
// deployments working next to the upper-cased viper keys.
var proxyEnvAliases = map[string][]string{
	"access_key_id":                       {"ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
	"secret_access_key":                   {"SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
	"s3_endpoint":                         {"S3_ENDPOINT", "AWS_S3_ENDPOINT"},
	"s3_bucket":                           {"S3_BUCKET", "AWS_S3_BUCKET"},
	"region":                              {"REGION", "AWS_REGION"},
	"allow_unauthenticated_pulls":         {"ALLOW_UNAUTHENTICATED_PULLS"},
	"allow_unauthenticated_signed_pulls":  {"ALLOW_UNAUTHENTICATED_SIGNED_PULLS"},
	"allow_unauthenticated_listing_calls": {"ALLOW_UNAUTHENTICATED_LISTING_CALLS"},
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start the S3 proxy",
	Long: `Start a ZapGate proxy that:
- verifies AWS Signature V4 on inbound requests
- strips client and edge headers and re-signs requests for the upstream
- retries range requests answered without Content-Range`,
	Run: runProxyServer,
}

func init() {
	rootCmd.AddCommand(proxyCmd)

	f := proxyCmd.Flags()
	f.String("ip", "0.0.0.0", "IP address to bind to")
	f.Int("http_port", 8080, "HTTP port for the proxy")
	f.Int("debug_port", 8085, "Debug/metrics HTTP port")
	f.String("log_level", "info", "Log level (debug, info, warn, error, fatal)")
	f.Bool("enable_pprof", false, "Expose pprof endpoints on the debug port")
	f.Duration("idle_timeout", 2*time.Minute, "Close client connections idle for this long (0 = never)")
	f.Duration("shutdown_timeout", 30*time.Second, "How long to wait for in-flight requests on shutdown")

	// Credentials clients sign with
	f.String("access_key_id", "", "Access key clients must sign with. Env: AWS_ACCESS_KEY_ID")
	f.String("secret_access_key", "", "Secret key clients must sign with. Env: AWS_SECRET_ACCESS_KEY")
	f.String("region", "", "Signing region (default: derived from s3_endpoint, else us-east-1)")

	// Upstream
	f.String("s3_endpoint", "", "Upstream S3 endpoint host, e.g. s3.us-west-004.backblazeb2.com. Env: AWS_S3_ENDPOINT")
	f.String("s3_bucket", "", "Upstream bucket. Env: AWS_S3_BUCKET")
	f.String("upstream_scheme", "https", "Scheme used to reach the upstream")
	f.String("upstream_access_key_id", "", "Access key used to sign upstream requests (default: access_key_id)")
	f.String("upstream_secret_access_key", "", "Secret key used to sign upstream requests (default: secret_access_key)")
	f.Duration("upstream_timeout", 0, "Per-attempt wait for upstream response headers (0 = none)")
	f.Int("upstream_max_idle_conns", 100, "Idle keep-alive connections kept to the upstream")

	// Access policy
	f.Bool("allow_unauthenticated_pulls", false, "Forward GET/HEAD/OPTIONS without a signature")
	f.Bool("allow_unauthenticated_signed_pulls", false, "Sign anonymous pulls with the upstream credentials")
	f.Bool("allow_unauthenticated_listing_calls", false, "Allow anonymous requests for paths ending in /")

	// Request handling
	f.StringSlice("strip_header_prefixes", proxy.DefaultStripHeaderPrefixes, "Header name prefixes never forwarded upstream")
	f.String("client_ip_header", "", "Header carrying the client address set by a trusted edge (default: remote address)")
	f.String("memory_body_size", "8MiB", "Request bodies above this size are buffered on disk")
	f.String("max_body_size", "5GiB", "Largest accepted request body")

	// Rate limiting
	f.Float64("rate_limit_rps", 0, "Requests per second per client IP (0 = disabled)")
	f.Int("rate_limit_burst", 0, "Burst per client IP (default: 2x rate_limit_rps)")
	f.String("rate_limit_redis_addr", "", "Redis address to share rate limits between proxies")
	f.String("rate_limit_redis_password", "", "Redis password")
	f.Int("rate_limit_redis_db", 0, "Redis database")
	f.Bool("rate_limit_fail_open", true, "Allow requests while Redis is unreachable")

	viper.BindPFlags(f)
}

func runProxyServer(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("proxy", false)
	utils.BindEnvAliases(proxyEnvAliases)
	opts := loadProxyOpts(cmd)

	debug.SetNotReady()

	if level, err := zerolog.ParseLevel(opts.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	limiter, err := proxy.NewLimiter(opts.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create rate limiter")
	}
	if closer, ok := limiter.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	client := proxy.NewHTTPClient(opts.UpstreamTimeout, opts.UpstreamMaxIdleConns)
	server := proxy.NewServer(opts.Proxy, limiter, proxy.WithClient(client))

	if !server.Configured() {
		logger.Warn().Msg("access_key_id, secret_access_key, s3_endpoint and s3_bucket must all be set; every request will fail with ServerError")
	} else if err := opts.Proxy.Upstream.Validate(); err != nil {
		logger.Warn().Err(err).Msg("upstream configuration looks invalid")
	}

	logger.Info().
		Str("version", Version).
		Str("endpoint", opts.Proxy.Upstream.Endpoint).
		Str("bucket", opts.Proxy.Upstream.Bucket).
		Str("region", server.Region()).
		Bool("allow_unauthenticated_pulls", opts.Proxy.Policy.AllowUnauthenticatedPulls).
		Bool("allow_unauthenticated_signed_pulls", opts.Proxy.Policy.AllowUnauthenticatedSignedPulls).
		Bool("allow_unauthenticated_listing_calls", opts.Proxy.Policy.AllowUnauthenticatedListingCalls).
		Str("memory_body_size", humanize.IBytes(uint64(opts.Proxy.MemoryBodySize))).
		Str("max_body_size", humanize.IBytes(uint64(opts.Proxy.MaxBodySize))).
		Bool("rate_limit", opts.RateLimit.Enabled()).
		Msg("Proxy configuration")

	debug.SetReadyCheck(server.Configured)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	httpServer := startHTTPServer(sentryHandler.Handle(server), opts.IP, opts.HTTPPort, opts.IdleTimeout)
	debugServer := startHTTPServer(debug.GetMux(opts.EnablePprof), opts.IP, opts.DebugPort, 0)

	debug.SetReady()
	waitForShutdown()
	debug.SetNotReady()

	ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("proxy did not drain in time")
	}
	debugServer.Shutdown(ctx)
	client.CloseIdleConnections()
}

func loadProxyOpts(cmd *cobra.Command) ProxyServerOpts {
	f := NewFlagLoader(cmd)

	memoryBodySize, err := f.Bytes("memory_body_size")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid body size")
	}
	maxBodySize, err := f.Bytes("max_body_size")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid body size")
	}

	region := f.String("region")

	return ProxyServerOpts{
		IP:              f.String("ip"),
		HTTPPort:        f.Int("http_port"),
		DebugPort:       f.Int("debug_port"),
		LogLevel:        f.String("log_level"),
		EnablePprof:     f.Bool("enable_pprof"),
		IdleTimeout:     f.Duration("idle_timeout"),
		ShutdownTimeout: f.Duration("shutdown_timeout"),
		Proxy: proxy.Config{
			Credentials: signature.Credentials{
				AccessKeyID:     f.String("access_key_id"),
				SecretAccessKey: f.String("secret_access_key"),
				Region:          region,
				Service:         signature.ServiceS3,
			},
			// Never log the secret keys!
			UpstreamCredentials: signature.Credentials{
				AccessKeyID:     f.String("upstream_access_key_id"),
				SecretAccessKey: f.String("upstream_secret_access_key"),
				Region:          region,
				Service:         signature.ServiceS3,
			},
			Upstream: proxy.Upstream{
				Endpoint: f.String("s3_endpoint"),
				Bucket:   f.String("s3_bucket"),
				Scheme:   f.String("upstream_scheme"),
			},
			Policy: proxy.PolicyConfig{
				AllowUnauthenticatedPulls:        f.Bool("allow_unauthenticated_pulls"),
				AllowUnauthenticatedSignedPulls:  f.Bool("allow_unauthenticated_signed_pulls"),
				AllowUnauthenticatedListingCalls: f.Bool("allow_unauthenticated_listing_calls"),
			},
			StripHeaderPrefixes: f.StringSlice("strip_header_prefixes"),
			ClientIPHeader:      f.String("client_ip_header"),
			MemoryBodySize:      memoryBodySize,
			MaxBodySize:         maxBodySize,
		},
		UpstreamTimeout:      f.Duration("upstream_timeout"),
		UpstreamMaxIdleConns: f.Int("upstream_max_idle_conns"),
		RateLimit: proxy.RateLimitConfig{
			RPS:   f.Float64("rate_limit_rps"),
			Burst: f.Int("rate_limit_burst"),
			Redis: proxy.RedisRateLimitConfig{
				Addr:     f.String("rate_limit_redis_addr"),
				Password: f.String("rate_limit_redis_password"),
				DB:       f.Int("rate_limit_redis_db"),
				FailOpen: f.Bool("rate_limit_fail_open"),
			},
		},
	}
}

func startHTTPServer(handler http.Handler, ip string, port int, idleTimeout time.Duration) *http.Server {
	addr := utils.JoinHostPort(ip, port)
	listener, err := utils.NewListener(addr, idleTimeout)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info().Str("http_addr", addr).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
