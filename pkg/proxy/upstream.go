// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

const DefaultRegion = "us-east-1"

// s3.<region>.<domain>, e.g. s3.us-west-004.backblazeb2.com
var endpointRegionRegexp = regexp.MustCompile(`^s3\.([a-zA-Z0-9-]+)\.[^.]+\.[^.]+`)

// Upstream is the S3-compatible origin requests are forwarded to.
type Upstream struct {
	Endpoint string `mapstructure:"s3_endpoint"`
	Bucket   string `mapstructure:"s3_bucket"`
	Scheme   string `mapstructure:"upstream_scheme"`
}

var (
	reservedBucketPrefixes = []string{"xn--", "sthree-", "amzn-s3-demo-"}
	reservedBucketSuffixes = []string{"-s3alias", "--ol-s3", ".mrap", "--x-s3", "--table-s3"}
)

// Validate checks that the endpoint is a bare host[:port] and that the bucket
// follows the S3 naming rules.
func (u Upstream) Validate() error {
	if u.Endpoint == "" {
		return errors.New("s3_endpoint is empty")
	}
	if strings.Contains(u.Endpoint, "://") || strings.ContainsAny(u.Endpoint, "/?#") {
		return fmt.Errorf("s3_endpoint %q must be a host without scheme or path", u.Endpoint)
	}
	return ValidateBucketName(u.Bucket)
}

// ValidateBucketName reports why name is not a valid S3 bucket name.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("bucket name %q must be between 3 and 63 characters", name)
	}
	if net.ParseIP(name) != nil {
		return fmt.Errorf("bucket name %q cannot be formatted as an IP address", name)
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '.' {
			return fmt.Errorf("bucket name %q contains invalid character %q", name, c)
		}
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("bucket name %q contains adjacent periods", name)
	}
	first, last := name[0], name[len(name)-1]
	if first == '.' || first == '-' || last == '.' || last == '-' {
		return fmt.Errorf("bucket name %q must start and end with a letter or digit", name)
	}
	for _, p := range reservedBucketPrefixes {
		if strings.HasPrefix(name, p) {
			return fmt.Errorf("bucket name %q uses reserved prefix %q", name, p)
		}
	}
	for _, suf := range reservedBucketSuffixes {
		if strings.HasSuffix(name, suf) {
			return fmt.Errorf("bucket name %q uses reserved suffix %q", name, suf)
		}
	}
	return nil
}

// Rewrite maps an inbound URL to the upstream. A virtual-hosted inbound host
// (starting with "<bucket>.") keeps that form against the endpoint, any other
// host is sent path-style to the endpoint itself. Path and query are kept
// byte for byte.
func (u Upstream) Rewrite(in *url.URL, inboundHost string) *url.URL {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	host := u.Endpoint
	if strings.HasPrefix(strings.ToLower(hostname(inboundHost)), strings.ToLower(u.Bucket)+".") {
		host = u.Bucket + "." + u.Endpoint
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     in.Path,
		RawPath:  in.RawPath,
		RawQuery: in.RawQuery,
	}
}

// Region returns explicit when set, else the region embedded in the endpoint
// hostname, else DefaultRegion.
func (u Upstream) Region(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if r := RegionFromEndpoint(u.Endpoint); r != "" {
		return r
	}
	return DefaultRegion
}

// RegionFromEndpoint extracts <region> from an s3.<region>.<domain> endpoint.
func RegionFromEndpoint(endpoint string) string {
	m := endpointRegionRegexp.FindStringSubmatch(hostname(endpoint))
	if m == nil {
		return ""
	}
	return m[1]
}

func hostname(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
