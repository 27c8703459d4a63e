// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamRewrite(t *testing.T) {
	t.Parallel()

	up := Upstream{Endpoint: "s3.us-west-004.backblazeb2.com", Bucket: "media"}

	tests := []struct {
		name string
		in   string
		host string
		want string
	}{
		{"path style", "http://cdn.example.com/media/a.jpg", "cdn.example.com", "https://s3.us-west-004.backblazeb2.com/media/a.jpg"},
		{"virtual hosted", "http://media.example.com/a.jpg", "media.example.com", "https://media.s3.us-west-004.backblazeb2.com/a.jpg"},
		{"virtual hosted with port", "http://media.example.com:8080/a.jpg", "media.example.com:8080", "https://media.s3.us-west-004.backblazeb2.com/a.jpg"},
		{"bucket name is not a prefix label", "http://mediaserver.example.com/a.jpg", "mediaserver.example.com", "https://s3.us-west-004.backblazeb2.com/a.jpg"},
		{"query and escaping kept", "http://cdn.example.com/media/my%20file%2B1.txt?versionId=3&x=a%2Fb", "cdn.example.com", "https://s3.us-west-004.backblazeb2.com/media/my%20file%2B1.txt?versionId=3&x=a%2Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, up.Rewrite(in, tt.host).String())
		})
	}
}

func TestUpstreamRewriteScheme(t *testing.T) {
	t.Parallel()

	up := Upstream{Endpoint: "127.0.0.1:9000", Bucket: "b", Scheme: "http"}
	in, err := url.Parse("/b/key")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/b/key", up.Rewrite(in, "proxy.local").String())
}

func TestRegion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "us-west-004", RegionFromEndpoint("s3.us-west-004.backblazeb2.com"))
	assert.Equal(t, "eu-central-1", RegionFromEndpoint("s3.eu-central-1.amazonaws.com"))
	assert.Equal(t, "eu-central-1", RegionFromEndpoint("s3.eu-central-1.amazonaws.com:443"))
	assert.Equal(t, "", RegionFromEndpoint("s3.amazonaws.com"))
	assert.Equal(t, "", RegionFromEndpoint("minio.internal:9000"))

	assert.Equal(t, "ap-south-1", Upstream{Endpoint: "s3.us-west-004.backblazeb2.com"}.Region("ap-south-1"))
	assert.Equal(t, "us-west-004", Upstream{Endpoint: "s3.us-west-004.backblazeb2.com"}.Region(""))
	assert.Equal(t, DefaultRegion, Upstream{Endpoint: "minio.internal:9000"}.Region(""))
}

func TestUpstreamValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		upstream Upstream
		wantErr  bool
	}{
		{"valid", Upstream{Endpoint: "s3.us-west-004.backblazeb2.com", Bucket: "my-bucket.assets"}, false},
		{"with port", Upstream{Endpoint: "127.0.0.1:9000", Bucket: "b01"}, false},
		{"empty endpoint", Upstream{Bucket: "media"}, true},
		{"endpoint with scheme", Upstream{Endpoint: "https://s3.amazonaws.com", Bucket: "media"}, true},
		{"endpoint with path", Upstream{Endpoint: "s3.amazonaws.com/media", Bucket: "media"}, true},
		{"short bucket", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "ab"}, true},
		{"uppercase", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "Media"}, true},
		{"ip address", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "192.168.1.1"}, true},
		{"adjacent periods", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "a..b"}, true},
		{"leading hyphen", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "-media"}, true},
		{"reserved prefix", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "xn--media"}, true},
		{"reserved suffix", Upstream{Endpoint: "s3.amazonaws.com", Bucket: "media-s3alias"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.upstream.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
