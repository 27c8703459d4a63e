// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Listener wraps a net.Listener and applies an idle timeout to every
// accepted connection.
type Listener struct {
	net.Listener
	IdleTimeout time.Duration
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c, IdleTimeout: l.IdleTimeout}, nil
}

// Conn pushes its deadline forward on every successful read or write, so a
// long object transfer survives as long as bytes keep moving.
type Conn struct {
	net.Conn
	IdleTimeout time.Duration
}

func (c *Conn) Read(b []byte) (int, error) {
	if c.IdleTimeout != 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.IdleTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *Conn) Write(b []byte) (int, error) {
	if c.IdleTimeout != 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.IdleTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func NewListener(addr string, idleTimeout time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: listener, IdleTimeout: idleTimeout}, nil
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}

// ClientIP returns the address a request came from. When trustedHeader is set
// and present on the request (e.g. X-True-Client-Ip set by a fronting CDN),
// its first value wins; otherwise the host part of RemoteAddr is used.
func ClientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if v := r.Header.Get(trustedHeader); v != "" {
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			return strings.TrimSpace(v)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
