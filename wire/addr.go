// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Addr is a parsed bus endpoint address. Two networks are supported:
// loopback TCP ("tcp://host:port", port 0 meaning any free port) and
// local interprocess sockets ("unix:///path/to/socket").
type Addr struct {
	Network string // "tcp" or "unix"
	Host    string // host:port for tcp, socket path for unix
}

// ParseAddr parses an endpoint address string.
func ParseAddr(s string) (Addr, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Addr{}, fmt.Errorf("address %q missing scheme", s)
	}
	switch scheme {
	case "tcp":
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return Addr{}, fmt.Errorf("address %q: %w", s, err)
		}
		return Addr{Network: "tcp", Host: rest}, nil
	case "unix", "ipc":
		if rest == "" {
			return Addr{}, fmt.Errorf("address %q has empty socket path", s)
		}
		return Addr{Network: "unix", Host: rest}, nil
	}
	return Addr{}, fmt.Errorf("address %q has unsupported scheme %q", s, scheme)
}

func (a Addr) String() string {
	return a.Network + "://" + a.Host
}

// Listen binds a listener at a.
func (a Addr) Listen() (net.Listener, error) {
	return net.Listen(a.Network, a.Host)
}

// Dial connects to a, honoring ctx for cancellation.
func (a Addr) Dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, a.Network, a.Host)
}

// DialTimeout connects to a with the given timeout.
func (a Addr) DialTimeout(timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(a.Network, a.Host, timeout)
}

// Port returns the port of a TCP address, or 0 when a is not TCP or
// has no explicit port.
func (a Addr) Port() int {
	if a.Network != "tcp" {
		return 0
	}
	_, port, err := net.SplitHostPort(a.Host)
	if err != nil {
		return 0
	}
	var p int
	fmt.Sscanf(port, "%d", &p)
	return p
}

// WithPort returns a copy of a with its TCP port replaced. It is used
// to report resolved ephemeral ports back to callers. For unix
// addresses a is returned unchanged.
func (a Addr) WithPort(port int) Addr {
	if a.Network != "tcp" {
		return a
	}
	host, _, err := net.SplitHostPort(a.Host)
	if err != nil {
		return a
	}
	return Addr{Network: "tcp", Host: net.JoinHostPort(host, fmt.Sprint(port))}
}

// ListenerPort reports the TCP port ln is bound to, or 0 for non-TCP
// listeners.
func ListenerPort(ln net.Listener) int {
	if ta, ok := ln.Addr().(*net.TCPAddr); ok {
		return ta.Port
	}
	return 0
}
