// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"localbus.dev/types/key"
)

// Conn is a framed bus connection. After a secured handshake every
// frame body is sealed with the connection's shared key, so the
// payload (and the event token inside it) never crosses the socket in
// the clear.
//
// WriteFrame is safe for concurrent use; reads must come from a
// single goroutine.
type Conn struct {
	nc net.Conn
	br *bufio.Reader

	wmu sync.Mutex // guards bw and shared writes
	bw  *bufio.Writer

	shared key.PeerPrecomputedSharedKey // zero when the conn is cleartext
}

// NewConn wraps nc. The connection starts out cleartext; a handshake
// upgrades it in place.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc: nc,
		br: bufio.NewReader(nc),
		bw: bufio.NewWriter(nc),
	}
}

func (c *Conn) secure(shared key.PeerPrecomputedSharedKey) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.shared = shared
}

// Secured reports whether the connection completed a secured
// handshake.
func (c *Conn) Secured() bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return !c.shared.IsZero()
}

// WriteFrame writes one frame, sealing the body when the connection
// is secured.
func (c *Conn) WriteFrame(t FrameType, body []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if !c.shared.IsZero() {
		body = c.shared.Seal(body)
	}
	return WriteFrame(c.bw, t, body)
}

// ReadFrame reads one frame, opening the body when the connection is
// secured.
func (c *Conn) ReadFrame() (FrameType, []byte, error) {
	t, body, err := ReadFrame(c.br)
	if err != nil {
		return 0, nil, err
	}
	c.wmu.Lock()
	shared := c.shared
	c.wmu.Unlock()
	if !shared.IsZero() {
		opened, ok := shared.Open(body)
		if !ok {
			return 0, nil, errors.New("cannot open sealed frame")
		}
		body = opened
	}
	return t, body, nil
}

// SetDeadline sets the read and write deadline on the underlying
// connection.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }
