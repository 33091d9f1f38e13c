// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package broker implements the bus broker: the process that receives
// every emitted event on its ingestion endpoint and fans it out, by
// topic, to the clients subscribed on its broadcast endpoint.
//
// The broker is stateless with respect to subscribers: it keeps no
// backlog, replays nothing, and deduplicates nothing. An event
// arriving while nobody subscribes to its topic is dropped.
package broker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
	"localbus.dev/auth"
	"localbus.dev/catalog"
	"localbus.dev/types/key"
	"localbus.dev/types/logger"
	"localbus.dev/util/set"
	"localbus.dev/wire"
)

// Default endpoint addresses, shared with package bus.
const (
	DefaultEmitAddr = "tcp://127.0.0.1:9001"
	DefaultRegAddr  = "tcp://127.0.0.1:9000"
)

// ServerRole is the provisioning role name of the broker's key pair.
const ServerRole = "server"

// DefaultConfigDir returns the conventional provisioning directory
// for the current user, or "" when no user config directory exists.
func DefaultConfigDir() string {
	d, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(d, "localbus")
}

// probeTimeout bounds the liveness probe used to decide whether an
// occupied port belongs to a running broker.
const probeTimeout = 1 * time.Second

// ErrPortUnavailable is returned by Ensure when the configured emit
// port is occupied by something that does not answer the broker
// liveness probe. This is fatal for the startup attempt: the broker
// will not fight a foreign process for its port.
var ErrPortUnavailable = errors.New("port occupied by non-broker process")

// Options configures Ensure.
type Options struct {
	// EmitAddr is the ingestion endpoint clients publish to.
	// Defaults to DefaultEmitAddr. A TCP port of 0 binds any free
	// port; the resolved port is reported on the Handle.
	EmitAddr string

	// RegAddr is the broadcast endpoint clients subscribe on.
	// Defaults to DefaultRegAddr.
	RegAddr string

	// ConfigDir is the security provisioning directory. Required
	// unless Insecure is set.
	ConfigDir string

	// Insecure runs the broker without key-pair authentication or
	// channel encryption. Disabling security is always this explicit;
	// the broker never downgrades on its own.
	Insecure bool

	// AllowList is the set of peer addresses accepted by the
	// authenticator. Empty means loopback only.
	AllowList []netip.Addr

	// Logf is the logger. Defaults to logger.Discard.
	Logf logger.Logf
}

// Handle refers to a running broker: either one started by Ensure in
// this process, or one that was already answering at the configured
// address.
type Handle struct {
	emitAddr wire.Addr // resolved
	regAddr  wire.Addr // resolved
	srv      *Server   // nil when the broker runs in another process
}

// EmitAddr returns the resolved ingestion address.
func (h *Handle) EmitAddr() string { return h.emitAddr.String() }

// RegAddr returns the resolved broadcast address.
func (h *Handle) RegAddr() string { return h.regAddr.String() }

// EmitPort returns the resolved TCP port of the ingestion endpoint,
// or 0 for unix endpoints.
func (h *Handle) EmitPort() int { return h.emitAddr.Port() }

// RegPort returns the resolved TCP port of the broadcast endpoint, or
// 0 for unix endpoints.
func (h *Handle) RegPort() int { return h.regAddr.Port() }

// Owned reports whether this handle's broker runs in this process.
func (h *Handle) Owned() bool { return h.srv != nil }

// Close stops the broker if this handle owns one. Closing a handle to
// a broker owned by another process is a no-op.
func (h *Handle) Close() error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Close()
}

// Ensure makes sure a broker is answering at the configured
// addresses, starting one if needed. It is idempotent: if a broker
// already answers the liveness probe at the emit address, Ensure
// returns a handle to it without starting a second one.
//
// If the emit port is occupied but the probe gets no valid answer,
// Ensure fails with ErrPortUnavailable.
func Ensure(opts Options) (*Handle, error) {
	if opts.EmitAddr == "" {
		opts.EmitAddr = DefaultEmitAddr
	}
	if opts.RegAddr == "" {
		opts.RegAddr = DefaultRegAddr
	}
	if opts.Logf == nil {
		opts.Logf = logger.Discard
	}
	emitAddr, err := wire.ParseAddr(opts.EmitAddr)
	if err != nil {
		return nil, err
	}
	regAddr, err := wire.ParseAddr(opts.RegAddr)
	if err != nil {
		return nil, err
	}

	// A concrete address may already have a broker behind it. Port 0
	// always means a fresh broker, so only concrete ones are probed.
	if emitAddr.Network != "tcp" || emitAddr.Port() != 0 {
		switch err := Probe(emitAddr, probeTimeout); {
		case err == nil:
			// The probe cannot discover the running broker's reg
			// port, so an ephemeral reg address is unusable here.
			if regAddr.Network == "tcp" && regAddr.Port() == 0 {
				return nil, fmt.Errorf("broker already running at %v, but reg address %v is ephemeral and cannot be resolved", emitAddr, regAddr)
			}
			opts.Logf("broker: already running at %v", emitAddr)
			return &Handle{emitAddr: emitAddr, regAddr: regAddr}, nil
		case errors.Is(err, ErrPortUnavailable):
			return nil, err
		default:
			// Nothing is answering; start a broker here.
		}
	}

	srv, err := NewServer(opts)
	if err != nil {
		return nil, err
	}
	return &Handle{emitAddr: srv.emitAddr, regAddr: srv.regAddr, srv: srv}, nil
}

// Probe checks for a live broker at addr. It returns nil if a broker
// answered, ErrPortUnavailable if something else is listening there,
// and the dial error if nothing accepted the connection.
func Probe(addr wire.Addr, timeout time.Duration) error {
	nc, err := addr.DialTimeout(timeout)
	if err != nil {
		return err
	}
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(timeout))
	c := wire.NewConn(nc)

	// A broker announces itself with a server hello as soon as the
	// connection opens, and answers ping with pong before any
	// handshake. Anything else on the port is a foreign process.
	if _, err := wire.ExpectServerHello(c); err != nil {
		return fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}
	if err := c.WriteFrame(wire.FramePing, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}
	if _, err := wire.ReadConnFrameType(c, wire.FramePong); err != nil {
		return fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}
	return nil
}

// Server is a running broker.
type Server struct {
	logf          logger.Logf
	privateKey    key.PeerPrivate // zero when running insecure
	authenticator *auth.Authenticator

	emitLn net.Listener
	regLn  net.Listener

	emitAddr wire.Addr // resolved
	regAddr  wire.Addr // resolved

	group *taskgroup.Group

	mu     sync.Mutex
	closed bool
	conns  set.Set[*wire.Conn]
	subs   map[catalog.Event]set.Set[*wire.Conn]
}

// NewServer binds both endpoints and starts forwarding. Most callers
// want Ensure instead.
//
// Security bootstrap is one explicit, blocking sequence: provision
// the server key pair, construct the authenticator over the shared
// public-keys directory, then bind the secured listeners.
func NewServer(opts Options) (*Server, error) {
	if opts.Logf == nil {
		opts.Logf = logger.Discard
	}
	s := &Server{
		logf:  logger.WithPrefix(opts.Logf, "broker: "),
		conns: set.Set[*wire.Conn]{},
		subs:  map[catalog.Event]set.Set[*wire.Conn]{},
	}

	if !opts.Insecure {
		if opts.ConfigDir == "" {
			return nil, fmt.Errorf("%w: no provisioning directory configured", auth.ErrUnavailable)
		}
		pair, err := auth.Provision(opts.ConfigDir, ServerRole)
		if err != nil {
			return nil, err
		}
		s.privateKey = pair.Private
		s.authenticator = auth.EnsureAuthenticator(
			opts.Logf, auth.PublicKeysDir(opts.ConfigDir), opts.AllowList)
	} else {
		s.logf("running with security disabled")
	}

	emitAddr, err := wire.ParseAddr(opts.EmitAddr)
	if err != nil {
		return nil, err
	}
	regAddr, err := wire.ParseAddr(opts.RegAddr)
	if err != nil {
		return nil, err
	}
	if s.emitLn, err = emitAddr.Listen(); err != nil {
		return nil, fmt.Errorf("bind emit endpoint: %w", err)
	}
	if s.regLn, err = regAddr.Listen(); err != nil {
		s.emitLn.Close()
		return nil, fmt.Errorf("bind reg endpoint: %w", err)
	}
	s.emitAddr = emitAddr.WithPort(wire.ListenerPort(s.emitLn))
	s.regAddr = regAddr.WithPort(wire.ListenerPort(s.regLn))

	s.group = new(taskgroup.Group)
	s.group.Go(func() error { return s.acceptLoop(s.emitLn, s.handleEmitConn) })
	s.group.Go(func() error { return s.acceptLoop(s.regLn, s.handleRegConn) })

	s.logf("listening on %v (emit) and %v (reg)", s.emitAddr, s.regAddr)
	return s, nil
}

// EmitAddr returns the resolved ingestion address.
func (s *Server) EmitAddr() string { return s.emitAddr.String() }

// RegAddr returns the resolved broadcast address.
func (s *Server) RegAddr() string { return s.regAddr.String() }

// Close closes both listeners, disconnects every client, and waits
// for the connection handlers to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns.Clone()
	s.mu.Unlock()

	s.emitLn.Close()
	s.regLn.Close()
	for c := range conns {
		c.Close()
	}
	s.group.Wait()
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) acceptLoop(ln net.Listener, handle func(*wire.Conn) error) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		if s.authenticator != nil && !s.authenticator.AllowAddr(nc.RemoteAddr()) {
			nc.Close()
			continue
		}
		c := wire.NewConn(nc)
		s.addConn(c)
		s.group.Go(func() error {
			defer s.removeConn(c)
			defer c.Close()
			if err := handle(c); err != nil && !s.isClosed() {
				s.logf("%s: %v", nc.RemoteAddr(), err)
			}
			return nil
		})
	}
}

func (s *Server) addConn(c *wire.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns.Add(c)
}

func (s *Server) removeConn(c *wire.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns.Delete(c)
	for ev, subs := range s.subs {
		subs.Delete(c)
		if subs.Len() == 0 {
			delete(s.subs, ev)
		}
	}
}

// accept runs the pre-handshake part of a connection: the server
// hello, and the unauthenticated ping/pong liveness exchange. It
// returns once the peer has completed the handshake.
func (s *Server) accept(c *wire.Conn) error {
	c.SetDeadline(time.Now().Add(10 * time.Second))
	if err := wire.SendServerHello(c, s.privateKey); err != nil {
		return fmt.Errorf("send server hello: %w", err)
	}
	for {
		done, err := wire.ServerAcceptHello(c, s.privateKey, s.verifyPeer)
		if err != nil {
			return err
		}
		if done {
			// Authenticated; no deadline on a trusted peer.
			c.SetDeadline(time.Time{})
			return nil
		}
	}
}

func (s *Server) verifyPeer(k key.PeerPublic) error {
	if s.authenticator == nil {
		return nil
	}
	return s.authenticator.VerifyPeer(k)
}

// handleEmitConn services one ingestion connection: every publish
// frame is fanned out, unchanged, to the subscribed broadcast
// connections.
func (s *Server) handleEmitConn(c *wire.Conn) error {
	if err := s.accept(c); err != nil {
		return ignoreEOF(err)
	}
	for {
		t, body, err := c.ReadFrame()
		if err != nil {
			return ignoreEOF(err)
		}
		switch t {
		case wire.FramePublish:
			s.fanout(body)
		case wire.FramePing:
			if err := c.WriteFrame(wire.FramePong, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected frame %v on emit connection", t)
		}
	}
}

// handleRegConn services one broadcast connection, maintaining its
// topic subscription set.
func (s *Server) handleRegConn(c *wire.Conn) error {
	if err := s.accept(c); err != nil {
		return ignoreEOF(err)
	}
	for {
		t, body, err := c.ReadFrame()
		if err != nil {
			return ignoreEOF(err)
		}
		switch t {
		case wire.FrameSubscribe:
			s.subscribe(c, catalog.Event(body))
			// Acked only after the subscription is recorded, so a
			// publisher that waited for the ack cannot race it.
			if err := c.WriteFrame(wire.FrameSubscribed, body); err != nil {
				return err
			}
		case wire.FrameUnsubscribe:
			s.unsubscribe(c, catalog.Event(body))
		case wire.FramePing:
			if err := c.WriteFrame(wire.FramePong, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected frame %v on reg connection", t)
		}
	}
}

func (s *Server) subscribe(c *wire.Conn, ev catalog.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[ev]
	if subs == nil {
		subs = set.Set[*wire.Conn]{}
		s.subs[ev] = subs
	}
	subs.Add(c)
}

func (s *Server) unsubscribe(c *wire.Conn, ev catalog.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[ev]
	subs.Delete(c)
	if subs.Len() == 0 {
		delete(s.subs, ev)
	}
}

// fanout republishes one envelope to every broadcast connection
// subscribed to its topic. The envelope body is forwarded unchanged.
func (s *Server) fanout(body []byte) {
	i := bytes.IndexByte(body, 0)
	if i <= 0 {
		s.logf("dropping malformed envelope (%d bytes)", len(body))
		return
	}
	ev := catalog.Event(body[:i])

	s.mu.Lock()
	dests := s.subs[ev].Clone()
	s.mu.Unlock()

	for c := range dests {
		if err := c.WriteFrame(wire.FrameDeliver, body); err != nil {
			s.logf("dropping event %s for %v: %v", ev, c.RemoteAddr(), err)
			// If we cannot write to a subscriber, shut its
			// connection down and let its read loop clean up.
			c.Close()
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
