// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package bus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"localbus.dev/auth"
	"localbus.dev/broker"
	"localbus.dev/catalog"
	"localbus.dev/types/key"
	"localbus.dev/types/logger"
	"localbus.dev/wire"
)

// clientRole is the provisioning role name of the client key pair.
// All clients sharing a provisioning directory share the pair.
const clientRole = "client"

const dialTimeout = 10 * time.Second

type transportConfig struct {
	emitAddr  string
	regAddr   string
	configDir string
	insecure  bool
	logf      logger.Logf
	deliver   func(wire.Envelope)
}

// transport owns a client's two broker connections: sub carries
// subscriptions and deliveries, push carries publishes. A single read
// loop goroutine drains sub and hands deliveries to the configured
// deliver function.
type transport struct {
	logf    logger.Logf
	deliver func(wire.Envelope)

	sub  *wire.Conn
	push *wire.Conn

	// acks receives the topic tokens of subscription
	// acknowledgements. Subscribes are serialized by the client, so
	// the small buffer only absorbs the write-then-wait race.
	acks chan catalog.Event

	readDone chan struct{}
	readErr  error // valid once readDone is closed
}

// dialTransport connects and handshakes both broker connections. The
// subscription connection comes up first so that a subscribe issued
// immediately after cannot race the publish path into existence.
// It returns once both connections are established; broker-side state
// is not waited for.
func dialTransport(tc transportConfig) (*transport, error) {
	var priv key.PeerPrivate
	var serverKey key.PeerPublic
	if !tc.insecure {
		if tc.configDir == "" {
			return nil, fmt.Errorf("%w: no provisioning directory configured", auth.ErrUnavailable)
		}
		pair, err := auth.Provision(tc.configDir, clientRole)
		if err != nil {
			return nil, err
		}
		priv = pair.Private
		serverKey, err = auth.LoadPublic(tc.configDir, broker.ServerRole)
		if err != nil {
			return nil, err
		}
	}

	t := &transport{
		logf:     tc.logf,
		deliver:  tc.deliver,
		acks:     make(chan catalog.Event, 8),
		readDone: make(chan struct{}),
	}
	var err error
	if t.sub, err = dialConn(tc.regAddr, priv, serverKey); err != nil {
		return nil, fmt.Errorf("connect reg endpoint: %w", err)
	}
	if t.push, err = dialConn(tc.emitAddr, priv, serverKey); err != nil {
		t.sub.Close()
		return nil, fmt.Errorf("connect emit endpoint: %w", err)
	}
	go t.readLoop()
	return t, nil
}

func dialConn(addr string, priv key.PeerPrivate, serverKey key.PeerPublic) (*wire.Conn, error) {
	a, err := wire.ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	nc, err := a.DialTimeout(dialTimeout)
	if err != nil {
		return nil, err
	}
	c := wire.NewConn(nc)
	nc.SetDeadline(time.Now().Add(dialTimeout))
	if err := wire.ClientHandshake(c, priv, serverKey); err != nil {
		nc.Close()
		return nil, err
	}
	nc.SetDeadline(time.Time{})
	return c, nil
}

func (t *transport) readLoop() {
	defer close(t.readDone)
	for {
		ft, body, err := t.sub.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				t.logf("bus: reg connection: %v", err)
			}
			t.readErr = err
			return
		}
		switch ft {
		case wire.FrameDeliver:
			env, err := wire.DecodeEnvelope(body)
			if err != nil {
				t.logf("bus: dropping malformed delivery: %v", err)
				continue
			}
			t.deliver(env)
		case wire.FrameSubscribed:
			select {
			case t.acks <- catalog.Event(body):
			default:
				t.logf("bus: dropping unexpected subscribe ack for %s", body)
			}
		case wire.FramePong:
			// ignore
		default:
			t.logf("bus: unexpected frame %v on reg connection", ft)
		}
	}
}

// subscribe asks the broker to deliver events for ev on this
// transport and waits for the acknowledgement, so the subscription is
// in effect when it returns.
func (t *transport) subscribe(ev catalog.Event) error {
	if err := t.sub.WriteFrame(wire.FrameSubscribe, []byte(ev)); err != nil {
		return err
	}
	for {
		select {
		case got := <-t.acks:
			if got == ev {
				return nil
			}
		case <-t.readDone:
			if t.readErr != nil {
				return t.readErr
			}
			return ErrClientClosed
		}
	}
}

func (t *transport) unsubscribe(ev catalog.Event) error {
	return t.sub.WriteFrame(wire.FrameUnsubscribe, []byte(ev))
}

func (t *transport) send(env wire.Envelope) error {
	return t.push.WriteFrame(wire.FramePublish, env.Encode())
}

// close tears down both connections and waits for the read loop to
// exit, so no delivery is handed out after close returns.
func (t *transport) close() {
	t.sub.Close()
	t.push.Close()
	<-t.readDone
}
