// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"bytes"
	"errors"
	"fmt"

	"go4.org/mem"
	"localbus.dev/types/key"
)

// handshakeChallenge is the cleartext a client must seal to the
// broker to prove possession of its private key.
var handshakeChallenge = []byte("localbus handshake v1")

const keyLen = 32

var errBadMagic = errors.New("bad protocol magic")

// ReadConnFrameType reads one frame from c and returns its body,
// failing if the frame is not of type want.
func ReadConnFrameType(c *Conn, want FrameType) ([]byte, error) {
	t, body, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if t != want {
		return nil, fmt.Errorf("bad frame type %v, want %v", t, want)
	}
	return body, nil
}

// SendServerHello announces the broker on a fresh connection: magic,
// protocol version, and the broker's public key (the zero key on an
// unsecured listener).
func SendServerHello(c *Conn, priv key.PeerPrivate) error {
	hello := make([]byte, 0, 4+1+keyLen)
	hello = bin.AppendUint32(hello, magic)
	hello = append(hello, ProtocolVersion)
	var pub key.PeerPublic
	if !priv.IsZero() {
		pub = priv.Public()
	}
	raw := pub.Raw32()
	hello = append(hello, raw[:]...)
	return c.WriteFrame(FrameServerHello, hello)
}

// ExpectServerHello reads and validates a server hello on c,
// returning the broker key it announced (zero on an unsecured
// listener). It is what the liveness probe uses to tell a broker from
// a foreign process squatting on the port.
func ExpectServerHello(c *Conn) (key.PeerPublic, error) {
	body, err := ReadConnFrameType(c, FrameServerHello)
	if err != nil {
		return key.PeerPublic{}, err
	}
	if len(body) != 4+1+keyLen {
		return key.PeerPublic{}, errors.New("malformed server hello")
	}
	if bin.Uint32(body[:4]) != magic {
		return key.PeerPublic{}, errBadMagic
	}
	if v := body[4]; v != ProtocolVersion {
		return key.PeerPublic{}, fmt.Errorf("unsupported protocol version %d", v)
	}
	return key.PeerPublicFromRaw32(mem.B(body[5:])), nil
}

// ServerAcceptHello runs one step of the broker side of the
// handshake, after [SendServerHello]. Pre-handshake pings are
// answered with pong and done=false; a valid client hello completes
// the handshake with done=true.
//
// verify is consulted with the client's key before its sealed
// challenge is opened; it is the authenticator's known-keys check. On
// a secured listener the connection is upgraded in place: every
// subsequent frame is sealed with the negotiated shared key.
func ServerAcceptHello(c *Conn, priv key.PeerPrivate, verify func(key.PeerPublic) error) (done bool, err error) {
	t, body, err := c.ReadFrame()
	if err != nil {
		return false, err
	}
	switch t {
	case FramePing:
		return false, c.WriteFrame(FramePong, nil)
	case FrameClientHello:
		// proceed below
	default:
		return false, fmt.Errorf("bad frame type %v, want %v", t, FrameClientHello)
	}

	if len(body) < keyLen {
		return false, errors.New("short client hello")
	}
	clientKey := key.PeerPublicFromRaw32(mem.B(body[:keyLen]))
	if priv.IsZero() {
		return true, nil
	}
	if clientKey.IsZero() {
		return false, errors.New("client offered no key on secured listener")
	}
	if verify != nil {
		if err := verify(clientKey); err != nil {
			return false, fmt.Errorf("client %v rejected: %w", clientKey.ShortString(), err)
		}
	}
	opened, ok := priv.OpenFrom(clientKey, body[keyLen:])
	if !ok {
		return false, fmt.Errorf("client %v: cannot open handshake box", clientKey.ShortString())
	}
	if !bytes.Equal(opened, handshakeChallenge) {
		return false, fmt.Errorf("client %v: bad handshake challenge", clientKey.ShortString())
	}
	c.secure(priv.SharedKey(clientKey))
	return true, nil
}

// ClientHandshake runs the client side of the connection handshake.
//
// serverKey is the broker public key the client trusts, loaded from
// the shared public-keys directory; the handshake fails if the broker
// announces a different key. A zero priv requests an unsecured
// connection, which succeeds only against an unsecured listener.
func ClientHandshake(c *Conn, priv key.PeerPrivate, serverKey key.PeerPublic) error {
	announced, err := ExpectServerHello(c)
	if err != nil {
		return fmt.Errorf("receive server hello: %w", err)
	}

	if priv.IsZero() {
		if !announced.IsZero() {
			return errors.New("broker requires a secured connection")
		}
		hello := make([]byte, keyLen) // zero key
		return c.WriteFrame(FrameClientHello, hello)
	}

	if announced.IsZero() {
		return errors.New("broker listener is unsecured, refusing to send sealed traffic")
	}
	if announced != serverKey {
		return fmt.Errorf("broker key %v does not match trusted key %v",
			announced.ShortString(), serverKey.ShortString())
	}

	pub := priv.Public().Raw32()
	hello := make([]byte, 0, keyLen+len(handshakeChallenge)+48)
	hello = append(hello, pub[:]...)
	hello = append(hello, priv.SealTo(serverKey, handshakeChallenge)...)
	if err := c.WriteFrame(FrameClientHello, hello); err != nil {
		return fmt.Errorf("send client hello: %w", err)
	}
	c.secure(priv.SharedKey(serverKey))
	return nil
}
