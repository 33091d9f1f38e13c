// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"bytes"
	"net"
	"testing"

	"localbus.dev/types/key"
)

// pipeConns returns two framed connections joined back to back.
func pipeConns(t *testing.T) (srv, cli *Conn) {
	t.Helper()
	nc1, nc2 := net.Pipe()
	t.Cleanup(func() { nc1.Close(); nc2.Close() })
	return NewConn(nc1), NewConn(nc2)
}

// runServerSide accepts the handshake on srv in the background.
func runServerSide(t *testing.T, srv *Conn, priv key.PeerPrivate, verify func(key.PeerPublic) error) chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		if err := SendServerHello(srv, priv); err != nil {
			errc <- err
			return
		}
		for {
			done, err := ServerAcceptHello(srv, priv, verify)
			if err != nil || done {
				errc <- err
				return
			}
		}
	}()
	return errc
}

func TestSecuredHandshake(t *testing.T) {
	srvKey, cliKey := key.NewPeer(), key.NewPeer()
	srv, cli := pipeConns(t)

	verified := false
	errc := runServerSide(t, srv, srvKey, func(k key.PeerPublic) error {
		verified = true
		if k != cliKey.Public() {
			t.Errorf("verify saw key %v, want %v", k, cliKey.Public())
		}
		return nil
	})

	if err := ClientHandshake(cli, cliKey, srvKey.Public()); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if !verified {
		t.Error("verify callback never ran")
	}
	if !srv.Secured() || !cli.Secured() {
		t.Error("handshake completed but connections are not secured")
	}

	// Post-handshake traffic is sealed on the wire and transparent at
	// the frame API.
	body := []byte("EVENT_TOKEN\x00payload")
	go func() {
		if err := cli.WriteFrame(FramePublish, body); err != nil {
			t.Error(err)
		}
	}()
	ft, got, err := srv.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if ft != FramePublish || !bytes.Equal(got, body) {
		t.Errorf("got frame %v %q, want %v %q", ft, got, FramePublish, body)
	}
}

func TestInsecureHandshake(t *testing.T) {
	srv, cli := pipeConns(t)
	errc := runServerSide(t, srv, key.PeerPrivate{}, nil)

	if err := ClientHandshake(cli, key.PeerPrivate{}, key.PeerPublic{}); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if srv.Secured() || cli.Secured() {
		t.Error("insecure handshake produced a secured connection")
	}
}

func TestHandshakeRejectsWrongServerKey(t *testing.T) {
	srvKey, cliKey := key.NewPeer(), key.NewPeer()
	srv, cli := pipeConns(t)
	runServerSide(t, srv, srvKey, nil)

	// The client trusts a key the server does not hold.
	if err := ClientHandshake(cli, cliKey, key.NewPeer().Public()); err == nil {
		t.Fatal("handshake with mismatched server key succeeded")
	}
}

func TestHandshakeRejectsSecurityDowngrade(t *testing.T) {
	srvKey, cliKey := key.NewPeer(), key.NewPeer()

	// Secured client against unsecured server.
	srv, cli := pipeConns(t)
	runServerSide(t, srv, key.PeerPrivate{}, nil)
	if err := ClientHandshake(cli, cliKey, srvKey.Public()); err == nil {
		t.Fatal("secured client accepted unsecured server")
	}

	// Unsecured client against secured server.
	srv, cli = pipeConns(t)
	runServerSide(t, srv, srvKey, nil)
	if err := ClientHandshake(cli, key.PeerPrivate{}, key.PeerPublic{}); err == nil {
		t.Fatal("unsecured client accepted secured server")
	}
}

func TestPreHandshakePing(t *testing.T) {
	srvKey := key.NewPeer()
	srv, cli := pipeConns(t)
	runServerSide(t, srv, srvKey, func(key.PeerPublic) error {
		t.Error("verify ran for a ping-only peer")
		return nil
	})

	if _, err := ExpectServerHello(cli); err != nil {
		t.Fatal(err)
	}
	if err := cli.WriteFrame(FramePing, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadConnFrameType(cli, FramePong); err != nil {
		t.Fatal(err)
	}
}
