// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package key

import (
	"bytes"
	"strings"
	"testing"
)

func TestPeerPrivateText(t *testing.T) {
	k := NewPeer()
	b, err := k.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "buspriv:") {
		t.Errorf("marshaled private key %q lacks type prefix", b)
	}
	var back PeerPrivate
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(k) {
		t.Error("private key did not round-trip through text")
	}
}

func TestPeerPublicText(t *testing.T) {
	pub := NewPeer().Public()
	b, err := pub.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "buskey:") {
		t.Errorf("marshaled public key %q lacks type prefix", b)
	}
	var back PeerPublic
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if back != pub {
		t.Error("public key did not round-trip through text")
	}
}

func TestPeerUnmarshalRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"",
		"buspriv:",
		"buskey:abc",
		"nodekey:0000000000000000000000000000000000000000000000000000000000000000",
		"buspriv:zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz",
	} {
		var priv PeerPrivate
		if err := priv.UnmarshalText([]byte(in)); err == nil {
			t.Errorf("PeerPrivate.UnmarshalText(%q) succeeded, want error", in)
		}
		var pub PeerPublic
		if err := pub.UnmarshalText([]byte(in)); err == nil {
			t.Errorf("PeerPublic.UnmarshalText(%q) succeeded, want error", in)
		}
	}
}

func TestSealOpen(t *testing.T) {
	alice, bob := NewPeer(), NewPeer()
	msg := []byte("attack at dawn")

	sealed := alice.SealTo(bob.Public(), msg)
	got, ok := bob.OpenFrom(alice.Public(), sealed)
	if !ok {
		t.Fatal("open failed")
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("opened %q, want %q", got, msg)
	}

	eve := NewPeer()
	if _, ok := eve.OpenFrom(alice.Public(), sealed); ok {
		t.Error("message sealed to bob opened with eve's key")
	}
	sealed[len(sealed)-1] ^= 1
	if _, ok := bob.OpenFrom(alice.Public(), sealed); ok {
		t.Error("tampered message opened")
	}
}

func TestPrecomputedSharedKey(t *testing.T) {
	alice, bob := NewPeer(), NewPeer()
	ab := alice.SharedKey(bob.Public())
	ba := bob.SharedKey(alice.Public())
	if ab.IsZero() || ba.IsZero() {
		t.Fatal("shared key is zero")
	}

	msg := []byte("shared secret traffic")
	got, ok := ba.Open(ab.Seal(msg))
	if !ok {
		t.Fatal("open failed")
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("opened %q, want %q", got, msg)
	}

	// A sealed box from the precomputed key opens with the one-shot
	// API as well.
	got, ok = bob.OpenFrom(alice.Public(), ab.Seal(msg))
	if !ok {
		t.Fatal("one-shot open of precomputed box failed")
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("opened %q, want %q", got, msg)
	}
}

func TestZeroKeys(t *testing.T) {
	var priv PeerPrivate
	if !priv.IsZero() {
		t.Error("zero private key not IsZero")
	}
	var pub PeerPublic
	if !pub.IsZero() {
		t.Error("zero public key not IsZero")
	}
	if NewPeer().IsZero() {
		t.Error("fresh private key reports IsZero")
	}
}
