// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package key

import (
	"crypto/subtle"
	"fmt"

	"go4.org/mem"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	// peerPrivateHexPrefix is the prefix used to identify a
	// hex-encoded peer private key. It is what ends up on disk in the
	// private keys directory, so it cannot change.
	peerPrivateHexPrefix = "buspriv:"

	// peerPublicHexPrefix is the prefix used to identify a
	// hex-encoded peer public key. Known-keys files use it, so it
	// cannot change.
	peerPublicHexPrefix = "buskey:"
)

// PeerPrivate is the long-term private key of one bus peer (either
// the broker, in its "server" role, or an application process in its
// "client" role).
type PeerPrivate struct {
	k [32]byte
}

// NewPeer creates and returns a new peer private key.
func NewPeer() PeerPrivate {
	var ret PeerPrivate
	rand(ret.k[:])
	clamp25519Private(ret.k[:])
	return ret
}

// IsZero reports whether k is the zero value.
func (k PeerPrivate) IsZero() bool {
	return k.Equal(PeerPrivate{})
}

// Equal reports whether k and other are the same key.
func (k PeerPrivate) Equal(other PeerPrivate) bool {
	return subtle.ConstantTimeCompare(k.k[:], other.k[:]) == 1
}

// Public returns the PeerPublic for k.
// Panics if k is the zero value.
func (k PeerPrivate) Public() PeerPublic {
	if k.IsZero() {
		panic("can't take the public key of a zero PeerPrivate")
	}
	var ret PeerPublic
	curve25519.ScalarBaseMult(&ret.k, &k.k)
	return ret
}

// AppendText implements encoding.TextAppender.
func (k PeerPrivate) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, peerPrivateHexPrefix, k.k[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (k PeerPrivate) MarshalText() ([]byte, error) {
	return k.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PeerPrivate) UnmarshalText(b []byte) error {
	return parseHex(k.k[:], mem.B(b), mem.S(peerPrivateHexPrefix))
}

// SealTo wraps cleartext into a NaCl box (see golang.org/x/crypto/nacl)
// to p, authenticated from k, using a random nonce.
//
// The returned ciphertext is a 24-byte nonce concatenated with the
// box value.
func (k PeerPrivate) SealTo(p PeerPublic, cleartext []byte) (ciphertext []byte) {
	if k.IsZero() || p.IsZero() {
		panic("can't seal with zero keys")
	}
	var nonce [24]byte
	rand(nonce[:])
	return box.Seal(nonce[:], cleartext, &nonce, &p.k, &k.k)
}

// OpenFrom opens the NaCl box ciphertext, which must be a value
// created by SealTo, and returns the inner cleartext if ciphertext is
// a valid box from p to k.
func (k PeerPrivate) OpenFrom(p PeerPublic, ciphertext []byte) (cleartext []byte, ok bool) {
	if k.IsZero() || p.IsZero() {
		panic("can't open with zero keys")
	}
	if len(ciphertext) < 24 {
		return nil, false
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext)
	return box.Open(nil, ciphertext[len(nonce):], &nonce, &p.k, &k.k)
}

// SharedKey returns the precomputed NaCl box shared key between k and p.
func (k PeerPrivate) SharedKey(p PeerPublic) PeerPrecomputedSharedKey {
	var shared PeerPrecomputedSharedKey
	box.Precompute(&shared.k, &p.k, &k.k)
	return shared
}

// PeerPrecomputedSharedKey is a precomputed NaCl box shared key, used
// to seal every frame on a secured connection without redoing the
// curve25519 scalar multiplication each time.
type PeerPrecomputedSharedKey struct {
	k [32]byte
}

// IsZero reports whether k is the zero value.
func (k PeerPrecomputedSharedKey) IsZero() bool {
	return k == PeerPrecomputedSharedKey{}
}

// Seal wraps cleartext into a NaCl box using the shared key k.
//
// The returned ciphertext is a 24-byte nonce concatenated with the
// box value.
func (k PeerPrecomputedSharedKey) Seal(cleartext []byte) (ciphertext []byte) {
	if k.IsZero() {
		panic("can't seal with zero keys")
	}
	var nonce [24]byte
	rand(nonce[:])
	return box.SealAfterPrecomputation(nonce[:], cleartext, &nonce, &k.k)
}

// Open opens the NaCl box ciphertext, which must be a value created
// by Seal, and returns the inner cleartext if ciphertext is a valid
// box for the shared key k.
func (k PeerPrecomputedSharedKey) Open(ciphertext []byte) (cleartext []byte, ok bool) {
	if k.IsZero() {
		panic("can't open with zero keys")
	}
	if len(ciphertext) < 24 {
		return nil, false
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext)
	return box.OpenAfterPrecomputation(nil, ciphertext[len(nonce):], &nonce, &k.k)
}

// PeerPublic is the public portion of a PeerPrivate.
type PeerPublic struct {
	k [32]byte
}

// PeerPublicFromRaw32 parses a 32-byte raw value as given out by the
// wire protocol handshake.
func PeerPublicFromRaw32(raw mem.RO) PeerPublic {
	if raw.Len() != 32 {
		panic("input has wrong size")
	}
	var ret PeerPublic
	raw.Copy(ret.k[:])
	return ret
}

// IsZero reports whether k is the zero value.
func (k PeerPublic) IsZero() bool {
	return k == PeerPublic{}
}

// Raw32 returns k encoded as 32 raw bytes, as used by the wire
// protocol handshake.
func (k PeerPublic) Raw32() [32]byte {
	return k.k
}

// ShortString returns the peer key in its conventional debug form,
// for logging.
func (k PeerPublic) ShortString() string {
	return fmt.Sprintf("[%x]", k.k[:4])
}

// AppendText implements encoding.TextAppender.
func (k PeerPublic) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, peerPublicHexPrefix, k.k[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (k PeerPublic) MarshalText() ([]byte, error) {
	return k.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PeerPublic) UnmarshalText(b []byte) error {
	return parseHex(k.k[:], mem.B(b), mem.S(peerPublicHexPrefix))
}

// String returns k's prefixed hex form, the same form produced by
// MarshalText.
func (k PeerPublic) String() string {
	b, err := k.MarshalText()
	if err != nil {
		panic(err)
	}
	return string(b)
}
