// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package auth provisions the long-term key pairs used on the bus and
// implements the authenticator that gates secured listeners.
//
// The on-disk layout under a provisioning directory is:
//
//	private_keys/<role>.key_secret   (0600, owner only)
//	public_keys/<role>.key           (world readable, shared dir)
//
// The public half of every provisioned role accumulates in
// public_keys/, which doubles as the broker's known-keys directory: a
// peer is trusted iff its public key is present there.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"localbus.dev/atomicfile"
	"localbus.dev/types/key"
)

const (
	privateKeysDir = "private_keys"
	publicKeysDir  = "public_keys"

	secretSuffix = ".key_secret"
	publicSuffix = ".key"
)

// ErrUnavailable is returned when secure transport was requested but
// key material cannot be provisioned or loaded. Callers may fall back
// to an explicitly unsecured transport; the bus never downgrades
// silently.
var ErrUnavailable = errors.New("secure transport unavailable")

// KeyPair is the provisioned key material for one role.
type KeyPair struct {
	Public  key.PeerPublic
	Private key.PeerPrivate
}

// PublicKeysDir returns the shared known-keys directory under dir.
func PublicKeysDir(dir string) string {
	return filepath.Join(dir, publicKeysDir)
}

// Provision returns the key pair for role under dir, generating and
// persisting a new pair on first use. It is idempotent: subsequent
// calls load the pair created by the first.
//
// The secret is written with owner-only permissions; the public half
// is placed in the shared public-keys directory where other peers
// (and the broker's authenticator) can find it.
func Provision(dir, role string) (KeyPair, error) {
	secretPath := filepath.Join(dir, privateKeysDir, role+secretSuffix)
	if b, err := os.ReadFile(secretPath); err == nil {
		var priv key.PeerPrivate
		if err := priv.UnmarshalText(trimNL(b)); err != nil {
			return KeyPair{}, fmt.Errorf("%w: parsing %s: %v", ErrUnavailable, secretPath, err)
		}
		return KeyPair{Public: priv.Public(), Private: priv}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return KeyPair{}, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, secretPath, err)
	}

	priv := key.NewPeer()
	pub := priv.Public()

	if err := os.MkdirAll(filepath.Dir(secretPath), 0700); err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sb, err := priv.MarshalText()
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := atomicfile.WriteFile(secretPath, append(sb, '\n'), 0600); err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	publicPath := filepath.Join(dir, publicKeysDir, role+publicSuffix)
	if err := os.MkdirAll(filepath.Dir(publicPath), 0755); err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	pb, err := pub.MarshalText()
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := atomicfile.WriteFile(publicPath, append(pb, '\n'), 0644); err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return KeyPair{Public: pub, Private: priv}, nil
}

// LoadPublic loads the public key previously provisioned for role
// under dir. It is how clients learn the broker's key.
func LoadPublic(dir, role string) (key.PeerPublic, error) {
	p := filepath.Join(dir, publicKeysDir, role+publicSuffix)
	b, err := os.ReadFile(p)
	if err != nil {
		return key.PeerPublic{}, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, p, err)
	}
	var pub key.PeerPublic
	if err := pub.UnmarshalText(trimNL(b)); err != nil {
		return key.PeerPublic{}, fmt.Errorf("%w: parsing %s: %v", ErrUnavailable, p, err)
	}
	return pub, nil
}

func trimNL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
