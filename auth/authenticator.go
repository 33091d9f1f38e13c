// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"localbus.dev/types/key"
	"localbus.dev/types/logger"
	"localbus.dev/util/set"
)

// Authenticator gates secured bus listeners. It accepts a peer only
// if the peer's address is on the allow-list and the peer's public
// key is present in the known-keys directory.
//
// There is no revocation or expiry: this is a coarse localhost trust
// model, where landing a public key in the shared directory is the
// act of trust.
type Authenticator struct {
	logf         logger.Logf
	knownKeysDir string
	allow        set.Set[netip.Addr]

	mu    sync.Mutex
	known set.Set[key.PeerPublic] // lazily (re)loaded from knownKeysDir
}

// NewAuthenticator returns an authenticator trusting keys under
// knownKeysDir. allow lists the peer addresses accepted; nil means
// loopback only.
func NewAuthenticator(logf logger.Logf, knownKeysDir string, allow []netip.Addr) *Authenticator {
	a := &Authenticator{
		logf:         logger.WithPrefix(logf, "auth: "),
		knownKeysDir: knownKeysDir,
		allow:        set.Set[netip.Addr]{},
	}
	if len(allow) == 0 {
		a.allow.Add(netip.MustParseAddr("127.0.0.1"))
		a.allow.Add(netip.MustParseAddr("::1"))
	}
	for _, ip := range allow {
		a.allow.Add(ip.Unmap())
	}
	return a
}

// AllowAddr reports whether a connection from remote may proceed to
// the handshake. Unix socket peers are always local and always
// allowed.
func (a *Authenticator) AllowAddr(remote net.Addr) bool {
	switch remote := remote.(type) {
	case *net.UnixAddr:
		return true
	case *net.TCPAddr:
		ip, ok := netip.AddrFromSlice(remote.IP)
		if !ok {
			return false
		}
		if a.allow.Contains(ip.Unmap()) {
			return true
		}
		a.logf("rejecting connection from %v: not on allow-list", remote)
		return false
	}
	return false
}

// VerifyPeer reports whether k is a trusted peer key. The known-keys
// directory is rescanned when k is not in the cached set, so a peer
// provisioned after the broker started is still accepted.
func (a *Authenticator) VerifyPeer(k key.PeerPublic) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.known.Contains(k) {
		return nil
	}
	if err := a.reloadLocked(); err != nil {
		return err
	}
	if a.known.Contains(k) {
		return nil
	}
	return fmt.Errorf("peer key %v not in known-keys directory", k.ShortString())
}

func (a *Authenticator) reloadLocked() error {
	ents, err := os.ReadDir(a.knownKeysDir)
	if err != nil {
		return fmt.Errorf("reading known-keys directory: %w", err)
	}
	known := set.Set[key.PeerPublic]{}
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), publicSuffix) {
			continue
		}
		p := filepath.Join(a.knownKeysDir, ent.Name())
		b, err := os.ReadFile(p)
		if err != nil {
			a.logf("skipping %s: %v", p, err)
			continue
		}
		var pub key.PeerPublic
		if err := pub.UnmarshalText(trimNL(b)); err != nil {
			a.logf("skipping %s: %v", p, err)
			continue
		}
		known.Add(pub)
	}
	a.known = known
	return nil
}

// Process-wide authenticator slot. The broker creates the process
// authenticator once; tests reset it between runs.
var (
	procMu   sync.Mutex
	procAuth *Authenticator
)

// EnsureAuthenticator returns the process-wide authenticator,
// creating it on first call. Later calls return the existing one
// regardless of arguments.
func EnsureAuthenticator(logf logger.Logf, knownKeysDir string, allow []netip.Addr) *Authenticator {
	procMu.Lock()
	defer procMu.Unlock()
	if procAuth == nil {
		procAuth = NewAuthenticator(logf, knownKeysDir, allow)
	}
	return procAuth
}

// ResetAuthenticator clears the process-wide authenticator slot so
// the next EnsureAuthenticator call creates a fresh one.
func ResetAuthenticator() {
	procMu.Lock()
	defer procMu.Unlock()
	procAuth = nil
}
