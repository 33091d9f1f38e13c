// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package bus

import (
	"sync"

	"localbus.dev/catalog"
	"localbus.dev/flags"
)

// Process-wide client slot. Most programs want exactly one bus client
// per process; the package-level functions manage it.
var (
	procMu   sync.Mutex
	proc     *Client
	procOpts Options
)

// Configure sets the options the process client is created with. It
// affects the next client created by Instance; a client that already
// exists keeps the options it was created with, so call Configure
// before the first Register or Emit.
func Configure(opts Options) {
	procMu.Lock()
	defer procMu.Unlock()
	procOpts = opts
}

// Instance returns the process client, creating it on first use. The
// client connects lazily; merely obtaining it does not touch the
// network.
func Instance() *Client {
	procMu.Lock()
	defer procMu.Unlock()
	if proc == nil {
		proc = NewClient(procOpts)
	}
	return proc
}

// Register registers cb for event on the process client. See
// [Client.Register].
func Register(event catalog.Event, cb Callback, opt *RegisterOptions) (string, error) {
	if !flags.Enabled() {
		return "", nil
	}
	return Instance().Register(event, cb, opt)
}

// Unregister removes callbacks for event from the process client. See
// [Client.Unregister].
func Unregister(event catalog.Event, uid string) {
	procMu.Lock()
	c := proc
	procMu.Unlock()
	if c == nil {
		return
	}
	c.Unregister(event, uid)
}

// Emit publishes event with args through the process client. See
// [Client.Emit].
func Emit(event catalog.Event, args ...any) error {
	if !flags.Enabled() {
		return nil
	}
	return Instance().Emit(event, args...)
}

// Shutdown closes the process client and clears the slot, so a later
// Register or Emit starts over with a fresh client.
func Shutdown() {
	procMu.Lock()
	c := proc
	proc = nil
	procMu.Unlock()
	if c != nil {
		c.Close()
	}
}
