// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bus provides the client side of the local event system.
//
// A Client maintains a registry mapping event tokens to callbacks and
// a pair of connections to the local broker, one for publishing and
// one for receiving deliveries. Most programs use the package-level
// functions, which operate on a lazily created per-process client.
package bus

import (
	"fmt"
	"sync"

	"localbus.dev/broker"
	"localbus.dev/catalog"
	"localbus.dev/flags"
	"localbus.dev/types/logger"
	"localbus.dev/util/rands"
	"localbus.dev/util/set"
	"localbus.dev/wire"
)

// A Callback handles one delivered event. The args slice holds the
// values the emitter passed, decoded with the same dynamic types the
// payload codec supports; it may be nil when the emitter sent none.
type Callback func(event catalog.Event, args []any)

// Options configures a Client. The zero value connects to the default
// broker addresses with a secured transport.
type Options struct {
	// EmitAddr and RegAddr are the broker endpoints, in the same
	// address syntax the broker binds. Empty means the defaults.
	EmitAddr string
	RegAddr  string

	// ConfigDir is where curve key material lives. Empty means the
	// broker package default. Ignored when Insecure is set.
	ConfigDir string

	// Insecure disables the curve handshake and frame sealing.
	// Only for tests or transports already private by construction.
	Insecure bool

	// Executor, when non-nil, selects the cooperative transport:
	// callbacks are scheduled onto the caller's loop through this
	// function instead of a client-owned goroutine. The executor
	// must run the closures it is handed serially.
	Executor Executor

	// Logf is the client's logger. Nil means discard.
	Logf logger.Logf
}

// An Executor schedules fn to run on an event loop owned by the
// caller. Implementations must not run fn concurrently with other
// closures passed to the same executor.
type Executor func(fn func())

// RegisterOptions adjusts a single Register call.
type RegisterOptions struct {
	// UID identifies the callback within its event. Empty means a
	// fresh random identifier.
	UID string

	// Replace permits overwriting an existing callback with the
	// same (event, uid) pair instead of failing.
	Replace bool
}

// Client is a connection-owning event bus participant. Its methods
// are safe for concurrent use.
type Client struct {
	opts Options
	logf logger.Logf

	mu       sync.Mutex
	registry map[catalog.Event]map[string]Callback
	runner   runner
	closed   bool
}

// NewClient returns an unconnected client. The broker connections are
// established lazily on the first Register or Emit.
func NewClient(opts Options) *Client {
	logf := opts.Logf
	if logf == nil {
		logf = logger.Discard
	}
	return &Client{
		opts:     opts,
		logf:     logf,
		registry: make(map[catalog.Event]map[string]Callback),
	}
}

// ensureRunnerLocked starts the transport if it is not running.
// It blocks only for the local connect and handshake, never for
// broker-side processing. c.mu must be held.
func (c *Client) ensureRunnerLocked() (runner, error) {
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.runner != nil {
		return c.runner, nil
	}
	emitAddr, regAddr := c.opts.EmitAddr, c.opts.RegAddr
	if emitAddr == "" {
		emitAddr = broker.DefaultEmitAddr
	}
	if regAddr == "" {
		regAddr = broker.DefaultRegAddr
	}
	configDir := c.opts.ConfigDir
	if configDir == "" && !c.opts.Insecure {
		configDir = broker.DefaultConfigDir()
	}
	tc := transportConfig{
		emitAddr:  emitAddr,
		regAddr:   regAddr,
		configDir: configDir,
		insecure:  c.opts.Insecure,
		logf:      c.logf,
		deliver:   c.dispatch,
	}
	var r runner
	var err error
	if c.opts.Executor != nil {
		r, err = startLoopRunner(tc, c.opts.Executor)
	} else {
		r, err = startThreadedRunner(tc)
	}
	if err != nil {
		return nil, err
	}
	c.runner = r
	return r, nil
}

// Register adds cb to the registry under event. When cb is the first
// callback for event, the broker subscription is established before
// Register returns, so a delivery emitted afterwards cannot be missed.
// The returned uid names the registration for Unregister.
func (c *Client) Register(event catalog.Event, cb Callback, opt *RegisterOptions) (string, error) {
	if !flags.Enabled() {
		return "", nil
	}
	if cb == nil {
		return "", fmt.Errorf("register %v: nil callback", event)
	}
	var uid string
	var replace bool
	if opt != nil {
		uid, replace = opt.UID, opt.Replace
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cbs := c.registry[event]
	if uid == "" {
		for {
			uid = rands.HexString(16)
			if _, ok := cbs[uid]; !ok {
				break
			}
		}
	} else if _, ok := cbs[uid]; ok && !replace {
		return "", fmt.Errorf("register %v/%v: %w", event, uid, ErrDuplicateRegistration)
	}

	if len(cbs) == 0 {
		r, err := c.ensureRunnerLocked()
		if err != nil {
			return "", err
		}
		if err := r.subscribe(event); err != nil {
			return "", fmt.Errorf("subscribe %v: %w", event, err)
		}
	}
	if cbs == nil {
		cbs = make(map[string]Callback)
		c.registry[event] = cbs
	}
	cbs[uid] = cb
	return uid, nil
}

// Unregister removes the callback registered under (event, uid), or
// every callback for event when uid is empty. Removing an unknown
// registration is not an error. When the last callback for an event
// goes away the broker subscription is dropped as well; deliveries
// already in flight may still arrive at the transport but find no
// callback to run.
func (c *Client) Unregister(event catalog.Event, uid string) {
	if !flags.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cbs := c.registry[event]
	if len(cbs) == 0 {
		c.logf("bus: unregister %v: no callbacks registered", event)
		return
	}
	if uid != "" {
		if _, ok := cbs[uid]; !ok {
			c.logf("bus: unregister %v/%v: not registered", event, uid)
			return
		}
		delete(cbs, uid)
	} else {
		clear(cbs)
	}
	if len(cbs) > 0 {
		return
	}
	delete(c.registry, event)
	if c.runner != nil {
		if err := c.runner.unsubscribe(event); err != nil {
			c.logf("bus: unsubscribe %v: %v", event, err)
		}
	}
}

// Emit publishes event with args to the broker. Delivery to other
// processes is asynchronous; a nil return means the event was handed
// to the transport, not that any subscriber has seen it.
func (c *Client) Emit(event catalog.Event, args ...any) error {
	if !flags.Enabled() {
		return nil
	}
	payload, err := wire.EncodeArgs(args)
	if err != nil {
		return fmt.Errorf("emit %v: %w", event, err)
	}

	c.mu.Lock()
	r, err := c.ensureRunnerLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return r.send(wire.Envelope{Event: event, Payload: payload})
}

// Close drains pending work, tears down the broker connections and
// clears the registry. The client cannot be reused afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	r := c.runner
	c.runner = nil
	c.closed = true
	clear(c.registry)
	c.mu.Unlock()
	if r != nil {
		r.shutdown()
	}
}

// dispatch runs every callback registered for the envelope's event.
// It is called from the transport with no client locks held; the
// callback set is snapshotted so callbacks may register or unregister
// freely.
func (c *Client) dispatch(env wire.Envelope) {
	args, err := wire.DecodeArgs(env.Payload)
	if err != nil {
		c.logf("bus: dropping %v delivery: %v", env.Event, err)
		return
	}
	c.mu.Lock()
	cbs := make([]Callback, 0, len(c.registry[env.Event]))
	for _, cb := range c.registry[env.Event] {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()
	for _, cb := range cbs {
		c.invoke(env.Event, cb, args)
	}
}

func (c *Client) invoke(event catalog.Event, cb Callback, args []any) {
	defer func() {
		if e := recover(); e != nil {
			c.logf("bus: callback for %v panicked: %v", event, e)
		}
	}()
	cb(event, args)
}

// Events returns the tokens that currently have at least one callback
// registered, in no particular order.
func (c *Client) Events() []catalog.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := set.Set[catalog.Event]{}
	for ev := range c.registry {
		s.Add(ev)
	}
	return s.Slice()
}
