// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package flags holds the process-wide switch for the events
// framework.
//
// While the switch is off, register, unregister and emit are silent
// no-ops, letting embedders and tests opt out of running a broker
// entirely. That is intentional behavior, not an error.
package flags

import (
	"os"
	"sync/atomic"
)

var disabled atomic.Bool

func init() {
	// LOCALBUS_DISABLE_EVENTS=1 starts the process with events off,
	// the same knob convention used for the other debug toggles.
	switch os.Getenv("LOCALBUS_DISABLE_EVENTS") {
	case "1", "true":
		disabled.Store(true)
	}
}

// Enabled reports whether the events framework is enabled in this
// process.
func Enabled() bool { return !disabled.Load() }

// SetEnabled turns the events framework on or off process-wide.
func SetEnabled(v bool) { disabled.Store(!v) }
