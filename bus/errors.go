// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package bus

import "errors"

// ErrDuplicateRegistration is returned by Register when a callback
// with the same (event, uid) pair already exists and replacement was
// not requested. The registry is left unchanged; the caller may pick
// another uid or register again with Replace set.
var ErrDuplicateRegistration = errors.New("callback already registered")

// ErrClientClosed is returned by operations on a client whose
// transport has been shut down.
var ErrClientClosed = errors.New("bus client is closed")
