// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"localbus.dev/catalog"
)

// ErrSerialize is wrapped by errors arising from payload
// (de)serialization. These errors are per-message: they surface to
// the emitting or receiving caller and never tear down a runner.
var ErrSerialize = errors.New("payload serialization failed")

// Envelope is the unit carried by Publish and Deliver frames: the
// event token, a NUL separator, and an opaque payload blob. The token
// doubles as the topic filter string.
type Envelope struct {
	Event   catalog.Event
	Payload []byte
}

// Encode returns the wire form of e.
func (e Envelope) Encode() []byte {
	b := make([]byte, 0, len(e.Event)+1+len(e.Payload))
	b = append(b, e.Event...)
	b = append(b, 0)
	b = append(b, e.Payload...)
	return b
}

// DecodeEnvelope parses the wire form produced by [Envelope.Encode].
func DecodeEnvelope(b []byte) (Envelope, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return Envelope{}, errors.New("envelope missing token separator")
	}
	if i == 0 {
		return Envelope{}, errors.New("envelope has empty event token")
	}
	return Envelope{
		Event:   catalog.Event(b[:i]),
		Payload: bytes.Clone(b[i+1:]),
	}, nil
}

// EncodeArgs serializes the ordered sequence of event content values.
// Callers see the sequence again, in order, via [DecodeArgs] on the
// receiving side. Values must be CBOR-serializable.
func EncodeArgs(args []any) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	b, err := cbor.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return b, nil
}

// DecodeArgs reverses [EncodeArgs]. A nil or empty payload decodes to
// no values.
func DecodeArgs(payload []byte) ([]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var args []any
	if err := cbor.Unmarshal(payload, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return args, nil
}
