// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"localbus.dev/catalog"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	e := Envelope{Event: catalog.UpdaterNewUpdates, Payload: []byte("blob with \x00 inside")}
	got, err := DecodeEnvelope(e.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, e); diff != "" {
		t.Errorf("envelope round trip (-got+want):\n%s", diff)
	}
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		[]byte("no separator"),
		[]byte("\x00payload with empty token"),
	} {
		if _, err := DecodeEnvelope(b); err == nil {
			t.Errorf("DecodeEnvelope(%q) succeeded, want error", b)
		}
	}
}

func TestArgsRoundTrip(t *testing.T) {
	args := []any{"first", uint64(42), true}
	payload, err := EncodeArgs(args)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeArgs(payload)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, args); diff != "" {
		t.Errorf("args round trip (-got+want):\n%s", diff)
	}
}

func TestArgsEmpty(t *testing.T) {
	payload, err := EncodeArgs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if payload != nil {
		t.Errorf("EncodeArgs(nil) = %q, want nil", payload)
	}
	got, err := DecodeArgs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("DecodeArgs(nil) = %v, want nil", got)
	}
}

func TestEncodeArgsUnserializable(t *testing.T) {
	_, err := EncodeArgs([]any{make(chan int)})
	if err == nil {
		t.Fatal("encoding a channel succeeded, want error")
	}
	if !errors.Is(err, ErrSerialize) {
		t.Errorf("error = %v, want ErrSerialize", err)
	}
}

func TestDecodeArgsGarbage(t *testing.T) {
	if _, err := DecodeArgs([]byte("\xff\xff not cbor")); err == nil {
		t.Fatal("decoding garbage succeeded, want error")
	}
}
