// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package key defines the curve25519 key types used to authenticate
// and encrypt bus traffic.
package key

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go4.org/mem"
)

func rand(b []byte) {
	if _, err := crand.Read(b); err != nil {
		panic(err)
	}
}

// clamp25519Private clamps the private key in b so that it is a safe
// curve25519 scalar.
func clamp25519Private(b []byte) {
	b[0] &= 248
	b[31] = (b[31] & 127) | 64
}

func appendHexKey(dst []byte, prefix string, key []byte) []byte {
	ret := make([]byte, 0, len(dst)+len(prefix)+len(key)*2)
	ret = append(ret, dst...)
	ret = append(ret, prefix...)
	ret = hex.AppendEncode(ret, key)
	return ret
}

// parseHex decodes a prefixed hex key from in into out.
func parseHex(out []byte, in, prefix mem.RO) error {
	if !mem.HasPrefix(in, prefix) {
		return fmt.Errorf("key hex string doesn't have expected type prefix %s", prefix.StringCopy())
	}
	in = in.SliceFrom(prefix.Len())
	if in.Len() != len(out)*2 {
		return errors.New("key hex has the wrong size")
	}
	for i := range out {
		a, ok1 := fromHexChar(in.At(i*2 + 0))
		b, ok2 := fromHexChar(in.At(i*2 + 1))
		if !ok1 || !ok2 {
			return errors.New("invalid hex character in key")
		}
		out[i] = (a << 4) | b
	}
	return nil
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
