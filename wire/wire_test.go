// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	frames := []struct {
		t    FrameType
		body []byte
	}{
		{FramePing, nil},
		{FramePublish, []byte("USER_LOGGED_IN\x00payload")},
		{FrameSubscribe, []byte("KEYMANAGER_KEY_FOUND")},
	}
	for _, f := range frames {
		if err := WriteFrame(bw, f.t, f.body); err != nil {
			t.Fatal(err)
		}
	}

	br := bufio.NewReader(&buf)
	for _, want := range frames {
		ft, body, err := ReadFrame(br)
		if err != nil {
			t.Fatal(err)
		}
		if ft != want.t {
			t.Errorf("frame type = %v, want %v", ft, want.t)
		}
		if !bytes.Equal(body, want.body) {
			t.Errorf("frame body = %q, want %q", body, want.body)
		}
	}
}

func TestReadFrameTypeMismatch(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := WriteFrame(bw, FramePong, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrameType(bufio.NewReader(&buf), FramePing); err == nil {
		t.Fatal("reading Pong as Ping succeeded, want error")
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	hdr := []byte{byte(FramePublish), 0, 0, 0, 0}
	binary.BigEndian.PutUint32(hdr[1:], MaxFrameSize+1)
	if _, _, err := ReadFrame(bufio.NewReader(bytes.NewReader(hdr))); err == nil {
		t.Fatal("oversize frame accepted, want error")
	}
}
