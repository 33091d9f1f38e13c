// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package wire

import "testing"

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    Addr
		wantErr bool
	}{
		{in: "tcp://127.0.0.1:9000", want: Addr{Network: "tcp", Host: "127.0.0.1:9000"}},
		{in: "tcp://localhost:0", want: Addr{Network: "tcp", Host: "localhost:0"}},
		{in: "unix:///tmp/bus.sock", want: Addr{Network: "unix", Host: "/tmp/bus.sock"}},
		{in: "ipc:///tmp/bus.sock", want: Addr{Network: "unix", Host: "/tmp/bus.sock"}},
		{in: "127.0.0.1:9000", wantErr: true},
		{in: "tcp://127.0.0.1", wantErr: true}, // no port
		{in: "unix://", wantErr: true},
		{in: "http://127.0.0.1:80", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAddr(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAddr(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddr(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddr(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddrPort(t *testing.T) {
	a, err := ParseAddr("tcp://127.0.0.1:9001")
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Port(); got != 9001 {
		t.Errorf("Port() = %d, want 9001", got)
	}
	b := a.WithPort(4242)
	if got := b.String(); got != "tcp://127.0.0.1:4242" {
		t.Errorf("WithPort(4242) = %q", got)
	}

	u, err := ParseAddr("unix:///tmp/bus.sock")
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Port(); got != 0 {
		t.Errorf("unix Port() = %d, want 0", got)
	}
	if got := u.WithPort(99); got != u {
		t.Errorf("unix WithPort changed address to %v", got)
	}
}
