// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package logger

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestWithPrefix(t *testing.T) {
	var got []string
	f := func(format string, args ...any) {
		got = append(got, format)
	}
	WithPrefix(f, "bus: ")("%d", 1)
	if len(got) != 1 || got[0] != "bus: %d" {
		t.Errorf("got %q", got)
	}
}

func TestStdLogger(t *testing.T) {
	var sb strings.Builder
	logf := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
	}
	lg := StdLogger(logf)
	lg.Print("hello")
	if !strings.Contains(sb.String(), "hello") {
		t.Errorf("log output %q does not contain %q", sb.String(), "hello")
	}
}

func TestRateLimitedFn(t *testing.T) {
	var lines []string
	logf := func(format string, args ...any) {
		lines = append(lines, format)
	}
	rl := RateLimitedFn(logf, time.Hour, 2, 10)

	for range 5 {
		rl("spam %d", 1)
	}
	// Two allowed by the burst, one rate-limit notice, rest dropped.
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), lines)
	}

	// A different format has its own budget.
	rl("other %d", 2)
	if len(lines) != 4 {
		t.Errorf("got %d lines after new format, want 4", len(lines))
	}
}
