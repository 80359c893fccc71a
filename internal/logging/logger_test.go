// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package logging

import (
	"bytes"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
)

func TestSetDebug_TogglesDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	old := L
	L = clog.New(&buf)
	defer func() { L = old }()

	SetDebug(false)
	Debugf("hidden %s", "message")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug output emitted while disabled: %q", buf.String())
	}

	SetDebug(true)
	Debugf("visible %s", "message")
	if !strings.Contains(buf.String(), "visible message") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}

func TestErrorf_AlwaysEmits(t *testing.T) {
	var buf bytes.Buffer
	old := L
	L = clog.New(&buf)
	defer func() { L = old }()

	Errorf("boom: %d", 42)
	if !strings.Contains(buf.String(), "boom: 42") {
		t.Fatalf("expected error output, got %q", buf.String())
	}
}
