// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"strings"
	"testing"
)

func TestPromptStringDefaultAndRequired(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("\ncustom\n\nfinally\n"))

	got, err := promptString(reader, "Host", "plc-7", false)
	if err != nil {
		t.Fatalf("promptString failed: %v", err)
	}
	if got != "plc-7" {
		t.Errorf("empty input should take the default, got %q", got)
	}

	got, err = promptString(reader, "Host", "", false)
	if err != nil {
		t.Fatalf("promptString failed: %v", err)
	}
	if got != "custom" {
		t.Errorf("expected typed value, got %q", got)
	}

	// Required prompt re-asks on empty input until something is typed.
	got, err = promptString(reader, "Name", "", true)
	if err != nil {
		t.Fatalf("promptString failed: %v", err)
	}
	if got != "finally" {
		t.Errorf("expected re-prompted value, got %q", got)
	}
}

func TestPromptChoice(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("\n2\n9\n1\n"))
	choices := []string{"no", "yes"}

	got, err := promptChoice(reader, "Internet?", choices, 0)
	if err != nil {
		t.Fatalf("promptChoice failed: %v", err)
	}
	if got != 0 {
		t.Errorf("empty input should take the default index, got %d", got)
	}

	got, err = promptChoice(reader, "Internet?", choices, 0)
	if err != nil {
		t.Fatalf("promptChoice failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}

	// Out-of-range input re-asks.
	got, err = promptChoice(reader, "Internet?", choices, 0)
	if err != nil {
		t.Fatalf("promptChoice failed: %v", err)
	}
	if got != 0 {
		t.Errorf("expected re-prompted index 0, got %d", got)
	}
}
