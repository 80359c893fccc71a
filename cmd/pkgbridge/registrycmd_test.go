// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/model"
)

func seedTarget(t *testing.T, dsn, name string) {
	t.Helper()
	if err := db.InitDB("sqlite", dsn); err != nil {
		t.Fatalf("init db: %v", err)
	}
	if _, err := db.ActiveStore().AddRemote(model.RemoteTarget{
		Name:    name,
		Host:    "10.9.8.7",
		User:    "Administrator",
		Port:    22,
		KeyPath: "/keys/id_ed25519",
	}); err != nil {
		t.Fatalf("seed target: %v", err)
	}
	if err := db.ActiveStore().AddKnownHostKey("10.9.8.7", "ssh-ed25519 AAAA test"); err != nil {
		t.Fatalf("seed host key: %v", err)
	}
}

func TestRegistryExportImportCmd(t *testing.T) {
	srcDSN := strings.Replace(testDSN(t), "?", "_src?", 1)
	dstDSN := strings.Replace(testDSN(t), "?", "_dst?", 1)
	seedTarget(t, srcDSN, "plc-export")
	snapshot := filepath.Join(t.TempDir(), "registry.snap")

	out, err := executeCommand(t, srcDSN, "", "registry", "export", snapshot)
	if err != nil {
		t.Fatalf("registry export failed: %v", err)
	}
	if !strings.Contains(out, "Exported 1 targets and 1 host keys") {
		t.Errorf("unexpected export output:\n%s", out)
	}
	if info, err := os.Stat(snapshot); err != nil || info.Size() == 0 {
		t.Fatalf("snapshot file missing or empty: %v", err)
	}

	out, err = executeCommand(t, dstDSN, "", "registry", "import", snapshot)
	if err != nil {
		t.Fatalf("registry import failed: %v", err)
	}
	if !strings.Contains(out, "Imported 1 targets and 1 host keys") {
		t.Errorf("unexpected import output:\n%s", out)
	}

	out, err = executeCommand(t, dstDSN, "", "remote", "list")
	if err != nil {
		t.Fatalf("remote list failed: %v", err)
	}
	if !strings.Contains(out, "plc-export - Host: 10.9.8.7") {
		t.Errorf("imported target missing from listing:\n%s", out)
	}
}

func TestRegistryImportMergeKeepsExisting(t *testing.T) {
	srcDSN := strings.Replace(testDSN(t), "?", "_src?", 1)
	dstDSN := strings.Replace(testDSN(t), "?", "_dst?", 1)
	seedTarget(t, srcDSN, "plc-a")
	snapshot := filepath.Join(t.TempDir(), "registry.snap")

	if _, err := executeCommand(t, srcDSN, "", "registry", "export", snapshot); err != nil {
		t.Fatalf("registry export failed: %v", err)
	}

	seedTarget(t, dstDSN, "plc-b")
	if _, err := executeCommand(t, dstDSN, "", "registry", "import", snapshot, "--merge"); err != nil {
		t.Fatalf("registry import --merge failed: %v", err)
	}

	out, err := executeCommand(t, dstDSN, "", "remote", "list")
	if err != nil {
		t.Fatalf("remote list failed: %v", err)
	}
	if !strings.Contains(out, "plc-a") || !strings.Contains(out, "plc-b") {
		t.Errorf("expected both targets after merge, got:\n%s", out)
	}
}

func TestRegistryImportRejectsGarbage(t *testing.T) {
	dsn := testDSN(t)
	path := filepath.Join(t.TempDir(), "garbage.snap")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	if _, err := executeCommand(t, dsn, "", "registry", "import", path); err == nil {
		t.Fatal("expected error importing garbage snapshot")
	}
}
