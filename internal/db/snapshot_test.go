// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"testing"
	"time"

	"github.com/plcforge/pkgbridge/internal/model"
)

func TestSnapshot_ExportImportRoundTrip(t *testing.T) {
	_ = newTestDB(t)

	if _, err := AddRemote(testTarget("alpha")); err != nil {
		t.Fatalf("AddRemote failed: %v", err)
	}
	if err := AddKnownHostKey("192.168.10.5", "ssh-ed25519 AAAAhostkey"); err != nil {
		t.Fatalf("AddKnownHostKey failed: %v", err)
	}

	snap, err := store.ExportSnapshot()
	if err != nil {
		t.Fatalf("ExportSnapshot failed: %v", err)
	}
	if snap.Version != model.SnapshotVersion {
		t.Fatalf("unexpected snapshot version %d", snap.Version)
	}
	if len(snap.Remotes) != 1 || len(snap.KnownHosts) != 1 {
		t.Fatalf("unexpected snapshot contents: %+v", snap)
	}

	// Wipe-and-replace import with a different registry.
	other := &model.RegistrySnapshot{
		Version:    model.SnapshotVersion,
		ExportedAt: time.Now(),
		Remotes:    []model.RemoteTarget{testTarget("beta")},
	}
	if err := store.ImportSnapshot(other, false); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}
	if _, err := GetRemote("alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected alpha to be gone after replace import, got %v", err)
	}
	if _, err := GetRemote("beta"); err != nil {
		t.Fatalf("expected beta after import: %v", err)
	}

	// Merge import keeps existing entries and skips duplicates.
	if err := store.ImportSnapshot(snap, true); err != nil {
		t.Fatalf("merge ImportSnapshot failed: %v", err)
	}
	all, err := GetAllRemotes()
	if err != nil {
		t.Fatalf("GetAllRemotes failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 remotes after merge, got %d", len(all))
	}
	if err := store.ImportSnapshot(snap, true); err != nil {
		t.Fatalf("repeated merge must skip duplicates: %v", err)
	}
}

func TestBootstrapSession_Lifecycle(t *testing.T) {
	_ = newTestDB(t)

	s := model.BootstrapSession{
		ID:        "4fa2b1c8-0000-4000-8000-000000000001",
		NetID:     "192.168.10.5.1.1",
		Username:  "Administrator",
		Hostname:  "192.168.10.5",
		PublicKey: "ssh-ed25519 AAAAtemp",
		ExpiresAt: time.Now().Add(-time.Minute),
		Status:    "running",
	}
	if err := SaveBootstrapSession(s); err != nil {
		t.Fatalf("SaveBootstrapSession failed: %v", err)
	}

	got, err := store.GetBootstrapSession(s.ID)
	if err != nil {
		t.Fatalf("GetBootstrapSession failed: %v", err)
	}
	if got.NetID != s.NetID || got.Status != "running" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := UpdateBootstrapSessionStatus(s.ID, "failed"); err != nil {
		t.Fatalf("UpdateBootstrapSessionStatus failed: %v", err)
	}
	expired, err := store.GetExpiredBootstrapSessions()
	if err != nil {
		t.Fatalf("GetExpiredBootstrapSessions failed: %v", err)
	}
	if len(expired) != 1 || expired[0].Status != "failed" {
		t.Fatalf("expected one expired failed session, got %+v", expired)
	}

	if err := DeleteBootstrapSession(s.ID); err != nil {
		t.Fatalf("DeleteBootstrapSession failed: %v", err)
	}
	if _, err := store.GetBootstrapSession(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
