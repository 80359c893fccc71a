// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/model"
	_ "modernc.org/sqlite"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := db.NewStoreFromDSN("sqlite", "file:test_reg_"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(store)
}

// elevate makes the privilege check pass for the duration of the test.
func elevate(t *testing.T) {
	t.Helper()
	prev := privilegeCheck
	privilegeCheck = func() bool { return true }
	t.Cleanup(func() { privilegeCheck = prev })
}

// drop makes the privilege check fail for the duration of the test.
func drop(t *testing.T) {
	t.Helper()
	prev := privilegeCheck
	privilegeCheck = func() bool { return false }
	t.Cleanup(func() { privilegeCheck = prev })
}

// withTempHome points key discovery at an empty home so tests never touch
// the real ~/.ssh.
func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestAddAppliesDefaults(t *testing.T) {
	elevate(t)
	home := withTempHome(t)
	r := newTestRegistry(t)

	added, err := r.Add(model.RemoteTarget{Name: "myplc"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.Host != "myplc" {
		t.Fatalf("host = %q, want name as default", added.Host)
	}
	if added.User != "Administrator" {
		t.Fatalf("user = %q, want Administrator", added.User)
	}
	if added.Port != 22 {
		t.Fatalf("port = %d, want 22", added.Port)
	}
	if added.KeyPath == "" {
		t.Fatal("registered target has no key material")
	}
	if _, err := os.Stat(added.KeyPath); err != nil {
		t.Fatalf("generated key missing: %v", err)
	}
	if _, err := os.Stat(added.KeyPath + ".pub"); err != nil {
		t.Fatalf("generated public key missing: %v", err)
	}
	if got := filepath.Dir(added.KeyPath); got != filepath.Join(home, ".ssh") {
		t.Fatalf("key generated outside ~/.ssh: %s", added.KeyPath)
	}

	stored, err := r.Get("myplc")
	if err != nil {
		t.Fatalf("get after add: %v", err)
	}
	if stored.Host != "myplc" || stored.KeyPath != added.KeyPath {
		t.Fatalf("stored target differs: %+v", stored)
	}
}

func TestAddPrefersExistingDefaultKey(t *testing.T) {
	elevate(t)
	home := withTempHome(t)
	r := newTestRegistry(t)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	keyPath := filepath.Join(sshDir, "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("key"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	added, err := r.Add(model.RemoteTarget{Name: "myplc"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.KeyPath != keyPath {
		t.Fatalf("key path = %q, want existing %q", added.KeyPath, keyPath)
	}
}

func TestAddDuplicateLeavesExistingEntry(t *testing.T) {
	elevate(t)
	withTempHome(t)
	r := newTestRegistry(t)

	if _, err := r.Add(model.RemoteTarget{Name: "myplc", Host: "10.0.0.1"}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := r.Add(model.RemoteTarget{Name: "myplc", Host: "10.0.0.2"})
	if !errors.Is(err, db.ErrDuplicate) {
		t.Fatalf("second add error = %v, want ErrDuplicate", err)
	}

	stored, err := r.Get("myplc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Host != "10.0.0.1" {
		t.Fatalf("existing entry changed: host = %q", stored.Host)
	}
}

func TestAddThenRemoveLeavesNoResidualState(t *testing.T) {
	elevate(t)
	withTempHome(t)
	r := newTestRegistry(t)

	if _, err := r.Add(model.RemoteTarget{Name: "myplc"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Remove("myplc"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.Get("myplc"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("get after remove = %v, want ErrNotFound", err)
	}
}

func TestRemoveNonExistentKeepsRegistryUnchanged(t *testing.T) {
	elevate(t)
	withTempHome(t)
	r := newTestRegistry(t)

	if _, err := r.Add(model.RemoteTarget{Name: "keeper"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := r.Remove("ghost"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("remove ghost = %v, want ErrNotFound", err)
	}

	targets, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "keeper" {
		t.Fatalf("registry changed by failed remove: %v", targets)
	}
}

func TestListIsConsistentWithGet(t *testing.T) {
	elevate(t)
	withTempHome(t)
	r := newTestRegistry(t)

	for _, name := range []string{"plc-a", "plc-b", "plc-c"} {
		if _, err := r.Add(model.RemoteTarget{Name: name}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	targets, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, target := range targets {
		got, err := r.Get(target.Name)
		if err != nil {
			t.Fatalf("get(list()[%d].name): %v", i, err)
		}
		if got.Name != target.Name || got.Host != target.Host || got.Port != target.Port {
			t.Fatalf("get(%q) = %+v, list entry = %+v", target.Name, got, target)
		}
	}
}

func TestMutationsRequirePrivileges(t *testing.T) {
	drop(t)
	withTempHome(t)
	r := newTestRegistry(t)

	if _, err := r.Add(model.RemoteTarget{Name: "myplc"}); !errors.Is(err, ErrPermission) {
		t.Fatalf("add without privileges = %v, want ErrPermission", err)
	}
	if err := r.Remove("myplc"); !errors.Is(err, ErrPermission) {
		t.Fatalf("remove without privileges = %v, want ErrPermission", err)
	}

	// Reads stay open to everyone.
	if _, err := r.List(); err != nil {
		t.Fatalf("unprivileged list: %v", err)
	}
}
