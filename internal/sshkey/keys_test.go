// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package sshkey

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	// Windows resolves the home directory from USERPROFILE.
	t.Setenv("USERPROFILE", home)
	return home
}

func TestGenerateAndMarshalEd25519Key(t *testing.T) {
	pub, priv, err := GenerateAndMarshalEd25519Key("pkgbridge@workstation")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Fatalf("unexpected public key format: %q", pub)
	}
	if !strings.HasSuffix(pub, " pkgbridge@workstation") {
		t.Fatalf("comment missing from public key: %q", pub)
	}
	if !strings.Contains(priv, "OPENSSH PRIVATE KEY") {
		t.Fatalf("private key not in OpenSSH PEM format")
	}

	// The generated private key must parse back into a usable signer.
	if _, err := ssh.ParsePrivateKey([]byte(priv)); err != nil {
		t.Fatalf("generated private key does not parse: %v", err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pub)); err != nil {
		t.Fatalf("generated public key does not parse: %v", err)
	}
}

func TestGenerate_CreatesAndReusesKeyPair(t *testing.T) {
	home := withTempHome(t)

	path, err := Generate("pkgbridge@test")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	want := filepath.Join(home, ".ssh", "id_ed25519")
	if path != want {
		t.Fatalf("unexpected key path %q, want %q", path, want)
	}

	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read generated key: %v", err)
	}

	// A second call must reuse the existing pair, not regenerate.
	again, err := Generate("pkgbridge@test")
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	if again != path {
		t.Fatalf("second Generate returned %q, want %q", again, path)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read key again: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("Generate overwrote an existing key pair")
	}
}

func TestGenerate_OrphanedPrivateKeyFails(t *testing.T) {
	home := withTempHome(t)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sshDir, "id_ed25519"), []byte("stub"), 0o600); err != nil {
		t.Fatalf("write stub key: %v", err)
	}

	if _, err := Generate("pkgbridge@test"); err == nil {
		t.Fatalf("expected error for private key without public sibling")
	}
}

func TestFindDefaultKey_PrefersEd25519(t *testing.T) {
	home := withTempHome(t)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if got := FindDefaultKey(); got != "" {
		t.Fatalf("expected no key, got %q", got)
	}

	rsa := filepath.Join(sshDir, "id_rsa")
	if err := os.WriteFile(rsa, []byte("rsa"), 0o600); err != nil {
		t.Fatalf("write rsa: %v", err)
	}
	if got := FindDefaultKey(); got != rsa {
		t.Fatalf("expected rsa fallback, got %q", got)
	}

	ed := filepath.Join(sshDir, "id_ed25519")
	if err := os.WriteFile(ed, []byte("ed"), 0o600); err != nil {
		t.Fatalf("write ed25519: %v", err)
	}
	if got := FindDefaultKey(); got != ed {
		t.Fatalf("expected ed25519 preferred, got %q", got)
	}
}

func TestPublicKeyFor_EmptyPathUsesDefaultPublicKey(t *testing.T) {
	home := withTempHome(t)

	if _, err := PublicKeyFor(""); err == nil {
		t.Fatalf("expected error without any default public key")
	}

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	rsaPub := filepath.Join(sshDir, "id_rsa.pub")
	if err := os.WriteFile(rsaPub, []byte("ssh-rsa AAAA rsa@host\n"), 0o644); err != nil {
		t.Fatalf("write rsa pub: %v", err)
	}
	got, err := PublicKeyFor("")
	if err != nil {
		t.Fatalf("PublicKeyFor: %v", err)
	}
	if got != "ssh-rsa AAAA rsa@host" {
		t.Fatalf("unexpected public key %q", got)
	}

	edPub := filepath.Join(sshDir, "id_ed25519.pub")
	if err := os.WriteFile(edPub, []byte("ssh-ed25519 BBBB ed@host\n"), 0o644); err != nil {
		t.Fatalf("write ed25519 pub: %v", err)
	}
	if got := FindDefaultPublicKey(); got != edPub {
		t.Fatalf("expected ed25519 public key preferred, got %q", got)
	}
	got, err = PublicKeyFor("")
	if err != nil {
		t.Fatalf("PublicKeyFor: %v", err)
	}
	if got != "ssh-ed25519 BBBB ed@host" {
		t.Fatalf("unexpected public key %q", got)
	}
}
