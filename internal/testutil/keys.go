// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// WriteClientKey generates an ed25519 key pair in the test's temp dir and
// returns the private key path plus the public key, ready to hand to
// StartSSHServer.
func WriteClientKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("client public key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}
	if err := os.WriteFile(keyPath+".pub", ssh.MarshalAuthorizedKey(sshPub), 0o644); err != nil {
		t.Fatalf("write client public key: %v", err)
	}
	return keyPath, sshPub
}

// MemKeyStore is an in-memory pinned host key store. Safe for concurrent
// use; the zero value is ready.
type MemKeyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *MemKeyStore) GetKnownHostKey(hostname string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[hostname], nil
}

func (m *MemKeyStore) AddKnownHostKey(hostname, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]string)
	}
	m.keys[hostname] = key
	return nil
}
