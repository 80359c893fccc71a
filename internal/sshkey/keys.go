// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey locates, generates and inspects the SSH key material used
// to authenticate against remote targets.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Key names probed for a usable default identity, in order of preference.
var defaultKeyNames = []string{"id_ed25519", "id_rsa"}

// Dir returns the user's .ssh directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ssh"), nil
}

// FindDefaultKey returns the path of the default private key, preferring
// ed25519 over rsa. An empty string means no key was found.
func FindDefaultKey() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	for _, name := range defaultKeyNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindDefaultPublicKey returns the path of the default public key, preferring
// ed25519 over rsa. An empty string means no key was found.
func FindDefaultPublicKey() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	for _, name := range defaultKeyNames {
		p := filepath.Join(dir, name+".pub")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Generate creates a new ed25519 key pair under the user's .ssh directory and
// returns the private key path. An existing pair is reused; a private key
// without its public sibling is an error the user has to resolve, because
// regenerating would silently invalidate trust already granted elsewhere.
func Generate(comment string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}

	keyPath := filepath.Join(dir, "id_ed25519")
	pubPath := keyPath + ".pub"

	_, keyErr := os.Stat(keyPath)
	_, pubErr := os.Stat(pubPath)
	if keyErr == nil && pubErr == nil {
		return keyPath, nil
	}
	if keyErr == nil && pubErr != nil {
		return "", fmt.Errorf("private key exists at %s but its public key is missing; delete the private key or regenerate the public half with: ssh-keygen -y -f %s > %s", keyPath, keyPath, pubPath)
	}

	pubStr, privStr, err := GenerateAndMarshalEd25519Key(comment)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(keyPath, []byte(privStr), 0o600); err != nil {
		return "", fmt.Errorf("could not write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pubStr+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("could not write public key: %w", err)
	}
	return keyPath, nil
}

// GenerateAndMarshalEd25519Key creates a new ed25519 key pair and returns them
// as formatted strings: the public key in authorized_keys format and the
// private key in OpenSSH PEM format.
func GenerateAndMarshalEd25519Key(comment string) (publicKeyString string, privateKeyString string, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to create SSH public key: %w", err)
	}
	pubKeyBytes := ssh.MarshalAuthorizedKey(sshPubKey)
	publicKeyString = strings.TrimSpace(string(pubKeyBytes))
	if comment != "" {
		publicKeyString = fmt.Sprintf("%s %s", publicKeyString, comment)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, comment)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKeyString = string(pem.EncodeToMemory(pemBlock))
	return publicKeyString, privateKeyString, nil
}

// PublicKeyFor reads the public key belonging to the given private key path.
// An empty path falls back to the default public key.
func PublicKeyFor(privateKeyPath string) (string, error) {
	pubPath := privateKeyPath + ".pub"
	if privateKeyPath == "" {
		pubPath = FindDefaultPublicKey()
		if pubPath == "" {
			return "", fmt.Errorf("no default public key found; run ssh-keygen or configure a key path")
		}
	}
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", fmt.Errorf("could not read public key for %s: %w", privateKeyPath, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// CheckHostKeyAlgorithm returns a warning for host key algorithms that are
// considered weak, or an empty string when the algorithm is fine.
func CheckHostKeyAlgorithm(key ssh.PublicKey) string {
	switch key.Type() {
	case ssh.KeyAlgoDSA:
		return "warning: host uses a ssh-dss key, which is obsolete and disabled by modern OpenSSH"
	case ssh.KeyAlgoRSA:
		return "warning: host uses an ssh-rsa key; prefer ed25519 host keys where available"
	default:
		return ""
	}
}
