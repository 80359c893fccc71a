// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model contains the core data types shared across pkgbridge.
package model

import (
	"fmt"
	"time"
)

// RemoteTarget is one configured destination for bridged package operations.
// Name is the unique, case-sensitive lookup key and is immutable after
// creation. Host defaults to Name when left empty at registration time.
type RemoteTarget struct {
	ID                int       `yaml:"-"`
	Name              string    `yaml:"name"`
	Host              string    `yaml:"host"`
	User              string    `yaml:"user"`
	Port              int       `yaml:"port"`
	HasInternetAccess bool      `yaml:"has_internet_access"`
	KeyPath           string    `yaml:"key_path"`
	CreatedAt         time.Time `yaml:"created_at,omitempty"`
}

// Addr returns the host:port dial address for the target.
func (t RemoteTarget) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// String returns the user@host representation used in log and CLI output.
func (t RemoteTarget) String() string {
	return fmt.Sprintf("%s@%s", t.User, t.Host)
}

// KnownHostKey is a trusted SSH host key, recorded on first use.
type KnownHostKey struct {
	Hostname string `yaml:"hostname"`
	Key      string `yaml:"key"`
}

// AuditLogEntry records one mutating operation against the registry.
type AuditLogEntry struct {
	ID        int
	Timestamp string
	Username  string
	Action    string
	Details   string
}

// BootstrapSession tracks one out-of-band trust-setup attempt so that an
// interrupted bootstrap can be identified and cleaned up later.
type BootstrapSession struct {
	ID        string
	NetID     string
	Username  string
	Hostname  string
	PublicKey string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    string
}
