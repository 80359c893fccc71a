// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "time"

// SnapshotVersion is the current registry snapshot format version.
const SnapshotVersion = 1

// RegistrySnapshot is the portable export format for a registry: the
// configured remote targets plus the trusted host keys they depend on.
// Private key material never leaves the workstation; only KeyPath is carried.
type RegistrySnapshot struct {
	Version    int            `yaml:"version"`
	ExportedAt time.Time      `yaml:"exported_at"`
	Remotes    []RemoteTarget `yaml:"remotes"`
	KnownHosts []KnownHostKey `yaml:"known_hosts"`
}
