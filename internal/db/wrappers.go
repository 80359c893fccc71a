// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"github.com/plcforge/pkgbridge/internal/model"
)

// Package-level helpers delegating to the initialized store. Callers that
// need injection for tests should depend on the Store interface instead.

// AddRemote adds a new remote target to the registry.
func AddRemote(t model.RemoteTarget) (int, error) {
	return store.AddRemote(t)
}

// GetRemote retrieves a remote target by its unique name.
func GetRemote(name string) (*model.RemoteTarget, error) {
	return store.GetRemote(name)
}

// GetAllRemotes retrieves all remote targets in insertion order.
func GetAllRemotes() ([]model.RemoteTarget, error) {
	return store.GetAllRemotes()
}

// DeleteRemote removes a remote target by name.
func DeleteRemote(name string) error {
	return store.DeleteRemote(name)
}

// GetKnownHostKey retrieves the trusted public key for a given hostname.
func GetKnownHostKey(hostname string) (string, error) {
	return store.GetKnownHostKey(hostname)
}

// AddKnownHostKey adds a new trusted host key.
func AddKnownHostKey(hostname, key string) error {
	return store.AddKnownHostKey(hostname, key)
}

// LogAction records an audit trail event.
func LogAction(action, details string) error {
	return store.LogAction(action, details)
}

// GetAllAuditLogEntries retrieves all audit log entries, most recent first.
func GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return store.GetAllAuditLogEntries()
}

// SaveBootstrapSession persists a bootstrap session.
func SaveBootstrapSession(s model.BootstrapSession) error {
	return store.SaveBootstrapSession(s)
}

// UpdateBootstrapSessionStatus updates the status of a bootstrap session.
func UpdateBootstrapSessionStatus(id, status string) error {
	return store.UpdateBootstrapSessionStatus(id, status)
}

// DeleteBootstrapSession removes a bootstrap session.
func DeleteBootstrapSession(id string) error {
	return store.DeleteBootstrapSession(id)
}
