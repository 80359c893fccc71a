// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"github.com/plcforge/pkgbridge/internal/model"
)

// Store defines the interface for all database operations in pkgbridge.
// This allows for multiple database backends to be implemented.
type Store interface {
	// Remote target methods
	AddRemote(t model.RemoteTarget) (int, error)
	GetRemote(name string) (*model.RemoteTarget, error)
	GetAllRemotes() ([]model.RemoteTarget, error)
	DeleteRemote(name string) error

	// Host key methods
	GetKnownHostKey(hostname string) (string, error)
	AddKnownHostKey(hostname, key string) error
	GetAllKnownHostKeys() ([]model.KnownHostKey, error)

	// Audit log methods
	LogAction(action string, details string) error
	GetAllAuditLogEntries() ([]model.AuditLogEntry, error)

	// Bootstrap session methods
	SaveBootstrapSession(s model.BootstrapSession) error
	GetBootstrapSession(id string) (*model.BootstrapSession, error)
	UpdateBootstrapSessionStatus(id, status string) error
	DeleteBootstrapSession(id string) error
	GetExpiredBootstrapSessions() ([]*model.BootstrapSession, error)

	// Snapshot methods for registry export/import
	ExportSnapshot() (*model.RegistrySnapshot, error)
	ImportSnapshot(snap *model.RegistrySnapshot, merge bool) error
}
