// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package registry manages the durable set of remote targets. Mutations
// require elevated privileges; reads do not.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/sshkey"
)

// ErrPermission is returned when a mutating operation runs without elevated
// privileges.
var ErrPermission = errors.New("requires elevated privileges")

// ErrNoKey is returned when registration cannot establish any
// authentication material for the target.
var ErrNoKey = errors.New("no ssh key available for target")

// DefaultUser is the account name industrial controllers ship with.
const DefaultUser = "Administrator"

// DefaultPort is the SSH port used when none is given.
const DefaultPort = 22

// privilegeCheck is swapped in tests. The real implementation lives in
// privilege_unix.go / privilege_windows.go.
var privilegeCheck = hasElevatedPrivileges

// Registry provides target CRUD over the store.
type Registry struct {
	store db.Store
}

// New returns a Registry over store.
func New(store db.Store) *Registry {
	return &Registry{store: store}
}

// Add registers a target. Name is required and unique; Host defaults to
// Name, User to Administrator, Port to 22. When target.KeyPath is empty the
// default key is auto-detected (ed25519 preferred) or, failing that, a new
// ed25519 pair is generated, so a registered target always carries usable
// authentication material. The target is durably persisted before Add
// returns.
func (r *Registry) Add(target model.RemoteTarget) (*model.RemoteTarget, error) {
	if !privilegeCheck() {
		return nil, fmt.Errorf("add remote: %w", ErrPermission)
	}
	if target.Name == "" {
		return nil, errors.New("add remote: name is required")
	}
	if target.Host == "" {
		target.Host = target.Name
	}
	if target.User == "" {
		target.User = DefaultUser
	}
	if target.Port == 0 {
		target.Port = DefaultPort
	}
	if target.KeyPath == "" {
		target.KeyPath = sshkey.FindDefaultKey()
	}
	if target.KeyPath == "" {
		generated, err := sshkey.Generate("pkgbridge@" + target.Name)
		if err != nil {
			return nil, fmt.Errorf("add remote %s: %w: %v", target.Name, ErrNoKey, err)
		}
		target.KeyPath = generated
		logging.Infof("generated ssh key %s for %s", generated, target.Name)
	}
	target.CreatedAt = time.Now().UTC()

	id, err := r.store.AddRemote(target)
	if err != nil {
		return nil, err
	}
	target.ID = id
	return &target, nil
}

// Remove deletes the named target. db.ErrNotFound when no such target
// exists; the registry is left unchanged in that case.
func (r *Registry) Remove(name string) error {
	if !privilegeCheck() {
		return fmt.Errorf("remove remote: %w", ErrPermission)
	}
	return r.store.DeleteRemote(name)
}

// List returns all targets in registration order. No privileges needed.
func (r *Registry) List() ([]model.RemoteTarget, error) {
	return r.store.GetAllRemotes()
}

// Get returns the named target or db.ErrNotFound.
func (r *Registry) Get(name string) (*model.RemoteTarget, error) {
	return r.store.GetRemote(name)
}
