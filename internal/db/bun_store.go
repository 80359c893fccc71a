// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"os/user"
	"time"

	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/uptrace/bun"
)

// RemoteModel maps the `remotes` table for Bun queries.
type RemoteModel struct {
	bun.BaseModel     `bun:"table:remotes"`
	ID                int       `bun:"id,pk,autoincrement"`
	Name              string    `bun:"name"`
	Host              string    `bun:"host"`
	User              string    `bun:"username"`
	Port              int       `bun:"port"`
	HasInternetAccess bool      `bun:"has_internet_access"`
	KeyPath           string    `bun:"key_path"`
	CreatedAt         time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// KnownHostModel maps the `known_hosts` table.
type KnownHostModel struct {
	bun.BaseModel `bun:"table:known_hosts"`
	Hostname      string `bun:"hostname,pk"`
	Key           string `bun:"key"`
}

// AuditLogModel maps the `audit_log` table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// BootstrapSessionModel maps the `bootstrap_sessions` table.
type BootstrapSessionModel struct {
	bun.BaseModel `bun:"table:bootstrap_sessions"`
	ID            string    `bun:"id,pk"`
	NetID         string    `bun:"net_id"`
	Username      string    `bun:"username"`
	Hostname      string    `bun:"hostname"`
	PublicKey     string    `bun:"public_key"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	ExpiresAt     time.Time `bun:"expires_at"`
	Status        string    `bun:"status"`
}

// BunStore is the bun-backed implementation of the Store interface. The same
// implementation serves SQLite, PostgreSQL and MySQL; dialect differences are
// handled by bun and by the per-engine migration files.
type BunStore struct {
	bun *bun.DB
}

func remoteModelToModel(m RemoteModel) model.RemoteTarget {
	return model.RemoteTarget{
		ID:                m.ID,
		Name:              m.Name,
		Host:              m.Host,
		User:              m.User,
		Port:              m.Port,
		HasInternetAccess: m.HasInternetAccess,
		KeyPath:           m.KeyPath,
		CreatedAt:         m.CreatedAt,
	}
}

func remoteModelFromModel(t model.RemoteTarget) RemoteModel {
	return RemoteModel{
		Name:              t.Name,
		Host:              t.Host,
		User:              t.User,
		Port:              t.Port,
		HasInternetAccess: t.HasInternetAccess,
		KeyPath:           t.KeyPath,
	}
}

// AddRemote inserts a new remote target and returns its ID.
func (s *BunStore) AddRemote(t model.RemoteTarget) (int, error) {
	ctx := context.Background()

	m := remoteModelFromModel(t)
	if _, err := s.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	_ = s.LogAction("ADD_REMOTE", fmt.Sprintf("remote: %s (%s@%s:%d)", t.Name, t.User, t.Host, t.Port))
	return m.ID, nil
}

// GetRemote retrieves a single remote target by name.
func (s *BunStore) GetRemote(name string) (*model.RemoteTarget, error) {
	ctx := context.Background()

	var m RemoteModel
	err := s.bun.NewSelect().Model(&m).Where("name = ?", name).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t := remoteModelToModel(m)
	return &t, nil
}

// GetAllRemotes retrieves all remote targets in insertion order.
func (s *BunStore) GetAllRemotes() ([]model.RemoteTarget, error) {
	ctx := context.Background()

	var ms []RemoteModel
	if err := s.bun.NewSelect().Model(&ms).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	targets := make([]model.RemoteTarget, 0, len(ms))
	for _, m := range ms {
		targets = append(targets, remoteModelToModel(m))
	}
	return targets, nil
}

// DeleteRemote removes a remote target by name. Returns ErrNotFound when no
// target with that name exists; the registry is left untouched in that case.
func (s *BunStore) DeleteRemote(name string) error {
	ctx := context.Background()

	res, err := s.bun.NewDelete().Model((*RemoteModel)(nil)).Where("name = ?", name).Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_ = s.LogAction("REMOVE_REMOTE", fmt.Sprintf("remote: %s", name))
	return nil
}

// GetKnownHostKey retrieves the trusted public key for a given hostname.
// An empty string with a nil error means no key has been recorded yet.
func (s *BunStore) GetKnownHostKey(hostname string) (string, error) {
	ctx := context.Background()

	var m KnownHostModel
	err := s.bun.NewSelect().Model(&m).Where("hostname = ?", hostname).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil // No key found is not an error, it's a state.
		}
		return "", err
	}
	return m.Key, nil
}

// AddKnownHostKey records a trusted host key, replacing any previous key for
// the same hostname. Replacement is deliberate: a legitimately re-provisioned
// host is re-trusted through the same explicit flow.
func (s *BunStore) AddKnownHostKey(hostname, key string) error {
	ctx := context.Background()

	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*KnownHostModel)(nil)).Where("hostname = ?", hostname).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&KnownHostModel{Hostname: hostname, Key: key}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	_ = s.LogAction("TRUST_HOST", fmt.Sprintf("hostname: %s", hostname))
	return nil
}

// GetAllKnownHostKeys retrieves every recorded host key.
func (s *BunStore) GetAllKnownHostKeys() ([]model.KnownHostKey, error) {
	ctx := context.Background()

	var ms []KnownHostModel
	if err := s.bun.NewSelect().Model(&ms).Order("hostname ASC").Scan(ctx); err != nil {
		return nil, err
	}
	keys := make([]model.KnownHostKey, 0, len(ms))
	for _, m := range ms {
		keys = append(keys, model.KnownHostKey{Hostname: m.Hostname, Key: m.Key})
	}
	return keys, nil
}

// LogAction records an audit trail event with the invoking OS user.
func (s *BunStore) LogAction(action, details string) error {
	ctx := context.Background()

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	m := AuditLogModel{
		Timestamp: time.Now().Format(time.RFC3339),
		Username:  username,
		Action:    action,
		Details:   details,
	}
	_, err := s.bun.NewInsert().Model(&m).Exec(ctx)
	return err
}

// GetAllAuditLogEntries retrieves all audit log entries, most recent first.
func (s *BunStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	ctx := context.Background()

	var ms []AuditLogModel
	if err := s.bun.NewSelect().Model(&ms).Order("id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	entries := make([]model.AuditLogEntry, 0, len(ms))
	for _, m := range ms {
		entries = append(entries, model.AuditLogEntry{
			ID:        m.ID,
			Timestamp: m.Timestamp,
			Username:  m.Username,
			Action:    m.Action,
			Details:   m.Details,
		})
	}
	return entries, nil
}

// SaveBootstrapSession persists a bootstrap session.
func (s *BunStore) SaveBootstrapSession(bs model.BootstrapSession) error {
	ctx := context.Background()

	m := BootstrapSessionModel{
		ID:        bs.ID,
		NetID:     bs.NetID,
		Username:  bs.Username,
		Hostname:  bs.Hostname,
		PublicKey: bs.PublicKey,
		ExpiresAt: bs.ExpiresAt,
		Status:    bs.Status,
	}
	_, err := s.bun.NewInsert().Model(&m).Exec(ctx)
	return MapDBError(err)
}

// GetBootstrapSession retrieves a bootstrap session by ID.
func (s *BunStore) GetBootstrapSession(id string) (*model.BootstrapSession, error) {
	ctx := context.Background()

	var m BootstrapSessionModel
	err := s.bun.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &model.BootstrapSession{
		ID:        m.ID,
		NetID:     m.NetID,
		Username:  m.Username,
		Hostname:  m.Hostname,
		PublicKey: m.PublicKey,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Status:    m.Status,
	}, nil
}

// UpdateBootstrapSessionStatus updates the status of a bootstrap session.
func (s *BunStore) UpdateBootstrapSessionStatus(id, status string) error {
	ctx := context.Background()

	_, err := s.bun.NewUpdate().Model((*BootstrapSessionModel)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DeleteBootstrapSession removes a bootstrap session.
func (s *BunStore) DeleteBootstrapSession(id string) error {
	ctx := context.Background()

	_, err := s.bun.NewDelete().Model((*BootstrapSessionModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// GetExpiredBootstrapSessions returns all sessions past their expiry time.
func (s *BunStore) GetExpiredBootstrapSessions() ([]*model.BootstrapSession, error) {
	ctx := context.Background()

	var ms []BootstrapSessionModel
	err := s.bun.NewSelect().Model(&ms).Where("expires_at < ?", time.Now()).Scan(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*model.BootstrapSession, 0, len(ms))
	for _, m := range ms {
		m := m
		sessions = append(sessions, &model.BootstrapSession{
			ID:        m.ID,
			NetID:     m.NetID,
			Username:  m.Username,
			Hostname:  m.Hostname,
			PublicKey: m.PublicKey,
			CreatedAt: m.CreatedAt,
			ExpiresAt: m.ExpiresAt,
			Status:    m.Status,
		})
	}
	return sessions, nil
}

// ExportSnapshot reads a consistent snapshot of the registry for backup or
// transfer. It uses a transaction so remotes and host keys match.
func (s *BunStore) ExportSnapshot() (*model.RegistrySnapshot, error) {
	ctx := context.Background()

	snap := &model.RegistrySnapshot{
		Version:    model.SnapshotVersion,
		ExportedAt: time.Now().UTC(),
	}
	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rms []RemoteModel
		if err := tx.NewSelect().Model(&rms).Order("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, m := range rms {
			snap.Remotes = append(snap.Remotes, remoteModelToModel(m))
		}
		var hms []KnownHostModel
		if err := tx.NewSelect().Model(&hms).Order("hostname ASC").Scan(ctx); err != nil {
			return err
		}
		for _, m := range hms {
			snap.KnownHosts = append(snap.KnownHosts, model.KnownHostKey{Hostname: m.Hostname, Key: m.Key})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ImportSnapshot restores a registry snapshot. Without merge it performs a
// wipe-and-replace inside a single transaction; with merge it only inserts
// entries whose names are not present yet.
func (s *BunStore) ImportSnapshot(snap *model.RegistrySnapshot, merge bool) error {
	ctx := context.Background()

	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if !merge {
			if _, err := tx.NewDelete().Model((*RemoteModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*KnownHostModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
				return err
			}
		}
		for _, t := range snap.Remotes {
			if merge {
				exists, err := tx.NewSelect().Model((*RemoteModel)(nil)).Where("name = ?", t.Name).Exists(ctx)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
			}
			m := remoteModelFromModel(t)
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return MapDBError(err)
			}
		}
		for _, k := range snap.KnownHosts {
			if merge {
				exists, err := tx.NewSelect().Model((*KnownHostModel)(nil)).Where("hostname = ?", k.Hostname).Exists(ctx)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
			}
			m := KnownHostModel{Hostname: k.Hostname, Key: k.Key}
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return MapDBError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	mode := "replace"
	if merge {
		mode = "merge"
	}
	_ = s.LogAction("IMPORT_REGISTRY", fmt.Sprintf("mode: %s, remotes: %d", mode, len(snap.Remotes)))
	return nil
}
