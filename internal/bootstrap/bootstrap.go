// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package bootstrap establishes SSH trust on a target that has no working
// SSH access yet, using the ADS system service as an out-of-band channel.
// The flow is an explicit state machine so the interactive offer can be
// tested without a terminal.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
)

// State is one step of the bootstrap flow.
type State string

const (
	StateProbing        State = "probing"
	StateSSHReachable   State = "ssh-reachable"
	StateSSHUnreachable State = "ssh-unreachable"
	StateOffered        State = "offered"
	StateRunning        State = "running"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// SessionStore persists bootstrap sessions so an interrupted run can be
// found and cleaned up later. db.Store implements it.
type SessionStore interface {
	SaveBootstrapSession(s model.BootstrapSession) error
	UpdateBootstrapSessionStatus(id, status string) error
	DeleteBootstrapSession(id string) error
	GetExpiredBootstrapSessions() ([]*model.BootstrapSession, error)
}

// Prober reports whether the target accepts SSH right now. A nil error
// means reachable.
type Prober func(ctx context.Context) error

// OfferFunc asks whether the bootstrap should run. The CLI wires an
// interactive prompt here; tests wire a constant.
type OfferFunc func(target model.RemoteTarget) bool

// ChannelOpener opens the out-of-band channel to the target.
type ChannelOpener func(ctx context.Context) (Channel, error)

// sessionTTL bounds how long an interrupted session is considered live.
const sessionTTL = time.Hour

// Flow drives one bootstrap attempt for one target.
type Flow struct {
	Target      model.RemoteTarget
	NetID       string
	PublicKey   string
	Probe       Prober
	Offer       OfferFunc
	OpenChannel ChannelOpener
	Sessions    SessionStore

	states []State
}

// States returns the transitions taken so far, in order.
func (f *Flow) States() []State {
	return f.states
}

func (f *Flow) to(s State) State {
	f.states = append(f.states, s)
	logging.Debugf("bootstrap %s: %s", f.Target.Name, s)
	return s
}

// Run executes the flow. It returns the terminal state: SSHReachable when
// no bootstrap was needed, Succeeded after a verified bootstrap, Failed
// otherwise (with the cause as error). A declined offer fails with
// ErrRejected.
func (f *Flow) Run(ctx context.Context) (State, error) {
	f.to(StateProbing)
	if err := f.Probe(ctx); err == nil {
		return f.to(StateSSHReachable), nil
	}
	f.to(StateSSHUnreachable)

	f.to(StateOffered)
	if f.Offer == nil || !f.Offer(f.Target) {
		return f.to(StateFailed), fmt.Errorf("%w: declined for %s", ErrRejected, f.Target.Name)
	}

	f.to(StateRunning)
	session := f.saveSession()

	if err := f.bootstrap(ctx); err != nil {
		f.endSession(session, string(StateFailed))
		return f.to(StateFailed), err
	}

	// The key is in place; prove it with a fresh probe.
	if err := f.Probe(ctx); err != nil {
		f.endSession(session, string(StateFailed))
		return f.to(StateFailed), fmt.Errorf("bootstrap completed but ssh still unreachable: %w", err)
	}

	f.endSession(session, string(StateSucceeded))
	return f.to(StateSucceeded), nil
}

// bootstrap performs the target-side steps over a freshly opened channel.
func (f *Flow) bootstrap(ctx context.Context) error {
	ch, err := f.OpenChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.CheckConnection(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	installer := NewInstaller(ch)
	if err := installer.CheckService(ctx); err != nil {
		return err
	}
	if err := installer.InstallKey(ctx, f.PublicKey); err != nil {
		return err
	}
	return installer.RestartServer(ctx)
}

// saveSession records the attempt. Persistence failures are logged, not
// fatal: a bootstrap without a session record still works, it just cannot
// be cleaned up by id later.
func (f *Flow) saveSession() string {
	if f.Sessions == nil {
		return ""
	}
	now := defaultClock.Now().UTC()
	session := model.BootstrapSession{
		ID:        uuid.NewString(),
		NetID:     f.NetID,
		Username:  f.Target.User,
		Hostname:  f.Target.Host,
		PublicKey: f.PublicKey,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
		Status:    string(StateRunning),
	}
	if err := f.Sessions.SaveBootstrapSession(session); err != nil {
		logging.Warnf("could not persist bootstrap session: %v", err)
		return ""
	}
	return session.ID
}

func (f *Flow) endSession(id, status string) {
	if f.Sessions == nil || id == "" {
		return
	}
	if err := f.Sessions.UpdateBootstrapSessionStatus(id, status); err != nil {
		logging.Warnf("could not update bootstrap session %s: %v", id, err)
	}
}

// CleanupExpired deletes sessions past their expiry. Returns how many were
// removed.
func CleanupExpired(store SessionStore) (int, error) {
	expired, err := store.GetExpiredBootstrapSessions()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range expired {
		if err := store.DeleteBootstrapSession(s.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
