// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plcforge/pkgbridge/internal/logging"
)

// Windows OpenSSH paths on the target.
const (
	AuthorizedKeysPath = "C:/ProgramData/ssh/administrators_authorized_keys"
	SSHDConfigPath     = "C:/ProgramData/ssh/sshd_config"
	PIDFilePath        = "C:/ProgramData/ssh/sshd.pid"
)

const restartTimeout = 10 * time.Second

// Installer performs the target-side steps of a trust bootstrap over an
// open channel.
type Installer struct {
	ch Channel
}

// NewInstaller returns an Installer over ch.
func NewInstaller(ch Channel) *Installer {
	return &Installer{ch: ch}
}

// CheckService verifies the target runs an OpenSSH server at all.
func (in *Installer) CheckService(ctx context.Context) error {
	if !in.ch.FileExists(ctx, SSHDConfigPath) {
		return fmt.Errorf("%w: no OpenSSH server on target (%s missing)", ErrRejected, SSHDConfigPath)
	}
	return nil
}

// InstallKey appends publicKey to the administrators authorized_keys file.
// A key already present is left alone, so repeated bootstraps are
// idempotent.
func (in *Installer) InstallKey(ctx context.Context, publicKey string) error {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return errors.New("empty public key")
	}

	existing, err := in.ch.ReadFile(ctx, AuthorizedKeysPath)
	if err != nil {
		// Missing file: first key on this target.
		existing = ""
	}
	for _, line := range strings.Split(existing, "\n") {
		if strings.TrimSpace(line) == publicKey {
			logging.Debugf("bootstrap: key already authorized")
			return nil
		}
	}

	content := existing
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += publicKey + "\n"
	if err := in.ch.WriteFile(ctx, AuthorizedKeysPath, content); err != nil {
		return fmt.Errorf("install key: %w", err)
	}
	logging.Infof("bootstrap: installed public key on target")
	return nil
}

// RestartServer restarts the target's sshd and verifies the restart by
// watching the PID file change.
func (in *Installer) RestartServer(ctx context.Context) error {
	oldPID, err := in.readPID(ctx)
	if err != nil {
		return fmt.Errorf("sshd pid file unreadable, service may not be running: %w", err)
	}

	cmd := `powershell.exe -Command "Restart-Service sshd"`
	if err := in.ch.StartProcess(ctx, cmd, "", int(restartTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("restart sshd: %w", err)
	}

	deadline := defaultClock.Now().Add(restartTimeout)
	for defaultClock.Now().Before(deadline) {
		sleep(time.Second)
		newPID, err := in.readPID(ctx)
		if err == nil && newPID != oldPID {
			logging.Debugf("bootstrap: sshd restarted (pid %d -> %d)", oldPID, newPID)
			return nil
		}
	}

	newPID, err := in.readPID(ctx)
	if err != nil {
		return fmt.Errorf("sshd restart failed: pid file unreadable after %s", restartTimeout)
	}
	if newPID == oldPID {
		return fmt.Errorf("sshd restart failed: pid unchanged (%d) after %s", oldPID, restartTimeout)
	}
	return nil
}

func (in *Installer) readPID(ctx context.Context) (int, error) {
	content, err := in.ch.ReadFile(ctx, PIDFilePath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}
