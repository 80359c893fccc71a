// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/plcforge/pkgbridge/internal/model"
)

// ProbeTimeout bounds a reachability probe. Probes are used during remote
// registration and bootstrap, where a fast verdict matters more than riding
// out a slow network.
const ProbeTimeout = 10 * time.Second

// Probe checks whether target accepts an SSH connection with our key. It
// returns nil on success and one of the transport sentinels on failure, so
// callers can distinguish "no SSH at all" from "SSH is up but rejects us".
func Probe(ctx context.Context, target model.RemoteTarget, keys HostKeyStore, confirm ConfirmFunc) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	sess, err := Dial(ctx, target, keys, confirm)
	if err != nil {
		return err
	}
	return sess.Close()
}

// errKeyCaptured aborts a handshake once the host key has been recorded.
var errKeyCaptured = errors.New("host key captured")

// GetRemoteHostKey fetches the host key target currently presents without
// completing authentication. Used to show a fingerprint before the user
// decides to trust a host.
func GetRemoteHostKey(ctx context.Context, target model.RemoteTarget) (ssh.PublicKey, error) {
	var captured ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User:    target.User,
		Auth:    []ssh.AuthMethod{},
		Timeout: ProbeTimeout,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			captured = key
			return errKeyCaptured
		},
	}

	client, err := dialContext(ctx, target.Addr(), cfg)
	if err == nil {
		// No auth methods were offered, so this should not happen; be
		// tidy anyway.
		client.Close()
	}
	if captured == nil {
		return nil, errors.Join(ErrUnreachable, err)
	}
	return captured, nil
}
