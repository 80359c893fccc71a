// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"errors"
	"strings"
)

// Connectivity and transfer failures are classified into sentinel errors so
// callers can map them onto dedicated exit codes. None of these are retried:
// network and auth failures against an industrial controller are not assumed
// to be transient.
var (
	// ErrUnreachable indicates the target could not be reached at all
	// (connection refused, timeout, no route).
	ErrUnreachable = errors.New("target unreachable")

	// ErrAuthFailure indicates the SSH handshake completed but the target
	// rejected our authentication.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrHostKeyMismatch indicates the host presented a key different from
	// the one recorded on first use.
	ErrHostKeyMismatch = errors.New("host key mismatch")

	// ErrHostKeyUnknown indicates the host presented a key we have never
	// seen and the caller declined (or had no way) to trust it.
	ErrHostKeyUnknown = errors.New("host key not trusted")

	// ErrTransfer indicates a file transfer failed its integrity check or
	// could not be completed.
	ErrTransfer = errors.New("file transfer failed")
)

// classifyDialError maps a raw ssh.Dial error onto the transport taxonomy.
// hostKeyErr carries the verdict of our own host key callback, which the ssh
// library folds into its handshake error.
func classifyDialError(err, hostKeyErr error) error {
	if hostKeyErr != nil {
		return hostKeyErr
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return errors.Join(ErrAuthFailure, err)
	}
	return errors.Join(ErrUnreachable, err)
}
