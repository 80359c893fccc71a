// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build !windows

package transport

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
)

// sshAgent connects to the agent named by SSH_AUTH_SOCK. It returns nil
// when no agent is reachable.
func sshAgent() agent.Agent {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	return agent.NewClient(conn)
}
