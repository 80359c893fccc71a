// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build windows

package transport

import (
	"os"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// sshAgent prefers Pageant and falls back to the OpenSSH agent named pipe.
// It returns nil when neither is reachable.
func sshAgent() agent.Agent {
	if pageant.Available() {
		return pageant.New()
	}
	pipe := os.Getenv("SSH_AUTH_SOCK")
	if pipe == "" {
		pipe = `\\.\pipe\openssh-ssh-agent`
	}
	conn, err := winio.DialPipe(pipe, nil)
	if err != nil {
		return nil
	}
	return agent.NewClient(conn)
}
