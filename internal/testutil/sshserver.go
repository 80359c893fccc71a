// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil hosts an in-process SSH server so transport and router
// tests can exercise real handshakes, exec channels and sftp transfers
// without a network.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecHandler services one exec request. It receives the command line and
// the channel's stdio and returns the exit status to report.
type ExecHandler func(commandLine string, stdin io.Reader, stdout, stderr io.Writer) int

// SSHServer is a minimal SSH daemon for tests. It authenticates a single
// client key, dispatches exec requests to Exec, and serves the sftp
// subsystem rooted at the real filesystem.
type SSHServer struct {
	Addr    string
	HostKey ssh.PublicKey

	// Exec handles exec requests. Defaults to a handler that writes
	// nothing and exits 0.
	Exec ExecHandler

	t        *testing.T
	listener net.Listener
	config   *ssh.ServerConfig
	wg       sync.WaitGroup
}

// StartSSHServer launches a server on a loopback port accepting clientKey.
// It shuts down when the test ends.
func StartSSHServer(t *testing.T, clientKey ssh.PublicKey) *SSHServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	authorized := string(ssh.MarshalAuthorizedKey(clientKey))
	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(ssh.MarshalAuthorizedKey(key)) == authorized {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key for %s", conn.User())
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &SSHServer{
		Addr:    listener.Addr().String(),
		HostKey: hostSigner.PublicKey(),
		Exec: func(string, io.Reader, io.Writer, io.Writer) int {
			return 0
		},
		t:        t,
		listener: listener,
		config:   config,
	}

	srv.wg.Add(1)
	go srv.acceptLoop()
	t.Cleanup(srv.Close)
	return srv
}

// Port returns the listener's TCP port.
func (s *SSHServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections and waits for in-flight ones.
func (s *SSHServer) Close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *SSHServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *SSHServer) handleConn(conn net.Conn) {
	serverConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer serverConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(channel, requests)
		}()
	}
}

func (s *SSHServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			status := s.Exec(payload.Command, channel, channel, channel.Stderr())
			sendExitStatus(channel, status)
			return
		case "subsystem":
			if !strings.Contains(string(req.Payload), "sftp") {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			server.Serve()
			server.Close()
			return
		case "signal":
			req.Reply(false, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

func sendExitStatus(channel ssh.Channel, status int) {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(status))
	channel.SendRequest("exit-status", false, payload[:])
}
