// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package transport maintains SSH sessions to remote controllers. A Session
// bundles an SSH client with an SFTP client over the same connection and
// offers command execution with streamed stdio plus integrity-checked file
// transfers. Host keys are pinned on first use; a changed key aborts the
// connection.
package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/sshkey"
)

// DialTimeout bounds the TCP connect and SSH handshake.
const DialTimeout = 15 * time.Second

// HostKeyStore persists one pinned key per hostname. The registry database
// implements it.
type HostKeyStore interface {
	// GetKnownHostKey returns the pinned key for hostname, or "" if the
	// host has never been seen.
	GetKnownHostKey(hostname string) (string, error)
	// AddKnownHostKey pins (or replaces) the key for hostname.
	AddKnownHostKey(hostname, key string) error
}

// ConfirmFunc decides whether a previously unseen host key should be
// trusted. fingerprint is the SHA256 fingerprint of the presented key.
type ConfirmFunc func(target model.RemoteTarget, fingerprint string) bool

// Session is an open connection to one remote target. It is not safe for
// concurrent use.
type Session struct {
	Target model.RemoteTarget

	client *ssh.Client
	sftp   *sftp.Client
}

// sshAgentFunc locates a running ssh-agent. Swapped in tests.
var sshAgentFunc = sshAgent

// Dial opens a connection to target, authenticating with the target's
// configured key (or the default key if none is set). When no key is
// available or the target rejects it, a running ssh-agent is tried next.
// Unknown host keys are offered to confirm; a nil confirm rejects all
// unknown keys.
func Dial(ctx context.Context, target model.RemoteTarget, keys HostKeyStore, confirm ConfirmFunc) (*Session, error) {
	keyPath := target.KeyPath
	if keyPath == "" {
		keyPath = sshkey.FindDefaultKey()
	}

	var signer ssh.Signer
	if keyPath != "" {
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", keyPath, err)
		}
		signer, err = ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", keyPath, err)
		}
	}

	// The host key callback runs inside the handshake. Its verdict is
	// captured here so the wrapped handshake error can be classified.
	var hostKeyErr error
	mkConfig := func(auth ssh.AuthMethod) *ssh.ClientConfig {
		return &ssh.ClientConfig{
			User:    target.User,
			Auth:    []ssh.AuthMethod{auth},
			Timeout: DialTimeout,
			HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
				hostKeyErr = verifyHostKey(target, keys, confirm, key)
				return hostKeyErr
			},
		}
	}

	var client *ssh.Client
	var dialErr error
	if signer != nil {
		client, dialErr = dialContext(ctx, target.Addr(), mkConfig(ssh.PublicKeys(signer)))
		if dialErr != nil {
			dialErr = classifyDialError(dialErr, hostKeyErr)
		}
	}

	// Key auth rejected or no key material on disk. An ssh-agent (Pageant
	// or the OpenSSH agent on Windows) may still hold a usable identity.
	if client == nil && (signer == nil || errors.Is(dialErr, ErrAuthFailure)) {
		if ag := sshAgentFunc(); ag != nil {
			hostKeyErr = nil
			agentClient, agentErr := dialContext(ctx, target.Addr(), mkConfig(ssh.PublicKeysCallback(ag.Signers)))
			if agentErr == nil {
				client, dialErr = agentClient, nil
				logging.Debugf("authenticated to %s via ssh-agent", target.String())
			} else if dialErr == nil {
				dialErr = classifyDialError(agentErr, hostKeyErr)
			}
		}
	}
	if client == nil {
		if dialErr == nil {
			dialErr = fmt.Errorf("no usable ssh key for %s and no running ssh-agent", target.String())
		}
		return nil, dialErr
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open sftp subsystem on %s: %w", target.String(), err)
	}

	logging.Debugf("connected to %s (%s)", target.String(), target.Addr())
	return &Session{Target: target, client: client, sftp: sftpClient}, nil
}

// dialContext is ssh.Dial with context cancellation on the TCP connect and a
// hard deadline on the handshake.
func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// verifyHostKey implements trust on first use against the key store.
func verifyHostKey(target model.RemoteTarget, keys HostKeyStore, confirm ConfirmFunc, key ssh.PublicKey) error {
	presented := string(ssh.MarshalAuthorizedKey(key))
	if warn := sshkey.CheckHostKeyAlgorithm(key); warn != "" {
		logging.Warnf("%s: %s", target.Host, warn)
	}

	known, err := keys.GetKnownHostKey(target.Host)
	if err != nil {
		return fmt.Errorf("look up host key for %s: %w", target.Host, err)
	}
	switch {
	case known == "":
		if confirm == nil || !confirm(target, ssh.FingerprintSHA256(key)) {
			return fmt.Errorf("%w: %s presented %s", ErrHostKeyUnknown, target.Host, ssh.FingerprintSHA256(key))
		}
		if err := keys.AddKnownHostKey(target.Host, presented); err != nil {
			return fmt.Errorf("pin host key for %s: %w", target.Host, err)
		}
		logging.Infof("pinned host key for %s (%s)", target.Host, ssh.FingerprintSHA256(key))
		return nil
	case known != presented:
		return fmt.Errorf("%w: %s presented %s", ErrHostKeyMismatch, target.Host, ssh.FingerprintSHA256(key))
	default:
		return nil
	}
}

// Run executes commandLine on the remote, wiring stdin, stdout and stderr
// through unmodified. It returns the remote exit code. If ctx is cancelled
// mid-run the remote process is signalled, the session torn down, and the
// returned code is -1 with ctx's error; a cancelled run never reports
// success.
func (s *Session) Run(ctx context.Context, commandLine string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open session on %s: %w", s.Target.String(), err)
	}
	defer sess.Close()

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	logging.Debugf("running on %s: %s", s.Target.String(), commandLine)
	if err := sess.Start(commandLine); err != nil {
		return -1, fmt.Errorf("start %q on %s: %w", commandLine, s.Target.String(), err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGTERM)
		sess.Close()
		<-done
		return -1, ctx.Err()
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, fmt.Errorf("run %q on %s: %w", commandLine, s.Target.String(), err)
	}
}

// Push uploads localPath to remotePath. The file is written to a temporary
// name next to the destination, its size and checksum verified, then renamed
// into place so a half-written file never shadows the destination.
func (s *Session) Push(ctx context.Context, localPath, remotePath string) error {
	local, err := os.Open(localPath)
	if err != nil {
		return errors.Join(ErrTransfer, fmt.Errorf("open %s: %w", localPath, err))
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return errors.Join(ErrTransfer, err)
	}

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := s.sftp.MkdirAll(dir); err != nil {
			return errors.Join(ErrTransfer, fmt.Errorf("create remote dir %s: %w", dir, err))
		}
	}

	tmpPath := remotePath + ".pkgbridge-partial"
	remote, err := s.sftp.Create(tmpPath)
	if err != nil {
		return errors.Join(ErrTransfer, fmt.Errorf("create %s on %s: %w", tmpPath, s.Target.String(), err))
	}

	hash := sha256.New()
	written, err := io.Copy(remote, io.TeeReader(contextReader(ctx, local), hash))
	if cerr := remote.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.sftp.Remove(tmpPath)
		return errors.Join(ErrTransfer, fmt.Errorf("upload %s to %s: %w", localPath, s.Target.String(), err))
	}
	if written != info.Size() {
		s.sftp.Remove(tmpPath)
		return errors.Join(ErrTransfer, fmt.Errorf("upload %s: wrote %d of %d bytes", localPath, written, info.Size()))
	}
	if err := s.verifyRemoteChecksum(tmpPath, hex.EncodeToString(hash.Sum(nil))); err != nil {
		s.sftp.Remove(tmpPath)
		return errors.Join(ErrTransfer, err)
	}

	// Windows sftp servers refuse to rename over an existing file.
	s.sftp.Remove(remotePath)
	if err := s.sftp.Rename(tmpPath, remotePath); err != nil {
		s.sftp.Remove(tmpPath)
		return errors.Join(ErrTransfer, fmt.Errorf("rename %s to %s: %w", tmpPath, remotePath, err))
	}
	logging.Debugf("pushed %s to %s:%s (%d bytes)", localPath, s.Target.Host, remotePath, written)
	return nil
}

// Pull downloads remotePath into localPath, verifying the byte count against
// the remote file size.
func (s *Session) Pull(ctx context.Context, remotePath, localPath string) error {
	remote, err := s.sftp.Open(remotePath)
	if err != nil {
		return errors.Join(ErrTransfer, fmt.Errorf("open %s on %s: %w", remotePath, s.Target.String(), err))
	}
	defer remote.Close()

	info, err := remote.Stat()
	if err != nil {
		return errors.Join(ErrTransfer, err)
	}

	tmpPath := localPath + ".partial"
	local, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Join(ErrTransfer, err)
	}

	written, err := io.Copy(local, contextReader(ctx, remote))
	if cerr := local.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return errors.Join(ErrTransfer, fmt.Errorf("download %s from %s: %w", remotePath, s.Target.String(), err))
	}
	if written != info.Size() {
		os.Remove(tmpPath)
		return errors.Join(ErrTransfer, fmt.Errorf("download %s: got %d of %d bytes", remotePath, written, info.Size()))
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return errors.Join(ErrTransfer, err)
	}
	logging.Debugf("pulled %s:%s to %s (%d bytes)", s.Target.Host, remotePath, localPath, written)
	return nil
}

// verifyRemoteChecksum re-reads the uploaded file through sftp and compares
// its SHA256 against the local digest.
func (s *Session) verifyRemoteChecksum(remotePath, want string) error {
	f, err := s.sftp.Open(remotePath)
	if err != nil {
		return fmt.Errorf("verify %s: %w", remotePath, err)
	}
	defer f.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return fmt.Errorf("verify %s: %w", remotePath, err)
	}
	if got := hex.EncodeToString(hash.Sum(nil)); got != want {
		return fmt.Errorf("checksum mismatch for %s: local %s, remote %s", remotePath, want, got)
	}
	return nil
}

// Close tears down both protocol clients. Safe to call more than once.
func (s *Session) Close() error {
	var errs []error
	if s.sftp != nil {
		if err := s.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
		s.sftp = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		s.client = nil
	}
	return errors.Join(errs...)
}

// ctxReader fails a copy promptly once its context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func contextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
