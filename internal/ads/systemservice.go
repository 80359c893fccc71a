// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package ads

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
)

// SystemServicePort is the AMS port of the TwinCAT system service.
const SystemServicePort = 10000

// System service index groups.
const (
	groupFileOpen      = 120
	groupFileRead      = 122
	groupFileWrite     = 123
	groupFileGetStatus = 134
	groupStartProcess  = 500
)

// noSeek tells the file write group to close a handle instead of seeking.
const noSeek = 0xFFFFFFFF

// File open mode flags.
const (
	fopenRead        = 1 << 0
	fopenWrite       = 1 << 1
	fopenPlus        = 1 << 3
	fopenBinary      = 1 << 4
	fopenEnsureDir   = 1 << 6
	fopenOverwrite   = 1 << 8
	fopenPathGeneric = 1 << 16
)

// SystemService exposes the file and process operations of a target's
// system service over an open Client.
type SystemService struct {
	client *Client
}

// NewSystemService wraps client, which must be addressed at
// SystemServicePort.
func NewSystemService(client *Client) *SystemService {
	return &SystemService{client: client}
}

// CheckConnection reports whether the system service answers a state query.
func (s *SystemService) CheckConnection(ctx context.Context) error {
	_, _, err := s.client.ReadState(ctx)
	return err
}

// open returns a file handle for path with the given mode flags.
func (s *SystemService) open(ctx context.Context, path string, mode uint32) (uint32, error) {
	pathBytes := append([]byte(path), 0)
	resp, err := s.client.ReadWrite(ctx, groupFileOpen, mode, 4, pathBytes)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	if len(resp) < 4 {
		return 0, fmt.Errorf("open %s: short handle response", path)
	}
	return binary.LittleEndian.Uint32(resp), nil
}

// closeHandle releases a file handle. Errors are ignored the way the
// system service tooling conventionally does.
func (s *SystemService) closeHandle(ctx context.Context, handle uint32) {
	s.client.Write(ctx, handle, noSeek, nil)
}

// WriteFile writes content to remotePath, creating parent directories and
// overwriting an existing file.
func (s *SystemService) WriteFile(ctx context.Context, remotePath, content string) error {
	mode := uint32(fopenWrite | fopenPlus | fopenBinary | fopenEnsureDir | fopenOverwrite | fopenPathGeneric)
	handle, err := s.open(ctx, remotePath, mode)
	if err != nil {
		return err
	}
	defer s.closeHandle(ctx, handle)

	if _, err := s.client.ReadWrite(ctx, groupFileWrite, handle, 4, []byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	return nil
}

// maxReadSize caps ReadFile. The files the bootstrap touches are tiny.
const maxReadSize = 1 << 20

// ReadFile reads remotePath, up to maxReadSize bytes.
func (s *SystemService) ReadFile(ctx context.Context, remotePath string) (string, error) {
	handle, err := s.open(ctx, remotePath, fopenRead|fopenBinary|fopenPathGeneric)
	if err != nil {
		return "", err
	}
	defer s.closeHandle(ctx, handle)

	data, err := s.client.ReadWrite(ctx, groupFileRead, handle, maxReadSize, nil)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", remotePath, err)
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// FileExists reports whether remotePath exists on the target.
func (s *SystemService) FileExists(ctx context.Context, remotePath string) bool {
	pathBytes := append([]byte(remotePath), 0)
	_, err := s.client.ReadWrite(ctx, groupFileGetStatus, 1, 36, pathBytes)
	return err == nil
}

// StartProcess launches command on the target. The system service reports
// only that the process started, never its exit code.
func (s *SystemService) StartProcess(ctx context.Context, command, workingDir string, timeoutMs int) error {
	process, cmdline, _ := strings.Cut(command, " ")

	data := make([]byte, 12, 12+len(process)+len(workingDir)+len(cmdline)+3)
	binary.LittleEndian.PutUint32(data, uint32(len(process)))
	binary.LittleEndian.PutUint32(data[4:], uint32(len(workingDir)))
	binary.LittleEndian.PutUint32(data[8:], uint32(len(cmdline)))
	data = append(data, process...)
	data = append(data, 0)
	data = append(data, workingDir...)
	data = append(data, 0)
	data = append(data, cmdline...)
	data = append(data, 0)

	// Low 16 bits carry the timeout, bit 16 hides the console window.
	offset := uint32(timeoutMs&0xFFFF) | 0x10000
	if err := s.client.Write(ctx, groupStartProcess, offset, data); err != nil {
		return fmt.Errorf("start process %q: %w", command, err)
	}
	return nil
}
