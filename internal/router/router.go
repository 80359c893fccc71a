// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package router turns one local invocation into one remote tool run. It
// resolves the selected target, opens a session, consults the stager, and
// forwards stdio byte for byte. The subcommand and its arguments are opaque
// tokens; the router never validates them against a grammar.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/registry"
	"github.com/plcforge/pkgbridge/internal/stage"
	"github.com/plcforge/pkgbridge/internal/transport"
)

// Bridge exit codes. The wrapped tool's own exit codes pass through
// unchanged, so bridge failures are packed into a range the tool is unlikely
// to use.
const (
	ExitConfigError = 120
	ExitUnreachable = 121
	ExitAuthFailure = 122
	ExitHostKey     = 123
	ExitStaging     = 124
	ExitTransfer    = 125
	ExitPermission  = 126
	ExitInterrupt   = 130
)

// ErrNoTarget is returned when neither the flag nor the environment selects
// a remote. There is no implicit default, even with a single registered
// target.
var ErrNoTarget = errors.New("no remote target selected")

// ResolveTarget picks the remote name from the explicit flag value or,
// failing that, the environment default. The caller reads the environment;
// the router never consults ambient state itself.
func ResolveTarget(flagValue, envValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if envValue != "" {
		return envValue, nil
	}
	return "", ErrNoTarget
}

// Session is the slice of transport.Session the router needs. Tests
// substitute fakes.
type Session interface {
	Run(ctx context.Context, commandLine string, stdin io.Reader, stdout, stderr io.Writer) (int, error)
	Push(ctx context.Context, localPath, remotePath string) error
	Close() error
}

// Dialer opens a session to a target.
type Dialer func(ctx context.Context, target model.RemoteTarget) (Session, error)

// ArtifactStager is the stager surface the router drives.
type ArtifactStager interface {
	Stage(ctx context.Context, args []string) ([]stage.Artifact, error)
	Deliver(ctx context.Context, p stage.Pusher, artifacts []stage.Artifact) (map[string][]string, error)
}

// TargetStore looks up registered targets.
type TargetStore interface {
	GetRemote(name string) (*model.RemoteTarget, error)
}

// Router executes one invocation against one target.
type Router struct {
	Targets TargetStore
	Dial    Dialer
	Stager  ArtifactStager

	// ToolCommand is the tool binary name on the target.
	ToolCommand string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run resolves remoteName, ships args to the target and returns the exit
// code for the whole invocation. Failures of the bridge itself map onto the
// Exit* constants; the remote tool's exit code passes through unchanged.
// There are no automatic retries.
func (r *Router) Run(ctx context.Context, remoteName string, args []string) int {
	target, err := r.Targets.GetRemote(remoteName)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			fmt.Fprintf(r.Stderr, "pkgbridge: unknown remote %q\n", remoteName)
		} else {
			fmt.Fprintf(r.Stderr, "pkgbridge: %v\n", err)
		}
		return ExitConfigError
	}

	sess, err := r.Dial(ctx, *target)
	if err != nil {
		fmt.Fprintf(r.Stderr, "pkgbridge: %v\n", err)
		return ExitCodeFor(err)
	}
	defer sess.Close()

	decision := stage.Decide(*target, args)
	logging.Debugf("routing to %s: %s (%s)", target.Name, strings.Join(args, " "), decision)

	if decision == stage.StageAndCopy {
		artifacts, err := r.Stager.Stage(ctx, args)
		if err != nil {
			fmt.Fprintf(r.Stderr, "pkgbridge: %v\n", err)
			return ExitCodeFor(err)
		}
		defer stage.Cleanup(artifacts)

		delivered, err := r.Stager.Deliver(ctx, sess, artifacts)
		if err != nil {
			fmt.Fprintf(r.Stderr, "pkgbridge: %v\n", err)
			return ExitCodeFor(err)
		}
		args = stage.Rewrite(args, delivered)
	}

	code, err := sess.Run(ctx, CommandLine(r.ToolCommand, args), r.Stdin, r.Stdout, r.Stderr)
	if err != nil {
		fmt.Fprintf(r.Stderr, "pkgbridge: %v\n", err)
		return ExitCodeFor(err)
	}
	return code
}

// CommandLine renders the tool invocation for the remote shell, quoting
// arguments that contain spaces.
func CommandLine(tool string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, tool)
	for _, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// ExitCodeFor maps a bridge error onto its exit code.
func ExitCodeFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return ExitInterrupt
	case errors.Is(err, transport.ErrHostKeyMismatch) || errors.Is(err, transport.ErrHostKeyUnknown):
		return ExitHostKey
	case errors.Is(err, transport.ErrAuthFailure):
		return ExitAuthFailure
	case errors.Is(err, transport.ErrUnreachable):
		return ExitUnreachable
	case errors.Is(err, transport.ErrTransfer):
		return ExitTransfer
	case errors.Is(err, stage.ErrLocalFetch):
		return ExitStaging
	case errors.Is(err, registry.ErrPermission):
		return ExitPermission
	case errors.Is(err, ErrNoTarget), errors.Is(err, db.ErrNotFound), errors.Is(err, db.ErrDuplicate):
		return ExitConfigError
	default:
		return ExitConfigError
	}
}
