// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package stage decides whether an invocation needs artifacts copied to the
// target and, when it does, fetches them with the local tool and delivers
// them over an open session. Targets without internet access cannot fetch
// packages themselves, so the workstation fetches on their behalf.
package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
)

// ErrLocalFetch indicates the local tool failed to download an artifact. The
// wrapped error carries the tool's diagnostics.
var ErrLocalFetch = errors.New("local artifact fetch failed")

// Decision says how an invocation reaches the target.
type Decision int

const (
	// Direct forwards the command line unchanged over SSH.
	Direct Decision = iota
	// StageAndCopy fetches artifacts locally, copies them to the target,
	// and rewrites the command line to reference the copies.
	StageAndCopy
)

func (d Decision) String() string {
	if d == StageAndCopy {
		return "stage-and-copy"
	}
	return "direct"
}

// fetchCommands are the subcommands that cause the tool to download
// artifacts from a feed. Everything else runs against local state on the
// target and never needs staging.
var fetchCommands = map[string]bool{
	"install": true,
	"upgrade": true,
	"update":  true,
}

// valueFlags are tool flags that consume the following token as their value
// when not spelled flag=value. The token scan must not mistake those values
// for package references.
var valueFlags = map[string]bool{
	"--source":      true,
	"--version":     true,
	"--output-path": true,
}

// Decide returns how args should reach target. The verdict depends only on
// the target's internet access and the subcommand, so repeated calls with
// the same inputs always agree.
func Decide(target model.RemoteTarget, args []string) Decision {
	if target.HasInternetAccess {
		return Direct
	}
	if !fetchCommands[subcommand(args)] {
		return Direct
	}
	return StageAndCopy
}

// bareTokens returns the tokens of args that are neither flags nor the
// value of a known value-taking flag.
func bareTokens(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			if valueFlags[a] {
				i++
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

// subcommand returns the first non-flag token.
func subcommand(args []string) string {
	if toks := bareTokens(args); len(toks) > 0 {
		return toks[0]
	}
	return ""
}

// PackageTokens returns the non-flag tokens after the subcommand. These are
// the package references (name or name=version) the invocation operates on.
// Values of the known value-taking flags are excluded; a flag outside that
// set must be spelled flag=value or its value is counted as a package.
func PackageTokens(args []string) []string {
	if toks := bareTokens(args); len(toks) > 1 {
		return toks[1:]
	}
	return nil
}

// Artifact is one fetched file attributed to the package token that
// produced it.
type Artifact struct {
	Package   string
	LocalPath string
}

// Pusher uploads one local file to a remote path. transport.Session
// implements it.
type Pusher interface {
	Push(ctx context.Context, localPath, remotePath string) error
}

// Stager fetches artifacts with the local tool and delivers them to a
// target-side staging directory.
type Stager struct {
	// ToolCommand is the local package manager binary.
	ToolCommand string
	// BaseDir is the parent for per-operation staging directories.
	// Empty means the system temp dir.
	BaseDir string
	// RemoteDir is the target-side staging root.
	RemoteDir string
}

// DefaultRemoteDir is where artifacts land on the target. The path uses
// forward slashes; Windows sftp servers accept them.
const DefaultRemoteDir = "C:/ProgramData/pkgbridge/staging"

// New returns a Stager invoking toolCommand with default directories.
func New(toolCommand string) *Stager {
	return &Stager{ToolCommand: toolCommand, RemoteDir: DefaultRemoteDir}
}

// Stage downloads every package token in args into a fresh staging
// directory, one fetch per package run concurrently. It returns the fetched
// artifacts in package-token order. A failed fetch fails the whole stage
// with ErrLocalFetch; artifacts of the failed operation are removed.
func (s *Stager) Stage(ctx context.Context, args []string) ([]Artifact, error) {
	pkgs := PackageTokens(args)
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("%w: no package tokens in %q", ErrLocalFetch, strings.Join(args, " "))
	}

	stagingDir, err := os.MkdirTemp(s.BaseDir, "pkgbridge-stage-")
	if err != nil {
		return nil, errors.Join(ErrLocalFetch, err)
	}

	perPkg := make([][]Artifact, len(pkgs))
	g, ctx := errgroup.WithContext(ctx)
	for i, pkg := range pkgs {
		g.Go(func() error {
			arts, err := s.fetchOne(ctx, stagingDir, i, pkg)
			if err != nil {
				return err
			}
			perPkg[i] = arts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		os.RemoveAll(stagingDir)
		return nil, err
	}

	var all []Artifact
	for _, arts := range perPkg {
		all = append(all, arts...)
	}
	logging.Debugf("staged %d artifacts for %d packages in %s", len(all), len(pkgs), stagingDir)
	return all, nil
}

// fetchOne downloads a single package into its own subdirectory and returns
// whatever files the tool wrote there.
func (s *Stager) fetchOne(ctx context.Context, stagingDir string, idx int, pkg string) ([]Artifact, error) {
	pkgDir := filepath.Join(stagingDir, fmt.Sprintf("%02d", idx))
	if err := os.Mkdir(pkgDir, 0o700); err != nil {
		return nil, errors.Join(ErrLocalFetch, err)
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ToolCommand, "download", pkg, "--output-path", pkgDir)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v: %s",
			ErrLocalFetch, s.ToolCommand, pkg, err, strings.TrimSpace(output.String()))
	}

	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, errors.Join(ErrLocalFetch, err)
	}
	var arts []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		arts = append(arts, Artifact{Package: pkg, LocalPath: filepath.Join(pkgDir, e.Name())})
	}
	if len(arts) == 0 {
		return nil, fmt.Errorf("%w: %s produced no files for %s", ErrLocalFetch, s.ToolCommand, pkg)
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].LocalPath < arts[j].LocalPath })
	return arts, nil
}

// Deliver pushes every artifact into a fresh remote staging directory and
// returns the remote path of each, keyed by package token in artifact
// order. Any failed push aborts the delivery; a partially delivered set is
// never returned.
func (s *Stager) Deliver(ctx context.Context, p Pusher, artifacts []Artifact) (map[string][]string, error) {
	remoteDir := s.RemoteDir
	if remoteDir == "" {
		remoteDir = DefaultRemoteDir
	}
	opDir := path.Join(remoteDir, uuid.NewString())

	delivered := make(map[string][]string)
	for _, art := range artifacts {
		remotePath := path.Join(opDir, filepath.Base(art.LocalPath))
		if err := p.Push(ctx, art.LocalPath, remotePath); err != nil {
			return nil, fmt.Errorf("deliver %s: %w", art.LocalPath, err)
		}
		delivered[art.Package] = append(delivered[art.Package], remotePath)
	}
	logging.Debugf("delivered %d artifacts to %s", len(artifacts), opDir)
	return delivered, nil
}

// Rewrite replaces each package token in args with the remote paths of its
// delivered artifacts. All other tokens pass through verbatim.
func Rewrite(args []string, delivered map[string][]string) []string {
	pkgs := make(map[string]bool, len(delivered))
	for pkg := range delivered {
		pkgs[pkg] = true
	}

	var out []string
	seenSub := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			out = append(out, a)
			if valueFlags[a] && i+1 < len(args) {
				i++
				out = append(out, args[i])
			}
			continue
		}
		if !seenSub {
			seenSub = true
			out = append(out, a)
			continue
		}
		if pkgs[a] {
			out = append(out, delivered[a]...)
			continue
		}
		out = append(out, a)
	}
	return out
}

// Cleanup removes the local staging directories of artifacts after a
// completed operation.
func Cleanup(artifacts []Artifact) {
	seen := make(map[string]bool)
	for _, art := range artifacts {
		root := filepath.Dir(filepath.Dir(art.LocalPath))
		if !seen[root] && strings.Contains(filepath.Base(root), "pkgbridge-stage-") {
			seen[root] = true
			os.RemoveAll(root)
		}
	}
}
