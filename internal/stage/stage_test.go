// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/plcforge/pkgbridge/internal/model"
)

func TestDecide(t *testing.T) {
	online := model.RemoteTarget{Name: "online", HasInternetAccess: true}
	offline := model.RemoteTarget{Name: "offline"}

	cases := []struct {
		name   string
		target model.RemoteTarget
		args   []string
		want   Decision
	}{
		{"install offline", offline, []string{"install", "TwinCAT.XAE"}, StageAndCopy},
		{"upgrade offline", offline, []string{"upgrade", "foo"}, StageAndCopy},
		{"update offline", offline, []string{"update"}, StageAndCopy},
		{"install online", online, []string{"install", "TwinCAT.XAE"}, Direct},
		{"list offline", offline, []string{"list"}, Direct},
		{"show offline", offline, []string{"show", "foo"}, Direct},
		{"uninstall offline", offline, []string{"uninstall", "foo"}, Direct},
		{"flags before subcommand", offline, []string{"--verbose", "install", "foo"}, StageAndCopy},
		{"empty args", offline, nil, Direct},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Same inputs must always produce the same verdict.
			for i := 0; i < 3; i++ {
				if got := Decide(tc.target, tc.args); got != tc.want {
					t.Fatalf("Decide = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestPackageTokens(t *testing.T) {
	got := PackageTokens([]string{"--verbose", "install", "foo=1.2.3", "--force", "bar"})
	want := []string{"foo=1.2.3", "bar"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
}

func TestPackageTokensSkipsValueFlagArguments(t *testing.T) {
	cases := []struct {
		args []string
		want []string
	}{
		{[]string{"install", "--source", "C:/feed", "Foo"}, []string{"Foo"}},
		{[]string{"install", "--source=C:/feed", "Foo"}, []string{"Foo"}},
		{[]string{"install", "--version", "1.2.3", "Foo", "Bar"}, []string{"Foo", "Bar"}},
		{[]string{"--source", "C:/feed", "install", "Foo"}, []string{"Foo"}},
		{[]string{"install", "--source"}, nil},
	}
	for _, tc := range cases {
		got := PackageTokens(tc.args)
		if len(got) != len(tc.want) {
			t.Fatalf("PackageTokens(%v) = %v, want %v", tc.args, got, tc.want)
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Fatalf("PackageTokens(%v) = %v, want %v", tc.args, got, tc.want)
			}
		}
	}
}

func TestRewriteLeavesValueFlagArgumentsAlone(t *testing.T) {
	args := []string{"install", "--source", "foo", "foo"}
	got := Rewrite(args, map[string][]string{"foo": {"/staged/foo.tpkg"}})
	want := []string{"install", "--source", "foo", "/staged/foo.tpkg"}
	if len(got) != len(want) {
		t.Fatalf("rewrite = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rewrite = %v, want %v", got, want)
		}
	}
}

// writeFakeTool writes a shell script that mimics the tool's download
// subcommand: it writes one artifact per package and fails for packages
// named fail*.
func writeFakeTool(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool is a shell script")
	}
	script := `#!/bin/sh
pkg="$2"
dir="$4"
case "$pkg" in
fail*)
	echo "feed error: $pkg not found" >&2
	exit 1
	;;
esac
name=$(printf '%s' "$pkg" | tr '=' '.')
printf 'payload %s\n' "$pkg" > "$dir/$name.tpkg"
`
	path := filepath.Join(t.TempDir(), "faketool")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestStageFetchesEachPackage(t *testing.T) {
	s := &Stager{ToolCommand: writeFakeTool(t), BaseDir: t.TempDir()}

	arts, err := s.Stage(context.Background(), []string{"install", "foo=1.2.3", "bar"})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	defer Cleanup(arts)

	if len(arts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(arts))
	}
	if arts[0].Package != "foo=1.2.3" || arts[1].Package != "bar" {
		t.Fatalf("artifact order = %v", arts)
	}
	data, err := os.ReadFile(arts[0].LocalPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "payload foo=1.2.3\n" {
		t.Fatalf("artifact content = %q", data)
	}
}

func TestStageFailureCarriesDiagnostics(t *testing.T) {
	base := t.TempDir()
	s := &Stager{ToolCommand: writeFakeTool(t), BaseDir: base}

	_, err := s.Stage(context.Background(), []string{"install", "foo", "fail-pkg"})
	if !errors.Is(err, ErrLocalFetch) {
		t.Fatalf("stage error = %v, want ErrLocalFetch", err)
	}
	if !strings.Contains(err.Error(), "feed error: fail-pkg not found") {
		t.Fatalf("error lacks tool diagnostics: %v", err)
	}

	// The whole staging dir is removed on failure, including artifacts of
	// the fetches that succeeded.
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("read base dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging leftovers after failure: %v", entries)
	}
}

func TestStageWithoutPackages(t *testing.T) {
	s := &Stager{ToolCommand: "unused", BaseDir: t.TempDir()}
	_, err := s.Stage(context.Background(), []string{"install"})
	if !errors.Is(err, ErrLocalFetch) {
		t.Fatalf("stage error = %v, want ErrLocalFetch", err)
	}
}

// fakePusher records pushes and can be told to fail on a given local path.
type fakePusher struct {
	mu     sync.Mutex
	pushed map[string]string
	failOn string
}

func (f *fakePusher) Push(ctx context.Context, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(localPath, f.failOn) {
		return fmt.Errorf("push %s: connection reset", localPath)
	}
	if f.pushed == nil {
		f.pushed = make(map[string]string)
	}
	f.pushed[localPath] = remotePath
	return nil
}

func localArtifacts(t *testing.T) []Artifact {
	t.Helper()
	dir := t.TempDir()
	var arts []Artifact
	for i, pkg := range []string{"foo=1.2.3", "bar"} {
		p := filepath.Join(dir, fmt.Sprintf("art%d.tpkg", i))
		if err := os.WriteFile(p, []byte(pkg), 0o600); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		arts = append(arts, Artifact{Package: pkg, LocalPath: p})
	}
	return arts
}

func TestDeliverPushesIntoOneOperationDir(t *testing.T) {
	s := New("tcpkg")
	pusher := &fakePusher{}
	arts := localArtifacts(t)

	delivered, err := s.Deliver(context.Background(), pusher, arts)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("delivered %d packages, want 2", len(delivered))
	}

	var opDir string
	for _, remotes := range delivered {
		for _, r := range remotes {
			if !strings.HasPrefix(r, DefaultRemoteDir+"/") {
				t.Fatalf("remote path %q outside staging root", r)
			}
			dir := r[:strings.LastIndex(r, "/")]
			if opDir == "" {
				opDir = dir
			} else if dir != opDir {
				t.Fatalf("artifacts split across %q and %q", opDir, dir)
			}
		}
	}
	if len(pusher.pushed) != 2 {
		t.Fatalf("pushed %d files, want 2", len(pusher.pushed))
	}
}

func TestDeliverAbortsOnFirstFailure(t *testing.T) {
	s := New("tcpkg")
	arts := localArtifacts(t)
	pusher := &fakePusher{failOn: "art1"}

	delivered, err := s.Deliver(context.Background(), pusher, arts)
	if err == nil {
		t.Fatal("deliver must fail when a push fails")
	}
	if delivered != nil {
		t.Fatalf("partial delivery returned: %v", delivered)
	}
}

func TestRewriteReplacesPackageTokens(t *testing.T) {
	args := []string{"install", "foo=1.2.3", "--force", "bar"}
	delivered := map[string][]string{
		"foo=1.2.3": {"C:/ProgramData/pkgbridge/staging/op/foo.1.2.3.tpkg"},
		"bar":       {"C:/ProgramData/pkgbridge/staging/op/bar.tpkg", "C:/ProgramData/pkgbridge/staging/op/bar-deps.tpkg"},
	}

	got := Rewrite(args, delivered)
	want := []string{
		"install",
		"C:/ProgramData/pkgbridge/staging/op/foo.1.2.3.tpkg",
		"--force",
		"C:/ProgramData/pkgbridge/staging/op/bar.tpkg",
		"C:/ProgramData/pkgbridge/staging/op/bar-deps.tpkg",
	}
	if len(got) != len(want) {
		t.Fatalf("rewrite = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rewrite = %v, want %v", got, want)
		}
	}
}

func TestRewriteLeavesUnknownTokensAlone(t *testing.T) {
	args := []string{"install", "foo", "--source", "local-feed"}
	got := Rewrite(args, map[string][]string{"foo": {"/staged/foo.tpkg"}})
	if got[3] != "local-feed" {
		t.Fatalf("flag value rewritten: %v", got)
	}
}
