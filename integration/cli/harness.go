//go:build integration

// Package cli runs the claudesync binary end to end against scratch homes
// and a local bare remote.
package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/claudesync/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the binary once per test and hands out machines.
type Harness struct {
	t      *testing.T
	bin    string
	Remote string
}

// NewHarness builds claudesync and creates an empty remote.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	testutil.IsolateGit(t)

	root, err := testutil.FindProjectRoot()
	if err != nil {
		t.Fatalf("get project root: %v", err)
	}

	bin := filepath.Join(t.TempDir(), "claudesync")
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "build", "-o", bin, "./cmd/claudesync")
	cmd.Dir = root
	cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		t.Fatalf("build claudesync: %v", err)
	}

	return &Harness{t: t, bin: bin, Remote: testutil.NewRemote(t)}
}

// Machine is one simulated computer with its own home directory.
type Machine struct {
	h    *Harness
	Name string
	Home string
}

// Machine creates a machine with an empty home.
func (h *Harness) Machine(name string) *Machine {
	h.t.Helper()
	home := filepath.Join(h.t.TempDir(), name)
	if err := os.MkdirAll(home, 0o755); err != nil {
		h.t.Fatal(err)
	}
	return &Machine{h: h, Name: name, Home: home}
}

// Run executes claudesync with HOME pointing at the machine's home and
// returns stdout, stderr and the exit code.
func (m *Machine) Run(args ...string) (string, string, int) {
	m.h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.h.bin, args...)
	cmd.Env = append(os.Environ(), "HOME="+m.Home, "NO_COLOR=1")
	cmd.Dir = m.Home
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		m.h.t.Fatalf("%s: run %v: %v", m.Name, args, err)
	}
	return stdout.String(), stderr.String(), code
}

// MustRun executes claudesync and fails the test on a non-zero exit.
func (m *Machine) MustRun(args ...string) string {
	m.h.t.Helper()
	stdout, stderr, code := m.Run(args...)
	if code != 0 {
		m.h.t.Fatalf("%s: claudesync %s exited %d\nstdout:\n%s\nstderr:\n%s", m.Name, strings.Join(args, " "), code, stdout, stderr)
	}
	return stdout
}

// WriteFile writes a file relative to the machine's home.
func (m *Machine) WriteFile(rel, content string) {
	m.h.t.Helper()
	testutil.WriteFile(m.h.t, filepath.Join(m.Home, rel), content)
}

// ReadFile reads a file relative to the machine's home.
func (m *Machine) ReadFile(rel string) string {
	m.h.t.Helper()
	return testutil.ReadFile(m.h.t, filepath.Join(m.Home, rel))
}

// WorkingCopy returns the default working copy location of the machine.
func (m *Machine) WorkingCopy() string {
	return filepath.Join(m.Home, ".claude-sync", "repo")
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}
