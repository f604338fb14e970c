//go:build integration

package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/claudesync/internal/testutil"
)

func TestStatusWithoutSetup(t *testing.T) {
	h := NewHarness(t)
	m := h.Machine("fresh")

	stdout, _, code := m.Run("status")
	if code != 0 {
		t.Fatalf("status exited %d, want 0", code)
	}
	if !strings.Contains(stdout, "not configured") {
		t.Errorf("unexpected status output:\n%s", stdout)
	}

	_, _, code = m.Run("push")
	if code != 1 {
		t.Errorf("push without setup exited %d, want 1", code)
	}
}

func TestTwoMachineRoundTrip(t *testing.T) {
	h := NewHarness(t)
	laptop := h.Machine("laptop")
	desktop := h.Machine("desktop")

	laptop.MustRun("setup", "--remote", h.Remote, "--level", "full")
	desktop.MustRun("setup", "--remote", h.Remote, "--level", "full")

	laptop.WriteFile(".claude.json", `{"theme":"dark"}`)
	laptop.WriteFile(".claude/CLAUDE.md", "# context\n")
	laptop.WriteFile(".claude/projects/demo/session.jsonl", "{\"role\":\"user\"}\n")
	laptop.WriteFile(".claude/projects/demo/trace.log", "excluded")
	laptop.WriteFile(".claude-code/slash-commands/deploy.md", "deploy")

	laptop.MustRun("push")
	desktop.MustRun("pull")

	for _, rel := range []string{".claude.json", ".claude/CLAUDE.md", ".claude/projects/demo/session.jsonl", ".claude-code/slash-commands/deploy.md"} {
		if got, want := desktop.ReadFile(rel), laptop.ReadFile(rel); got != want {
			t.Errorf("%s: got %q, want %q", rel, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(desktop.Home, ".claude/projects/demo/trace.log")); !os.IsNotExist(err) {
		t.Error("excluded file was synced")
	}

	before := testutil.Git(t, laptop.WorkingCopy(), "rev-list", "--count", "HEAD")
	laptop.MustRun("push")
	if after := testutil.Git(t, laptop.WorkingCopy(), "rev-list", "--count", "HEAD"); after != before {
		t.Errorf("unchanged push created a commit (%s -> %s)", before, after)
	}

	desktop.MustRun("sync")
	stdout := laptop.MustRun("sync")
	if !strings.Contains(stdout, "sync complete") {
		t.Errorf("unexpected sync output:\n%s", stdout)
	}

	status := laptop.MustRun("status")
	for _, want := range []string{"branch:       main", "other machines"} {
		if !strings.Contains(status, want) {
			t.Errorf("status missing %q:\n%s", want, status)
		}
	}
}

func TestConflictGuidance(t *testing.T) {
	h := NewHarness(t)
	a := h.Machine("a")
	b := h.Machine("b")

	a.MustRun("setup", "--remote", h.Remote)
	b.MustRun("setup", "--remote", h.Remote)

	a.WriteFile(".claude/settings.json", "{\"v\":0}\n")
	a.MustRun("push")
	b.MustRun("pull")

	a.WriteFile(".claude/settings.json", "{\"v\":1}\n")
	a.MustRun("push")
	b.WriteFile(".claude/settings.json", "{\"v\":2}\n")

	stdout, stderr, code := b.Run("push")
	if code != 1 || !strings.Contains(stdout, "claudesync pull") {
		t.Fatalf("push b: exit %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	stdout, stderr, code = b.Run("pull")
	if code != 1 || !strings.Contains(stderr+stdout, "claude/settings.json") {
		t.Fatalf("pull b: exit %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	b.MustRun("reset", "--yes")
	b.MustRun("pull")
	if got := b.ReadFile(".claude/settings.json"); got != "{\"v\":1}\n" {
		t.Errorf("after reset and pull, settings = %q", got)
	}
}

func TestHooksRunClaudesync(t *testing.T) {
	h := NewHarness(t)
	a := h.Machine("a")
	b := h.Machine("b")

	a.MustRun("setup", "--remote", h.Remote)
	b.MustRun("setup", "--remote", h.Remote)
	a.WriteFile(".claude/CLAUDE.md", "from a\n")

	a.MustRun("hooks")
	b.MustRun("hooks")

	runHook := func(m *Machine, name string) {
		t.Helper()
		cmd := exec.Command("sh", filepath.Join(m.Home, ".claude-code/hooks", name))
		cmd.Env = append(os.Environ(), "HOME="+m.Home)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("%s %s: %v\n%s", m.Name, name, err, out)
		}
	}

	runHook(a, "session-end.sh")
	runHook(b, "session-start.sh")

	if got := b.ReadFile(".claude/CLAUDE.md"); got != "from a\n" {
		t.Errorf("hook pull did not restore context, got %q", got)
	}
}
