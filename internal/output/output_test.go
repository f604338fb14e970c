package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/claudesync/internal/git"
	"github.com/schaermu/claudesync/internal/items"
	"github.com/schaermu/claudesync/internal/snapshot"
	"github.com/schaermu/claudesync/internal/sync"
)

// capture redirects Out for the duration of the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := Out
	Out = &buf
	t.Cleanup(func() { Out = orig })
	return &buf
}

func TestMessages(t *testing.T) {
	buf := capture(t)

	Success("pushed %d items", 3)
	Warning("careful")
	Error("broken: %s", "x")
	Info("plain %s", "line")

	got := buf.String()
	for _, want := range []string{"pushed 3 items", "Warning: careful", "ERROR: broken: x", "plain line"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatTimeAgo(t *testing.T) {
	if got := FormatTimeAgo(time.Time{}); got != "never" {
		t.Errorf("FormatTimeAgo(zero) = %q, want never", got)
	}
	if got := FormatTimeAgo(time.Now().Add(-3 * time.Hour)); got != "3 hours ago" {
		t.Errorf("FormatTimeAgo(-3h) = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{1200, "1.2 kB"},
		{5 * 1000 * 1000, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestReport(t *testing.T) {
	buf := capture(t)

	r := &snapshot.Report{
		Direction: snapshot.DirectionExport,
		Results: []snapshot.ItemResult{
			{Item: items.Item{Name: "settings"}, Outcome: snapshot.OutcomeCopied, Files: 1, Bytes: 1200},
			{Item: items.Item{Name: "projects"}, Outcome: snapshot.OutcomeCopied, Files: 2, Unchanged: 4, Pruned: 1, Bytes: 10},
			{Item: items.Item{Name: "todos"}, Outcome: snapshot.OutcomeSkipped, Reason: "source not found"},
		},
	}
	Report(r)

	got := buf.String()
	for _, want := range []string{
		"1 file written, 1.2 kB",
		"2 files written, 10 B, 4 unchanged, 1 pruned",
		"source not found",
		"export: 2 copied, 1 skipped, 0 failed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestReport_Failures(t *testing.T) {
	buf := capture(t)

	r := &snapshot.Report{
		Direction: snapshot.DirectionImport,
		Results: []snapshot.ItemResult{{
			Item:     items.Item{Name: "projects"},
			Outcome:  snapshot.OutcomeFailed,
			Failures: []snapshot.Failure{{Item: "projects", Path: "/x/a.jsonl", Op: "copy", Err: errors.New("permission denied")}},
		}},
	}
	Report(r)

	got := buf.String()
	if !strings.Contains(got, "projects: copy /x/a.jsonl: permission denied") {
		t.Errorf("failure detail missing:\n%s", got)
	}
	if !strings.Contains(got, "Warning: import: 0 copied, 0 skipped, 1 failed") {
		t.Errorf("summary should be a warning:\n%s", got)
	}

	Report(nil)
}

func TestStatus(t *testing.T) {
	buf := capture(t)

	st := &sync.Status{
		MachineID:   "m1",
		Remote:      "git@example.com:me/claude.git",
		WorkingCopy: "/home/me/.claude-sync/repo",
		Level:       items.LevelEssential,
		AuthMethod:  "ssh",
		Repo: &git.RepoStatus{
			Branch:      "main",
			HeadHash:    "abc",
			LastCommit:  time.Now().Add(-2 * time.Hour),
			Uncommitted: 2,
		},
		Items: []sync.ItemStatus{
			{Item: items.Item{Name: "settings", RequiredLevel: items.LevelEssential}, Included: true, LocalPresent: true, Archived: true},
			{Item: items.Item{Name: "commands", RequiredLevel: items.LevelFull}},
		},
		Peers: []sync.Manifest{{MachineID: "m2", Platform: "darwin/arm64", Level: items.LevelFull, Items: []string{"settings", "todos"}}},
	}
	Status(st)

	got := buf.String()
	for _, want := range []string{
		"machine:      m1",
		"branch:       main",
		"2 hours ago",
		"2 changes",
		"present archived",
		"(needs level full)",
		"m2  darwin/arm64, full, 2 items",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
}

func TestStatus_NotCloned(t *testing.T) {
	buf := capture(t)

	Status(&sync.Status{MachineID: "m1", Level: items.LevelFull})

	if !strings.Contains(buf.String(), "never (working copy not cloned yet)") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
