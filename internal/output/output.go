// Package output renders command results for the terminal using lipgloss.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/schaermu/claudesync/internal/snapshot"
	"github.com/schaermu/claudesync/internal/sync"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	outcomeStyles = map[snapshot.Outcome]lipgloss.Style{
		snapshot.OutcomeCopied:  successStyle,
		snapshot.OutcomeSkipped: subtleStyle,
		snapshot.OutcomeFailed:  errorStyle,
	}
)

// Out receives all output. Tests replace it.
var Out io.Writer = os.Stdout

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Fprintln(Out, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Fprintln(Out, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Fprintln(Out, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Fprintf(Out, format+"\n", args...)
}

// FormatTimeAgo returns a relative age such as "3 minutes ago", or "never"
// for the zero time.
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// FormatBytes returns a human readable size
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Report prints one line per item followed by a summary.
func Report(r *snapshot.Report) {
	if r == nil {
		return
	}

	for _, res := range r.Results {
		style := outcomeStyles[res.Outcome]
		label := style.Render(fmt.Sprintf("%-8s", res.Outcome))
		Info("  %s %-16s %s", label, res.Item.Name, subtleStyle.Render(describe(res)))
		for _, f := range res.Failures {
			Info("           %s", errorStyle.Render(f.Error()))
		}
	}

	copied := r.Count(snapshot.OutcomeCopied)
	skipped := r.Count(snapshot.OutcomeSkipped)
	failed := r.Count(snapshot.OutcomeFailed)
	summary := fmt.Sprintf("%s: %d copied, %d skipped, %d failed", r.Direction, copied, skipped, failed)
	if failed > 0 {
		Warning("%s", summary)
		return
	}
	Success("%s", summary)
}

func describe(res snapshot.ItemResult) string {
	switch res.Outcome {
	case snapshot.OutcomeSkipped:
		return res.Reason
	case snapshot.OutcomeFailed:
		return english.Plural(len(res.Failures), "failure", "failures")
	}

	parts := []string{fmt.Sprintf("%s, %s", english.Plural(res.Files, "file written", "files written"), FormatBytes(res.Bytes))}
	if res.Unchanged > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", res.Unchanged))
	}
	if res.Pruned > 0 {
		parts = append(parts, fmt.Sprintf("%d pruned", res.Pruned))
	}
	return strings.Join(parts, ", ")
}

// Status prints the status of this machine's sync setup.
func Status(st *sync.Status) {
	Info("%s", titleStyle.Render("claudesync status"))
	Info("  machine:      %s", st.MachineID)
	Info("  remote:       %s", st.Remote)
	Info("  working copy: %s", st.WorkingCopy)
	Info("  level:        %s", st.Level)
	Info("  auth:         %s", st.AuthMethod)

	switch {
	case st.RepoErr != nil:
		Warning("working copy %s could not be read: %v", st.WorkingCopy, st.RepoErr)
	case !st.Cloned():
		Info("  last sync:    %s", subtleStyle.Render("never (working copy not cloned yet)"))
	default:
		repo := st.Repo
		Info("  branch:       %s", repo.Branch)
		if repo.HasCommits() {
			Info("  last sync:    %s (%s)", repo.LastCommit.Local().Format(time.RFC3339), FormatTimeAgo(repo.LastCommit))
		} else {
			Info("  last sync:    %s", subtleStyle.Render("never"))
		}
		if repo.Uncommitted > 0 {
			Info("  uncommitted:  %s", warningStyle.Render(english.Plural(repo.Uncommitted, "change", "changes")))
		}
		if repo.Merging {
			Warning("a merge is in progress; resolve conflicts in %s or run 'claudesync reset --yes'", st.WorkingCopy)
		}
	}

	Info("")
	Info("%s", titleStyle.Render("items"))
	for _, is := range st.Items {
		local := subtleStyle.Render("missing")
		if is.LocalPresent {
			local = successStyle.Render("present")
		}
		archived := ""
		if is.Archived {
			archived = subtleStyle.Render(" archived")
		}
		note := ""
		if !is.Included {
			note = subtleStyle.Render(" (needs level " + string(is.Item.RequiredLevel) + ")")
		}
		Info("  %-16s %s%s%s", is.Item.Name, local, archived, note)
	}

	if len(st.Peers) > 0 {
		Info("")
		Info("%s", titleStyle.Render("other machines"))
		for _, p := range st.Peers {
			Info("  %s  %s, %s, %s", p.MachineID, p.Platform, p.Level, english.Plural(len(p.Items), "item", "items"))
		}
	}
}
