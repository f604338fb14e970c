package git

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteRejected means the remote refused a push, usually because it
	// holds commits this working copy has not merged yet.
	ErrRemoteRejected = errors.New("remote rejected push")
	// ErrRemoteUnavailable covers transport failures: unknown host, refused
	// connection, missing repository or failed authentication.
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// MergeConflictError lists the paths left unmerged in the working copy.
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict in %d path(s): %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// RemoteMismatchError is returned when an existing working copy tracks a
// different remote than the configured one.
type RemoteMismatchError struct {
	Dir  string
	Want string
	Got  string
}

func (e *RemoteMismatchError) Error() string {
	return fmt.Sprintf("working copy %s tracks %q, configured remote is %q", e.Dir, e.Got, e.Want)
}

// stderr fragments git prints for the two classified remote failures
var (
	rejectedMarkers = []string{
		"[rejected]",
		"non-fast-forward",
		"fetch first",
		"Updates were rejected",
	}
	unavailableMarkers = []string{
		"Could not resolve host",
		"could not resolve hostname",
		"Connection refused",
		"Connection timed out",
		"Could not read from remote repository",
		"does not appear to be a git repository",
		"does not exist",
		"unable to access",
		"Repository not found",
		"Authentication failed",
		"Permission denied",
	}
)

// commandError is a failed git invocation with its captured output.
type commandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *commandError) Unwrap() error { return e.Err }

// classify maps the output of a failed remote operation onto the package's
// sentinel errors. Unrecognized failures are returned as given.
func classify(err error) error {
	var cmdErr *commandError
	if !errors.As(err, &cmdErr) {
		return err
	}
	output := cmdErr.Output
	switch {
	case containsAny(output, rejectedMarkers):
		return fmt.Errorf("%w: %s", ErrRemoteRejected, summary(output))
	case containsAny(output, unavailableMarkers):
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, summary(output))
	}
	return err
}

func containsAny(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// summary picks the first fatal: or error: line of git output, falling back
// to the last non-empty line.
func summary(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "fatal:") || strings.HasPrefix(l, "error:") {
			return l
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
