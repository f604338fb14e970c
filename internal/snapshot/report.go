package snapshot

import (
	"fmt"
	"strings"

	"github.com/schaermu/claudesync/internal/items"
)

// Direction tells which way a batch copied
type Direction string

const (
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// Outcome is the result of one item in a batch
type Outcome string

const (
	OutcomeCopied  Outcome = "copied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Failure records one path that could not be copied.
type Failure struct {
	Item string
	Path string
	Op   string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", f.Item, f.Op, f.Path, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// ItemResult summarizes what happened to one item.
type ItemResult struct {
	Item    items.Item
	Outcome Outcome
	// Reason explains a skip
	Reason string
	// Files is the number of files written, Unchanged the number already
	// identical at the destination, Pruned the number of stale archive files
	// removed during export.
	Files     int
	Unchanged int
	Pruned    int
	Bytes     int64
	Failures  []Failure
}

// Report is the outcome of one export or import batch.
type Report struct {
	Direction Direction
	Results   []ItemResult
}

// Count returns how many items ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Failures returns every failure across all items, in item order.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, res := range r.Results {
		out = append(out, res.Failures...)
	}
	return out
}

// Present returns the names of items that made it to the destination.
func (r *Report) Present() []string {
	var names []string
	for _, res := range r.Results {
		if res.Outcome == OutcomeCopied {
			names = append(names, res.Item.Name)
		}
	}
	return names
}

// Changed reports whether any file was written or pruned.
func (r *Report) Changed() bool {
	for _, res := range r.Results {
		if res.Files > 0 || res.Pruned > 0 {
			return true
		}
	}
	return false
}

// Err returns a *PartialCopyError when any item failed, nil otherwise.
func (r *Report) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &PartialCopyError{Direction: r.Direction, Failures: failures}
}

// PartialCopyError lists the paths a batch could not copy. The rest of the
// batch completed.
type PartialCopyError struct {
	Direction Direction
	Failures  []Failure
}

func (e *PartialCopyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d path(s) failed to copy", e.Direction, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes the individual causes to errors.Is and errors.As.
func (e *PartialCopyError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
