package sync

import "fmt"

// PhaseError tells which half of a sync failed.
type PhaseError struct {
	Phase string // "pull" or "push"
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
