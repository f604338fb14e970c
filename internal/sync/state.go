package sync

import (
	"time"

	"github.com/schaermu/claudesync/internal/git"
	"github.com/schaermu/claudesync/internal/items"
)

// Phase is the step an Engine is currently in
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseResolving    Phase = "resolving"
	PhaseExporting    Phase = "exporting"
	PhaseImporting    Phase = "importing"
	PhaseCommitting   Phase = "committing"
	PhaseTransporting Phase = "transporting"
	PhaseFailed       Phase = "failed"
)

// Manifest describes one machine. Each push writes its own manifest to
// machines/<id>.yaml in the working copy. It carries no timestamps so an
// unchanged machine produces an unchanged file, and no host or user names.
type Manifest struct {
	MachineID string      `yaml:"machine_id"`
	Platform  string      `yaml:"platform"`
	Level     items.Level `yaml:"level"`
	Items     []string    `yaml:"items"` // items present at the last push
}

// Status is a read-only view of this machine's sync setup
type Status struct {
	MachineID   string
	Remote      string
	WorkingCopy string
	Level       items.Level
	AuthMethod  string
	// Repo is nil until the working copy has been cloned, or when it exists
	// but could not be read; RepoErr holds the reason in the latter case.
	Repo    *git.RepoStatus
	RepoErr error
	Items   []ItemStatus
	// Peers lists the manifests of other machines found in the working copy.
	Peers []Manifest
}

// Cloned reports whether the working copy exists
func (s *Status) Cloned() bool {
	return s.Repo != nil
}

// LastSync returns the time of the last commit in the working copy, zero
// when there is none.
func (s *Status) LastSync() time.Time {
	if s.Repo == nil {
		return time.Time{}
	}
	return s.Repo.LastCommit
}

// ItemStatus reports where one catalog item currently exists.
type ItemStatus struct {
	Item items.Item
	// Included is false for items above the configured level.
	Included     bool
	LocalPresent bool
	Archived     bool
}
