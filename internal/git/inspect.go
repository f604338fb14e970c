package git

import (
	"errors"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// RepoStatus is a read-only snapshot of a working copy.
type RepoStatus struct {
	Branch string
	// HeadHash and LastCommit are zero when the branch has no commits yet.
	HeadHash    string
	LastCommit  time.Time
	Uncommitted int
	Merging     bool
}

// HasCommits reports whether the branch has at least one commit.
func (s *RepoStatus) HasCommits() bool {
	return s.HeadHash != ""
}

// Inspect opens the repository at dir and reports its state. It never writes
// to the repository.
func Inspect(dir string) (*RepoStatus, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open working copy: %w", err)
	}

	status := &RepoStatus{}

	headRef, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD: %w", err)
	}
	if headRef.Type() == plumbing.SymbolicReference {
		status.Branch = headRef.Target().Short()
	}

	head, err := repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// unborn branch
	case err != nil:
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	default:
		commit, err := repo.CommitObject(head.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to read head commit: %w", err)
		}
		status.HeadHash = head.Hash().String()
		status.LastCommit = commit.Committer.When
	}

	if _, err := repo.Reference(plumbing.ReferenceName("MERGE_HEAD"), false); err == nil {
		status.Merging = true
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	files, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}
	for _, fs := range files {
		if fs.Staging != gogit.Unmodified || fs.Worktree != gogit.Unmodified {
			status.Uncommitted++
		}
	}

	return status, nil
}
