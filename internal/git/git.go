// Package git moves the working copy to and from its remote. ShellClient
// drives the git command line; Inspect reads repository state without
// touching it.
package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultBranch is used when cloning a remote that has no branches yet, so
// every machine starts on the same branch.
const DefaultBranch = "main"

// Client provides the version-control steps of a sync
type Client interface {
	// EnsureCloned clones url into dir unless dir already holds a clone of it
	EnsureCloned(ctx context.Context, url, dir string) error
	// CommitAll stages every change in dir and commits it
	CommitAll(ctx context.Context, dir, message string) (CommitResult, error)
	// Push publishes the current branch
	Push(ctx context.Context, dir string) error
	// Pull fetches and merges the remote branch
	Pull(ctx context.Context, dir string) error
	// ResetHard discards local state in favor of the remote branch
	ResetHard(ctx context.Context, dir string) error
	// UnmergedPaths lists paths with unresolved conflicts
	UnmergedPaths(ctx context.Context, dir string) ([]string, error)
	// Probe checks that url is a reachable repository
	Probe(ctx context.Context, url string) error
}

// CommitResult reports whether CommitAll created a commit.
type CommitResult struct {
	Committed bool
	Hash      string
}

// Identity is the author and committer recorded on sync commits.
type Identity struct {
	Name  string
	Email string
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string
	identity       Identity
	logger         *slog.Logger
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(sshKeyFile, httpsTokenFile string, identity Identity, logger *slog.Logger) *ShellClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
		identity:       identity,
		logger:         logger,
	}
}

// EnsureCloned clones url into dir when dir has no repository. An existing
// clone must track url as origin.
func (c *ShellClient) EnsureCloned(ctx context.Context, url, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		got, err := c.originURL(ctx, dir)
		if err != nil {
			return err
		}
		if !sameRemote(got, url) {
			return &RemoteMismatchError{Dir: dir, Want: url, Got: got}
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	c.logger.Info("cloning working copy", "dir", dir)
	if _, err := c.git(ctx, "", url, "-c", "init.defaultBranch="+DefaultBranch, "clone", "--quiet", url, dir); err != nil {
		return fmt.Errorf("git clone failed: %w", classify(err))
	}
	return nil
}

// CommitAll stages all changes, including deletions, and commits them. With
// nothing to commit it returns a zero CommitResult. A merge whose conflicts
// were resolved in the working tree is concluded by this commit.
func (c *ShellClient) CommitAll(ctx context.Context, dir, message string) (CommitResult, error) {
	if _, err := c.git(ctx, dir, "", "add", "-A"); err != nil {
		return CommitResult{}, fmt.Errorf("git add failed: %w", err)
	}

	status, err := c.git(ctx, dir, "", "status", "--porcelain")
	if err != nil {
		return CommitResult{}, fmt.Errorf("git status failed: %w", err)
	}
	if strings.TrimSpace(status) == "" && !c.merging(ctx, dir) {
		return CommitResult{}, nil
	}

	if _, err := c.git(ctx, dir, "", "commit", "--quiet", "--no-verify", "-m", message); err != nil {
		return CommitResult{}, fmt.Errorf("git commit failed: %w", err)
	}

	hash, err := c.git(ctx, dir, "", "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, fmt.Errorf("git rev-parse failed: %w", err)
	}
	return CommitResult{Committed: true, Hash: strings.TrimSpace(hash)}, nil
}

// Push pushes the current branch to origin. A branch without commits has
// nothing to publish and is skipped.
func (c *ShellClient) Push(ctx context.Context, dir string) error {
	if !c.hasCommits(ctx, dir) {
		c.logger.Debug("no commits yet, skipping push", "dir", dir)
		return nil
	}

	branch, err := c.currentBranch(ctx, dir)
	if err != nil {
		return err
	}
	remote, err := c.originURL(ctx, dir)
	if err != nil {
		return err
	}

	if _, err := c.git(ctx, dir, remote, "push", "--quiet", "origin", "HEAD:refs/heads/"+branch); err != nil {
		return fmt.Errorf("git push failed: %w", classify(err))
	}
	return nil
}

// Pull fetches origin and merges the remote branch into the current one.
// Conflicts leave the merge in progress and return *MergeConflictError.
// A merge left behind by an earlier pull is committed first once all its
// conflicts are resolved. A remote without the branch has nothing to pull.
func (c *ShellClient) Pull(ctx context.Context, dir string) error {
	if c.merging(ctx, dir) {
		paths, err := c.UnmergedPaths(ctx, dir)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			return &MergeConflictError{Paths: paths}
		}
		if _, err := c.git(ctx, dir, "", "commit", "--quiet", "--no-verify", "--no-edit"); err != nil {
			return fmt.Errorf("failed to conclude merge: %w", err)
		}
		c.logger.Info("concluded resolved merge", "dir", dir)
	}

	remote, err := c.originURL(ctx, dir)
	if err != nil {
		return err
	}
	if _, err := c.git(ctx, dir, remote, "fetch", "--quiet", "--prune", "origin"); err != nil {
		return fmt.Errorf("git fetch failed: %w", classify(err))
	}

	branch, err := c.currentBranch(ctx, dir)
	if err != nil {
		return err
	}
	if !c.remoteBranchExists(ctx, dir, branch) {
		c.logger.Info("remote branch does not exist yet, nothing to pull", "branch", branch)
		return nil
	}

	if _, err := c.git(ctx, dir, "", "merge", "--no-edit", "origin/"+branch); err != nil {
		paths, pathErr := c.UnmergedPaths(ctx, dir)
		if pathErr == nil && len(paths) > 0 {
			return &MergeConflictError{Paths: paths}
		}
		return fmt.Errorf("git merge failed: %w", err)
	}
	return nil
}

// ResetHard aborts any merge, fetches origin and makes the working copy match
// the remote branch, removing untracked files. When the remote branch does
// not exist the local branch is dropped and the tree emptied.
func (c *ShellClient) ResetHard(ctx context.Context, dir string) error {
	if c.merging(ctx, dir) {
		if _, err := c.git(ctx, dir, "", "merge", "--abort"); err != nil {
			return fmt.Errorf("git merge --abort failed: %w", err)
		}
	}

	remote, err := c.originURL(ctx, dir)
	if err != nil {
		return err
	}
	if _, err := c.git(ctx, dir, remote, "fetch", "--quiet", "--prune", "origin"); err != nil {
		return fmt.Errorf("git fetch failed: %w", classify(err))
	}

	branch, err := c.currentBranch(ctx, dir)
	if err != nil {
		return err
	}

	if c.remoteBranchExists(ctx, dir, branch) {
		if _, err := c.git(ctx, dir, "", "reset", "--quiet", "--hard", "origin/"+branch); err != nil {
			return fmt.Errorf("git reset failed: %w", err)
		}
	} else {
		if c.hasCommits(ctx, dir) {
			if _, err := c.git(ctx, dir, "", "update-ref", "-d", "refs/heads/"+branch); err != nil {
				return fmt.Errorf("failed to drop local branch: %w", err)
			}
		}
		if _, err := c.git(ctx, dir, "", "read-tree", "--empty"); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	if _, err := c.git(ctx, dir, "", "clean", "-fdxq"); err != nil {
		return fmt.Errorf("git clean failed: %w", err)
	}
	return nil
}

// UnmergedPaths returns the sorted paths git still marks as conflicted.
func (c *ShellClient) UnmergedPaths(ctx context.Context, dir string) ([]string, error) {
	out, err := c.git(ctx, dir, "", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("failed to list unmerged paths: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Probe runs ls-remote against url to check reachability and credentials.
func (c *ShellClient) Probe(ctx context.Context, url string) error {
	if _, err := c.git(ctx, "", url, "ls-remote", "--heads", url); err != nil {
		return fmt.Errorf("git ls-remote failed: %w", classify(err))
	}
	return nil
}

func (c *ShellClient) originURL(ctx context.Context, dir string) (string, error) {
	out, err := c.git(ctx, dir, "", "config", "--get", "remote.origin.url")
	if err != nil {
		return "", fmt.Errorf("working copy %s has no origin remote: %w", dir, err)
	}
	return strings.TrimSpace(out), nil
}

func (c *ShellClient) currentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.git(ctx, dir, "", "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("working copy is not on a branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *ShellClient) hasCommits(ctx context.Context, dir string) bool {
	_, err := c.git(ctx, dir, "", "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

func (c *ShellClient) remoteBranchExists(ctx context.Context, dir, branch string) bool {
	_, err := c.git(ctx, dir, "", "rev-parse", "--verify", "--quiet", "refs/remotes/origin/"+branch)
	return err == nil
}

func (c *ShellClient) merging(ctx context.Context, dir string) bool {
	_, err := c.git(ctx, dir, "", "rev-parse", "--verify", "--quiet", "MERGE_HEAD")
	return err == nil
}

// git runs a git subcommand in dir (or the current directory when dir is
// empty) and returns its stdout. A non-empty remote means the command talks
// to that remote and gets credentials for it.
func (c *ShellClient) git(ctx context.Context, dir, remote string, args ...string) (string, error) {
	full := make([]string, 0, len(args)+2)
	if dir != "" {
		full = append(full, "-C", dir)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, c.identityEnv()...)
	if remote != "" {
		if err := c.configureAuth(cmd, remote); err != nil {
			return "", err
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("running git", "args", args)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &commandError{
			Args:   args,
			Output: stderr.String() + stdout.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func (c *ShellClient) identityEnv() []string {
	var env []string
	if c.identity.Name != "" {
		env = append(env, "GIT_AUTHOR_NAME="+c.identity.Name, "GIT_COMMITTER_NAME="+c.identity.Name)
	}
	if c.identity.Email != "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+c.identity.Email, "GIT_COMMITTER_EMAIL="+c.identity.Email)
	}
	return env
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && isSSHURL(url) {
		// Use GIT_SSH_COMMAND to specify the SSH key.
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		tokenStr := strings.TrimSpace(string(token))

		// The token travels in the environment and a credential helper
		// echoes it, so it never appears in the argument list.
		cmd.Env = append(cmd.Env, "CLAUDESYNC_GIT_TOKEN="+tokenStr)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$CLAUDESYNC_GIT_TOKEN"; }; f`,
		)

		return nil
	}

	return nil
}

// isSSHURL reports whether url is ssh:// or scp-like (user@host:path).
func isSSHURL(url string) bool {
	if strings.HasPrefix(url, "ssh://") {
		return true
	}
	if strings.Contains(url, "://") {
		return false
	}
	at := strings.Index(url, "@")
	colon := strings.Index(url, ":")
	slash := strings.Index(url, "/")
	return at > 0 && colon > at && (slash < 0 || colon < slash)
}

// sameRemote compares remote URLs, ignoring a trailing slash or .git suffix.
func sameRemote(a, b string) bool {
	norm := func(s string) string {
		s = strings.TrimSuffix(strings.TrimSpace(s), "/")
		return strings.TrimSuffix(s, ".git")
	}
	return norm(a) == norm(b)
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "fetch").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
