// Package sync runs push, pull and sync for one machine: it moves the
// configured items through the working copy and the remote.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/claudesync/internal/config"
	"github.com/schaermu/claudesync/internal/git"
	"github.com/schaermu/claudesync/internal/items"
	"github.com/schaermu/claudesync/internal/snapshot"
)

// Engine orchestrates the sync process
type Engine struct {
	cfg     *config.Config
	git     git.Client
	files   *snapshot.Materializer
	catalog items.Catalog
	logger  *slog.Logger
	phase   Phase
	now     func() time.Time
}

// NewEngine creates a new sync engine for cfg, which must be loaded and
// validated.
func NewEngine(cfg *config.Config, gitClient git.Client, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog := items.Default.Bind(cfg.HomeDir())
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid item catalog: %w", err)
	}

	files, err := snapshot.New(snapshot.Options{
		Exclude: cfg.Sync.Exclude,
		Backup:  cfg.BackupEnabled(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		git:     gitClient,
		files:   files,
		catalog: catalog,
		logger:  logger,
		phase:   PhaseIdle,
		now:     time.Now,
	}, nil
}

// Phase returns the step the engine is in.
func (e *Engine) Phase() Phase {
	return e.phase
}

// Push exports the configured items into the working copy, commits and
// pushes them. Paths that could not be copied are returned as a
// *snapshot.PartialCopyError after the commit and push complete.
func (e *Engine) Push(ctx context.Context) (*snapshot.Report, error) {
	wc := e.cfg.Paths.WorkingCopy
	e.logger.Info("starting push", "remote", e.cfg.Remote.URL, "working_copy", wc, "level", e.cfg.Sync.Level)

	e.setPhase(PhaseResolving)
	if err := e.prepare(ctx); err != nil {
		return nil, e.fail(err)
	}

	unmerged, err := e.git.UnmergedPaths(ctx, wc)
	if err != nil {
		return nil, e.fail(err)
	}
	if len(unmerged) > 0 {
		return nil, e.fail(&git.MergeConflictError{Paths: unmerged})
	}

	list := e.catalog.Resolve(e.cfg.Sync.Level)
	e.logger.Debug("resolved items", "count", len(list))

	e.setPhase(PhaseExporting)
	report := e.files.Export(ctx, list, wc)
	if err := ctx.Err(); err != nil {
		return report, e.fail(err)
	}
	if err := e.writeManifest(report); err != nil {
		return report, e.fail(fmt.Errorf("failed to write machine manifest: %w", err))
	}

	e.setPhase(PhaseCommitting)
	msg := fmt.Sprintf("sync from %s at %s", e.cfg.MachineID, e.now().UTC().Format(time.RFC3339))
	res, err := e.git.CommitAll(ctx, wc, msg)
	if err != nil {
		return report, e.fail(fmt.Errorf("failed to commit: %w", err))
	}
	if res.Committed {
		e.logger.Info("committed changes", "commit", res.Hash)
	} else {
		e.logger.Info("nothing to commit")
	}

	e.setPhase(PhaseTransporting)
	if err := e.git.Push(ctx, wc); err != nil {
		return report, e.fail(fmt.Errorf("failed to push: %w", err))
	}

	e.setPhase(PhaseIdle)
	e.logger.Info("push completed",
		"copied", report.Count(snapshot.OutcomeCopied),
		"skipped", report.Count(snapshot.OutcomeSkipped),
		"failed", report.Count(snapshot.OutcomeFailed))
	return report, report.Err()
}

// Pull merges the remote into the working copy and imports the configured
// items into their local locations. Local files are overwritten; local
// files missing from the working copy are kept.
func (e *Engine) Pull(ctx context.Context) (*snapshot.Report, error) {
	wc := e.cfg.Paths.WorkingCopy
	e.logger.Info("starting pull", "remote", e.cfg.Remote.URL, "working_copy", wc, "level", e.cfg.Sync.Level)

	e.setPhase(PhaseResolving)
	if err := e.prepare(ctx); err != nil {
		return nil, e.fail(err)
	}
	list := e.catalog.Resolve(e.cfg.Sync.Level)

	e.setPhase(PhaseTransporting)
	if err := e.git.Pull(ctx, wc); err != nil {
		return nil, e.fail(fmt.Errorf("failed to pull: %w", err))
	}

	e.setPhase(PhaseImporting)
	report := e.files.Import(ctx, list, wc)
	if err := ctx.Err(); err != nil {
		return report, e.fail(err)
	}

	e.setPhase(PhaseIdle)
	e.logger.Info("pull completed",
		"copied", report.Count(snapshot.OutcomeCopied),
		"skipped", report.Count(snapshot.OutcomeSkipped),
		"failed", report.Count(snapshot.OutcomeFailed))
	return report, report.Err()
}

// SyncResult holds the reports of both halves of a sync. Push is nil when
// the pull failed.
type SyncResult struct {
	Pull *snapshot.Report
	Push *snapshot.Report
}

// Sync pulls then pushes. Any pull failure, including files that could not
// be restored locally, stops the sync before anything is exported or
// pushed. Every returned error is a *PhaseError.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}

	report, err := e.Pull(ctx)
	result.Pull = report
	if err != nil {
		return result, &PhaseError{Phase: "pull", Err: err}
	}

	report, err = e.Push(ctx)
	result.Push = report
	if err != nil {
		return result, &PhaseError{Phase: "push", Err: err}
	}
	return result, nil
}

// Reset discards local working copy state in favor of the remote branch.
// Local item files are not touched.
func (e *Engine) Reset(ctx context.Context) error {
	wc := e.cfg.Paths.WorkingCopy
	e.logger.Warn("resetting working copy to remote state", "working_copy", wc)

	e.setPhase(PhaseResolving)
	if err := e.prepare(ctx); err != nil {
		return e.fail(err)
	}

	e.setPhase(PhaseTransporting)
	if err := e.git.ResetHard(ctx, wc); err != nil {
		return e.fail(fmt.Errorf("failed to reset working copy: %w", err))
	}

	e.setPhase(PhaseIdle)
	e.logger.Info("working copy reset")
	return nil
}

// Status reports the configuration, the working copy state, per-item
// presence and known peer machines. It does not modify anything. A working
// copy that cannot be read is reported in Status.RepoErr, not as an error.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wc := e.cfg.Paths.WorkingCopy
	st := &Status{
		MachineID:   e.cfg.MachineID,
		Remote:      e.cfg.Remote.URL,
		WorkingCopy: wc,
		Level:       e.cfg.Sync.Level,
		AuthMethod:  e.cfg.AuthMethod(),
	}

	if _, err := os.Stat(filepath.Join(wc, ".git")); err == nil {
		repo, err := git.Inspect(wc)
		if err != nil {
			e.logger.Warn("failed to inspect working copy", "working_copy", wc, "error", err)
			st.RepoErr = err
		} else {
			st.Repo = repo
		}
	}

	for _, it := range e.catalog {
		is := ItemStatus{
			Item:         it,
			Included:     e.cfg.Sync.Level.Includes(it.RequiredLevel),
			LocalPresent: exists(it.SourcePath),
		}
		if st.Cloned() {
			is.Archived = exists(it.ArchiveDest(wc))
		}
		st.Items = append(st.Items, is)
	}

	if st.Cloned() {
		st.Peers = e.readPeers()
	}
	return st, nil
}

// prepare makes sure the working copy is a clone of the configured remote.
func (e *Engine) prepare(ctx context.Context) error {
	if err := e.git.EnsureCloned(ctx, e.cfg.Remote.URL, e.cfg.Paths.WorkingCopy); err != nil {
		return fmt.Errorf("failed to prepare working copy: %w", err)
	}
	return nil
}

func (e *Engine) manifestPath(machineID string) string {
	return filepath.Join(e.cfg.Paths.WorkingCopy, items.ReservedPrefix, machineID+".yaml")
}

// writeManifest records this machine in the working copy. The file is only
// rewritten when its content changes.
func (e *Engine) writeManifest(report *snapshot.Report) error {
	m := Manifest{
		MachineID: e.cfg.MachineID,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Level:     e.cfg.Sync.Level,
		Items:     report.Present(),
	}
	if m.Items == nil {
		m.Items = []string{}
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}

	path := e.manifestPath(e.cfg.MachineID)
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readPeers loads the manifests of other machines. Unreadable manifests are
// logged and skipped.
func (e *Engine) readPeers() []Manifest {
	dir := filepath.Join(e.cfg.Paths.WorkingCopy, items.ReservedPrefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("failed to list machine manifests", "error", err)
		}
		return nil
	}

	var peers []Manifest
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if strings.TrimSuffix(name, ".yaml") == e.cfg.MachineID {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			e.logger.Warn("failed to read machine manifest", "file", name, "error", err)
			continue
		}
		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			e.logger.Warn("failed to parse machine manifest", "file", name, "error", err)
			continue
		}
		peers = append(peers, m)
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].MachineID < peers[j].MachineID })
	return peers
}

func (e *Engine) setPhase(p Phase) {
	if e.phase == p {
		return
	}
	e.logger.Debug("phase transition", "from", e.phase, "to", p)
	e.phase = p
}

func (e *Engine) fail(err error) error {
	e.setPhase(PhaseFailed)
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
