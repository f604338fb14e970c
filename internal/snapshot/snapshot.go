// Package snapshot copies sync items between their local locations and the
// working copy. Copies are whole-file and best effort: a failing path is
// recorded in the batch report and the remaining paths are still processed.
//
// Conflicts are not merged here. Import overwrites local files with the
// working copy's version (last writer wins per file).
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/schaermu/claudesync/internal/items"
)

// Options configures a Materializer
type Options struct {
	// Exclude holds glob patterns ('/' separated, ** crosses directories)
	// matched against paths inside directory items.
	Exclude []string
	// Backup keeps <file>.bak before import replaces a differing single-file item.
	Backup bool
	Logger *slog.Logger
}

// Materializer moves item contents in and out of the working copy
type Materializer struct {
	exclude []glob.Glob
	backup  bool
	logger  *slog.Logger
}

// New creates a Materializer, compiling the exclude patterns.
func New(opts Options) (*Materializer, error) {
	m := &Materializer{
		backup: opts.Backup,
		logger: opts.Logger,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		m.exclude = append(m.exclude, g)
	}

	return m, nil
}

// Export copies each item's local source into workingCopy at its archive
// path. Items whose source is missing are skipped. For directory items,
// archive files that no longer exist locally are removed.
func (m *Materializer) Export(ctx context.Context, list []items.Item, workingCopy string) *Report {
	report := &Report{Direction: DirectionExport}
	for _, it := range list {
		report.Results = append(report.Results, m.run(ctx, DirectionExport, it, it.SourcePath, it.ArchiveDest(workingCopy)))
	}
	return report
}

// Import copies each item from workingCopy back to its local source path,
// overwriting local files. Local files absent from the working copy are left
// alone; items missing from the working copy are skipped.
func (m *Materializer) Import(ctx context.Context, list []items.Item, workingCopy string) *Report {
	report := &Report{Direction: DirectionImport}
	for _, it := range list {
		report.Results = append(report.Results, m.run(ctx, DirectionImport, it, it.ArchiveDest(workingCopy), it.SourcePath))
	}
	return report
}

func (m *Materializer) run(ctx context.Context, dir Direction, it items.Item, src, dst string) ItemResult {
	var res ItemResult
	if err := ctx.Err(); err != nil {
		res = ItemResult{
			Item:     it,
			Outcome:  OutcomeFailed,
			Failures: []Failure{{Item: it.Name, Path: src, Op: string(dir), Err: err}},
		}
	} else {
		res = m.transfer(dir, it, src, dst)
	}

	attrs := []any{
		"item", it.Name,
		"outcome", res.Outcome,
		"files", res.Files,
		"unchanged", res.Unchanged,
		"bytes", res.Bytes,
	}
	switch res.Outcome {
	case OutcomeFailed:
		m.logger.Warn(string(dir)+" failed", append(attrs, "failures", len(res.Failures))...)
	case OutcomeSkipped:
		m.logger.Info(string(dir)+" skipped", "item", it.Name, "reason", res.Reason)
	default:
		m.logger.Info(string(dir)+" done", append(attrs, "pruned", res.Pruned)...)
	}
	return res
}

func (m *Materializer) transfer(dir Direction, it items.Item, src, dst string) ItemResult {
	res := ItemResult{Item: it}
	fail := func(path, op string, err error) {
		res.Failures = append(res.Failures, Failure{Item: it.Name, Path: path, Op: op, Err: err})
	}
	finish := func() ItemResult {
		if len(res.Failures) > 0 {
			res.Outcome = OutcomeFailed
		} else {
			res.Outcome = OutcomeCopied
		}
		return res
	}

	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			res.Outcome = OutcomeSkipped
			if dir == DirectionExport {
				res.Reason = "source not found"
			} else {
				res.Reason = "not in working copy"
			}
			return res
		}
		fail(src, "stat", err)
		return finish()
	}

	switch it.Kind {
	case items.KindFile:
		if info.IsDir() {
			fail(src, "stat", fmt.Errorf("expected a file, found a directory"))
			return finish()
		}
		if !m.clearWrongKind(dir, dst, false, fail) {
			return finish()
		}
		if dir == DirectionImport && m.backup {
			if err := backupIfDiffers(src, dst); err != nil {
				fail(dst, "backup", err)
				return finish()
			}
		}
		m.copyOne(&res, src, dst, fail)

	case items.KindDir:
		if !info.IsDir() {
			fail(src, "stat", fmt.Errorf("expected a directory, found a file"))
			return finish()
		}
		if !m.clearWrongKind(dir, dst, true, fail) {
			return finish()
		}
		files := m.scan(src, fail)
		wanted := make(map[string]bool, len(files))
		for _, f := range files {
			wanted[f.rel] = true
			m.copyOne(&res, f.path, filepath.Join(dst, filepath.FromSlash(f.rel)), fail)
		}
		if dir == DirectionExport {
			// An incomplete scan must not delete what it failed to see.
			if len(res.Failures) > 0 {
				m.logger.Warn("not pruning archive after failures", "item", it.Name, "failures", len(res.Failures))
			} else {
				m.prune(&res, dst, wanted, fail)
			}
		}

	default:
		fail(src, "stat", fmt.Errorf("unknown item kind %q", it.Kind))
	}

	return finish()
}

// clearWrongKind handles a destination whose type does not match the item
// kind. Archive paths are owned by claudesync and get replaced; local paths
// are never removed, the item fails instead.
func (m *Materializer) clearWrongKind(dir Direction, dst string, wantDir bool, fail func(path, op string, err error)) bool {
	info, err := os.Lstat(dst)
	if err != nil || info.IsDir() == wantDir {
		return true
	}
	if dir == DirectionImport {
		fail(dst, "stat", fmt.Errorf("local path has the wrong type for this item"))
		return false
	}
	if err := os.RemoveAll(dst); err != nil {
		fail(dst, "remove", err)
		return false
	}
	return true
}

func (m *Materializer) copyOne(res *ItemResult, src, dst string, fail func(path, op string, err error)) {
	written, n, err := copyIfChanged(src, dst)
	if err != nil {
		fail(src, "copy", err)
		return
	}
	if !written {
		res.Unchanged++
		return
	}
	res.Files++
	res.Bytes += n
	m.logger.Debug("copied file", "src", src, "dst", dst, "bytes", n)
}

// prune removes files under dst that are not in wanted, then any
// directories left empty.
func (m *Materializer) prune(res *ItemResult, dst string, wanted map[string]bool, fail func(path, op string, err error)) {
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return
	}

	files, dirs, err := listTree(dst)
	if err != nil {
		fail(dst, "prune", err)
		return
	}

	for _, rel := range files {
		if wanted[rel] {
			continue
		}
		p := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.Remove(p); err != nil {
			fail(p, "prune", err)
			continue
		}
		res.Pruned++
		m.logger.Debug("pruned stale file", "path", p)
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i]) // fails while non-empty
	}
}

// backupIfDiffers copies local to local.bak when it exists and differs from
// incoming.
func backupIfDiffers(incoming, local string) error {
	if _, err := os.Stat(local); os.IsNotExist(err) {
		return nil
	}
	same, err := sameContent(incoming, local)
	if err != nil || same {
		return err
	}
	_, err = copyFile(local, local+".bak")
	return err
}
