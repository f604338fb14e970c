package snapshot

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type entry struct {
	rel  string // slash-separated, relative to the walked root
	path string
}

// scan lists the files below root that belong in a copy: regular files and
// symlinks whose target is a regular file inside root. Git metadata, temp
// files and excluded paths are left out. Errors are reported through fail
// and do not stop the walk.
func (m *Materializer) scan(root string, fail func(path, op string, err error)) []entry {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		fail(root, "resolve", err)
		return nil
	}

	var files []entry
	_ = filepath.WalkDir(realRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			fail(p, "walk", err)
			return nil
		}
		if p == realRoot {
			return nil
		}

		rel, err := filepath.Rel(realRoot, p)
		if err != nil {
			fail(p, "walk", err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		name := d.Name()
		if name == ".git" || isTempName(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if m.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if m.excluded(rel) {
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			if !symlinkInside(realRoot, p) {
				m.logger.Debug("skipping symlink outside tree", "path", p)
				return nil
			}
		case !d.Type().IsRegular():
			return nil
		}

		files = append(files, entry{rel: rel, path: p})
		return nil
	})

	return files
}

// excluded reports whether rel, or its base name, matches an exclude pattern.
func (m *Materializer) excluded(rel string) bool {
	base := path.Base(rel)
	for _, g := range m.exclude {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

// symlinkInside reports whether the link at p resolves to a regular file
// that lies within realRoot.
func symlinkInside(realRoot, p string) bool {
	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(realRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// listTree returns every non-directory entry below root (relative, slash
// separated) and every directory, parents before children.
func listTree(root string) (files []string, dirs []string, err error) {
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			dirs = append(dirs, p)
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, dirs, err
}
