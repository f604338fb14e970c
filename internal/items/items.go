// Package items declares the files and directories claudesync keeps in sync and
// resolves them for a given sync level.
package items

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Level selects how much is synchronized. Levels are ordered: every item
// included at a lower level is also included at every higher one.
type Level string

const (
	LevelEssential Level = "essential"
	LevelFull      Level = "full"
)

// Levels lists the valid levels from narrowest to widest.
var Levels = []Level{LevelEssential, LevelFull}

// ParseLevel converts s into a Level
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l.rank() < 0 {
		return "", fmt.Errorf("invalid sync level %q (must be essential or full)", s)
	}
	return l, nil
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l.rank() >= 0
}

// Includes reports whether an item requiring level req is synced at level l.
func (l Level) Includes(req Level) bool {
	r := req.rank()
	return r >= 0 && r <= l.rank()
}

func (l Level) rank() int {
	for i, known := range Levels {
		if l == known {
			return i
		}
	}
	return -1
}

// Kind distinguishes single files from directory trees
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Item describes one syncable unit.
type Item struct {
	// Name is a short stable identifier used in reports and manifests.
	Name string
	// SourcePath is the location on this machine. In a Catalog it is relative
	// to the home directory; after Bind it is absolute.
	SourcePath string
	// ArchivePath is the slash-separated path inside the working copy.
	ArchivePath string
	// RequiredLevel is the lowest level that includes this item.
	RequiredLevel Level
	Kind          Kind
}

// ArchiveDest returns the absolute location of the item inside workingCopy.
func (it Item) ArchiveDest(workingCopy string) string {
	return filepath.Join(workingCopy, filepath.FromSlash(it.ArchivePath))
}

// Catalog is an ordered list of item declarations
type Catalog []Item

// Default is the built-in catalog of Claude files, in declaration order.
var Default = Catalog{
	{Name: "claude-config", SourcePath: ".claude.json", ArchivePath: "home/claude.json", RequiredLevel: LevelEssential, Kind: KindFile},
	{Name: "settings", SourcePath: ".claude/settings.json", ArchivePath: "claude/settings.json", RequiredLevel: LevelEssential, Kind: KindFile},
	{Name: "settings-local", SourcePath: ".claude/settings.local.json", ArchivePath: "claude/settings.local.json", RequiredLevel: LevelEssential, Kind: KindFile},
	{Name: "context", SourcePath: ".claude/CLAUDE.md", ArchivePath: "claude/CLAUDE.md", RequiredLevel: LevelEssential, Kind: KindFile},
	{Name: "projects", SourcePath: ".claude/projects", ArchivePath: "claude/projects", RequiredLevel: LevelEssential, Kind: KindDir},
	{Name: "todos", SourcePath: ".claude/todos", ArchivePath: "claude/todos", RequiredLevel: LevelEssential, Kind: KindDir},
	{Name: "shell-snapshots", SourcePath: ".claude/shell-snapshots", ArchivePath: "claude/shell-snapshots", RequiredLevel: LevelFull, Kind: KindDir},
	{Name: "commands", SourcePath: ".claude/commands", ArchivePath: "claude/commands", RequiredLevel: LevelFull, Kind: KindDir},
	{Name: "slash-commands", SourcePath: ".claude-code/slash-commands", ArchivePath: "claude-code/slash-commands", RequiredLevel: LevelFull, Kind: KindDir},
}

// Resolve returns the items included at level, preserving declaration order.
// Sources are not checked for existence.
func (c Catalog) Resolve(level Level) []Item {
	var out []Item
	for _, it := range c {
		if level.Includes(it.RequiredLevel) {
			out = append(out, it)
		}
	}
	return out
}

// Bind returns a copy of the catalog with relative source paths joined onto home.
func (c Catalog) Bind(home string) Catalog {
	out := make(Catalog, len(c))
	for i, it := range c {
		if !filepath.IsAbs(it.SourcePath) {
			it.SourcePath = filepath.Join(home, filepath.FromSlash(it.SourcePath))
		}
		out[i] = it
	}
	return out
}

// Validate checks the catalog for duplicate names and overlapping archive paths.
func (c Catalog) Validate() error {
	names := make(map[string]bool, len(c))
	for i, it := range c {
		if it.Name == "" {
			return fmt.Errorf("item %d: name is required", i)
		}
		if names[it.Name] {
			return fmt.Errorf("item %q: duplicate name", it.Name)
		}
		names[it.Name] = true

		if !it.RequiredLevel.Valid() {
			return fmt.Errorf("item %q: invalid level %q", it.Name, it.RequiredLevel)
		}
		if it.Kind != KindFile && it.Kind != KindDir {
			return fmt.Errorf("item %q: invalid kind %q", it.Name, it.Kind)
		}
		if err := validateArchivePath(it.ArchivePath); err != nil {
			return fmt.Errorf("item %q: %w", it.Name, err)
		}
		for _, other := range c[:i] {
			if nested(it.ArchivePath, other.ArchivePath) {
				return fmt.Errorf("item %q: archive path %q overlaps item %q", it.Name, it.ArchivePath, other.Name)
			}
		}
	}
	return nil
}

// ReservedPrefix is owned by claudesync itself and may not hold items.
const ReservedPrefix = "machines"

func validateArchivePath(p string) error {
	if p == "" {
		return fmt.Errorf("archive path is required")
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean != p || strings.HasPrefix(p, "/") || p == "." || strings.HasPrefix(p, "../") || p == ".." {
		return fmt.Errorf("archive path %q must be a clean relative path", p)
	}
	first := strings.SplitN(p, "/", 2)[0]
	if first == ".git" || first == ReservedPrefix {
		return fmt.Errorf("archive path %q uses reserved directory %q", p, first)
	}
	return nil
}

func nested(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
