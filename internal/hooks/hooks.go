// Package hooks installs session hook scripts that run claudesync
// automatically when a Claude session starts and ends.
package hooks

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// marker identifies scripts written by this package
const marker = "# managed by claudesync"

// Hook is one script in the hooks directory.
type Hook struct {
	File    string
	Comment string
	Command string // claudesync subcommand
}

// Default pulls when a session starts and pushes when it ends.
var Default = []Hook{
	{File: "session-start.sh", Comment: "pull remote changes when a session starts", Command: "pull"},
	{File: "session-end.sh", Comment: "push local changes when a session ends", Command: "push"},
}

// DefaultDir returns the hooks directory below home.
func DefaultDir(home string) string {
	return filepath.Join(home, ".claude-code", "hooks")
}

// Options configures Install
type Options struct {
	Dir        string
	Executable string // absolute path of the claudesync binary
	ConfigPath string // passed as --config when set
	// Force replaces hook files that were not written by claudesync.
	Force bool
}

// Install writes the default hooks into opts.Dir and returns the paths
// written. Existing scripts not managed by claudesync are left alone unless
// Force is set.
func Install(opts Options) ([]string, error) {
	if opts.Executable == "" {
		return nil, fmt.Errorf("executable path is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create hooks directory: %w", err)
	}

	var written []string
	for _, h := range Default {
		path := filepath.Join(opts.Dir, h.File)
		if !opts.Force {
			if err := checkOwned(path); err != nil {
				return written, err
			}
		}
		if err := writeScript(path, Script(h, opts.Executable, opts.ConfigPath)); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", h.File, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// Script renders the shell script for h.
func Script(h Hook, executable, configPath string) []byte {
	var b bytes.Buffer
	b.WriteString("#!/bin/sh\n")
	b.WriteString(marker + "\n")
	fmt.Fprintf(&b, "# %s\n", h.Comment)
	b.WriteString("cd \"$HOME\" || exit 0\n")

	args := []string{shellQuote(executable)}
	if configPath != "" {
		args = append(args, "--config", shellQuote(configPath))
	}
	args = append(args, h.Command)
	fmt.Fprintf(&b, "exec %s\n", strings.Join(args, " "))
	return b.Bytes()
}

// checkOwned returns an error when path exists and was not written by
// claudesync.
func checkOwned(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !bytes.Contains(data, []byte(marker)) {
		return fmt.Errorf("%s exists and was not installed by claudesync (use --force to replace it)", path)
	}
	return nil
}

func writeScript(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hook-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o755); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
