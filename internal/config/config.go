package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/xdg"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/claudesync/internal/items"
)

// DirName is the per-user directory holding the config file and working copy.
const DirName = ".claude-sync"

// DefaultExclude lists patterns skipped inside directory items unless the
// config file sets its own list.
var DefaultExclude = []string{"*.log", "*.tmp", "cache/**"}

// Config represents the persisted claudesync configuration of one machine
type Config struct {
	MachineID string       `yaml:"machine_id"`
	Remote    RemoteConfig `yaml:"remote"`
	Paths     PathsConfig  `yaml:"paths"`
	Sync      SyncConfig   `yaml:"sync"`
	Author    AuthorConfig `yaml:"author"`
	Auth      AuthConfig   `yaml:"auth"`
}

// RemoteConfig configures the backing Git remote
type RemoteConfig struct {
	URL string `yaml:"url"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	WorkingCopy string `yaml:"working_copy"`
	Home        string `yaml:"home,omitempty"`
}

// SyncConfig configures what gets synced and how it is restored
type SyncConfig struct {
	Level   items.Level `yaml:"level"`
	Exclude []string    `yaml:"exclude"`
	Backup  *bool       `yaml:"backup,omitempty"` // nil = default true
}

// AuthorConfig is the identity recorded on sync commits
type AuthorConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file,omitempty"`
	HTTPSTokenFile string `yaml:"https_token_file,omitempty"`
}

// DefaultPath returns ~/.claude-sync/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.Home, DirName, "config.yaml")
}

// Load reads, defaults and validates the configuration file. Any problem
// with the file, including its absence, is reported as a *NotConfiguredError.
func Load(path string) (*Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, &NotConfiguredError{Path: path, Err: err}
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, &NotConfiguredError{Path: path, Err: err}
	}

	cfg.expandEnv()
	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, &NotConfiguredError{Path: path, Err: fmt.Errorf("invalid configuration: %w", err)}
	}

	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &parseError{data: data, Err: err}
	}
	return &cfg, nil
}

// resolvePath expands env references and ~ in path and makes it absolute, so
// defaults derived from its directory are absolute too.
func resolvePath(path string) (string, error) {
	path = expandPath(os.ExpandEnv(path), xdg.Home)
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, fmt.Errorf("failed to resolve config path: %w", err)
	}
	return abs, nil
}

// parseError reports a config file that exists but is not valid yaml.
type parseError struct {
	data []byte
	Err  error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("failed to parse config file: %v", e.Err)
}

func (e *parseError) Unwrap() error { return e.Err }

var machineIDLine = regexp.MustCompile(`(?m)^machine_id:[ \t]*["']?([A-Za-z0-9._-]+)["']?[ \t]*$`)

// machineID salvages the machine id from a record that does not parse.
func (e *parseError) machineID() string {
	if m := machineIDLine.FindSubmatch(e.data); m != nil {
		return string(m[1])
	}
	return ""
}

// Save atomically replaces the configuration file at path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Setup validates the remote and level, keeps the machine id of an existing
// record (or generates one), persists the result and returns it. Fields of an
// existing record that setup does not manage are preserved. A record that is
// not valid yaml is copied to <path>.invalid and replaced; its machine id is
// kept when it can still be read.
func Setup(path, remoteURL string, level items.Level) (*Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	if err := ValidateRemoteURL(remoteURL); err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q (must be essential or full)", ErrInvalidLevel, level)
	}

	cfg, err := readFile(path)
	var parseErr *parseError
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		cfg = &Config{}
	case errors.As(err, &parseErr):
		// Start over from a broken record, keeping a copy and its machine id.
		if err := os.WriteFile(path+".invalid", parseErr.data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to keep invalid config: %w", err)
		}
		cfg = &Config{MachineID: parseErr.machineID()}
	default:
		return nil, err
	}

	if cfg.MachineID == "" {
		cfg.MachineID = NewMachineID()
	}
	cfg.Remote.URL = remoteURL
	cfg.Sync.Level = level
	cfg.applyDefaults(filepath.Dir(path))

	// Persist the record as written (env references intact) but validate
	// and return the expanded form.
	resolved := *cfg
	resolved.expandEnv()
	if err := resolved.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := Save(path, cfg); err != nil {
		return nil, err
	}

	return &resolved, nil
}

// NewMachineID returns a random identifier. It carries no information about
// the host or user it was generated on.
func NewMachineID() string {
	return uuid.NewString()
}

// expandEnv expands environment variables and a leading ~ in path fields
func (c *Config) expandEnv() {
	c.Remote.URL = os.ExpandEnv(c.Remote.URL)
	c.Paths.Home = expandPath(os.ExpandEnv(c.Paths.Home), xdg.Home)
	home := c.HomeDir()
	c.Paths.WorkingCopy = expandPath(os.ExpandEnv(c.Paths.WorkingCopy), home)
	c.Auth.SSHKeyFile = expandPath(os.ExpandEnv(c.Auth.SSHKeyFile), home)
	c.Auth.HTTPSTokenFile = expandPath(os.ExpandEnv(c.Auth.HTTPSTokenFile), home)
}

// applyDefaults fills in zero-value fields. configDir is the directory of the
// config file; the working copy defaults to configDir/repo.
func (c *Config) applyDefaults(configDir string) {
	if c.Paths.WorkingCopy == "" {
		c.Paths.WorkingCopy = filepath.Join(configDir, "repo")
	}
	if c.Sync.Level == "" {
		c.Sync.Level = items.LevelEssential
	}
	if c.Sync.Exclude == nil {
		c.Sync.Exclude = append([]string(nil), DefaultExclude...)
	}
	if c.Author.Name == "" {
		c.Author.Name = "claudesync"
	}
	if c.Author.Email == "" && c.MachineID != "" {
		c.Author.Email = c.MachineID + "@claudesync.local"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.MachineID == "" {
		return fmt.Errorf("machine_id is required")
	}

	if err := ValidateRemoteURL(c.Remote.URL); err != nil {
		return err
	}

	if !c.Sync.Level.Valid() {
		return fmt.Errorf("%w: %q (must be essential or full)", ErrInvalidLevel, c.Sync.Level)
	}

	if c.Paths.WorkingCopy == "" {
		return fmt.Errorf("paths.working_copy is required")
	}
	if !filepath.IsAbs(c.Paths.WorkingCopy) {
		return fmt.Errorf("paths.working_copy must be an absolute path: %s", c.Paths.WorkingCopy)
	}
	if c.Paths.Home != "" && !filepath.IsAbs(c.Paths.Home) {
		return fmt.Errorf("paths.home must be an absolute path: %s", c.Paths.Home)
	}

	for _, pattern := range c.Sync.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("invalid sync.exclude pattern %q: %w", pattern, err)
		}
	}

	// Only one auth method may be configured, and it must match the URL scheme
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("auth.ssh_key_file is set but remote.url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Auth.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return fmt.Errorf("auth.https_token_file is set but remote.url does not use HTTPS scheme")
	}

	return nil
}

// HomeDir returns the directory item source paths are resolved against
func (c *Config) HomeDir() string {
	if c.Paths.Home != "" {
		return c.Paths.Home
	}
	return xdg.Home
}

// BackupEnabled reports whether import keeps .bak copies of replaced files
func (c *Config) BackupEnabled() bool {
	return c.Sync.Backup == nil || *c.Sync.Backup
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the remote URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Remote.URL, "https://")
}

// IsSSH returns true if the remote URL uses SSH
func (c *Config) IsSSH() bool {
	return scpLike.MatchString(c.Remote.URL) || strings.HasPrefix(c.Remote.URL, "ssh://")
}

var (
	scpLike       = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s]+$`)
	remoteSchemes = map[string]bool{"https": true, "http": true, "ssh": true, "git": true, "file": true}
)

// ValidateRemoteURL checks that raw is a remote locator git understands:
// a URL with a supported scheme, an scp-like user@host:path, or an
// absolute local path.
func ValidateRemoteURL(raw string) error {
	if raw == "" {
		return &InvalidRemoteError{URL: raw, Reason: "remote url is required"}
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return &InvalidRemoteError{URL: raw, Reason: "remote url must not contain whitespace"}
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return &InvalidRemoteError{URL: raw, Reason: err.Error()}
		}
		if !remoteSchemes[u.Scheme] {
			return &InvalidRemoteError{URL: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
		}
		if u.Scheme != "file" && u.Host == "" {
			return &InvalidRemoteError{URL: raw, Reason: "missing host"}
		}
		if strings.Trim(u.Path, "/") == "" {
			return &InvalidRemoteError{URL: raw, Reason: "missing repository path"}
		}
		return nil
	}

	if scpLike.MatchString(raw) {
		return nil
	}

	if filepath.IsAbs(raw) {
		return nil
	}

	return &InvalidRemoteError{URL: raw, Reason: "not a URL, user@host:path or absolute path"}
}

// expandPath replaces a leading ~ with home
func expandPath(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
