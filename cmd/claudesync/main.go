package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/schaermu/claudesync/internal/config"
	"github.com/schaermu/claudesync/internal/git"
	"github.com/schaermu/claudesync/internal/hooks"
	"github.com/schaermu/claudesync/internal/items"
	"github.com/schaermu/claudesync/internal/output"
	"github.com/schaermu/claudesync/internal/snapshot"
	"github.com/schaermu/claudesync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// setup flags
	setupRemote   string
	setupLevel    string
	setupNoVerify bool

	// reset flags
	resetYes bool

	// hooks flags
	hooksDir   string
	hooksForce bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if hint := guidance(err); hint != "" {
			output.Info("hint: %s", hint)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "claudesync",
	Short: "Synchronize Claude configuration and session history through Git",
	Long: `claudesync copies Claude configuration files, session logs and task lists
into a Git working copy and pushes them to a remote, so the same context can
be restored on another machine with pull.

Conflicting edits of the same file on two machines surface as Git merge
conflicts in the working copy; nothing is merged automatically.`,
	SilenceUsage: true,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure the remote and sync level for this machine",
	Long: `Setup records the Git remote and sync level in the configuration file,
generating a machine id on first run. Rerunning setup keeps the machine id and
any other settings already in the file.

The remote is checked with git ls-remote unless --no-verify is given.`,
	RunE: runSetup,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Export local files into the working copy, commit and push",
	RunE:  runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the remote and restore files locally",
	Long: `Pull merges the remote into the working copy and copies the synced items
back to their local locations, overwriting local files. Local files that do
not exist in the working copy are kept.`,
	RunE: runPull,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull, then push",
	Long:  `Sync runs pull followed by push. When the pull fails nothing is pushed.`,
	RunE:  runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, last sync and item presence",
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard working copy changes and match the remote",
	Long: `Reset aborts any merge in progress, hard-resets the working copy to the
remote branch and removes untracked files. Local item files are not touched;
run pull afterwards to restore them from the remote state.`,
	RunE: runReset,
}

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Install session hooks that pull on start and push on end",
	RunE:  runHooks,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("claudesync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.claude-sync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	setupCmd.Flags().StringVar(&setupRemote, "remote", "", "Git remote URL (https, ssh, scp-like or local path)")
	setupCmd.Flags().StringVar(&setupLevel, "level", string(items.LevelEssential), "sync level (essential, full)")
	setupCmd.Flags().BoolVar(&setupNoVerify, "no-verify", false, "skip the remote reachability check")
	_ = setupCmd.MarkFlagRequired("remote")

	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm discarding working copy changes")

	hooksCmd.Flags().StringVar(&hooksDir, "dir", "", "hooks directory (default is $HOME/.claude-code/hooks)")
	hooksCmd.Flags().BoolVar(&hooksForce, "force", false, "replace hook scripts not installed by claudesync")

	// Add commands
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(hooksCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	path := configPath()

	if err := config.ValidateRemoteURL(setupRemote); err != nil {
		return err
	}
	level, err := items.ParseLevel(setupLevel)
	if err != nil {
		return fmt.Errorf("%w: %q (must be essential or full)", config.ErrInvalidLevel, setupLevel)
	}

	if !setupNoVerify {
		// Credentials from an earlier setup apply to the probe.
		var auth config.AuthConfig
		if existing, err := config.Load(path); err == nil {
			auth = existing.Auth
		}
		client := git.NewShellClient(auth.SSHKeyFile, auth.HTTPSTokenFile, git.Identity{}, logger)
		logger.Info("checking remote", "url", setupRemote)
		if err := client.Probe(ctx, setupRemote); err != nil {
			return &config.InvalidRemoteError{URL: setupRemote, Reason: "remote is not reachable", Err: err}
		}
	}

	cfg, err := config.Setup(path, setupRemote, level)
	if err != nil {
		return err
	}

	output.Success("claudesync configured")
	output.Info("  config:       %s", path)
	output.Info("  machine:      %s", cfg.MachineID)
	output.Info("  remote:       %s", cfg.Remote.URL)
	output.Info("  level:        %s", cfg.Sync.Level)
	output.Info("  working copy: %s", cfg.Paths.WorkingCopy)
	output.Info("")
	output.Info("Run 'claudesync push' to publish this machine's files, or 'claudesync pull' to restore them from the remote.")
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	engine, err := newEngine()
	if err != nil {
		return err
	}

	report, err := engine.Push(ctx)
	output.Report(report)
	if err != nil {
		return err
	}
	output.Success("push complete")
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	engine, err := newEngine()
	if err != nil {
		return err
	}

	report, err := engine.Pull(ctx)
	output.Report(report)
	if err != nil {
		return err
	}
	output.Success("pull complete")
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	engine, err := newEngine()
	if err != nil {
		return err
	}

	result, err := engine.Sync(ctx)
	if result != nil {
		output.Report(result.Pull)
		output.Report(result.Push)
	}
	if err != nil {
		return err
	}
	output.Success("sync complete")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if errors.Is(err, config.ErrNotConfigured) {
		output.Warning("claudesync is not configured (%s)", configPath())
		output.Info("hint: %s", guidance(err))
		return nil
	}
	if err != nil {
		return err
	}

	// status reports problems but always exits 0
	engine, err := sync.NewEngine(cfg, newGitClient(cfg, logger), logger)
	if err != nil {
		output.Warning("%v", err)
		return nil
	}
	st, err := engine.Status(ctx)
	if err != nil {
		output.Warning("%v", err)
		return nil
	}
	output.Status(st)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return fmt.Errorf("reset discards uncommitted and unpushed working copy changes; rerun with --yes to confirm")
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	engine, err := newEngine()
	if err != nil {
		return err
	}
	if err := engine.Reset(ctx); err != nil {
		return err
	}
	output.Success("working copy reset to the remote state")
	output.Info("Run 'claudesync pull' to restore local files from it.")
	return nil
}

func runHooks(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	dir := hooksDir
	if dir == "" {
		home := xdg.Home
		if cfg, err := config.Load(configPath()); err == nil {
			home = cfg.HomeDir()
		}
		dir = hooks.DefaultDir(home)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate claudesync binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	cfgArg := cfgFile
	if cfgArg != "" {
		if abs, err := filepath.Abs(cfgArg); err == nil {
			cfgArg = abs
		}
	}

	paths, err := hooks.Install(hooks.Options{
		Dir:        dir,
		Executable: exe,
		ConfigPath: cfgArg,
		Force:      hooksForce,
	})
	if err != nil {
		return err
	}

	for _, p := range paths {
		logger.Info("installed hook", "path", p)
	}
	output.Success("hooks installed in %s", dir)
	output.Info("Sessions will pull on start and push on end.")
	return nil
}

func newEngine() (*sync.Engine, error) {
	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}
	return sync.NewEngine(cfg, newGitClient(cfg, logger), logger)
}

func newGitClient(cfg *config.Config, logger *slog.Logger) *git.ShellClient {
	return git.NewShellClient(
		cfg.Auth.SSHKeyFile,
		cfg.Auth.HTTPSTokenFile,
		git.Identity{Name: cfg.Author.Name, Email: cfg.Author.Email},
		logger,
	)
}

// guidance returns a suggested next step for err, or "" when there is none.
func guidance(err error) string {
	var (
		conflict *git.MergeConflictError
		mismatch *git.RemoteMismatchError
		invalid  *config.InvalidRemoteError
		partial  *snapshot.PartialCopyError
	)

	switch {
	case errors.Is(err, config.ErrNotConfigured):
		return "run 'claudesync setup --remote <url>' first"
	case errors.Is(err, git.ErrRemoteRejected):
		return "the remote has changes this machine has not pulled yet; run 'claudesync pull' (or 'claudesync sync') and push again"
	case errors.As(err, &conflict):
		return "resolve the conflicting files in the working copy and commit them with git, then run 'claudesync push'; 'claudesync reset --yes' discards the local side instead"
	case errors.As(err, &mismatch):
		return fmt.Sprintf("%s is a clone of %s; move it away or point paths.working_copy elsewhere", mismatch.Dir, mismatch.Got)
	case errors.As(err, &invalid):
		return "check the remote URL and credentials; --no-verify skips the reachability check"
	case errors.Is(err, git.ErrRemoteUnavailable):
		return "the remote could not be reached; check the network, the URL and your credentials"
	case errors.Is(err, config.ErrInvalidLevel):
		return "valid levels are essential and full"
	case errors.As(err, &partial):
		return "the listed files could not be copied; the rest of the sync completed"
	}
	return ""
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format. Logs go to stderr, results to stdout.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	path := configPath()
	logger.Debug("loading configuration", "path", path)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"machine_id", cfg.MachineID,
		"remote", cfg.Remote.URL,
		"working_copy", cfg.Paths.WorkingCopy,
		"level", cfg.Sync.Level)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
