package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	basic "github.com/alexsaveliev/srclib-basic-sub000"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
)

var (
	flagDB       string
	flagFormat   string
	flagLogLevel string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "srclib-basic",
	Short:         "Language-agnostic source indexing toolchain",
	Long:          "srclib-basic discovers source units, graphs their definitions and references with tree-sitter, and stores the graphs in SQLite for queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		_, err := parseLevel(flagLogLevel)
		return err
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .srclib-basic/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (default from config, then info)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(depresolveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(queryCmd)
}

var (
	flagForce      bool
	flagLanguages  string
	flagScriptsDir string
)

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. php,c)")
	cmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded")
}

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Print the source units found under a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Graph one source unit read as JSON from stdin",
	Long:  "Reads a source unit (as printed by scan) from stdin and writes its definitions and references as JSON. With --db the graph is also stored.",
	Args:  cobra.NoArgs,
	RunE:  runGraph,
}

var depresolveCmd = &cobra.Command{
	Use:   "depresolve",
	Short: "Resolve unit dependencies (no-op, prints [])",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Drain the unit so callers piping into us don't see EPIPE.
		_, _ = io.Copy(io.Discard, cmd.InOrStdin())
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "[]")
		return err
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory into the SQLite database",
	Long:  "Scans a directory for source units, graphs every unit whose files changed since the last run, and writes the graphs to the SQLite database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	addEngineFlags(scanCmd)
	addEngineFlags(graphCmd)
	addEngineFlags(indexCmd)
	addEngineFlags(watchCmd)
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
}

func runScan(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDir(targetDir)
	if err != nil {
		return err
	}
	engine, err := newEngine(cmd, cfg, "")
	if err != nil {
		return err
	}
	defer engine.Close()

	units, err := engine.Scan(targetDir)
	if err != nil {
		return err
	}
	if units == nil {
		units = []*basic.SourceUnit{}
	}
	if flagFormat == "text" {
		formatUnitsText(cmd.OutOrStdout(), units)
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), units)
}

func runGraph(cmd *cobra.Command, args []string) error {
	var unit basic.SourceUnit
	if err := json.NewDecoder(cmd.InOrStdin()).Decode(&unit); err != nil {
		return fmt.Errorf("decoding source unit: %w", err)
	}
	if unit.Dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting cwd: %w", err)
		}
		unit.Dir = cwd
	}

	cfg, err := config.LoadDir(unit.Dir)
	if err != nil {
		return err
	}
	dbPath := ""
	if flagDB != "" {
		dbPath = resolveDBPath(findRepoRoot(unit.Dir), cfg)
	}
	engine, err := newEngine(cmd, cfg, dbPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Graph(cmd.Context(), &unit)
	if err != nil {
		return fmt.Errorf("graphing %s: %w", unit.Name, err)
	}
	if dbPath != "" {
		if err := engine.Save(&unit, res.Output); err != nil {
			return err
		}
	}
	return writeJSON(cmd.OutOrStdout(), res.Output)
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDir(targetDir)
	if err != nil {
		return err
	}

	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot, cfg)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	// Handle --force: delete the DB file entirely.
	if flagForce {
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database for --force: %w", err)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleared database: %s\n", dbPath)
	}

	engine, err := newEngine(cmd, cfg, dbPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Index(cmd.Context(), targetDir, flagForce)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	printIndexSummary(cmd.ErrOrStderr(), report, time.Since(start), dbPath)
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d unit(s) failed", n)
	}
	return nil
}

func printIndexSummary(w io.Writer, report *basic.IndexReport, total time.Duration, dbPath string) {
	var indexed, skipped int
	for _, u := range report.Units {
		switch {
		case u.Err != nil:
			fmt.Fprintf(w, "Failed %s (%s): %s\n", u.Unit.Name, u.Unit.Type, u.Err)
		case u.Skipped:
			skipped++
		default:
			indexed++
		}
	}
	fmt.Fprintf(w, "Indexed %s in %s (units: %d indexed, %d unchanged, %d removed)\n",
		report.Root, total.Round(time.Millisecond), indexed, skipped, len(report.Removed))
	fmt.Fprintf(w, "Database: %s\n", dbPath)
}

// newEngine builds an Engine from the shared flags and cfg. dbPath may be
// empty for commands that do not persist.
func newEngine(cmd *cobra.Command, cfg *config.Config, dbPath string) (*basic.Engine, error) {
	level := flagLogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger, err := newLogger(cmd.ErrOrStderr(), level)
	if err != nil {
		return nil, err
	}

	opts := []basic.Option{basic.WithConfig(cfg), basic.WithLogger(logger)}
	if dbPath != "" {
		opts = append(opts, basic.WithStore(dbPath))
	}
	if cfg.Parallelism > 0 {
		opts = append(opts, basic.WithParallelism(cfg.Parallelism))
	}
	if flagLanguages != "" {
		langs := strings.Split(flagLanguages, ",")
		for i := range langs {
			langs[i] = strings.TrimSpace(langs[i])
		}
		opts = append(opts, basic.WithLanguages(langs...))
	}
	// Script source: --scripts-dir overrides embedded FS.
	if flagScriptsDir != "" {
		opts = append(opts, basic.WithScriptsDir(flagScriptsDir))
	}

	engine, err := basic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// newLogger returns a text slog logger writing to w.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// parseLevel maps a level name to a slog.Level. Empty means info.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", level)
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag, the config
// file (or SRCLIB_BASIC_DB), or the default. Relative paths are taken
// from repoRoot.
func resolveDBPath(repoRoot string, cfg *config.Config) string {
	p := flagDB
	if p == "" && cfg != nil {
		p = cfg.DB
	}
	if p == "" {
		return filepath.Join(repoRoot, ".srclib-basic", "index.db")
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
