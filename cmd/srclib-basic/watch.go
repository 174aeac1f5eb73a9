package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
)

var flagDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a directory and reindex it whenever files change",
	Long:  "Runs index once, then watches the directory tree and reindexes changed units after writes settle. Stops on interrupt.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 300*time.Millisecond, "quiet period before reindexing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDir(targetDir)
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(findRepoRoot(targetDir), cfg)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	engine, err := newEngine(cmd, cfg, dbPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := watchTree(w, targetDir); err != nil {
		return err
	}

	reindex := func(ctx context.Context) error {
		start := time.Now()
		report, err := engine.Index(ctx, targetDir, false)
		if err != nil {
			return err
		}
		printIndexSummary(cmd.ErrOrStderr(), report, time.Since(start), dbPath)
		return nil
	}
	return watchLoop(cmd.Context(), w, targetDir, flagDebounce, reindex, cmd.ErrOrStderr())
}

// watchLoop runs reindex once, then again each time events under root have
// been quiet for debounce. It returns nil when ctx is cancelled.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, root string, debounce time.Duration, reindex func(context.Context) error, stderr io.Writer) error {
	if err := reindex(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("indexing: %w", err)
	}
	fmt.Fprintf(stderr, "Watching %s\n", root)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignoredPath(root, ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(w, ev.Name); err != nil {
						fmt.Fprintf(stderr, "Warning: %s\n", err)
					}
				}
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(stderr, "Warning: watch: %s\n", err)
		case <-timer.C:
			if err := reindex(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Keep watching; the next change may fix the tree.
				fmt.Fprintf(stderr, "Error: indexing: %s\n", err)
			}
		}
	}
}

// watchTree adds dir and every directory below it that is not ignored.
func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// skipDir reports directories the watcher never descends into. Hidden
// directories include .git and the default database directory.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}

// ignoredPath reports whether an event path lies in a skipped directory
// below root.
func ignoredPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts[:len(parts)-1] {
		if skipDir(p) {
			return true
		}
	}
	base := parts[len(parts)-1]
	// SQLite files and their journals.
	return strings.HasSuffix(base, ".db") || strings.HasSuffix(base, "-wal") || strings.HasSuffix(base, "-shm") || strings.HasSuffix(base, "-journal")
}
