package frontend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
)

// skippedDirs are never descended into unless an include pattern names them.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// FileCollector finds the files of one language under a root. Include and
// Exclude use gitignore syntax against root-relative slash paths. Seeing any
// file with a Blocker extension voids the whole match set, so closely
// related languages sharing extensions are not indexed twice.
type FileCollector struct {
	Extensions []string
	Include    []string
	Exclude    []string
	Blockers   []string
}

// Merge applies configuration overrides. Non-empty lists in cfg replace
// extensions and extend the rest.
func (fc FileCollector) Merge(cfg config.Language) FileCollector {
	out := FileCollector{
		Extensions: append([]string(nil), fc.Extensions...),
		Include:    append(append([]string(nil), fc.Include...), cfg.Include...),
		Exclude:    append(append([]string(nil), fc.Exclude...), cfg.Exclude...),
		Blockers:   append(append([]string(nil), fc.Blockers...), cfg.Blockers...),
	}
	if len(cfg.Extensions) > 0 {
		out.Extensions = append([]string(nil), cfg.Extensions...)
	}
	return out
}

// Collect returns the matching files under root as sorted root-relative
// slash paths. It returns nil when a blocker was seen.
func (fc FileCollector) Collect(root string) ([]string, error) {
	exts := extSet(fc.Extensions)
	blockers := extSet(fc.Blockers)

	var include, exclude, gitignore *ignore.GitIgnore
	if len(fc.Include) > 0 {
		include = ignore.CompileIgnoreLines(fc.Include...)
	}
	if len(fc.Exclude) > 0 {
		exclude = ignore.CompileIgnoreLines(fc.Exclude...)
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err == nil {
		gitignore = gi
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("frontend: read .gitignore: %w", err)
	}

	var files []string
	blocked := false
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			included := include != nil && (include.MatchesPath(rel) || include.MatchesPath(rel+"/"))
			if (strings.HasPrefix(name, ".") || skippedDirs[name]) && !included {
				return filepath.SkipDir
			}
			if exclude != nil && (exclude.MatchesPath(rel) || exclude.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			if gitignore != nil && gitignore.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if blockers[ext] {
			blocked = true
			return filepath.SkipAll
		}
		if !exts[ext] {
			return nil
		}
		if exclude != nil && exclude.MatchesPath(rel) {
			return nil
		}
		if gitignore != nil && gitignore.MatchesPath(rel) {
			return nil
		}
		if include != nil && !include.MatchesPath(rel) && !underIncludedDir(include, rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("frontend: walk %s: %w", root, err)
	}
	if blocked {
		return nil, nil
	}
	sort.Strings(files)
	return files, nil
}

// underIncludedDir reports whether an ancestor directory of rel matches.
func underIncludedDir(include *ignore.GitIgnore, rel string) bool {
	for dir := filepath.ToSlash(filepath.Dir(rel)); dir != "." && dir != "/"; dir = filepath.ToSlash(filepath.Dir(dir)) {
		if include.MatchesPath(dir + "/") {
			return true
		}
	}
	return false
}

// Unit collects files under root into one source unit of type lang, named
// after the root directory. It returns nil when there are no files.
func (fc FileCollector) Unit(root, lang string) (*graph.SourceUnit, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("frontend: %s is not a directory", abs)
	}
	files, err := fc.Collect(abs)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return &graph.SourceUnit{
		Name:  filepath.Base(abs),
		Type:  lang,
		Dir:   abs,
		Files: files,
	}, nil
}

func extSet(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = true
	}
	return out
}

// IsTestFile reports whether a unit-relative path looks like test code.
func IsTestFile(file string) bool {
	for _, part := range strings.Split(strings.ToLower(path.Dir(file)), "/") {
		if part == "test" || part == "tests" {
			return true
		}
	}
	base := path.Base(file)
	stem := strings.TrimSuffix(base, path.Ext(base))
	lower := strings.ToLower(stem)
	return lower == "test" || strings.HasPrefix(lower, "test_") ||
		strings.HasSuffix(lower, "_test") || strings.HasSuffix(stem, "Test")
}
