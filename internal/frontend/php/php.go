// Package php is the PHP frontend. It walks tree-sitter-php syntax trees
// directly and resolves member candidates through the declared class
// hierarchy.
package php

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
)

// Name is the language identifier and source unit type.
const Name = "php"

var defaultFiles = frontend.FileCollector{
	Extensions: []string{".php", ".phtml", ".inc"},
}

// Frontend implements frontend.Frontend for PHP.
type Frontend struct{}

func New() *Frontend { return &Frontend{} }

func (*Frontend) Name() string { return Name }

// CollectSourceUnits returns one unit for every PHP file under root. A
// composer.json at the root names the unit and lists its dependencies.
func (*Frontend) CollectSourceUnits(root string, cfg config.Language) ([]*graph.SourceUnit, error) {
	u, err := defaultFiles.Merge(cfg).Unit(root, Name)
	if err != nil || u == nil {
		return nil, err
	}
	if err := applyComposer(u); err != nil {
		return nil, err
	}
	return []*graph.SourceUnit{u}, nil
}

func (*Frontend) NewIndexer(unit *graph.SourceUnit) frontend.Indexer {
	return newIndexer(unit)
}

type composerJSON struct {
	Name       string            `json:"name"`
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

// applyComposer reads composer.json from the unit directory, if present.
// Platform requirements (php, ext-*, lib-*) are not dependencies.
func applyComposer(u *graph.SourceUnit) error {
	data, err := os.ReadFile(filepath.Join(u.Dir, "composer.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("php: %w", err)
	}
	var c composerJSON
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("php: composer.json: %w", err)
	}
	if c.Name != "" {
		u.Name = c.Name
	}
	seen := make(map[string]bool)
	for _, req := range []map[string]string{c.Require, c.RequireDev} {
		for pkg := range req {
			if pkg == "php" || strings.HasPrefix(pkg, "ext-") || strings.HasPrefix(pkg, "lib-") || seen[pkg] {
				continue
			}
			seen[pkg] = true
			u.Dependencies = append(u.Dependencies, pkg)
		}
	}
	sort.Strings(u.Dependencies)
	return nil
}
