package store

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
)

// ComputeUnitHash computes a deterministic hash of a unit's identity and
// file contents. Files are read from fsys, or from unit.Dir when fsys is
// nil. Missing files hash as absent rather than failing, so a unit whose
// file disappeared still gets a new hash.
func ComputeUnitHash(unit *graph.SourceUnit, fsys fs.FS) (string, error) {
	if fsys == nil {
		fsys = os.DirFS(unit.Dir)
	}
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", unit.Name)
	fmt.Fprintf(h, "type:%s\n", unit.Type)

	// Sorted for determinism.
	files := make([]string, len(unit.Files))
	copy(files, unit.Files)
	sort.Strings(files)
	for _, name := range files {
		f, err := fsys.Open(name)
		if err != nil {
			fmt.Fprintf(h, "file:%s:absent\n", name)
			continue
		}
		fmt.Fprintf(h, "file:%s\n", name)
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", name, err)
		}
		fmt.Fprintln(h)
	}

	deps := make([]string, len(unit.Dependencies))
	copy(deps, unit.Dependencies)
	sort.Strings(deps)
	for _, d := range deps {
		fmt.Fprintf(h, "dep:%s\n", d)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
