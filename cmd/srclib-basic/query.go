package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	basic "github.com/alexsaveliev/srclib-basic-sub000"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/store"
)

var (
	flagLang string
	flagName string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the index",
	Long:  "Run queries against an indexed tree. Lines and columns are 1-based; offsets are byte offsets.",
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List indexed units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "units", func(q *basic.QueryBuilder) (any, error) {
			units, err := q.Units()
			if err != nil {
				return nil, err
			}
			out := make([]CLIUnit, 0, len(units))
			for _, u := range units {
				out = append(out, unitToCLI(u))
			}
			return out, nil
		})
	},
}

var defsCmd = &cobra.Command{
	Use:   "defs [unit]",
	Short: "List the definitions of a unit, or every definition named --name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "defs", func(q *basic.QueryBuilder) (any, error) {
			var defs []*basic.Def
			var err error
			switch {
			case flagName != "":
				defs, err = q.DefsNamed(flagName)
			case len(args) == 1:
				var lang string
				if lang, err = unitLang(q, args[0]); err == nil {
					defs, err = q.Defs(args[0], lang)
				}
			default:
				err = fmt.Errorf("requires a <unit> argument or --name")
			}
			if err != nil {
				return nil, err
			}
			return defsToCLI(q, defs), nil
		})
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs <unit> <def-path>",
	Short: "List the references to a definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "refs", func(q *basic.QueryBuilder) (any, error) {
			lang, err := unitLang(q, args[0])
			if err != nil {
				return nil, err
			}
			refs, err := q.ReferencesTo(args[0], lang, args[1])
			if err != nil {
				return nil, err
			}
			out := make([]CLIRef, 0, len(refs))
			for _, r := range refs {
				out = append(out, refToCLI(r))
			}
			return out, nil
		})
	},
}

var defAtCmd = &cobra.Command{
	Use:   "def-at <file> (<offset> | <line> <col>)",
	Short: "Find the definitions referenced at a position",
	Long:  "The file is relative to the indexed root. A single number is a byte offset; two numbers are a 1-based line and column.",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, "def-at", func(q *basic.QueryBuilder) (any, error) {
			names := []string{"offset"}
			if len(args) == 3 {
				names = []string{"line", "col"}
			}
			nums := make([]int, 0, 2)
			for i, a := range args[1:] {
				n, err := parseIntArg(a, names[i])
				if err != nil {
					return nil, err
				}
				nums = append(nums, n)
			}
			var defs []*basic.Def
			var err error
			if len(nums) == 1 {
				defs, err = q.DefinitionAt(args[0], uint32(nums[0]))
			} else {
				defs, err = q.DefinitionAtPosition(args[0], nums[0], nums[1])
			}
			if err != nil {
				return nil, err
			}
			return defsToCLI(q, defs), nil
		})
	},
}

func init() {
	queryCmd.PersistentFlags().StringVar(&flagLang, "lang", "", "unit language, required when two units share a name")
	defsCmd.Flags().StringVar(&flagName, "name", "", "list definitions with this simple name across units")

	queryCmd.AddCommand(unitsCmd)
	queryCmd.AddCommand(defsCmd)
	queryCmd.AddCommand(refsCmd)
	queryCmd.AddCommand(defAtCmd)
}

// --- Helpers ---

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	cfg, err := config.LoadDir(repoRoot)
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(repoRoot, cfg)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'srclib-basic index' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// runQuery opens the store, runs fn and writes its result or error in the
// selected format.
func runQuery(cmd *cobra.Command, command string, fn func(q *basic.QueryBuilder) (any, error)) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd.OutOrStdout(), command, err)
	}
	defer s.Close()

	res, err := fn(basic.NewQueryBuilder(s))
	if err != nil {
		return outputError(cmd.OutOrStdout(), command, err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: command, Results: res})
}

// unitLang returns --lang, or the type of the only stored unit named name.
func unitLang(q *basic.QueryBuilder, name string) (string, error) {
	if flagLang != "" {
		return flagLang, nil
	}
	units, err := q.Units()
	if err != nil {
		return "", err
	}
	var found []string
	for _, u := range units {
		if u.Name == name {
			found = append(found, u.Type)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("unit %q not found", name)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("unit %q exists for %v: pass --lang", name, found)
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// outputResult marshals a CLIResult to w in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	return writeJSON(w, result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to w as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(w io.Writer, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func unitToCLI(u *basic.Unit) CLIUnit {
	c := CLIUnit{
		ID:           u.ID,
		Name:         u.Name,
		Type:         u.Type,
		Dir:          filepath.ToSlash(u.Dir),
		FileCount:    len(u.Files),
		Dependencies: u.Dependencies,
	}
	if !u.IndexedAt.IsZero() {
		c.IndexedAt = u.IndexedAt.UTC().Format(time.RFC3339)
	}
	return c
}

// defsToCLI converts defs, adding line and column where the file is
// readable.
func defsToCLI(q *basic.QueryBuilder, defs []*basic.Def) []CLIDef {
	out := make([]CLIDef, 0, len(defs))
	for _, d := range defs {
		c := CLIDef{
			Unit:     d.Unit,
			Key:      d.Key,
			Path:     d.Path,
			Name:     d.Name,
			Kind:     d.Kind,
			File:     d.File,
			Start:    d.DefStart,
			End:      d.DefEnd,
			Exported: d.Exported,
			Local:    d.Local,
			Test:     d.Test,
		}
		if loc, err := q.Location(d); err == nil {
			c.Line, c.Col = loc.StartLine, loc.StartCol
		}
		out = append(out, c)
	}
	return out
}

func refToCLI(r *basic.Ref) CLIRef {
	return CLIRef{
		Unit:    r.Unit,
		DefUnit: r.DefUnit,
		DefKey:  r.DefKey,
		DefPath: r.DefPath,
		Def:     r.Def,
		File:    r.File,
		Start:   r.Start,
		End:     r.End,
	}
}
