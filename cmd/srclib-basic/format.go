package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	basic "github.com/alexsaveliev/srclib-basic-sub000"
)

// formatUnitsText formats scanned source units as aligned columns.
func formatUnitsText(w io.Writer, units []*basic.SourceUnit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tFILES\tDIR")
	for _, u := range units {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", u.Type, u.Name, len(u.Files), u.Dir)
	}
	tw.Flush()
}

// formatStoredUnitsText formats CLIUnit results as aligned columns.
func formatStoredUnitsText(w io.Writer, units []CLIUnit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNAME\tFILES\tINDEXED")
	for _, u := range units {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", u.ID, u.Type, u.Name, u.FileCount, u.IndexedAt)
	}
	tw.Flush()
}

// formatDefsText formats CLIDef results as aligned columns.
func formatDefsText(w io.Writer, defs []CLIDef) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND\tFILE\tLINE\tEXPORTED")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\n", d.Path, d.Kind, d.File, d.Line, d.Exported)
	}
	tw.Flush()
}

// formatRefsText formats CLIRef results as "file@start-end path" lines.
func formatRefsText(w io.Writer, refs []CLIRef) {
	for _, r := range refs {
		marker := ""
		if r.Def {
			marker = " (def)"
		}
		fmt.Fprintf(w, "%s@%d-%d %s%s\n", r.File, r.Start, r.End, r.DefPath, marker)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIUnit:
		formatStoredUnitsText(w, v)
	case []CLIDef:
		formatDefsText(w, v)
	case []CLIRef:
		formatRefsText(w, v)
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
