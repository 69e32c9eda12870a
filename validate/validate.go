// Package validate checks snapshot recordings before they are replayed. For
// every JSON-lines file it checks:
//   - each non-blank line decodes as a snapshot (env_state present, [x, y] locations)
//   - every entity lies inside the configured grid
//   - the file holds at least one snapshot
//
// Unknown entity types are reported but do not make a file invalid, since the
// viewer simply does not draw them.
package validate

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/gridworld-viewer/viewer/world"
)

const maxLineSize = 4 * 1024 * 1024

// Grid is the world size entities must fit in
type Grid struct {
	Columns int
	Rows    int
}

// Contains reports whether loc is a cell of the grid.
func (g Grid) Contains(loc world.Location) bool {
	return loc.X >= 0 && loc.Y >= 0 && loc.X < g.Columns && loc.Y < g.Rows
}

// Result captures the outcome of validating a single recording. Errors make
// the file invalid; Notes are informational.
type Result struct {
	File   string
	Valid  bool
	Errors []string
	Notes  []string
}

// File validates the recording at path.
func File(path string, grid Grid) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{
			File:   filepath.Base(path),
			Errors: []string{fmt.Sprintf("Failed to read file: %v", err)},
		}
	}
	defer f.Close()

	result := Recording(f, grid)
	result.File = filepath.Base(path)
	return result
}

// Recording validates a JSON-lines stream of snapshots.
func Recording(r io.Reader, grid Grid) Result {
	result := Result{Valid: true}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		frames      int
		entities    int
		maxEntities int
		counts      = make(map[world.Kind]int)
		unknown     = make(map[string]int)
	)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		snap, err := world.Decode(data)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: %v", line, err))
			continue
		}

		frames++
		entities += snap.Len()
		if snap.Len() > maxEntities {
			maxEntities = snap.Len()
		}
		for i, e := range snap.EnvState {
			if !grid.Contains(e.Location) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("Line %d: entity %d (%s) at (%d,%d) is outside the %dx%d grid",
					line, i, e.Type, e.Location.X, e.Location.Y, grid.Columns, grid.Rows))
			}
			if e.Kind.Known() {
				counts[e.Kind]++
			} else {
				unknown[e.Type]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	if frames == 0 {
		if result.Valid {
			result.Valid = false
			result.Errors = append(result.Errors, "No snapshots found")
		}
		return result
	}

	result.Notes = append(result.Notes, fmt.Sprintf("✓ Snapshots: %d", frames))
	result.Notes = append(result.Notes, fmt.Sprintf("✓ Entities: %d total, at most %d per snapshot", entities, maxEntities))
	for _, k := range world.Kinds {
		result.Notes = append(result.Notes, fmt.Sprintf("✓ %s: %d", k, counts[k]))
	}
	if len(unknown) > 0 {
		names := make([]string, 0, len(unknown))
		for name := range unknown {
			names = append(names, fmt.Sprintf("%s (%d)", name, unknown[name]))
		}
		sort.Strings(names)
		result.Notes = append(result.Notes, "⚠ Unknown types, not drawn: "+strings.Join(names, ", "))
	}

	return result
}

// Report prints results the way the validate command shows them and reports
// whether every file was valid.
func Report(w io.Writer, results []Result) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, note := range result.Notes {
				fmt.Fprintln(w, "  "+note)
			}
			continue
		}

		allValid = false
		fmt.Fprintln(w, "❌ INVALID")
		for _, err := range result.Errors {
			fmt.Fprintln(w, "  ❌ "+err)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All recordings are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some recordings have errors")
	}
	return allValid
}
