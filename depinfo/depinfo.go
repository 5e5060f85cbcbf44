// Package depinfo computes where the compiler's dependency manifest is
// written from a compiler invocation's arguments, and extracts source
// paths from it (component C).
package depinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SourceFilesFromArgs locates the dep-info manifest implied by args,
// reads it, and returns the canonicalized absolute paths of the source
// files it names. If args does not request dependency info, it returns
// an empty, non-nil slice and no error.
//
// Paths that cannot be canonicalized (typically transient intermediates
// under an out-dir) are silently dropped, not reported as errors: see
// DESIGN.md Open Question 2.
func SourceFilesFromArgs(args []string) ([]string, error) {
	depsPath, err := DepsPathFromArgs(args)
	if err != nil {
		return nil, err
	}

	if depsPath == "" {
		return []string{}, nil
	}

	f, err := os.Open(depsPath)
	if err != nil {
		return nil, fmt.Errorf("reading deps file %s: %w", depsPath, err)
	}
	defer f.Close()

	names, err := ParseDeps(f)
	if err != nil {
		return nil, fmt.Errorf("parsing deps file %s: %w", depsPath, err)
	}

	out := make([]string, 0, len(names))

	for _, name := range names {
		abs, err := filepath.Abs(name)
		if err != nil {
			continue
		}

		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			continue
		}

		out = append(out, resolved)
	}

	return out, nil
}

// ParseDeps scans a dep-info manifest's text and returns the source
// paths it names, in order, with no rule-line paths included.
//
// A line names a source file iff, once trailing whitespace is trimmed,
// it ends with a bare colon with nothing after it: "path/to/file.rs:".
// Rule lines of the form "path: dep1 dep2" have trailing content after
// the colon and do not name a source file; neither do blank lines or
// comment lines beginning with '#'.
func ParseDeps(r io.Reader) ([]string, error) {
	var deps []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.HasPrefix(line, "#") {
			continue
		}

		if filename, ok := strings.CutSuffix(line, ":"); ok {
			deps = append(deps, filename)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return deps, nil
}

// DepsPathFromArgs computes the dep-info manifest path from a compiler
// invocation's raw argument sequence: <out_dir>/<crate_name><extra_filename>.d,
// with extra_filename appended directly after crate_name with no
// separator.
//
// Returns ("", nil) if the emit flag does not request dependency info.
// Missing --crate-name or --out-dir while dependency info is requested
// is an error.
func DepsPathFromArgs(args []string) (string, error) {
	var (
		crateName   string
		extra       string
		outDir      string
		haveCrate   bool
		haveOutDir  bool
		emitDepInfo bool
	)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "-C":
			i++
			if i >= len(args) {
				return "", fmt.Errorf("missing argument to -C")
			}

			if rest, ok := strings.CutPrefix(args[i], "extra-filename="); ok {
				extra = rest
			}
		case arg == "--out-dir":
			i++
			if i >= len(args) {
				return "", fmt.Errorf("missing argument to --out-dir")
			}

			outDir = args[i]
			haveOutDir = true
		case arg == "--crate-name":
			i++
			if i >= len(args) {
				return "", fmt.Errorf("missing argument to --crate-name")
			}

			crateName = args[i]
			haveCrate = true
		case strings.HasPrefix(arg, "--emit="):
			emitDepInfo = strings.Contains(arg, "dep-info")
		}
	}

	if !emitDepInfo {
		return "", nil
	}

	if !haveCrate {
		return "", fmt.Errorf("missing --crate-name")
	}

	if !haveOutDir {
		return "", fmt.Errorf("missing --out-dir")
	}

	return filepath.Join(outDir, crateName+extra+".d"), nil
}
