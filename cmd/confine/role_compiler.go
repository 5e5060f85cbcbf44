package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wardline/confine/control"
	"github.com/wardline/confine/depinfo"
	"github.com/wardline/confine/diagnostics"
	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/unsafescan"
)

// structuredErrorFormat is the compiler's machine-readable diagnostic
// format, one JSON object per line, matching what diagnostics.Extract
// expects.
const structuredErrorFormat = "json"

// forbidUnsafeFlag is the compiler flag that rejects the forbidden
// keyword outright, appended when policy says it is not permitted for
// the package being built (§4.7 step 3, §4.1).
var forbidUnsafeFlag = []string{"-C", "forbid=unsafe-code"}

// compilerExitGiveUp is the exit code the compiler role returns on
// GiveUp; distinct from the build-helper role's −1 (SPEC_FULL.md
// supplemented feature 4).
const compilerExitGiveUp = 1

// runCompiler implements the compiler role algorithm (§4.7 "Compiler role
// algorithm"). args is the real compiler's argument list (argv with the
// wrapper's own argv[0] and the compiler-name discriminator at argv[1]
// already stripped).
func runCompiler(ctx context.Context, dbg *DebugLogger, selfPath, compilerExe string, args []string, env map[string]string, stdout, stderr io.Writer) int {
	pkgName := env[envPackageName]
	if pkgName == "" {
		// No package identity means the package manager is querying the
		// compiler directly (e.g. --version); nothing to arbitrate.
		return execPassthrough(ctx, compilerExe, args, env)
	}

	pkg := policy.PackageID(pkgName)

	conn, err := control.Dial(env[envSocket])
	if err != nil {
		fmt.Fprintf(stderr, "confine: compiler role: %v\n", err)

		return compilerExitGiveUp
	}
	defer conn.Close()

	if err := conn.CompilerStarted(pkg); err != nil {
		fmt.Fprintf(stderr, "confine: compiler role: %v\n", err)

		return compilerExitGiveUp
	}

	linkingRequested := emitContains(args, "link")

	var (
		sourcePaths    []string
		sourcePathsSet bool
	)

	for {
		pol, err := loadPolicy(env[envPolicyPath])
		if err != nil {
			fmt.Fprintf(stderr, "confine: compiler role: %v\n", err)

			return compilerExitGiveUp
		}

		unsafePermitted := pol.UnsafePermitted(pkg)
		allowLinking := sourcePathsSet

		childArgs, origLinker := rewriteCompilerArgs(args, selfPath, unsafePermitted, linkingRequested, allowLinking)

		// Always exported, even when empty: its presence is what marks the
		// compiler's linker invocation of this binary (isLinkerInvocation),
		// and the linker role falls back to lookupLinker on an empty value.
		childEnv := withEnv(env, envOrigLinker, origLinker)

		dbg.Section("compiler invocation")
		dbg.Bulletf("package: %s", pkg)
		dbg.Bulletf("args: %v", childArgs)

		result, err := runCaptured(ctx, compilerExe, childArgs, childEnv, "")
		if err != nil {
			fmt.Fprintf(stderr, "confine: compiler role: %v\n", err)

			return compilerExitGiveUp
		}

		if result.ExitCode == 0 && !sourcePathsSet {
			paths, err := depinfo.SourceFilesFromArgs(childArgs)
			if err != nil {
				fmt.Fprintf(stderr, "confine: compiler role: reading dep-info: %v\n", err)
				paths = nil
			}

			if err := conn.CompilerCompleted(pkg, paths); err != nil {
				fmt.Fprintf(stderr, "confine: compiler role: %v\n", err)

				return compilerExitGiveUp
			}

			sourcePaths = paths
			sourcePathsSet = true

			if linkingRequested {
				continue
			}
		}

		var violations []unsafescan.Location

		if result.ExitCode != 0 {
			locs, err := diagnostics.Extract(bytes.NewReader(result.Stderr))
			if err == nil {
				violations = append(violations, locs...)
			}
		}

		if !unsafePermitted {
			scanned, err := scanSources(sourcePaths)
			if err != nil {
				fmt.Fprintf(stderr, "confine: compiler role: unsafe scan: %v\n", err)

				return compilerExitGiveUp
			}

			violations = append(violations, scanned...)
		}

		violations = unsafescan.SortDedup(violations)

		if len(violations) > 0 {
			decision, err := conn.PackageUsesUnsafe(pkg, violations)
			if err != nil {
				fmt.Fprintf(stderr, "confine: compiler role: %v\n", err)

				return compilerExitGiveUp
			}

			if decision == control.Continue {
				continue
			}

			return compilerExitGiveUp
		}

		_, _ = stdout.Write(result.Stdout)
		_, _ = stderr.Write(result.Stderr)

		return result.ExitCode
	}
}

// scanSources scans every path in turn and fails the whole operation on
// the first unreadable file rather than returning a partial location
// list (spec.md §9: a silent partial scan could let a violation escape).
func scanSources(paths []string) ([]unsafescan.Location, error) {
	var locs []unsafescan.Location

	for _, p := range paths {
		found, err := unsafescan.Scan(p)
		if err != nil {
			return nil, err
		}

		locs = append(locs, found...)
	}

	return locs, nil
}

// rewriteCompilerArgs builds the child compiler invocation from the
// package manager's original argument list per §4.7 step 3, and returns
// the original `-C linker=...` value (if any) that the `-C linker=<self>`
// substitution displaced.
func rewriteCompilerArgs(args []string, selfPath string, unsafePermitted, linkingRequested, allowLinking bool) (childArgs []string, origLinker string) {
	out := make([]string, 0, len(args)+8)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case strings.HasPrefix(arg, "--error-format="):
			continue
		case arg == "-C" && i+1 < len(args) && strings.HasPrefix(args[i+1], "linker="):
			origLinker = strings.TrimPrefix(args[i+1], "linker=")
			i++

			continue
		case arg == "-C" && i+1 < len(args) && (args[i+1] == "save-temps" || args[i+1] == "codegen-units=1"):
			// Already injected by a previous rewrite pass; re-added
			// unconditionally below, so drop here to keep rewriting
			// idempotent (law 3).
			i++

			continue
		case arg == forbidUnsafeFlag[0] && i+1 < len(args) && args[i+1] == forbidUnsafeFlag[1]:
			i++

			continue
		case strings.HasPrefix(arg, "--emit="):
			if linkingRequested && !allowLinking {
				out = append(out, "--emit="+removeEmitComponent(strings.TrimPrefix(arg, "--emit="), "link"))

				continue
			}

			out = append(out, arg)
		default:
			out = append(out, arg)
		}
	}

	out = append(out, "--error-format="+structuredErrorFormat)
	out = append(out, "-C", "linker="+selfPath)
	out = append(out, "-C", "save-temps")
	out = append(out, "-C", "codegen-units=1")

	if !unsafePermitted {
		out = append(out, forbidUnsafeFlag...)
	}

	return out, origLinker
}

// emitContains reports whether args' --emit= flag (if any) lists
// component.
func emitContains(args []string, component string) bool {
	for _, arg := range args {
		rest, ok := strings.CutPrefix(arg, "--emit=")
		if !ok {
			continue
		}

		for _, part := range strings.Split(rest, ",") {
			if part == component {
				return true
			}
		}
	}

	return false
}

// removeEmitComponent drops component from a comma-separated --emit=
// value, preserving the order of the rest.
func removeEmitComponent(csv, component string) string {
	parts := strings.Split(csv, ",")
	kept := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != component {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, ",")
}

// withEnv returns a copy of env with key set to value.
func withEnv(env map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}

	out[key] = value

	return out
}

// loadPolicy reloads the policy document from disk fresh, per §9's
// "wrappers reread policy from disk on every retry; do not cache policy
// across retries within a wrapper."
func loadPolicy(path string) (*policy.Policy, error) {
	doc, err := policy.LoadDocument(path)
	if err != nil {
		return nil, fmt.Errorf("loading policy %s: %w", path, err)
	}

	return doc.Snapshot(), nil
}
