package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

func main() {
	sigCh := defaultSignalChannel()

	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, environToMap(os.Environ()), sigCh))
}

// Run isolates the entry point from global state (os.Args/os.Environ/
// os.Std*), the same way the teacher's own run.go does, and dispatches to
// whichever role this invocation was started as (§4.7, §9).
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "confine: no argv[0]")

		return 1
	}

	// Wrapper roles are short-lived children of the real build and don't
	// themselves listen for signals; only the driver does.
	ctx := context.Background()

	switch detectRole(args, env) {
	case roleCompiler:
		var dbg *DebugLogger
		if env[envConfineDebug] != "" {
			dbg = NewDebugLogger(stderr)
		}

		return runCompiler(ctx, dbg, selfPathOr(args[0]), env[envCompilerPath], args[2:], env, stdout, stderr)

	case roleLinker:
		return runLinker(ctx, selfPathOr(args[0]), args[1:], env, stdout, stderr)

	case roleBuildHelper:
		return runBuildHelper(ctx, args[0], env, stdout, stderr)

	default:
		return runDriverCLI(stdin, stdout, stderr, args, env, sigCh)
	}
}

// selfPathOr resolves this binary's own absolute path, the path wrapper
// roles hand to -C linker=... and to the build-helper shim installer, so
// the next invocation in the chain execs back into this same binary.
// Falls back to fallback (argv[0]) if the running executable can't be
// resolved, e.g. under test.
func selfPathOr(fallback string) string {
	path, err := os.Executable()
	if err != nil {
		return fallback
	}

	return path
}
