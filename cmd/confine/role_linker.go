package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wardline/confine/control"
)

// defaultLinker is the fallback used when no original-linker environment
// override is present: the system compiler driver, which performs
// argument translation a bare `ld` does not (SPEC_FULL.md supplemented
// feature 8).
const defaultLinker = "cc"

// linkerExitGiveUp is the exit code the linker role returns on GiveUp.
const linkerExitGiveUp = 1

// runLinker implements the linker role algorithm (§4.7 "Linker role
// algorithm"). args is the forwarded link-line argument list.
func runLinker(ctx context.Context, selfPath string, args []string, env map[string]string, stdout, stderr io.Writer) int {
	realLinker := env[envOrigLinker]
	if realLinker == "" {
		realLinker = lookupLinker(env)
	}

	result, runErr := runCaptured(ctx, realLinker, args, env, "")
	if runErr != nil {
		fmt.Fprintf(stderr, "confine: linker role: %v\n", runErr)

		return linkerExitGiveUp
	}

	inputs, output := linkInputsAndOutput(args)
	isHelper := filepath.Base(output) != "" && env[envPackageName] != "" && isBuildHelperOutput(output)

	conn, err := control.Dial(env[envSocket])
	if err != nil {
		fmt.Fprintf(stderr, "confine: linker role: %v\n", err)

		return linkerExitGiveUp
	}
	defer conn.Close()

	decision, err := conn.LinkerInvoked(inputs, output, isHelper)
	if err != nil {
		fmt.Fprintf(stderr, "confine: linker role: %v\n", err)

		return linkerExitGiveUp
	}

	if decision == control.GiveUp {
		return linkerExitGiveUp
	}

	if result.ExitCode == 0 && isHelper {
		if err := installBuildHelperShim(output, selfPath); err != nil {
			fmt.Fprintf(stderr, "confine: linker role: installing build-helper shim: %v\n", err)

			return linkerExitGiveUp
		}
	}

	_, _ = stdout.Write(result.Stdout)
	_, _ = stderr.Write(result.Stderr)

	return result.ExitCode
}

// lookupLinker finds the real linker binary on PATH when no original-
// linker override is present, grounded on the PATH-search pattern used
// to locate wrapped binaries elsewhere in this toolchain.
func lookupLinker(env map[string]string) string {
	for _, dir := range filepath.SplitList(env["PATH"]) {
		if dir == "" {
			continue
		}

		candidate := filepath.Join(dir, defaultLinker)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}

	return defaultLinker
}

// linkInputsAndOutput splits a link-line argument list into its input
// object/library files and its declared output path. Recognizes the "-o
// <path>" output flag; every other non-flag argument is treated as an
// input.
func linkInputsAndOutput(args []string) (inputs []string, output string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "-o" && i+1 < len(args) {
			output = args[i+1]
			i++

			continue
		}

		if len(arg) > 0 && arg[0] == '-' {
			continue
		}

		inputs = append(inputs, arg)
	}

	return inputs, output
}

// isBuildHelperOutput reports whether a linker output path names a
// build-time helper rather than the package's own artifact. The original
// toolchain's package manager links each build-time helper into its own
// per-package subdirectory of a directory named "build"
// (.../build/<pkg>-<hash>/<helper>); absent a reliable
// cross-package-manager discriminator, this implementation treats any
// output whose containing directory sits directly inside a directory
// literally named "build" as a helper.
func isBuildHelperOutput(output string) bool {
	return filepath.Base(filepath.Dir(filepath.Dir(output))) == "build"
}

// installBuildHelperShim renames the freshly linked build-time helper
// aside and installs this wrapper binary in its place, so the next time
// the package manager runs the helper it is proxied by the build-helper
// role (§4.7 linker step 4, §6 "self-binary substitution"). Hard-linking
// is preferred over copying since the package manager may canonicalize
// the helper's path before running it; copying is the fallback when the
// wrapper binary and the helper live on different filesystems.
func installBuildHelperShim(helperPath, selfPath string) error {
	origPath := filepath.Join(filepath.Dir(helperPath), originalBuildScriptName)

	if err := os.Rename(helperPath, origPath); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", helperPath, origPath, err)
	}

	if err := os.Link(selfPath, helperPath); err == nil {
		return nil
	}

	return copyFile(selfPath, helperPath)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	if err := os.WriteFile(dst, data, 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}

	return nil
}
