package main

import (
	"os"
	"path/filepath"
)

// role is the behavior this invocation of the binary adopts at startup,
// selected by inspecting argv and the ambient environment (spec.md §4.7,
// §9 "polymorphism via role dispatch rather than subtyping").
type role int

const (
	roleDriver role = iota
	roleBuildHelper
	roleCompiler
	roleLinker
)

// originalBuildScriptName is the sibling file the linker wrapper renames
// the real build-time helper to before installing itself in its place
// (§4.7 linker step 4, §6 "self-binary substitution").
const originalBuildScriptName = "original-build-script"

// detectRole inspects argv[0]/argv[1] and the ambient environment to pick
// this invocation's role. If the control-channel socket variable is
// unset, the binary was not launched by a driven build; detectRole
// reports roleDriver so the caller falls through to ordinary CLI parsing
// (spec.md §4.7: "If the channel environment variable is unset, the
// wrapper is a no-op").
func detectRole(args []string, env map[string]string) role {
	if env[envSocket] == "" {
		return roleDriver
	}

	if len(args) == 0 {
		return roleDriver
	}

	if siblingBuildScriptExists(args[0]) {
		return roleBuildHelper
	}

	if len(args) > 1 && filepath.Base(args[1]) == env[envCompilerExe] {
		return roleCompiler
	}

	if isLinkerInvocation(env) {
		return roleLinker
	}

	return roleDriver
}

// siblingBuildScriptExists reports whether a file named
// originalBuildScriptName exists next to binaryPath, meaning a previous
// link step already renamed the real helper aside and replaced it with
// this wrapper binary.
func siblingBuildScriptExists(binaryPath string) bool {
	candidate := filepath.Join(filepath.Dir(binaryPath), originalBuildScriptName)
	_, err := os.Stat(candidate)

	return err == nil
}

// isLinkerInvocation reports whether the ambient environment carries the
// discriminator set by the compiler wrapper before it hands off to the
// linker (§4.7 step 3: "the ambient environment carries linker inputs and
// an output path"). The original linker path variable is only ever set
// by the compiler role immediately before exec'ing this binary as the
// linker, so its presence is itself the discriminator.
func isLinkerInvocation(env map[string]string) bool {
	_, ok := env[envOrigLinker]

	return ok
}
