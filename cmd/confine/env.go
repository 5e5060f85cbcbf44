package main

// Environment variables the driver sets for every wrapper invocation
// (spec.md §6) and the ones wrappers set for each other when handing off
// state (the compiler wrapper tells the linker wrapper which real linker
// to invoke). Kept as a small, named set rather than scattered literals
// so driver.go and the role files agree on spelling.
const (
	envSocket      = "CONFINE_SOCKET"
	envPolicyPath  = "CONFINE_POLICY"
	envOrigLinker  = "CONFINE_ORIG_LINKER"
	// envCompilerExe carries the real compiler's base name (e.g. "rustc"),
	// the literal argv[1] the compiler role compares itself against
	// (§4.7 step 2, grounded on args.peek() == "rustc" in the original).
	envCompilerExe = "CONFINE_COMPILER_EXE"
	// envCompilerPath carries the real compiler's resolved, absolute
	// executable path, since the compiler role's own argv[1] is the
	// wrapper binary sitting on PATH where the real compiler used to be.
	envCompilerPath = "CONFINE_COMPILER_PATH"
	// envConfineDebug carries the driver's own --debug setting down to
	// wrapper roles, distinct from the package manager's ambient
	// envDebug (its DEBUG build-profile flag, part of
	// packageManagerEnvContract below).
	envConfineDebug = "CONFINE_DEBUG"

	// envPackageName carries the identity of the package currently being
	// built, set by the package manager itself (its own environment
	// contract, not ours) the same way Cargo sets CARGO_PKG_NAME for
	// rustc invocations. Its absence means the toolchain is being
	// queried rather than asked to build a package (e.g. --version).
	envPackageName = "PACKAGE_NAME"

	// envManifestDir and the profile/out-dir family below are the
	// package manager's own contractual environment variables, passed
	// through (not invented) to build-time helpers per §4.7 step 3 /
	// SPEC_FULL.md supplemented feature 6.
	envManifestDir = "PACKAGE_MANIFEST_DIR"
	envOutDir      = "OUT_DIR"
	envProfile     = "PROFILE"
	envTarget      = "TARGET"
	envHost        = "HOST"
	envNumJobs     = "NUM_JOBS"
	envOptLevel    = "OPT_LEVEL"
	envDebug       = "DEBUG"
)

// packageManagerEnvContract lists the env vars a build-time helper always
// receives passed through, beyond anything policy explicitly enumerates.
var packageManagerEnvContract = []string{
	envManifestDir, envOutDir, envProfile, envTarget, envHost, envNumJobs, envOptLevel, envDebug,
}

// envMapToSlice converts an environment map into a KEY=VALUE slice
// suitable for exec.Cmd.Env.
func envMapToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}

// environToMap converts a KEY=VALUE slice (as returned by os.Environ) into
// a map, the shape every role function and LoadAppConfig in this package
// operates on so tests can construct one without touching the real
// process environment.
func environToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))

	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]

				break
			}
		}
	}

	return m
}
