package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/wardline/confine/control"
	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/sandbox"
)

// buildHelperExitGiveUp is the exit code the build-helper role returns on
// GiveUp, distinct from the compiler/linker roles' 1 (SPEC_FULL.md
// supplemented feature 4, grounded on proxy_build_script's
// std::process::exit(-1) vs proxy_rustc/proxy_linker's exit(1)).
const buildHelperExitGiveUp = -1

// runBuildHelper implements the build-helper role algorithm (§4.7
// "Build-helper role algorithm"). wrapperPath is argv[0]: the path this
// binary was invoked at, whose directory also holds the renamed original
// helper (siblingBuildScriptExists already confirmed this before
// dispatch).
func runBuildHelper(ctx context.Context, wrapperPath string, env map[string]string, stdout, stderr io.Writer) int {
	helperPath := filepath.Join(filepath.Dir(wrapperPath), originalBuildScriptName)
	pkg := policy.BuildHelperID(env[envPackageName])

	conn, err := control.Dial(env[envSocket])
	if err != nil {
		fmt.Fprintf(stderr, "confine: build-helper role: %v\n", err)

		return buildHelperExitGiveUp
	}
	defer conn.Close()

	for {
		pol, err := loadPolicy(env[envPolicyPath])
		if err != nil {
			fmt.Fprintf(stderr, "confine: build-helper role: %v\n", err)

			return buildHelperExitGiveUp
		}

		setting := pol.SandboxForHelper(pkg)

		if setting.Disabled {
			return execPassthrough(ctx, helperPath, nil, env)
		}

		spec := withBuildHelperBindings(setting.Spec, env)

		sb := sandbox.New(sandbox.Config{BaseFS: sandbox.BaseFSEmpty}, sandboxEnvironment(env))

		result, err := sandbox.Run(ctx, sb, policy.SandboxSetting{Spec: spec}, []string{helperPath})
		if err != nil {
			fmt.Fprintf(stderr, "confine: build-helper role: %v\n", err)

			return buildHelperExitGiveUp
		}

		decision, err := conn.BuildHelperOutput(pkg, helperPath, result.ExitCode, result.Stdout, result.Stderr, spec)
		if err != nil {
			fmt.Fprintf(stderr, "confine: build-helper role: %v\n", err)

			return buildHelperExitGiveUp
		}

		if decision == control.GiveUp {
			return buildHelperExitGiveUp
		}

		if result.ExitCode == 0 {
			_, _ = stdout.Write(result.Stdout)
			_, _ = stderr.Write(result.Stderr)

			return result.ExitCode
		}
		// Continue with a non-zero exit: policy may have been
		// liberalized by the operator; reload and retry.
	}
}

// withBuildHelperBindings adds the build-time helper's always-granted
// bindings to the package's declared SandboxSpec: read-only access to
// the package manifest directory and the enclosing profile directory,
// writable access to the output directory, and pass-through of the
// package manager's own environment contract (§4.7 step 3, SPEC_FULL.md
// supplemented feature 6).
func withBuildHelperBindings(spec policy.SandboxSpec, env map[string]string) policy.SandboxSpec {
	out := spec

	if dir := env[envManifestDir]; dir != "" {
		out.ReadOnly = append(out.ReadOnly, dir)
	}

	if dir := profileDir(env); dir != "" {
		out.ReadOnly = append(out.ReadOnly, dir)
	}

	if dir := env[envOutDir]; dir != "" {
		out.Writable = append(out.Writable, dir)
	}

	out.EnvPassthrough = append(append([]string{}, out.EnvPassthrough...), packageManagerEnvContract...)

	return out
}

// profileDir walks up from OUT_DIR looking for the directory named after
// the package manager's own PROFILE variable, the enclosing
// profile/target subdirectory a build-time helper needs read access to
// (grounded on target_subdir's walk-up-to-profile-name logic).
func profileDir(env map[string]string) string {
	profile := env[envProfile]
	outDir := env[envOutDir]

	if profile == "" || outDir == "" {
		return ""
	}

	path := outDir
	for {
		if filepath.Base(path) == profile {
			return path
		}

		parent := filepath.Dir(path)
		if parent == path {
			return ""
		}

		path = parent
	}
}

// sandboxEnvironment builds the sandbox package's Environment from the
// ambient process environment: home/work directories plus the full host
// environment, for EnvPassthrough filtering and path resolution.
func sandboxEnvironment(env map[string]string) sandbox.Environment {
	workDir := env[envManifestDir]
	if workDir == "" {
		workDir = env[envOutDir]
	}

	return sandbox.Environment{
		HomeDir: env["HOME"],
		WorkDir: workDir,
		HostEnv: env,
	}
}
