package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectRoleIsDriverWhenSocketUnset(t *testing.T) {
	got := detectRole([]string{"confine"}, map[string]string{})
	if got != roleDriver {
		t.Fatalf("role = %v, want roleDriver", got)
	}
}

func TestDetectRoleIsCompilerWhenArgv1MatchesCompilerName(t *testing.T) {
	env := map[string]string{
		envSocket:      "/tmp/sock",
		envCompilerExe: "rustc",
	}

	got := detectRole([]string{"/path/to/wrapper", "rustc", "--version"}, env)
	if got != roleCompiler {
		t.Fatalf("role = %v, want roleCompiler", got)
	}
}

func TestDetectRoleIsBuildHelperWhenSiblingExists(t *testing.T) {
	dir := t.TempDir()
	wrapper := filepath.Join(dir, "build-script-main")

	if err := os.WriteFile(filepath.Join(dir, originalBuildScriptName), []byte{}, 0o755); err != nil {
		t.Fatalf("writing sibling: %v", err)
	}

	env := map[string]string{envSocket: "/tmp/sock"}

	got := detectRole([]string{wrapper}, env)
	if got != roleBuildHelper {
		t.Fatalf("role = %v, want roleBuildHelper", got)
	}
}

func TestDetectRoleIsLinkerWhenOrigLinkerSet(t *testing.T) {
	env := map[string]string{
		envSocket:     "/tmp/sock",
		envOrigLinker: "/usr/bin/cc",
	}

	got := detectRole([]string{"/path/to/wrapper", "-o", "a.out"}, env)
	if got != roleLinker {
		t.Fatalf("role = %v, want roleLinker", got)
	}
}

func TestDetectRoleFallsBackToDriverWhenNothingMatches(t *testing.T) {
	env := map[string]string{envSocket: "/tmp/sock"}

	got := detectRole([]string{"/path/to/wrapper", "unrelated"}, env)
	if got != roleDriver {
		t.Fatalf("role = %v, want roleDriver", got)
	}
}
