package depinfo

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDepsPathFromArgs(t *testing.T) {
	got, err := DepsPathFromArgs([]string{
		"rustc",
		"--emit=dep-info,link",
		"--crate-name", "foo",
		"-C", "extra-filename=-0188200cb614ae3d",
		"--out-dir", "/some/directory/target/debug/deps",
	})
	if err != nil {
		t.Fatalf("DepsPathFromArgs: %v", err)
	}

	want := "/some/directory/target/debug/deps/foo-0188200cb614ae3d.d"
	if got != want {
		t.Fatalf("DepsPathFromArgs = %q, want %q", got, want)
	}
}

func TestDepsPathFromArgsMissingCrateName(t *testing.T) {
	_, err := DepsPathFromArgs([]string{
		"rustc",
		"--emit=dep-info,link",
		"-C", "extra-filename=-0188200cb614ae3d",
		"--out-dir", "/some/directory/target/debug/deps",
	})
	if err == nil {
		t.Fatalf("expected an error for missing --crate-name")
	}
}

func TestDepsPathFromArgsMissingOutDir(t *testing.T) {
	_, err := DepsPathFromArgs([]string{
		"rustc",
		"--emit=dep-info,link",
		"--crate-name", "foo",
		"-C", "extra-filename=-0188200cb614ae3d",
	})
	if err == nil {
		t.Fatalf("expected an error for missing --out-dir")
	}
}

func TestDepsPathFromArgsNoDepInfo(t *testing.T) {
	got, err := DepsPathFromArgs(nil)
	if err != nil {
		t.Fatalf("DepsPathFromArgs: %v", err)
	}

	if got != "" {
		t.Fatalf("DepsPathFromArgs = %q, want empty", got)
	}
}

func TestParseDeps(t *testing.T) {
	text := `/some/path/foo-1235.rmeta: foo/src/lib.rs /some/absolute/path/extra.rs

/some/path/foo-1235.rlib: foo/src/lib.rs /some/absolute/path/extra.rs

foo/src/lib.rs:
/some/absolute/path/extra.rs:

# env-dep:OUT_DIR=/some/path/target/debug/build/foo-1235/out
`

	got, err := ParseDeps(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseDeps: %v", err)
	}

	want := []string{"foo/src/lib.rs", "/some/absolute/path/extra.rs"}
	if !cmp.Equal(got, want) {
		t.Fatalf("ParseDeps = %v, want %v", got, want)
	}
}

// TestDepsPathFromArgsIdempotent exercises law 2 (deps-path derivation)
// directly: computing the path twice from the same args is stable.
func TestDepsPathFromArgsIdempotent(t *testing.T) {
	args := []string{
		"rustc", "--emit=dep-info", "--crate-name", "foo", "--out-dir", "/d",
	}

	first, err := DepsPathFromArgs(args)
	if err != nil {
		t.Fatal(err)
	}

	second, err := DepsPathFromArgs(args)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Fatalf("DepsPathFromArgs not idempotent: %q != %q", first, second)
	}
}
