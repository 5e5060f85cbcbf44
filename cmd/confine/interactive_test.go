package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wardline/confine/control"
	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/unsafescan"
)

func mustOpenTestStore(t *testing.T) *policy.Store {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.jsonc")

	if err := (&policy.Document{Packages: map[string]policy.PackageDoc{}}).Save(path); err != nil {
		t.Fatalf("seeding policy file: %v", err)
	}

	s, err := policy.OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestProblemForUnsafeListsLocations(t *testing.T) {
	p := problemForUnsafe("widget", []unsafescan.Location{{Path: "src/lib.rs", Line: 3, Column: 5}})

	if !strings.Contains(p.Details, "src/lib.rs:3:5") {
		t.Fatalf("Details = %q, want it to mention the location", p.Details)
	}

	if len(p.Candidates) != 1 {
		t.Fatalf("Candidates = %v, want exactly one", p.Candidates)
	}

	if _, ok := p.Candidates[0].(policy.GrantUnsafe); !ok {
		t.Fatalf("Candidates[0] = %T, want policy.GrantUnsafe", p.Candidates[0])
	}
}

func TestProblemForHelperFailureCandidatesDisableSandbox(t *testing.T) {
	p := problemForHelperFailure("widget", 1, []byte("permission denied"))

	if _, ok := p.Candidates[0].(policy.DisableSandbox); !ok {
		t.Fatalf("Candidates[0] = %T, want policy.DisableSandbox", p.Candidates[0])
	}

	if !strings.Contains(p.Details, "permission denied") {
		t.Fatalf("Details = %q, want it to include the helper's stderr", p.Details)
	}
}

func TestProblemForAPICandidatesPermitAPI(t *testing.T) {
	p := problemForAPI("widget", "net")

	edit, ok := p.Candidates[0].(policy.PermitAPI)
	if !ok {
		t.Fatalf("Candidates[0] = %T, want policy.PermitAPI", p.Candidates[0])
	}

	if edit.Tag != "net" {
		t.Fatalf("Tag = %q, want net", edit.Tag)
	}
}

func TestResolveProblemGivesUpWhenNonInteractive(t *testing.T) {
	store := mustOpenTestStore(t)
	var stdout bytes.Buffer

	decision, err := resolveProblem(store, problemForUnsafe("widget", nil), true, &stdout)
	if err != nil {
		t.Fatalf("resolveProblem: %v", err)
	}

	if decision != control.GiveUp {
		t.Fatalf("decision = %v, want GiveUp", decision)
	}

	if store.Snapshot().UnsafePermitted("widget") {
		t.Fatal("non-interactive resolution must not apply any edit")
	}
}
