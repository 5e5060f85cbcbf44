package policy

import (
	"path/filepath"
	"testing"
	"time"
)

func mustOpenStore(t *testing.T, initial string) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.jsonc")

	if err := (&Document{Packages: map[string]PackageDoc{}}).Save(path); err != nil {
		t.Fatalf("seeding policy file: %v", err)
	}

	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestStoreApplyIsDurableBeforeReturn(t *testing.T) {
	s, path := mustOpenStore(t, "")

	if err := s.Apply(GrantUnsafe{Package: "crab"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Law 6: after the store writes an edit, the next read of the policy
	// file from disk (simulating a fresh wrapper process) observes it.
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	if !doc.Snapshot().UnsafePermitted("crab") {
		t.Fatalf("expected edit to be durable on disk immediately after Apply")
	}

	if !s.Snapshot().UnsafePermitted("crab") {
		t.Fatalf("expected in-memory snapshot to reflect the edit")
	}
}

func TestStoreReload(t *testing.T) {
	s, path := mustOpenStore(t, "")

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatal(err)
	}

	GrantUnsafe{Package: "crab"}.Apply(doc)

	if err := doc.Save(path); err != nil {
		t.Fatal(err)
	}

	if s.Snapshot().UnsafePermitted("crab") {
		t.Fatalf("snapshot should not yet reflect an out-of-band write")
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if !s.Snapshot().UnsafePermitted("crab") {
		t.Fatalf("expected Reload to observe the out-of-band edit")
	}
}

func TestStoreChangedOnExternalWrite(t *testing.T) {
	s, path := mustOpenStore(t, "")

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatal(err)
	}

	GrantUnsafe{Package: "crab"}.Apply(doc)

	if err := doc.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-s.Changed():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a Changed() notification after external write")
	}
}
