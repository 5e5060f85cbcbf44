package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardline/confine/control"
	"github.com/wardline/confine/policy"
)

func newTestDriver(t *testing.T, nonInteractive bool) (*Driver, *bytes.Buffer) {
	t.Helper()

	store := mustOpenTestStore(t)

	var stdout bytes.Buffer

	return &Driver{store: store, nonInteractive: nonInteractive, stdout: &stdout}, &stdout
}

func TestHandleRequestAcksCompilerLifecycleTags(t *testing.T) {
	d, _ := newTestDriver(t, true)

	resp := d.handleRequest(control.Request{Tag: control.TagCompilerStarted, Package: "widget"})
	if !resp.Ack {
		t.Fatal("CompilerStarted should be acked")
	}

	resp = d.handleRequest(control.Request{Tag: control.TagCompilerCompleted, Package: "widget"})
	if !resp.Ack {
		t.Fatal("CompilerCompleted should be acked")
	}
}

func TestHandleRequestAutoContinuesWhenUnsafeAlreadyPermitted(t *testing.T) {
	d, _ := newTestDriver(t, true)

	if err := d.store.Apply(policy.GrantUnsafe{Package: "widget"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	resp := d.handleRequest(control.Request{Tag: control.TagPackageUsesUnsafe, Package: "widget"})
	if resp.Decision != control.Continue {
		t.Fatalf("Decision = %v, want Continue", resp.Decision)
	}

	if d.gaveUp.Load() {
		t.Fatal("gaveUp should remain false when policy already permits")
	}
}

func TestHandleRequestGivesUpWhenNonInteractiveAndUnpermitted(t *testing.T) {
	d, _ := newTestDriver(t, true)

	resp := d.handleRequest(control.Request{Tag: control.TagPackageUsesUnsafe, Package: "widget"})
	if resp.Decision != control.GiveUp {
		t.Fatalf("Decision = %v, want GiveUp", resp.Decision)
	}

	if !d.gaveUp.Load() {
		t.Fatal("expected gaveUp to be recorded")
	}
}

func TestHandleRequestContinuesOnZeroExitHelperOutput(t *testing.T) {
	d, _ := newTestDriver(t, true)

	resp := d.handleRequest(control.Request{Tag: control.TagBuildHelperOutput, Package: "widget", ExitCode: 0})
	if resp.Decision != control.Continue {
		t.Fatalf("Decision = %v, want Continue", resp.Decision)
	}
}

func TestHandleRequestGivesUpOnNonZeroHelperExitWhenNonInteractive(t *testing.T) {
	d, _ := newTestDriver(t, true)

	resp := d.handleRequest(control.Request{Tag: control.TagBuildHelperOutput, Package: "widget", ExitCode: 1, Stderr: []byte("denied")})
	if resp.Decision != control.GiveUp {
		t.Fatalf("Decision = %v, want GiveUp", resp.Decision)
	}
}

func TestHandleRequestLinkerInvokedAlwaysContinues(t *testing.T) {
	d, _ := newTestDriver(t, true)

	resp := d.handleRequest(control.Request{Tag: control.TagLinkerInvoked, LinkOutput: "/target/debug/widget"})
	if resp.Decision != control.Continue {
		t.Fatalf("Decision = %v, want Continue", resp.Decision)
	}
}

func TestWatchPolicyReloadsOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.jsonc")

	if err := (&policy.Document{Packages: map[string]policy.PackageDoc{}}).Save(path); err != nil {
		t.Fatalf("seeding policy file: %v", err)
	}

	store, err := policy.OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var stdout bytes.Buffer

	d := &Driver{store: store, nonInteractive: true, stdout: &stdout}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go d.watchPolicy(ctx)

	doc, err := policy.LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}

	policy.GrantUnsafe{Package: "widget"}.Apply(doc)

	if err := doc.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d.store.Snapshot().UnsafePermitted("widget") {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("expected watchPolicy to reload the external edit within the deadline")
}

func TestAwaitChildReturnsDirectlyWhenSignalChannelIsNil(t *testing.T) {
	done := make(chan childResult, 1)
	done <- childResult{exitCode: 5}

	result := awaitChild(done, nil, func() {}, func() {}, &bytes.Buffer{})
	if result.exitCode != 5 {
		t.Fatalf("exitCode = %d, want 5", result.exitCode)
	}
}
