package control

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/unsafescan"
)

func TestRoundTripPackageUsesUnsafe(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "confine.sock")

	ln, err := Listen(addr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)

	go func() {
		sc, err := ln.Accept()
		if err != nil {
			serverDone <- err

			return
		}
		defer sc.Close()

		req, err := sc.ReadRequest()
		if err != nil {
			serverDone <- err

			return
		}

		if req.Tag != TagPackageUsesUnsafe {
			serverDone <- fmt.Errorf("unexpected tag: %v", req.Tag)

			return
		}

		if req.Package != "crab" {
			serverDone <- fmt.Errorf("unexpected package: %v", req.Package)

			return
		}

		serverDone <- sc.Reply(Response{Decision: Continue})
	}()

	conn, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	locs := []unsafescan.Location{{Path: "main.rs", Line: 7, Column: 13}}

	decision, err := conn.PackageUsesUnsafe("crab", locs)
	if err != nil {
		t.Fatalf("PackageUsesUnsafe: %v", err)
	}

	if decision != Continue {
		t.Fatalf("decision = %v, want Continue", decision)
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestConnSequentialRequestsOnSameConnection(t *testing.T) {
	// Exercises the build-helper role's loop-on-the-same-connection
	// behavior: several request/response pairs in strict order.
	addr := filepath.Join(t.TempDir(), "confine.sock")

	ln, err := Listen(addr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)

	go func() {
		sc, err := ln.Accept()
		if err != nil {
			serverDone <- err

			return
		}
		defer sc.Close()

		for i := 0; i < 3; i++ {
			req, err := sc.ReadRequest()
			if err != nil {
				serverDone <- err

				return
			}

			if req.ExitCode != i {
				serverDone <- fmt.Errorf("unexpected exit code: want %d got %d", i, req.ExitCode)

				return
			}

			decision := Continue
			if i == 2 {
				decision = GiveUp
			}

			if err := sc.Reply(Response{Decision: decision}); err != nil {
				serverDone <- err

				return
			}
		}

		serverDone <- nil
	}()

	conn, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		decision, err := conn.BuildHelperOutput("build-script:crab", "/x", i, nil, nil, policy.SandboxSpec{})
		if err != nil {
			t.Fatalf("BuildHelperOutput(%d): %v", i, err)
		}

		want := Continue
		if i == 2 {
			want = GiveUp
		}

		if decision != want {
			t.Fatalf("BuildHelperOutput(%d) decision = %v, want %v", i, decision, want)
		}
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestDialFailsWithoutListener(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "no-such.sock"))
	if err == nil {
		t.Fatalf("expected an error dialing a socket with no listener")
	}
}

func TestReadRequestEOFOnWrapperExit(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "confine.sock")

	ln, err := Listen(addr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})

	go func() {
		conn, err := Dial(addr)
		if err == nil {
			conn.Close()
		}

		close(done)
	}()

	sc, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	<-done

	_, err = sc.ReadRequest()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("ReadRequest after peer close = %v, want io.EOF", err)
	}
}

func TestDecisionString(t *testing.T) {
	if got := Continue.String(); got != "Continue" {
		t.Fatalf("Continue.String() = %q", got)
	}

	if got := GiveUp.String(); got != "GiveUp" {
		t.Fatalf("GiveUp.String() = %q", got)
	}
}

func TestLocationsRoundTripPreservesOrder(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "confine.sock")

	ln, err := Listen(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	locs := []unsafescan.Location{
		{Path: "a.rs", Line: 1, Column: 1},
		{Path: "b.rs", Line: 2, Column: 3},
	}

	serverDone := make(chan []unsafescan.Location, 1)

	go func() {
		sc, err := ln.Accept()
		if err != nil {
			close(serverDone)

			return
		}
		defer sc.Close()

		req, err := sc.ReadRequest()
		if err != nil {
			close(serverDone)

			return
		}

		_ = sc.Reply(Response{Decision: Continue})
		serverDone <- req.Locations
	}()

	conn, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.PackageUsesUnsafe("crab", locs); err != nil {
		t.Fatal(err)
	}

	got := <-serverDone
	if !cmp.Equal(got, locs) {
		t.Fatalf("Locations = %v, want %v", got, locs)
	}
}
