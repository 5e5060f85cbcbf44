// Package policy is the in-memory representation of per-package
// permissions and sandbox settings, and the on-disk form the driver
// writes and wrappers reload from on every retry.
package policy

import "strings"

// buildHelperPrefix distinguishes a build-helper package's identity from
// the package it was produced by, while retaining the original name so
// policy can name either.
const buildHelperPrefix = "build-script:"

// PackageID is a package identity as named in policy. A build-helper
// package carries a stable name prefix over the package that produced
// it.
type PackageID string

// BuildHelperID returns the package identity for the build-time helper
// produced by the package named base.
func BuildHelperID(base string) PackageID {
	return PackageID(buildHelperPrefix + base)
}

// IsBuildHelper reports whether id names a build-helper rather than a
// normal package.
func (id PackageID) IsBuildHelper() bool {
	return strings.HasPrefix(string(id), buildHelperPrefix)
}

// Base returns the underlying package name, stripping the build-helper
// marker if present.
func (id PackageID) Base() string {
	return strings.TrimPrefix(string(id), buildHelperPrefix)
}

// SandboxSpec is an ordered set of read-only path bindings, writable
// path bindings, and an environment pass-through list for a build-time
// helper.
type SandboxSpec struct {
	ReadOnly       []string
	Writable       []string
	EnvPassthrough []string
}

// SandboxSetting is a package's sandbox configuration: either disabled
// (the helper runs unsandboxed) or a concrete SandboxSpec.
type SandboxSetting struct {
	Disabled bool
	Spec     SandboxSpec
}

// PackagePolicy is the permission record for one package.
type PackagePolicy struct {
	UnsafePermitted bool
	Sandbox         SandboxSetting
	APIsPermitted   map[string]struct{}
}

// Policy is an immutable, queryable snapshot of per-package permissions.
// It is immutable within a single wrapper invocation; the driver
// replaces it wholesale between a give-up and the next retry (see
// Store).
type Policy struct {
	packages map[PackageID]PackagePolicy
}

// New builds a Policy snapshot from a set of per-package records.
// Packages absent from m query as the zero-value PackagePolicy (unsafe
// not permitted, sandbox enabled with an empty spec, no APIs
// permitted) — a conservative default-deny.
func New(m map[PackageID]PackagePolicy) *Policy {
	cloned := make(map[PackageID]PackagePolicy, len(m))
	for id, pp := range m {
		cloned[id] = pp
	}

	return &Policy{packages: cloned}
}

// UnsafePermitted reports whether the forbidden memory keyword may
// appear in pkg's sources or be emitted by the compiler for pkg.
func (p *Policy) UnsafePermitted(pkg PackageID) bool {
	return p.packages[pkg].UnsafePermitted
}

// SandboxForHelper returns the sandbox setting for the build-time helper
// produced by pkg.
func (p *Policy) SandboxForHelper(pkg PackageID) SandboxSetting {
	return p.packages[pkg].Sandbox
}

// APIsPermitted returns the set of API tags pkg is permitted to
// reference. The returned set is opaque to this package; it is checked
// by the driver against linker-reported symbol references.
func (p *Policy) APIsPermitted(pkg PackageID) map[string]struct{} {
	return p.packages[pkg].APIsPermitted
}
