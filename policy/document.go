package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Document is the on-disk, mutable form of a policy file: a tabular
// mapping of package identity to permission record. The driver loads a
// pre-flattened document, edits it in response to operator decisions,
// and atomically rewrites it; wrappers only ever read one.
//
// The file format is JSONC (JSON with comments, parsed via hujson) so
// that a Document maps onto a Go struct with no custom grammar, while
// remaining hand-editable by an operator between retries.
type Document struct {
	Packages map[string]PackageDoc `json:"packages"`
}

// PackageDoc is the on-disk form of PackagePolicy.
type PackageDoc struct {
	UnsafePermitted bool       `json:"unsafe_permitted"`
	Sandbox         SandboxDoc `json:"sandbox"`
	APIsPermitted   []string   `json:"apis_permitted,omitempty"`
}

// SandboxDoc is the on-disk form of SandboxSetting.
type SandboxDoc struct {
	Disabled       bool     `json:"disabled,omitempty"`
	ReadOnly       []string `json:"read_only,omitempty"`
	Writable       []string `json:"writable,omitempty"`
	EnvPassthrough []string `json:"env_passthrough,omitempty"`
}

// LoadDocument reads and parses a policy file at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parsing policy %s: %w", path, err)
	}

	var doc Document

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing policy %s: %w", path, err)
	}

	if doc.Packages == nil {
		doc.Packages = make(map[string]PackageDoc)
	}

	return &doc, nil
}

// Save atomically replaces the policy file at path with doc's contents:
// write to a sibling temp file, then rename over path. Rename within the
// same directory is atomic on the platforms this tool targets, so a
// reader never observes a partially-written file.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".policy-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp policy file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("writing temp policy file %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp policy file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing policy file %s: %w", path, err)
	}

	return nil
}

// Snapshot flattens the document into an immutable query Policy.
func (d *Document) Snapshot() *Policy {
	m := make(map[PackageID]PackagePolicy, len(d.Packages))

	for name, pd := range d.Packages {
		apis := make(map[string]struct{}, len(pd.APIsPermitted))
		for _, tag := range pd.APIsPermitted {
			apis[tag] = struct{}{}
		}

		m[PackageID(name)] = PackagePolicy{
			UnsafePermitted: pd.UnsafePermitted,
			APIsPermitted:   apis,
			Sandbox: SandboxSetting{
				Disabled: pd.Sandbox.Disabled,
				Spec: SandboxSpec{
					ReadOnly:       pd.Sandbox.ReadOnly,
					Writable:       pd.Sandbox.Writable,
					EnvPassthrough: pd.Sandbox.EnvPassthrough,
				},
			},
		}
	}

	return New(m)
}

// packageDoc returns a copy of the record for pkg, creating a zero-value
// one if absent.
func (d *Document) packageDoc(pkg PackageID) PackageDoc {
	if d.Packages == nil {
		d.Packages = make(map[string]PackageDoc)
	}

	return d.Packages[string(pkg)]
}

func (d *Document) setPackageDoc(pkg PackageID, pd PackageDoc) {
	if d.Packages == nil {
		d.Packages = make(map[string]PackageDoc)
	}

	d.Packages[string(pkg)] = pd
}
