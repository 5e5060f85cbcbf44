package policy

import "fmt"

// Edit is a small, named transformation of a policy document proposed
// as a fix for a problem (§4.8). Edits are applied in-memory and then
// written to disk by Store.Apply; Store.Apply never observes a partial
// edit.
type Edit interface {
	// Describe returns an operator-facing one-line description, e.g.
	// "grant unsafe to package regex-automata".
	Describe() string
	// Apply mutates doc to satisfy the edit.
	Apply(doc *Document)
}

// GrantUnsafe permits the forbidden memory keyword for pkg.
type GrantUnsafe struct{ Package PackageID }

func (e GrantUnsafe) Describe() string {
	return fmt.Sprintf("grant unsafe to package %s", e.Package.Base())
}

func (e GrantUnsafe) Apply(doc *Document) {
	pd := doc.packageDoc(e.Package)
	pd.UnsafePermitted = true
	doc.setPackageDoc(e.Package, pd)
}

// PermitAPI adds tag to the set of APIs pkg may reference.
type PermitAPI struct {
	Package PackageID
	Tag     string
}

func (e PermitAPI) Describe() string {
	return fmt.Sprintf("allow API tag %q for package %s", e.Tag, e.Package.Base())
}

func (e PermitAPI) Apply(doc *Document) {
	pd := doc.packageDoc(e.Package)

	for _, existing := range pd.APIsPermitted {
		if existing == e.Tag {
			return
		}
	}

	pd.APIsPermitted = append(pd.APIsPermitted, e.Tag)
	doc.setPackageDoc(e.Package, pd)
}

// DisableSandbox turns off sandboxing for the build-time helper produced
// by pkg, letting it run unconfined.
type DisableSandbox struct{ Package PackageID }

func (e DisableSandbox) Describe() string {
	return fmt.Sprintf("disable sandbox for helper of %s", e.Package.Base())
}

func (e DisableSandbox) Apply(doc *Document) {
	pd := doc.packageDoc(e.Package)
	pd.Sandbox.Disabled = true
	doc.setPackageDoc(e.Package, pd)
}
