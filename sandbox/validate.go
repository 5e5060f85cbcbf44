//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wardline/confine/policy"
)

// validateSpec validates a policy.SandboxSpec. This is the input boundary
// for one Run: every downstream planning step assumes a spec it accepts
// satisfies these invariants.
func validateSpec(spec policy.SandboxSpec) error {
	var errs []error

	for i, p := range spec.ReadOnly {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("read-only binding %d is empty", i))
		}
	}

	for i, p := range spec.Writable {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("writable binding %d is empty", i))
		}
	}

	for i, name := range spec.EnvPassthrough {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("env passthrough entry %d is empty", i))
		}

		if strings.ContainsRune(name, '=') {
			errs = append(errs, fmt.Errorf("env passthrough entry %d (%q) must be a variable name, not KEY=VALUE", i, name))
		}
	}

	return errors.Join(errs...)
}
