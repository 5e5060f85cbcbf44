package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/wardline/confine/control"
	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/unsafescan"
)

// problem describes a single policy gap that blocked a wrapper, the way
// problems_ui.rs's ProblemList entries pair a human-readable description
// with a set of candidate fixes an operator can pick between.
type problem struct {
	Package    policy.PackageID
	Summary    string
	Details    string
	Candidates []policy.Edit
}

// problemForUnsafe builds the problem shown when a package's compiler
// invocation reports disallowed uses of the forbidden keyword.
func problemForUnsafe(pkg policy.PackageID, locs []unsafescan.Location) problem {
	lines := make([]string, 0, len(locs))
	for _, loc := range locs {
		lines = append(lines, fmt.Sprintf("  %s:%d:%d", loc.Path, loc.Line, loc.Column))
	}

	return problem{
		Package: pkg,
		Summary: fmt.Sprintf("%s uses the forbidden keyword", pkg),
		Details: "Locations:\n" + strings.Join(lines, "\n"),
		Candidates: []policy.Edit{
			policy.GrantUnsafe{Package: pkg},
		},
	}
}

// problemForHelperFailure builds the problem shown when a sandboxed
// build-time helper exits non-zero, most often because its sandbox denied
// it a file or directory it needed.
func problemForHelperFailure(pkg policy.PackageID, exitCode int, stderr []byte) problem {
	return problem{
		Package: pkg,
		Summary: fmt.Sprintf("%s's build helper exited %d under its sandbox", pkg, exitCode),
		Details: string(stderr),
		Candidates: []policy.Edit{
			policy.DisableSandbox{Package: pkg},
		},
	}
}

// problemForAPI builds the problem shown when a package calls an API tag
// its policy doesn't list.
func problemForAPI(pkg policy.PackageID, tag string) problem {
	return problem{
		Package: pkg,
		Summary: fmt.Sprintf("%s calls %s, which is not permitted", pkg, tag),
		Candidates: []policy.Edit{
			policy.PermitAPI{Package: pkg, Tag: tag},
		},
	}
}

const giveUpChoice = "give up: stop this build"

// resolveProblem presents a single problem to the operator and returns
// their decision, applying the chosen edit to the store before returning
// Continue. In non-interactive mode it always answers GiveUp, matching
// the original's "q" quit path without needing a terminal (§4.8 step 3).
func resolveProblem(store *policy.Store, p problem, nonInteractive bool, stdout io.Writer) (control.Decision, error) {
	fmt.Fprintf(stdout, "\nproblem: %s\n", p.Summary)

	if p.Details != "" {
		fmt.Fprintln(stdout, p.Details)
	}

	if nonInteractive {
		fmt.Fprintln(stdout, "non-interactive mode: giving up")

		return control.GiveUp, nil
	}

	options := make([]huh.Option[string], 0, len(p.Candidates)+1)
	for _, edit := range p.Candidates {
		options = append(options, huh.NewOption(edit.Describe(), edit.Describe()))
	}

	options = append(options, huh.NewOption(giveUpChoice, giveUpChoice))

	var choice string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How should this be resolved?").
				Options(options...).
				Value(&choice),
		),
	)

	if err := form.Run(); err != nil {
		return control.GiveUp, fmt.Errorf("running operator prompt: %w", err)
	}

	if choice == giveUpChoice {
		return control.GiveUp, nil
	}

	for _, edit := range p.Candidates {
		if edit.Describe() != choice {
			continue
		}

		if err := store.Apply(edit); err != nil {
			return control.GiveUp, fmt.Errorf("applying edit %q: %w", edit.Describe(), err)
		}

		fmt.Fprintf(stdout, "applied: %s\n", edit.Describe())

		return control.Continue, nil
	}

	return control.GiveUp, nil
}
