// Package control implements the control-channel protocol (component E):
// a length-prefixed, framed request/response exchange over a local
// stream socket between many short-lived wrapper processes and one
// long-lived driver.
package control

import (
	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/unsafescan"
)

// Tag identifies a request's payload shape.
type Tag byte

const (
	// TagCompilerStarted: W→D, package identity, ack response.
	TagCompilerStarted Tag = iota + 1
	// TagCompilerCompleted: W→D, package identity + canonical source paths, ack response.
	TagCompilerCompleted
	// TagPackageUsesUnsafe: W→D, package identity + sorted unique source locations, Continue|GiveUp.
	TagPackageUsesUnsafe
	// TagBuildHelperOutput: W→D, package identity, helper path, exit code, stdout/stderr, sandbox spec used, Continue|GiveUp.
	TagBuildHelperOutput
	// TagLinkerInvoked: W→D, link inputs, output, is-helper flag, Continue|GiveUp.
	TagLinkerInvoked
)

func (t Tag) String() string {
	switch t {
	case TagCompilerStarted:
		return "CompilerStarted"
	case TagCompilerCompleted:
		return "CompilerCompleted"
	case TagPackageUsesUnsafe:
		return "PackageUsesUnsafe"
	case TagBuildHelperOutput:
		return "BuildHelperOutput"
	case TagLinkerInvoked:
		return "LinkerInvoked"
	default:
		return "Unknown"
	}
}

// Decision is the driver's reply to a request that carries one.
type Decision byte

const (
	// Continue tells the wrapper to proceed (retry or forward output).
	Continue Decision = 0
	// GiveUp tells the wrapper to abandon the build.
	GiveUp Decision = 1
)

func (d Decision) String() string {
	if d == Continue {
		return "Continue"
	}

	return "GiveUp"
}

// Request is the envelope for every W→D message. Exactly one of the
// payload fields is meaningful, selected by Tag.
type Request struct {
	Tag Tag

	Package policy.PackageID

	// CompilerCompleted
	SourcePaths []string

	// PackageUsesUnsafe
	Locations []unsafescan.Location

	// BuildHelperOutput
	HelperPath  string
	ExitCode    int
	Stdout      []byte
	Stderr      []byte
	SandboxUsed policy.SandboxSpec

	// LinkerInvoked
	LinkInputs []string
	LinkOutput string
	IsHelper   bool
}

// Response is the envelope for every D→W message.
type Response struct {
	// Ack is true for tags that are acknowledged rather than arbitrated
	// (CompilerStarted, CompilerCompleted). Decision is meaningless when
	// Ack is true.
	Ack      bool
	Decision Decision
}
