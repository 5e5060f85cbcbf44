package control

import (
	"fmt"
	"net"

	"github.com/wardline/confine/policy"
	"github.com/wardline/confine/unsafescan"
)

// Conn is a wrapper's handle on one control-channel connection. A
// wrapper sends one or more requests and reads the corresponding
// response for each, in order; the build-helper role reuses the same
// Conn across its retry loop (spec.md §4.5).
type Conn struct {
	nc net.Conn
}

// Dial connects to the control-channel socket at addr (a unix socket
// path advertised to the wrapper via environment variable).
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing control channel %s: %w", addr, err)
	}

	return &Conn{nc: nc}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

func (c *Conn) roundTrip(req Request) (Response, error) {
	if err := writeFrame(c.nc, req); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := readFrame(c.nc, &resp); err != nil {
		return Response{}, err
	}

	return resp, nil
}

// CompilerStarted sends CompilerStarted(pkg) and waits for the ack.
func (c *Conn) CompilerStarted(pkg policy.PackageID) error {
	_, err := c.roundTrip(Request{Tag: TagCompilerStarted, Package: pkg})

	return err
}

// CompilerCompleted sends CompilerCompleted(pkg, sourcePaths) and waits
// for the ack.
func (c *Conn) CompilerCompleted(pkg policy.PackageID, sourcePaths []string) error {
	_, err := c.roundTrip(Request{Tag: TagCompilerCompleted, Package: pkg, SourcePaths: sourcePaths})

	return err
}

// PackageUsesUnsafe sends PackageUsesUnsafe(pkg, locations) and returns
// the driver's decision.
func (c *Conn) PackageUsesUnsafe(pkg policy.PackageID, locations []unsafescan.Location) (Decision, error) {
	resp, err := c.roundTrip(Request{Tag: TagPackageUsesUnsafe, Package: pkg, Locations: locations})
	if err != nil {
		return GiveUp, err
	}

	return resp.Decision, nil
}

// BuildHelperOutput sends BuildHelperOutput(...) and returns the
// driver's decision.
func (c *Conn) BuildHelperOutput(pkg policy.PackageID, helperPath string, exitCode int, stdout, stderr []byte, sandboxUsed policy.SandboxSpec) (Decision, error) {
	resp, err := c.roundTrip(Request{
		Tag:         TagBuildHelperOutput,
		Package:     pkg,
		HelperPath:  helperPath,
		ExitCode:    exitCode,
		Stdout:      stdout,
		Stderr:      stderr,
		SandboxUsed: sandboxUsed,
	})
	if err != nil {
		return GiveUp, err
	}

	return resp.Decision, nil
}

// LinkerInvoked sends LinkerInvoked(inputs, output, isHelper) and
// returns the driver's decision.
func (c *Conn) LinkerInvoked(inputs []string, output string, isHelper bool) (Decision, error) {
	resp, err := c.roundTrip(Request{
		Tag:        TagLinkerInvoked,
		LinkInputs: inputs,
		LinkOutput: output,
		IsHelper:   isHelper,
	})
	if err != nil {
		return GiveUp, err
	}

	return resp.Decision, nil
}
