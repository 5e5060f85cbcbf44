package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/wardline/confine/control"
	"github.com/wardline/confine/policy"
)

// cleanupTimeout bounds how long the driver waits for the package-manager
// child to exit gracefully after a SIGTERM before escalating to SIGKILL.
const cleanupTimeout = 10 * time.Second

// driverExitGiveUp is returned when the package manager itself exited zero
// but at least one problem was resolved with GiveUp, meaning the build
// cannot be considered confined (§4.8 step 5).
const driverExitGiveUp = 1

// Driver holds everything the accept loop needs to answer wrapper
// requests: the policy store, and a single mutex serializing operator
// prompts, since only one interactive session can own the terminal at a
// time (§5 "shared resources": the operator's attention is a serialized
// resource like the policy file).
type Driver struct {
	store          *policy.Store
	nonInteractive bool
	dbg            *DebugLogger
	stdout         io.Writer

	operatorMu sync.Mutex
	gaveUp     atomic.Bool
}

// runDriverCLI parses the driver's own flags, starts the control channel
// and the package-manager child, and serves wrapper requests until the
// child exits (component J).
func runDriverCLI(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	flags := flag.NewFlagSet("confine", flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}

	flagPolicy := flags.String("policy", "", "Path to the policy file")
	flagDebug := flags.Bool("debug", false, "Print wrapper and policy decisions to stderr")
	flagNonInteractive := flags.Bool("non-interactive", false, "Never prompt; give up on every unresolved problem")

	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintf(stderr, "confine: %v\n", err)

		return 1
	}

	commandAndArgs := flags.Args()
	if len(commandAndArgs) == 0 {
		fmt.Fprintln(stderr, "confine: usage: confine [--policy path] [--debug] [--non-interactive] -- <command> [args...]")

		return 1
	}

	cfg, err := LoadAppConfig(LoadAppConfigInput{
		PolicyPathFlag:   *flagPolicy,
		DebugFlag:        *flagDebug,
		DebugFlagChanged: flags.Changed("debug"),
		NonInteractive:   *flagNonInteractive,
		Env:              env,
	})
	if err != nil {
		fmt.Fprintf(stderr, "confine: %v\n", err)

		return 1
	}

	var dbg *DebugLogger
	if cfg.Debug {
		dbg = NewDebugLogger(stderr)
	}

	compilerPath, err := exec.LookPath(cfg.CompilerName)
	if err != nil {
		fmt.Fprintf(stderr, "confine: locating real compiler %q: %v\n", cfg.CompilerName, err)

		return 1
	}

	store, err := policy.OpenStore(cfg.PolicyPath)
	if err != nil {
		fmt.Fprintf(stderr, "confine: %v\n", err)

		return 1
	}
	defer store.Close()

	socketPath := filepath.Join(os.TempDir(), "confine-"+uuid.NewString()+".sock")

	listener, err := control.Listen(socketPath)
	if err != nil {
		fmt.Fprintf(stderr, "confine: %v\n", err)

		return 1
	}
	defer listener.Close()

	d := &Driver{
		store:          store,
		nonInteractive: cfg.NonInteractive,
		dbg:            dbg,
		stdout:         stdout,
	}

	if dbg.Enabled() {
		dbg.Section("driver startup")
		dbg.Bulletf("policy: %s", cfg.PolicyPath)
		dbg.Bulletf("socket: %s", socketPath)
		dbg.Bulletf("compiler: %s", compilerPath)
	}

	childEnv := withEnv(env, envSocket, socketPath)
	childEnv = withEnv(childEnv, envPolicyPath, cfg.PolicyPath)
	childEnv = withEnv(childEnv, envCompilerExe, filepath.Base(cfg.CompilerName))
	childEnv = withEnv(childEnv, envCompilerPath, compilerPath)

	if cfg.Debug {
		childEnv = withEnv(childEnv, envConfineDebug, "1")
	}

	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	termCtx, terminate := context.WithCancel(killCtx)
	defer terminate()

	go d.serve(listener)
	go d.watchPolicy(killCtx)

	done := make(chan childResult, 1)

	go func() {
		code, runErr := runPackageManager(termCtx, killCtx, commandAndArgs, childEnv, stdin, stdout, stderr)
		done <- childResult{exitCode: code, err: runErr}
	}()

	result := awaitChild(done, sigCh, terminate, kill, stderr)
	if result.err != nil {
		fmt.Fprintf(stderr, "confine: %v\n", result.err)

		return 1
	}

	if result.exitCode != 0 {
		return result.exitCode
	}

	if d.gaveUp.Load() {
		return driverExitGiveUp
	}

	return 0
}

type childResult struct {
	exitCode int
	err      error
}

// awaitChild waits for the package-manager child to finish, escalating
// through the teacher's own two-stage SIGTERM-then-SIGKILL shutdown on an
// incoming signal.
func awaitChild(done <-chan childResult, sigCh <-chan os.Signal, terminate, kill func(), stderr io.Writer) childResult {
	if sigCh == nil {
		return <-done
	}

	select {
	case result := <-done:
		return result
	case <-sigCh:
		fmt.Fprintln(stderr, "confine: interrupted, waiting up to 10s for cleanup...")
		terminate()
	}

	select {
	case result := <-done:
		return result
	case <-time.After(cleanupTimeout):
		fmt.Fprintln(stderr, "confine: cleanup timed out, forcing exit")
		kill()

		return <-done
	case <-sigCh:
		fmt.Fprintln(stderr, "confine: forced exit")
		kill()

		return <-done
	}
}

// runPackageManager runs the toolchain's package-manager command under
// the two-stage cancellation context, matching the teacher's own
// ExecuteSandbox child-process lifecycle (run.go).
func runPackageManager(termCtx, killCtx context.Context, commandAndArgs []string, env map[string]string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(killCtx, commandAndArgs[0], commandAndArgs[1:]...)
	cmd.Env = envMapToSlice(env)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	go func() {
		<-termCtx.Done()

		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}()

	err := cmd.Run()

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return 0, fmt.Errorf("running %s: %w", commandAndArgs[0], err)
	}
}

// serve accepts wrapper connections for the lifetime of the build,
// handling each on its own goroutine (§4.8 step 2: "accept connections in
// parallel").
func (d *Driver) serve(listener *control.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		go d.serveConn(conn)
	}
}

// watchPolicy reloads the policy snapshot whenever the operator edits the
// policy file directly (outside the interactive loop), so in-flight and
// future requests see the change without the driver polling for it.
func (d *Driver) watchPolicy(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.store.Changed():
			d.operatorMu.Lock()
			err := d.store.Reload()
			d.operatorMu.Unlock()

			if d.dbg.Enabled() {
				if err != nil {
					d.dbg.Bulletf("policy file changed on disk, reload failed: %v", err)
				} else {
					d.dbg.Bulletf("policy file changed on disk, reloaded")
				}
			}
		}
	}
}

func (d *Driver) serveConn(conn *control.ServerConn) {
	defer conn.Close()

	for {
		req, err := conn.ReadRequest()
		if err != nil {
			return
		}

		resp := d.handleRequest(req)

		if err := conn.Reply(resp); err != nil {
			return
		}
	}
}

// handleRequest answers one wrapper request against the current policy
// snapshot, consulting the operator only when the snapshot does not
// already permit what the wrapper is asking for (§4.8 step 3).
func (d *Driver) handleRequest(req control.Request) control.Response {
	if d.dbg.Enabled() {
		d.dbg.Section("request")
		d.dbg.Bulletf("tag: %s package: %s", req.Tag, req.Package)
	}

	switch req.Tag {
	case control.TagCompilerStarted, control.TagCompilerCompleted:
		return control.Response{Ack: true}

	case control.TagPackageUsesUnsafe:
		if d.store.Snapshot().UnsafePermitted(req.Package) {
			return control.Response{Decision: control.Continue}
		}

		return control.Response{Decision: d.resolve(problemForUnsafe(req.Package, req.Locations))}

	case control.TagBuildHelperOutput:
		if req.ExitCode == 0 {
			return control.Response{Decision: control.Continue}
		}

		return control.Response{Decision: d.resolve(problemForHelperFailure(req.Package, req.ExitCode, req.Stderr))}

	case control.TagLinkerInvoked:
		return control.Response{Decision: control.Continue}

	default:
		return control.Response{Decision: control.GiveUp}
	}
}

// resolve serializes one problem through the operator (or through the
// non-interactive GiveUp default), recording whether the build must be
// considered unconfined overall.
func (d *Driver) resolve(p problem) control.Decision {
	d.operatorMu.Lock()
	defer d.operatorMu.Unlock()

	decision, err := resolveProblem(d.store, p, d.nonInteractive, d.stdout)
	if err != nil {
		fmt.Fprintf(d.stdout, "confine: resolving problem: %v\n", err)

		decision = control.GiveUp
	}

	if decision == control.GiveUp {
		d.gaveUp.Store(true)
	}

	return decision
}

// defaultSignalChannel returns a channel fed SIGINT/SIGTERM for use by
// main, kept here so tests can exercise runDriverCLI with a nil channel
// instead.
func defaultSignalChannel() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	return sigCh
}
