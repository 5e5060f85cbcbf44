package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// capturedRun is the outcome of running a child process to completion
// with its stdout/stderr captured rather than connected to the parent's
// streams (compiler and build-helper roles both need the bytes to decide
// what to report to the driver before deciding whether to forward them).
type capturedRun struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// runCaptured starts path with args under env/dir, waits for it under
// ctx, and captures its output. A cancelled ctx kills the process; this
// mirrors the compiler/linker/build-helper roles' single blocking child,
// which never needs the two-stage SIGTERM-then-SIGKILL shutdown the
// long-lived driver's own wrapped command does (see runPackageManager).
func runCaptured(ctx context.Context, path string, args []string, env map[string]string, dir string) (capturedRun, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Env = envMapToSlice(env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := capturedRun{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("running %s: %w", path, err)
	}

	return res, nil
}

// execPassthrough execs path with args, connecting the child directly to
// the parent's own stdio, and returns its exit code. Used for query-mode
// toolchain invocations (e.g. --version) that never talk to the driver.
func execPassthrough(ctx context.Context, path string, args []string, env map[string]string) int {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = envMapToSlice(env)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return 1
	}
}
