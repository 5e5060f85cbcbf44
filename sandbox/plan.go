//go:build linux

package sandbox

// This file builds the deterministic list of bwrap arguments for one Run:
// base namespace flags, the root filesystem, a fixed set of directories a
// dynamically linked binary needs to execute, then the SandboxSpec's
// read-only and writable bindings in order, then the chdir target.
//
// Unlike the general-purpose planner this package descends from, there is
// no glob expansion, no exact-vs-glob precedence, and no exclude masking:
// a SandboxSpec is already a flat, resolved list of host paths.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardline/confine/policy"
)

type pathResolver struct {
	homeDir string
	workDir string
}

// resolve converts a caller-supplied path into an absolute, cleaned host
// path. "~" and "~/..." expand against homeDir; relative paths resolve
// against workDir.
func (p pathResolver) resolve(path string) string {
	if path == "" {
		return ""
	}

	switch {
	case path == "~":
		path = p.homeDir
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(p.homeDir, path[2:])
	case !filepath.IsAbs(path):
		path = filepath.Join(p.workDir, path)
	}

	return filepath.Clean(path)
}

func buildPlan(cfg Config, env Environment, spec policy.SandboxSpec) ([]string, error) {
	paths := pathResolver{homeDir: env.HomeDir, workDir: env.WorkDir}

	args := make([]string, 0, 32+4*(len(spec.ReadOnly)+len(spec.Writable)))
	args = append(args, "--die-with-parent", "--unshare-all")

	if cfg.Network {
		args = append(args, "--share-net")
	}

	baseFS := cfg.BaseFS
	if baseFS == "" {
		baseFS = BaseFSEmpty
	}

	switch baseFS {
	case BaseFSHost:
		args = append(args, "--ro-bind", "/", "/")
	case BaseFSEmpty:
		args = append(args, "--tmpfs", "/")
	default:
		return nil, fmt.Errorf("sandbox: unknown BaseFS %q", baseFS)
	}

	args = append(args, "--dev", "/dev", "--proc", "/proc")
	args = append(args, "--tmpfs", "/run")

	if cfg.Network {
		if dnsArgs := dnsResolverArgs(cfg.Debugf); len(dnsArgs) > 0 {
			args = append(args, dnsArgs...)
		}
	}

	if cfg.TempDir != "" {
		args = append(args, "--bind", cfg.TempDir, "/tmp", "--setenv", "TMPDIR", "/tmp")
	}

	var mounts []Mount

	if baseFS == BaseFSEmpty {
		for _, dir := range systemDirs {
			if _, err := os.Stat(dir); err == nil {
				mounts = append(mounts, Mount{Kind: MountRoBindTry, Src: dir, Dst: dir})
			}
		}

		// The command is always chdir'd into WorkDir; make sure it exists
		// inside the sandbox even if the SandboxSpec grants no access to
		// it. A later Writable binding covering the same path overrides
		// this (bwrap mounts apply in argument order).
		mounts = append(mounts, Mount{Kind: MountRoBindTry, Src: env.WorkDir, Dst: env.WorkDir})
	}

	for i, host := range spec.ReadOnly {
		resolved := paths.resolve(host)
		if resolved == "" {
			return nil, fmt.Errorf("sandbox: read-only binding %d is empty", i)
		}

		mounts = append(mounts, Mount{Kind: MountRoBind, Src: resolved, Dst: resolved})
	}

	for i, host := range spec.Writable {
		resolved := paths.resolve(host)
		if resolved == "" {
			return nil, fmt.Errorf("sandbox: writable binding %d is empty", i)
		}

		mounts = append(mounts, Mount{Kind: MountBind, Src: resolved, Dst: resolved})
	}

	for _, m := range mounts {
		mountArgs, err := mountToArgs(m)
		if err != nil {
			return nil, err
		}

		args = append(args, mountArgs...)
	}

	args = append(args, "--chdir", env.WorkDir)

	return args, nil
}

func mountToArgs(m Mount) ([]string, error) {
	switch m.Kind {
	case MountRoBind:
		return []string{"--ro-bind", m.Src, m.Dst}, nil
	case MountRoBindTry:
		return []string{"--ro-bind-try", m.Src, m.Dst}, nil
	case MountBind:
		return []string{"--bind", m.Src, m.Dst}, nil
	case MountTmpfs:
		return []string{"--tmpfs", m.Dst}, nil
	case MountDir:
		return []string{"--dir", m.Dst}, nil
	default:
		return nil, fmt.Errorf("sandbox: unknown mount kind %s (dst=%q)", mountKindName(m.Kind), m.Dst)
	}
}
