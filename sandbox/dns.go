//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// dnsResolverArgs returns extra bwrap args needed to keep DNS resolution
// working when /etc/resolv.conf is a symlink into /run, as systemd-resolved
// commonly arranges. The sandbox's /run is a fresh tmpfs, which would
// otherwise dangle that symlink; this bind-mounts the symlink target's
// parent directory from the host into the sandbox's /run.
//
// Only called when the sandbox Config shares the host network namespace.
func dnsResolverArgs(debugf Debugf) []string {
	const resolvConf = "/etc/resolv.conf"

	target, err := os.Readlink(resolvConf)
	if err != nil {
		return nil
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(resolvConf), target)
	}

	target = filepath.Clean(target)
	if !strings.HasPrefix(target, "/run/") {
		return nil
	}

	parent := filepath.Dir(target)
	if parent == "" || parent == "/" || parent == "/run" {
		return nil
	}

	info, err := os.Stat(parent)
	if err != nil || !info.IsDir() {
		return nil
	}

	if debugf != nil {
		debugf("sandbox: resolv.conf symlinks to %q under %q; bind-mounting it into the sandbox", target, parent)
	}

	return []string{"--dir", parent, "--ro-bind", parent, parent}
}
