//go:build linux

package sandbox

// MountKind selects the bwrap mount operation a Mount describes.
type MountKind int

const (
	// MountRoBind bind-mounts Src read-only at Dst.
	MountRoBind MountKind = iota
	// MountRoBindTry is MountRoBind, but missing Src is tolerated at
	// planning time instead of failing sandbox construction.
	MountRoBindTry
	// MountBind bind-mounts Src read-write at Dst.
	MountBind
	// MountTmpfs mounts a fresh, empty tmpfs at Dst. Src is ignored.
	MountTmpfs
	// MountDir creates an empty directory at Dst inside the sandbox. Src
	// is ignored.
	MountDir
)

func mountKindName(kind MountKind) string {
	switch kind {
	case MountRoBind:
		return "ro-bind"
	case MountRoBindTry:
		return "ro-bind-try"
	case MountBind:
		return "bind"
	case MountTmpfs:
		return "tmpfs"
	case MountDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Mount is a single low-level bwrap mount operation.
//
// Src is the host source path for bind mounts; it is ignored for MountTmpfs
// and MountDir. Dst is the absolute destination path inside the sandbox.
type Mount struct {
	Kind MountKind
	Src  string
	Dst  string
}
