//go:build !windows

package measure

import (
	"io/fs"
)

// allocatedSize has no portable POSIX equivalent of Windows' compressed/
// allocated file size query wired up here, so it always reports "none" and
// lets the caller fall back to the logical size, matching the behavior of
// the scanner this package's probe is modeled on.
func allocatedSize(path string, info fs.FileInfo) (int64, bool) {
	return 0, false
}

// fileAttributes always reports Hidden false on POSIX: there is no
// filesystem-level hidden or system attribute bit outside Windows, and a
// leading dot in a name is a shell/tooling convention, not a filesystem
// property, so it is deliberately not treated as hidden here.
func fileAttributes(name string, info fs.FileInfo) Attributes {
	return Attributes{
		Hidden:       false,
		ReparsePoint: info.Mode()&fs.ModeSymlink != 0,
	}
}
