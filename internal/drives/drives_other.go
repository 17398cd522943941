//go:build !windows && !darwin

package drives

import "golang.org/x/sys/unix"

// platformDrives reports just the root filesystem on POSIX platforms other
// than darwin; there is no portable "logical drives" concept on Linux, so
// this mirrors the placeholder single-root behavior of
// lumipallolabs-diskdive's getUnixMounts, upgraded to report real capacity
// via statfs rather than leaving it zeroed.
func platformDrives() ([]Drive, error) {
	d := Drive{Name: "/", Path: "/"}
	var st unix.Statfs_t
	if err := unix.Statfs("/", &st); err == nil {
		d.TotalBytes = int64(st.Blocks) * int64(st.Bsize)
		d.FreeBytes = int64(st.Bavail) * int64(st.Bsize)
	}
	return []Drive{d}, nil
}
