//go:build darwin

package drives

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// networkFilesystems and pseudoFilesystems filter /Volumes entries down to
// physical disks (grounded on lumipallolabs-diskdive's drives_darwin.go
// isFilteredFilesystem).
var (
	networkFilesystems = map[string]bool{"smbfs": true, "nfs": true, "afpfs": true, "webdav": true, "cifs": true}
	pseudoFilesystems  = map[string]bool{"devfs": true, "autofs": true, "mtmfs": true, "nullfs": true}
)

func diskSpace(path string) (total, free int64) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0
	}
	total = int64(st.Blocks) * int64(st.Bsize)
	free = int64(st.Bavail) * int64(st.Bsize)
	return total, free
}

func platformDrives() ([]Drive, error) {
	root := Drive{Name: "Macintosh HD", Path: "/"}
	root.TotalBytes, root.FreeBytes = diskSpace("/")
	out := []Drive{root}

	entries, err := os.ReadDir("/Volumes")
	if err != nil {
		return out, nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		volumePath := filepath.Join("/Volumes", entry.Name())
		var st unix.Statfs_t
		if err := unix.Statfs(volumePath, &st); err != nil {
			continue
		}
		fsType := int8ArrayToString(st.Fstypename[:])
		if networkFilesystems[fsType] || pseudoFilesystems[fsType] {
			continue
		}
		d := Drive{Name: entry.Name(), Path: volumePath}
		d.TotalBytes, d.FreeBytes = diskSpace(volumePath)
		if d.TotalBytes > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func int8ArrayToString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, v := range arr {
		if v == 0 {
			break
		}
		b = append(b, byte(v))
	}
	return string(b)
}
