//go:build windows

package drives

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// platformDrives enumerates letter drives A:-Z: that exist, using
// GetDiskFreeSpaceExW for capacity (grounded on lumipallolabs-diskdive's
// drives_windows.go getPlatformDrives/getDiskSpace).
func platformDrives() ([]Drive, error) {
	var out []Drive
	for letter := 'A'; letter <= 'Z'; letter++ {
		path := fmt.Sprintf("%c:\\", letter)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}
		total, free := diskSpace(path)
		out = append(out, Drive{Name: string(letter) + ":", Path: path, TotalBytes: total, FreeBytes: free})
	}
	return out, nil
}

func diskSpace(path string) (total, free int64) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0
	}
	var freeAvail, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeAvail, &totalBytes, &totalFree); err != nil {
		return 0, 0
	}
	return int64(totalBytes), int64(freeAvail)
}
