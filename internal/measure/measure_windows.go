//go:build windows

package measure

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	fileAttributeHidden       = 0x2
	fileAttributeSystem       = 0x4
	fileAttributeReparsePoint = 0x400
)

// allocatedSize calls GetCompressedFileSizeW, the same API the source
// scanner this package is modeled on uses to learn how many bytes a file
// actually occupies on disk (accounting for NTFS compression and sparse
// regions). Returns (0, false) on any error, including INVALID_FILE_SIZE
// with a non-zero last error.
func allocatedSize(path string, info fs.FileInfo) (int64, bool) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, false
	}
	var high uint32
	low, err := windows.GetCompressedFileSize(ptr, &high)
	if err != nil {
		return 0, false
	}
	if low == windows.INVALID_FILE_SIZE {
		return 0, false
	}
	return int64(high)<<32 | int64(low), true
}

// fileAttributes reads the Win32 hidden/system and reparse-point bits off
// the file's attribute mask.
func fileAttributes(name string, info fs.FileInfo) Attributes {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return Attributes{}
	}
	attrs := sys.FileAttributes
	return Attributes{
		Hidden:       attrs&(fileAttributeHidden|fileAttributeSystem) != 0,
		ReparsePoint: attrs&fileAttributeReparsePoint != 0,
	}
}
