// Package drives enumerates the mounted filesystem roots a scan's root-path
// picker can offer, platform by platform (spec.md §5 supplemented feature
// "Drive/volume listing").
package drives

// Drive is one mountable root a user can start a scan from.
type Drive struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	TotalBytes int64  `json:"total_bytes"`
	FreeBytes  int64  `json:"free_bytes"`
}

// UsedBytes returns the bytes in use on the drive.
func (d Drive) UsedBytes() int64 {
	return d.TotalBytes - d.FreeBytes
}

// List returns the platform's mountable roots. A probe failure on any one
// entry is skipped rather than failing the whole call; an empty result is a
// valid answer, not an error.
func List() ([]Drive, error) {
	return platformDrives()
}
