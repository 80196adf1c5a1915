package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"refinery/core"
)

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	// Path that was checked
	Path string
	// Total disk space in bytes
	Total int64
	// Free disk space in bytes
	Free int64
	// Used disk space in bytes
	Used int64
	// Human-readable total
	TotalFormatted string
	// Human-readable free
	FreeFormatted string
	// Percentage used (0-100)
	UsedPercent float64
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
	Message   string
}

func (e *DiskSpaceError) Error() string {
	return e.Message
}

// GetDiskSpace returns disk space information for the given path.
// The path can be a file or directory; the filesystem containing that path
// is checked. A nonexistent path falls back to its nearest existing parent.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			parent := filepath.Dir(path)
			if parent != "" && parent != path {
				return GetDiskSpace(parent)
			}
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}

	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	used := total - free
	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}

	return &DiskSpaceInfo{
		Path:           path,
		Total:          total,
		Free:           free,
		Used:           used,
		TotalFormatted: core.FormatBytes(total),
		FreeFormatted:  core.FormatBytes(free),
		UsedPercent:    usedPercent,
	}, nil
}

// CheckDiskSpace verifies there is sufficient free space at the given path.
// Returns nil if there is enough, or a *DiskSpaceError if not.
func CheckDiskSpace(path string, requiredBytes int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}

	if info.Free < requiredBytes {
		return &DiskSpaceError{
			Path:      path,
			Required:  requiredBytes,
			Available: info.Free,
			Message: fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
				path, core.FormatBytes(requiredBytes), info.FreeFormatted),
		}
	}

	return nil
}

// DefaultOutputSpaceBytes is the minimum free space required in the output
// directory. A batch of 2048px PNG outputs runs tens of megabytes; 1GB
// leaves comfortable headroom for sustained use.
const DefaultOutputSpaceBytes int64 = 1 * core.BytesPerGB

// CheckOutputDiskSpace checks free space in the output artifact directory.
func CheckOutputDiskSpace(path string) error {
	return CheckDiskSpace(path, DefaultOutputSpaceBytes)
}
