package core

import "fmt"

// Byte size constants for human-readable formatting.
// Binary units (1024 base) as is standard for file sizes.
const (
	BytesPerKB int64 = 1024
	BytesPerMB int64 = 1024 * BytesPerKB
	BytesPerGB int64 = 1024 * BytesPerMB
	BytesPerTB int64 = 1024 * BytesPerGB
)

// FormatBytes converts a byte count to a human-readable string.
// Uses binary units (KiB = 1024 bytes) but displays as KB/MB/GB/TB for
// familiarity.
//
// Examples:
//   - FormatBytes(512) returns "512 B"
//   - FormatBytes(1536) returns "1.50 KB"
//   - FormatBytes(1073741824) returns "1.00 GB"
//
// This is a pure function with no side effects.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	switch {
	case bytes >= BytesPerTB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(BytesPerTB))
	case bytes >= BytesPerGB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(BytesPerGB))
	case bytes >= BytesPerMB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(BytesPerMB))
	case bytes >= BytesPerKB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(BytesPerKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
