package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the service name used in data directory paths.
const AppName = "refinery"

// GetDataDirectory returns the platform-specific data directory path for the
// service. This is a pure function based on runtime.GOOS and environment
// variables.
//
// Paths by platform:
//   - Windows: %APPDATA%\refinery
//   - Linux/macOS: ~/.refinery
//
// Does NOT create the directory. Callers should use EnsureDataDirectory
// for that.
func GetDataDirectory() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return AppName
			}
			return filepath.Join(home, "AppData", "Roaming", AppName)
		}
		return filepath.Join(appData, AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "." + AppName
		}
		return filepath.Join(home, "."+AppName)
	}
}

// GetDataFilePath returns the full path for a file within the data directory.
// Example: GetDataFilePath("history.db") -> "/home/user/.refinery/history.db"
func GetDataFilePath(filename string) string {
	return filepath.Join(GetDataDirectory(), filename)
}

// EnsureDataDirectory creates the data directory if it doesn't exist.
// Returns the directory path and any error encountered.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
