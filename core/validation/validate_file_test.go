package validation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := CheckFileExists(file); err != nil {
		t.Errorf("existing file: %v", err)
	}
	if err := CheckFileExists(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file must fail")
	}
	if err := CheckFileExists(dir); err == nil {
		t.Error("directory must fail")
	}
	if err := CheckFileExists(""); err == nil {
		t.Error("empty path must fail")
	}
}

func TestCheckWritableDir(t *testing.T) {
	if err := CheckWritableDir(t.TempDir()); err != nil {
		t.Errorf("writable dir: %v", err)
	}

	// Creates missing directories.
	nested := filepath.Join(t.TempDir(), "a", "b")
	if err := CheckWritableDir(nested); err != nil {
		t.Errorf("nested dir: %v", err)
	}
	if _, err := os.Stat(nested); err != nil {
		t.Errorf("directory must exist after check: %v", err)
	}

	if err := CheckWritableDir(""); err == nil {
		t.Error("empty path must fail")
	}
}

func TestCheckWritableDir_LeavesNoProbe(t *testing.T) {
	dir := t.TempDir()
	if err := CheckWritableDir(dir); err != nil {
		t.Fatalf("check: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}
