package shutdown

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCleanupArtifacts_RemovesOnlyMatching(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "out-0-abc.png"))
	touch(t, filepath.Join(dir, "out-0-def.png"))
	touch(t, filepath.Join(dir, "keep.txt"))

	fn := CleanupArtifacts(zap.NewNop(), dir, "out-*.png")
	if err := fn(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "keep.txt" {
		t.Errorf("remaining entries: %v", entries)
	}
}

func TestCleanupArtifacts_EmptyDirNoError(t *testing.T) {
	fn := CleanupArtifacts(zap.NewNop(), t.TempDir(), "out-*.png")
	if err := fn(context.Background()); err != nil {
		t.Errorf("cleanup of empty dir: %v", err)
	}
}

func TestCleanupArtifactsAndDir_RemovesDirectory(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "scratch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	touch(t, filepath.Join(dir, "out-0-abc.png"))

	fn := CleanupArtifactsAndDir(zap.NewNop(), dir, "out-*.png")
	if err := fn(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory must be removed")
	}
}

func TestCleanupArtifactsAndDir_MissingDirNoError(t *testing.T) {
	fn := CleanupArtifactsAndDir(zap.NewNop(), "/nonexistent/refinery-scratch", "out-*")
	if err := fn(context.Background()); err != nil {
		t.Errorf("cleanup of missing dir: %v", err)
	}
}
