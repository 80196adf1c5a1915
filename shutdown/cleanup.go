package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// CleanupArtifacts returns a cleanup function that removes files matching
// pattern in dir. Individual removal failures are logged, not returned, so
// cleanup never blocks shutdown.
//
// Priority recommendation: 40+ (after services stopped).
//
// Usage:
//
//	manager.Register("scratch-outputs", 45,
//	    shutdown.CleanupArtifacts(logger, cfg.OutputDir, "out-*.png"))
func CleanupArtifacts(logger *zap.Logger, dir, pattern string) Func {
	return func(ctx context.Context) error {
		return removeMatching(ctx, logger, dir, pattern)
	}
}

// CleanupArtifactsAndDir returns a cleanup function that removes matching
// files and then the directory itself. Use only for purely transient
// directories.
func CleanupArtifactsAndDir(logger *zap.Logger, dir, pattern string) Func {
	return func(ctx context.Context) error {
		if err := removeMatching(ctx, logger, dir, pattern); err != nil {
			logger.Warn("error during artifact cleanup, continuing with directory removal",
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			logger.Warn("shutdown context cancelled, skipping directory removal")
			return nil
		default:
		}

		return removeDir(logger, dir)
	}
}

func removeMatching(ctx context.Context, logger *zap.Logger, dir, pattern string) error {
	glob := filepath.Join(dir, pattern)
	matches, err := filepath.Glob(glob)
	if err != nil {
		logger.Error("failed to list artifacts",
			zap.String("pattern", glob),
			zap.Error(err),
		)
		return nil
	}

	if len(matches) == 0 {
		return nil
	}

	logger.Info("cleaning up artifacts", zap.Int("file_count", len(matches)))

	var removed, failed int
	for _, match := range matches {
		select {
		case <-ctx.Done():
			logger.Warn("shutdown context cancelled during cleanup",
				zap.Int("removed", removed),
				zap.Int("remaining", len(matches)-removed-failed),
			)
			return nil
		default:
		}

		if err := os.Remove(match); err != nil {
			failed++
			logger.Warn("failed to remove artifact",
				zap.String("file", filepath.Base(match)),
				zap.Error(err),
			)
		} else {
			removed++
		}
	}

	logger.Info("artifact cleanup complete",
		zap.Int("removed", removed),
		zap.Int("failed", failed),
	)

	return nil
}

func removeDir(logger *zap.Logger, dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		logger.Error("failed to stat directory",
			zap.String("directory", dir),
			zap.Error(err),
		)
		return nil
	}

	if !info.IsDir() {
		logger.Warn("cleanup path is not a directory", zap.String("path", dir))
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		logger.Error("failed to remove directory",
			zap.String("directory", dir),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("removed directory", zap.String("directory", dir))
	return nil
}
