package main

import (
	"time"

	"refinery/core"
)

// ServiceConfig holds process-level configuration: where to listen, where
// state lives on disk, and how often to sample the GPU. Request defaults
// are loaded separately by the refiner package.
type ServiceConfig struct {
	// HTTP server
	Port int
	Host string

	// Paths. The output artifact directory lives in refiner.Config since
	// request handling owns it.
	DatabasePath    string
	MigrationsPath  string
	WeightsManifest string
	LogFile         string

	// GPU sampling
	GPUPollInterval time.Duration
	GPUHistorySize  int

	// History retention. Zero disables pruning.
	HistoryRetention time.Duration
	PruneInterval    time.Duration

	// Shutdown grace period for in-flight requests and cleanup handlers.
	ShutdownTimeout time.Duration
}

// LoadServiceConfig reads process configuration from the environment.
// Invalid or absent values fall back to defaults.
func LoadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Port: core.ParseIntEnv("REFINERY_PORT", 5000),
		Host: core.GetEnvOrDefault("REFINERY_HOST", "localhost"),

		DatabasePath:    core.GetEnvOrDefault("REFINERY_DB_PATH", core.GetDataFilePath("history.db")),
		MigrationsPath:  core.GetEnvOrDefault("REFINERY_MIGRATIONS_PATH", "file://history/migrations"),
		WeightsManifest: core.GetEnvOrDefault("REFINERY_WEIGHTS_MANIFEST", ""),
		LogFile:         core.GetEnvOrDefault("REFINERY_LOG_FILE", "refinery.log"),

		GPUPollInterval: core.ParseDurationEnv("REFINERY_GPU_POLL_SECONDS", 5),
		GPUHistorySize:  core.ParseIntEnv("REFINERY_GPU_HISTORY_SIZE", 720),

		HistoryRetention: core.ParseDurationEnv("REFINERY_HISTORY_RETENTION_SECONDS", 0),
		PruneInterval:    core.ParseDurationEnv("REFINERY_PRUNE_INTERVAL_SECONDS", 3600),

		ShutdownTimeout: core.ParseDurationEnv("REFINERY_SHUTDOWN_TIMEOUT_SECONDS", 60),
	}
}
