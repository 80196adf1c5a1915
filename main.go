package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"refinery/core"
	"refinery/core/validation"
	"refinery/engine"
	"refinery/history"
	"refinery/logging"
	"refinery/metrics"
	"refinery/refiner"
	"refinery/server"
	"refinery/shutdown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Service management commands (install, uninstall, start, stop) are
	// handled before anything else touches the environment.
	if HandleServiceCommand(os.Args) {
		return core.ExitCodeSuccess
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	isDevelopment := os.Getenv("REFINERY_DEV_MODE") == "true"
	config := LoadServiceConfig()
	refinerConfig := refiner.LoadConfig()

	logger, err := logging.NewLogger(isDevelopment, config.LogFile)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Failed to sync logger: %v\n", syncErr)
		}
	}()

	logger.Info("refinery starting",
		zap.String("version", core.GetVersionInfo()),
		zap.String("backend", engine.BackendInfo()),
		zap.Bool("dev_mode", isDevelopment),
	)

	weights, err := engine.LoadWeightsConfig(config.WeightsManifest)
	if err != nil {
		logger.Error("failed to load weights manifest", zap.Error(err))
		return core.ExitCodeError
	}

	if exitCode := runStartupValidation(logger, config, refinerConfig.OutputDir, weights); exitCode != core.ExitCodeSuccess {
		return exitCode
	}

	logger.Info("configuration loaded",
		zap.String("addr", fmt.Sprintf("%s:%d", config.Host, config.Port)),
		zap.String("output_dir", refinerConfig.OutputDir),
		zap.String("database", config.DatabasePath),
		zap.String("weights_manifest", config.WeightsManifest),
		zap.Duration("gpu_poll_interval", config.GPUPollInterval),
		zap.Duration("history_retention", config.HistoryRetention),
	)

	return runService(logger, config, refinerConfig, weights)
}

// runService wires the model host, stores, predictor and HTTP server
// together and blocks until shutdown. Split from run so the logger sync
// deferred there still happens after everything here unwinds.
func runService(logger *logging.Logger, config ServiceConfig, refinerConfig refiner.Config, weights engine.WeightsConfig) int {
	manager := shutdown.NewManager(logger.Zap(), shutdown.WithTimeout(config.ShutdownTimeout))
	manager.Start()

	// Model host: loads every pipeline onto the device once, up front.
	host, err := engine.LoadHost(engine.HostConfig{
		Weights: weights,
		Logger:  logger.Zap().Named("engine"),
	})
	if err != nil {
		logger.Error("failed to load model host", zap.Error(err))
		return core.ExitCodeError
	}
	manager.Register("model-host", 40, func(context.Context) error {
		return host.Close()
	})

	// Prediction history, persisted in SQLite.
	store, err := history.Open(config.DatabasePath, config.MigrationsPath, logger.Zap().Named("history"))
	if err != nil {
		logger.Error("failed to open history store", zap.Error(err))
		return core.ExitCodeError
	}
	manager.Register("history-store", 30, func(context.Context) error {
		return store.Close()
	})

	// In-memory request metrics and GPU sampling.
	requestStore := metrics.NewStore(metrics.StoreConfig{
		HistoryCapacity: 100,
		Version:         core.GetVersion(),
		Backend:         engine.BackendInfo(),
	}, time.Now())

	gpuCollector := metrics.NewGPUCollector(metrics.GPUCollectorConfig{
		CollectionInterval: config.GPUPollInterval,
		HistorySize:        config.GPUHistorySize,
	}, requestStore.UpdateGPUMetrics)
	gpuCollector.Start()
	manager.Register("gpu-collector", 10, func(context.Context) error {
		gpuCollector.Stop()
		return nil
	})

	predictor := refiner.NewPredictor(host,
		refiner.WithOutputDir(refinerConfig.OutputDir),
		refiner.WithLogger(logger.Zap().Named("refiner")),
		refiner.WithRecorder(store),
		refiner.WithRecorder(requestStore),
	)

	if config.HistoryRetention > 0 {
		startPruner(manager, store, logger, config.HistoryRetention, config.PruneInterval)
	}

	// Optional: treat the output directory as scratch space and clear it
	// on exit. Off by default since callers usually keep artifacts.
	if core.ParseBoolEnv("REFINERY_CLEAN_OUTPUTS_ON_EXIT", false) {
		manager.Register("output-cleanup", 50,
			shutdown.CleanupArtifacts(logger.Zap(), refinerConfig.OutputDir, "out-*.png"))
	}

	serverConfig := server.DefaultServerConfig()
	serverConfig.Port = config.Port
	serverConfig.Host = config.Host
	serverConfig.ShutdownTimeout = config.ShutdownTimeout

	apiConfig := server.DefaultAPIConfig()
	apiConfig.Defaults = refinerConfig.Params()

	api := server.NewAPI(guardedPredicter{manager, predictor}, requestStore, gpuCollector, store, apiConfig)
	srv := server.NewServer(serverConfig, api, logger.Zap().Named("http"))
	manager.Register("http-server", 5, srv.Shutdown)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			requestStore.SetDegraded(true)
			manager.Shutdown()
			return core.ExitCodeError
		}
	case <-manager.Context().Done():
	}

	if err := manager.Shutdown(); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
		return core.ExitCodeError
	}

	logger.Info("refinery stopped")
	return core.ExitCodeSuccess
}

// guardedPredicter wraps the predictor in the shutdown manager so requests
// are tracked in flight and rejected once shutdown begins.
type guardedPredicter struct {
	manager   *shutdown.Manager
	predictor *refiner.Predictor
}

func (g guardedPredicter) Predict(ctx context.Context, params refiner.Params) (*refiner.Result, error) {
	var result *refiner.Result
	err := g.manager.WrapOperation(ctx, "predict", func(ctx context.Context) error {
		var predictErr error
		result, predictErr = g.predictor.Predict(ctx, params)
		return predictErr
	})
	return result, err
}

// startPruner deletes history rows older than the retention window on a
// fixed interval until shutdown.
func startPruner(manager *shutdown.Manager, store *history.Store, logger *logging.Logger, retention, interval time.Duration) {
	if interval < time.Minute {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-manager.Context().Done():
				return
			case <-ticker.C:
				pruned, err := store.Prune(manager.Context(), retention)
				if err != nil {
					logger.Warn("history prune failed", zap.Error(err))
					continue
				}
				if pruned > 0 {
					logger.Info("history pruned", zap.Int64("rows", pruned))
				}
			}
		}
	}()
}

// runStartupValidation checks directories, the weights manifest and weight
// caches before any device work happens.
//
// Returns ExitCodeSuccess (0) if all checks pass, ExitCodeError (1) otherwise.
func runStartupValidation(logger *logging.Logger, config ServiceConfig, outputDir string, weights engine.WeightsConfig) int {
	logger.Info("running startup validation")

	// Even the stub backend stats its weight caches at load time, so the
	// check runs for every backend.
	suite := validation.NewValidationSuite().
		WithPaths(outputDir, config.DatabasePath, config.WeightsManifest).
		WithRequireWeights(true).
		WithShowProgress(true)

	result := suite.Validate(weights)

	if !result.Success {
		logger.Error("startup validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)

		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}

		return core.ExitCodeError
	}

	logger.Info("startup validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}
