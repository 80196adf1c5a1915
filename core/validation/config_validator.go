package validation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"refinery/core"
	"refinery/engine"
)

// ValidationResult is the outcome of a single configuration check.
type ValidationResult struct {
	Valid   bool
	Message string
	Error   error
}

// ConfigValidator runs individual configuration checks for the refinement
// service. Each check is independent so the suite can report them all.
type ConfigValidator struct {
	envPath         string
	outputDir       string
	databasePath    string
	weightsManifest string
	nvidiaSMIPath   string
}

// NewConfigValidator creates a ConfigValidator with default paths.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		envPath:       ".env",
		nvidiaSMIPath: "nvidia-smi",
	}
}

// WithEnvPath sets a custom path for the .env file.
func (v *ConfigValidator) WithEnvPath(path string) *ConfigValidator {
	v.envPath = path
	return v
}

// WithOutputDir sets the output artifact directory to check.
func (v *ConfigValidator) WithOutputDir(dir string) *ConfigValidator {
	v.outputDir = dir
	return v
}

// WithDatabasePath sets the history database path to check.
func (v *ConfigValidator) WithDatabasePath(path string) *ConfigValidator {
	v.databasePath = path
	return v
}

// WithWeightsManifest sets the weights manifest path to check.
func (v *ConfigValidator) WithWeightsManifest(path string) *ConfigValidator {
	v.weightsManifest = path
	return v
}

// WithNvidiaSMIPath sets the nvidia-smi executable to look up.
func (v *ConfigValidator) WithNvidiaSMIPath(path string) *ConfigValidator {
	v.nvidiaSMIPath = path
	return v
}

// CheckEnvFile checks whether the .env file is present. A missing file is
// not fatal since all settings can come from the process environment.
func (v *ConfigValidator) CheckEnvFile() ValidationResult {
	if err := CheckFileExists(v.envPath); err != nil {
		return ValidationResult{
			Valid:   true,
			Message: fmt.Sprintf("%s not found, using process environment", v.envPath),
		}
	}
	return ValidationResult{Valid: true, Message: v.envPath + " loaded"}
}

// CheckOutputDir verifies the output artifact directory is writable.
func (v *ConfigValidator) CheckOutputDir() ValidationResult {
	if err := CheckWritableDir(v.outputDir); err != nil {
		return ValidationResult{Valid: false, Error: err}
	}
	return ValidationResult{Valid: true, Message: v.outputDir}
}

// CheckDatabaseDir verifies the directory holding the history database is
// writable.
func (v *ConfigValidator) CheckDatabaseDir() ValidationResult {
	if v.databasePath == "" {
		return ValidationResult{
			Valid:   false,
			Error:   fmt.Errorf("database path is not configured"),
		}
	}
	if err := CheckWritableDir(filepath.Dir(v.databasePath)); err != nil {
		return ValidationResult{Valid: false, Error: err}
	}
	return ValidationResult{Valid: true, Message: v.databasePath}
}

// CheckWeightsManifest verifies the weights manifest parses. An empty path
// is valid and means the well-known default cache locations.
func (v *ConfigValidator) CheckWeightsManifest() ValidationResult {
	if v.weightsManifest == "" {
		return ValidationResult{Valid: true, Message: "using default weight locations"}
	}
	if _, err := engine.LoadWeightsConfig(v.weightsManifest); err != nil {
		return ValidationResult{Valid: false, Error: err}
	}
	return ValidationResult{Valid: true, Message: v.weightsManifest}
}

// CheckWeights verifies every configured weight cache location exists and
// reports the total size on disk.
func (v *ConfigValidator) CheckWeights(weights engine.WeightsConfig) ValidationResult {
	var total int64
	for _, path := range weights.Paths() {
		info, err := os.Stat(path)
		if err != nil {
			return ValidationResult{
				Valid: false,
				Error: fmt.Errorf("weight cache missing: %s", path),
			}
		}
		if !info.IsDir() {
			total += info.Size()
		} else {
			total += dirSize(path)
		}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%d locations, %s on disk", len(weights.Paths()), core.FormatBytes(total)),
	}
}

// CheckGPUTooling looks up nvidia-smi on PATH. Absence is reported but not
// fatal; GPU metrics are simply unavailable.
func (v *ConfigValidator) CheckGPUTooling() ValidationResult {
	path, err := exec.LookPath(v.nvidiaSMIPath)
	if err != nil {
		return ValidationResult{
			Valid:   true,
			Message: v.nvidiaSMIPath + " not found, GPU metrics disabled",
		}
	}
	return ValidationResult{Valid: true, Message: path}
}

// dirSize sums file sizes under dir. Errors during the walk are ignored;
// the figure is informational.
func dirSize(dir string) int64 {
	var total int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
