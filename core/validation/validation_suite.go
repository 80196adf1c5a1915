package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"refinery/engine"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite orchestrates all startup checks: environment file, output
// and database directories, the weights manifest and weight caches, free
// disk space, and GPU tooling. It prints colored progress as it goes.
type ValidationSuite struct {
	output         io.Writer
	validator      *ConfigValidator
	requireWeights bool
	showProgress   bool
	failFast       bool
}

// NewValidationSuite creates a ValidationSuite with default settings.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:         os.Stdout,
		validator:      NewConfigValidator(),
		requireWeights: true,
		showProgress:   true,
		failFast:       false,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithPaths configures the directories and files the suite checks.
func (s *ValidationSuite) WithPaths(outputDir, databasePath, weightsManifest string) *ValidationSuite {
	s.validator.
		WithOutputDir(outputDir).
		WithDatabasePath(databasePath).
		WithWeightsManifest(weightsManifest)
	return s
}

// WithEnvPath sets a custom path for the .env file.
func (s *ValidationSuite) WithEnvPath(path string) *ValidationSuite {
	s.validator.WithEnvPath(path)
	return s
}

// WithRequireWeights controls whether missing weight caches fail validation.
// Disabled in tests that have no caches to stat.
func (s *ValidationSuite) WithRequireWeights(require bool) *ValidationSuite {
	s.requireWeights = require
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// Validate runs all startup checks in sequence with progress output.
// Returns a SuiteResult with complete validation results.
func (s *ValidationSuite) Validate(weights engine.WeightsConfig) SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, 7)

	if s.showProgress {
		s.printHeader("Refinery Startup Validation")
	}

	checks := []struct {
		name string
		fn   func() ValidationResult
	}{
		{"Environment File", s.validator.CheckEnvFile},
		{"Output Directory", s.validator.CheckOutputDir},
		{"Database Directory", s.validator.CheckDatabaseDir},
		{"Weights Manifest", s.validator.CheckWeightsManifest},
	}

	for _, check := range checks {
		step := s.runStep(check.name, check.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.buildResult(steps, startTime)
		}
	}

	// Weight caches, only when the backend needs them.
	var step ValidationStep
	if s.requireWeights {
		step = s.runStep("Model Weights", func() ValidationResult {
			return s.validator.CheckWeights(weights)
		})
	} else {
		step = ValidationStep{
			Name:    "Model Weights",
			Status:  StepSkipped,
			Message: "weight check disabled",
		}
		if s.showProgress {
			s.printStep(step)
		}
	}
	steps = append(steps, step)
	if s.failFast && step.Status == StepFailed {
		return s.buildResult(steps, startTime)
	}

	// Disk space only matters once the output directory check passed.
	if s.hasAllPassed(steps) {
		step = s.runStep("Disk Space", func() ValidationResult {
			if err := CheckOutputDiskSpace(s.validator.outputDir); err != nil {
				return ValidationResult{Valid: false, Error: err}
			}
			info, _ := GetDiskSpace(s.validator.outputDir)
			msg := ""
			if info != nil {
				msg = fmt.Sprintf("%s free", info.FreeFormatted)
			}
			return ValidationResult{Valid: true, Message: msg}
		})
	} else {
		step = ValidationStep{
			Name:    "Disk Space",
			Status:  StepSkipped,
			Message: "Skipped due to configuration errors",
		}
		if s.showProgress {
			s.printStep(step)
		}
	}
	steps = append(steps, step)

	steps = append(steps, s.runStep("GPU Tooling", s.validator.CheckGPUTooling))

	result := s.buildResult(steps, startTime)

	if s.showProgress {
		s.printSummary(result)
	}

	return result
}

// ValidateQuick runs only directory and manifest checks, skipping the weight
// cache scan. Useful for fast startup in development.
func (s *ValidationSuite) ValidateQuick() SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, 4)

	if s.showProgress {
		s.printHeader("Quick Configuration Check")
	}

	checks := []struct {
		name string
		fn   func() ValidationResult
	}{
		{"Environment File", s.validator.CheckEnvFile},
		{"Output Directory", s.validator.CheckOutputDir},
		{"Database Directory", s.validator.CheckDatabaseDir},
		{"Weights Manifest", s.validator.CheckWeightsManifest},
	}

	for _, check := range checks {
		step := s.runStep(check.name, check.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result := s.buildResult(steps, startTime)

	if s.showProgress {
		s.printSummary(result)
	}

	return result
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() ValidationResult) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	result := fn()
	step.Latency = time.Since(startTime)
	step.Message = result.Message
	step.Error = result.Error

	if result.Valid {
		step.Status = StepPassed
	} else {
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}

	return step
}

// hasAllPassed checks if all steps have passed.
func (s *ValidationSuite) hasAllPassed(steps []ValidationStep) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

// printHeader prints a validation header.
func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStepStart prints the step name before execution (for real-time feedback).
func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// Clear the "running" line and print result
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}

	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		errColor := color.New(color.FgRed)
		errColor.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

// printSummary prints the validation summary.
func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetErrors returns all errors from failed steps.
func (r SuiteResult) GetErrors() []error {
	errors := make([]error, 0)
	for _, step := range r.Steps {
		if step.Error != nil {
			errors = append(errors, step.Error)
		}
	}
	return errors
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation %s: ", map[bool]string{true: "Passed", false: "Failed"}[r.Success]))
	sb.WriteString(fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
