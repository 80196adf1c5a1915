package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PredictionMetrics represents metrics collected for a single refinement
// request. Implements zapcore.ObjectMarshaler so it can be logged as a
// nested JSON object.
//
// Example:
//
//	metrics := PredictionMetrics{
//		ID:         "7c9e...",
//		Scheduler:  "DDIM",
//		Resolution: "1024",
//		Steps:      20,
//		Seed:       4242,
//		Outputs:    1,
//		Duration:   3 * time.Second,
//	}
//	logger.Info("prediction complete", logging.PredictionFields(metrics))
type PredictionMetrics struct {
	// ID is the request identifier.
	ID string `json:"id"`

	// Scheduler is the denoising scheduler name used for the run.
	Scheduler string `json:"scheduler"`

	// Resolution is the requested resolution tier.
	Resolution string `json:"resolution"`

	// Steps is the number of denoising steps performed.
	Steps int `json:"steps"`

	// Seed is the noise seed the run used, explicit or derived.
	Seed int64 `json:"seed"`

	// Outputs is the number of output images produced.
	Outputs int `json:"outputs"`

	// Duration is the total time taken for the request.
	Duration time.Duration `json:"duration"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
// Duration is encoded in milliseconds for readability.
func (m PredictionMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", m.ID)
	enc.AddString("scheduler", m.Scheduler)
	enc.AddString("resolution", m.Resolution)
	enc.AddInt("steps", m.Steps)
	enc.AddInt64("seed", m.Seed)
	enc.AddInt("outputs", m.Outputs)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	return nil
}

// PredictionFields wraps PredictionMetrics into a ready-to-use zap.Field.
func PredictionFields(metrics PredictionMetrics) zap.Field {
	return zap.Object("prediction", metrics)
}

// TimingFields returns zap fields for a timed operation.
//
// Example:
//
//	start := time.Now()
//	// ... run the pipeline ...
//	logger.Info("timing", logging.TimingFields(start, time.Now())...)
func TimingFields(startTime, endTime time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", startTime),
		zap.Time("end_time", endTime),
		zap.Duration("duration", endTime.Sub(startTime)),
	}
}
