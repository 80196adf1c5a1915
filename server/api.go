// Package server exposes the refinement service over HTTP: the predict
// endpoint plus status, history and metrics queries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"refinery/engine"
	"refinery/imaging"
	"refinery/metrics"
	"refinery/refiner"
)

// Predicter runs one refinement request. *refiner.Predictor satisfies it;
// tests substitute a fake.
type Predicter interface {
	Predict(ctx context.Context, params refiner.Params) (*refiner.Result, error)
}

// HistoryReader serves stored prediction records. *history.Store satisfies it.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]refiner.PredictionRecord, error)
}

// API provides the REST handlers.
//
// Endpoints:
//   - POST /api/predict     - run one refinement request
//   - GET  /api/status      - service health status
//   - GET  /api/predictions - recent prediction history (limit param)
//   - GET  /api/metrics     - request processing metrics
//   - GET  /api/gpu         - GPU metrics (optional history param)
type API struct {
	predicter    Predicter
	defaults     refiner.Params
	store        metrics.Collector
	gpuCollector *metrics.GPUCollector
	history      HistoryReader
	defaultLimit int
	maxLimit     int
}

// APIConfig configures the API.
type APIConfig struct {
	// Defaults seed request parameters for absent fields.
	Defaults refiner.Params

	// DefaultLimit is the default number of items in list endpoints.
	DefaultLimit int

	// MaxLimit caps the number of items that can be requested.
	MaxLimit int
}

// DefaultAPIConfig returns a default configuration.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Defaults:     refiner.DefaultParams(),
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// NewAPI creates the REST handlers. gpuCollector and history are optional;
// their endpoints degrade gracefully when nil.
func NewAPI(predicter Predicter, store metrics.Collector, gpuCollector *metrics.GPUCollector, history HistoryReader, config APIConfig) *API {
	if config.DefaultLimit < 1 {
		config.DefaultLimit = 20
	}
	if config.MaxLimit < 1 {
		config.MaxLimit = 100
	}

	return &API{
		predicter:    predicter,
		defaults:     config.Defaults,
		store:        store,
		gpuCollector: gpuCollector,
		history:      history,
		defaultLimit: config.DefaultLimit,
		maxLimit:     config.MaxLimit,
	}
}

// PredictRequest is the JSON body for POST /api/predict. Absent optional
// fields take the configured defaults.
type PredictRequest struct {
	Prompt         string   `json:"prompt"`
	ImagePath      string   `json:"image_path"`
	MaskPath       string   `json:"mask_path,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	Scheduler      string   `json:"scheduler,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	GuidanceScale  *float64 `json:"guidance_scale,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	HDR            *float64 `json:"hdr,omitempty"`
	Resemblance    *float64 `json:"resemblance,omitempty"`
	Creativity     *float64 `json:"creativity,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	GuessMode      bool     `json:"guess_mode,omitempty"`
}

// toParams merges the request over the configured defaults.
func (req PredictRequest) toParams(defaults refiner.Params) refiner.Params {
	p := defaults
	p.Prompt = req.Prompt
	p.ImagePath = req.ImagePath
	p.MaskPath = req.MaskPath
	p.GuessMode = req.GuessMode

	if req.Resolution != "" {
		p.Resolution = imaging.Resolution(req.Resolution)
	}
	if req.Scheduler != "" {
		p.Scheduler = refiner.Scheduler(req.Scheduler)
	}
	if req.Steps != nil {
		p.Steps = *req.Steps
	}
	if req.GuidanceScale != nil {
		p.GuidanceScale = *req.GuidanceScale
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	if req.HDR != nil {
		p.HDR = *req.HDR
	}
	if req.Resemblance != nil {
		p.Resemblance = *req.Resemblance
	}
	if req.Creativity != nil {
		p.Creativity = *req.Creativity
	}
	if req.NegativePrompt != "" {
		p.NegativePrompt = req.NegativePrompt
	}
	return p
}

// PredictResponse is the JSON response for POST /api/predict.
type PredictResponse struct {
	Outputs    []string `json:"outputs"`
	Seed       int64    `json:"seed"`
	DurationMS int64    `json:"duration_ms"`
}

// HandlePredict handles POST /api/predict requests.
func (api *API) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := api.predicter.Predict(r.Context(), req.toParams(api.defaults))
	if err != nil {
		status, message := classifyPredictError(err)
		api.writeError(w, status, message)
		return
	}

	api.writeJSON(w, http.StatusOK, PredictResponse{
		Outputs:    result.OutputPaths,
		Seed:       result.Seed,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// classifyPredictError maps prediction failures to HTTP status codes.
func classifyPredictError(err error) (int, string) {
	switch {
	case errors.Is(err, refiner.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, imaging.ErrDecode), errors.Is(err, imaging.ErrEmptyImage):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, engine.ErrOutOfMemory):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, engine.ErrHostClosed):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; 499 is the conventional nginx code.
		return 499, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// StatusResponse is the JSON response for /api/status.
type StatusResponse struct {
	Health     string    `json:"health"`
	Version    string    `json:"version"`
	Backend    string    `json:"backend"`
	Uptime     string    `json:"uptime"`
	UptimeSecs float64   `json:"uptime_secs"`
	LastCheck  time.Time `json:"last_check"`
	GPUAvail   bool      `json:"gpu_available"`
}

// HandleStatus handles GET /api/status requests.
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := api.store.GetSystemStatus()

	gpuAvail := false
	if api.gpuCollector != nil {
		gpuAvail = api.gpuCollector.IsAvailable()
	}

	api.writeJSON(w, http.StatusOK, StatusResponse{
		Health:     status.Health,
		Version:    status.Version,
		Backend:    status.Backend,
		Uptime:     formatDuration(status.Uptime),
		UptimeSecs: status.Uptime.Seconds(),
		LastCheck:  status.LastCheck,
		GPUAvail:   gpuAvail,
	})
}

// PredictionsResponse is the JSON response for /api/predictions.
type PredictionsResponse struct {
	Predictions []refiner.PredictionRecord `json:"predictions"`
	Count       int                        `json:"count"`
	Limit       int                        `json:"limit"`
}

// HandlePredictions handles GET /api/predictions requests.
// Query parameters:
//   - limit: number of records to return (default 20, max 100)
func (api *API) HandlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if api.history == nil {
		api.writeError(w, http.StatusNotFound, "history not configured")
		return
	}

	limit := api.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > api.maxLimit {
		limit = api.maxLimit
	}

	records, err := api.history.Recent(r.Context(), limit)
	if err != nil {
		api.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.writeJSON(w, http.StatusOK, PredictionsResponse{
		Predictions: records,
		Count:       len(records),
		Limit:       limit,
	})
}

// MetricsResponse is the JSON response for /api/metrics.
type MetricsResponse struct {
	TotalProcessed int64                                `json:"total_processed"`
	TotalSuccess   int64                                `json:"total_success"`
	TotalErrors    int64                                `json:"total_errors"`
	SuccessRate    float64                              `json:"success_rate"`
	ByScheduler    map[string]*metrics.SchedulerMetrics `json:"by_scheduler"`
}

// HandleMetrics handles GET /api/metrics requests.
func (api *API) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	m := api.store.GetRequestMetrics()

	var successRate float64
	if m.TotalProcessed > 0 {
		successRate = float64(m.TotalSuccess) / float64(m.TotalProcessed) * 100
	}

	api.writeJSON(w, http.StatusOK, MetricsResponse{
		TotalProcessed: m.TotalProcessed,
		TotalSuccess:   m.TotalSuccess,
		TotalErrors:    m.TotalErrors,
		SuccessRate:    successRate,
		ByScheduler:    m.ByScheduler,
	})
}

// GPUResponse is the JSON response for /api/gpu.
type GPUResponse struct {
	Available   bool                 `json:"available"`
	Current     *metrics.GPUMetrics  `json:"current,omitempty"`
	History     []metrics.GPUMetrics `json:"history,omitempty"`
	HistorySize int                  `json:"history_size,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// HandleGPU handles GET /api/gpu requests.
// Query parameters:
//   - history: number of historical samples to include (default 0)
func (api *API) HandleGPU(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if api.gpuCollector == nil {
		api.writeJSON(w, http.StatusOK, GPUResponse{
			Available: false,
			Error:     "GPU monitoring not configured",
		})
		return
	}

	response := GPUResponse{Available: api.gpuCollector.IsAvailable()}

	if response.Available {
		current := api.gpuCollector.CurrentMetrics()
		response.Current = &current

		if historyStr := r.URL.Query().Get("history"); historyStr != "" {
			if historyLimit, err := strconv.Atoi(historyStr); err == nil && historyLimit > 0 {
				response.History = api.gpuCollector.History(historyLimit)
				response.HistorySize = len(response.History)
			}
		}
	} else if err := api.gpuCollector.LastError(); err != nil {
		response.Error = err.Error()
	}

	api.writeJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (api *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/predict", api.HandlePredict)
	mux.HandleFunc("/api/status", api.HandleStatus)
	mux.HandleFunc("/api/predictions", api.HandlePredictions)
	mux.HandleFunc("/api/metrics", api.HandleMetrics)
	mux.HandleFunc("/api/gpu", api.HandleGPU)
}

// ErrorResponse is the JSON envelope for error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (api *API) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Best effort, headers already written.
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// formatDuration formats a duration into a compact human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return strconv.Itoa(hours) + "h" + strconv.Itoa(minutes) + "m" + strconv.Itoa(seconds) + "s"
	}
	return strconv.Itoa(minutes) + "m" + strconv.Itoa(seconds) + "s"
}
