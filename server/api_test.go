package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"refinery/engine"
	"refinery/imaging"
	"refinery/metrics"
	"refinery/refiner"
)

// fakePredicter records the last params and returns a canned result or error.
type fakePredicter struct {
	lastParams refiner.Params
	result     *refiner.Result
	err        error
	calls      int
}

func (f *fakePredicter) Predict(ctx context.Context, params refiner.Params) (*refiner.Result, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &refiner.Result{
		OutputPaths: []string{"/tmp/out-0.png"},
		Seed:        params.Seed,
		Duration:    1500 * time.Millisecond,
	}, nil
}

// fakeHistory serves a fixed set of records.
type fakeHistory struct {
	records   []refiner.PredictionRecord
	err       error
	lastLimit int
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]refiner.PredictionRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func testAPI(t *testing.T, predicter Predicter, history HistoryReader) (*API, *metrics.Store) {
	t.Helper()
	store := metrics.NewStore(metrics.StoreConfig{
		HistoryCapacity: 10,
		Version:         "1.2.3",
		Backend:         "stub",
	}, time.Now().Add(-time.Minute))

	return NewAPI(predicter, store, nil, history, DefaultAPIConfig()), store
}

func postPredict(t *testing.T, api *API, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	rec := httptest.NewRecorder()
	api.HandlePredict(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandlePredict_Success(t *testing.T) {
	predicter := &fakePredicter{}
	api, _ := testAPI(t, predicter, nil)

	rec := postPredict(t, api, `{"prompt":"a castle","image_path":"/in.png","seed":42}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp PredictResponse
	decodeJSON(t, rec, &resp)
	if resp.Seed != 42 {
		t.Errorf("seed: %d", resp.Seed)
	}
	if len(resp.Outputs) != 1 {
		t.Errorf("outputs: %v", resp.Outputs)
	}
	if resp.DurationMS != 1500 {
		t.Errorf("duration_ms: %d", resp.DurationMS)
	}
}

func TestHandlePredict_DefaultsApplied(t *testing.T) {
	predicter := &fakePredicter{}
	api, _ := testAPI(t, predicter, nil)

	postPredict(t, api, `{"prompt":"a castle","image_path":"/in.png"}`)

	defaults := refiner.DefaultParams()
	got := predicter.lastParams
	if got.Resolution != defaults.Resolution {
		t.Errorf("resolution: %q", got.Resolution)
	}
	if got.Scheduler != defaults.Scheduler {
		t.Errorf("scheduler: %q", got.Scheduler)
	}
	if got.Steps != defaults.Steps {
		t.Errorf("steps: %d", got.Steps)
	}
	if got.GuidanceScale != defaults.GuidanceScale {
		t.Errorf("guidance scale: %v", got.GuidanceScale)
	}
	if got.Resemblance != defaults.Resemblance {
		t.Errorf("resemblance: %v", got.Resemblance)
	}
}

func TestHandlePredict_OverridesApplied(t *testing.T) {
	predicter := &fakePredicter{}
	api, _ := testAPI(t, predicter, nil)

	postPredict(t, api, `{
		"prompt": "a castle",
		"image_path": "/in.png",
		"mask_path": "/mask.png",
		"resolution": "2048",
		"scheduler": "K_EULER",
		"steps": 35,
		"guidance_scale": 9.5,
		"hdr": 0.6,
		"resemblance": 0.5,
		"creativity": 0.4,
		"negative_prompt": "blurry",
		"guess_mode": true
	}`)

	got := predicter.lastParams
	if got.MaskPath != "/mask.png" {
		t.Errorf("mask path: %q", got.MaskPath)
	}
	if got.Resolution != imaging.Resolution2048 {
		t.Errorf("resolution: %q", got.Resolution)
	}
	if got.Scheduler != refiner.SchedulerKEuler {
		t.Errorf("scheduler: %q", got.Scheduler)
	}
	if got.Steps != 35 {
		t.Errorf("steps: %d", got.Steps)
	}
	if got.GuidanceScale != 9.5 {
		t.Errorf("guidance scale: %v", got.GuidanceScale)
	}
	if got.HDR != 0.6 {
		t.Errorf("hdr: %v", got.HDR)
	}
	if got.Resemblance != 0.5 || got.Creativity != 0.4 {
		t.Errorf("resemblance/creativity: %v/%v", got.Resemblance, got.Creativity)
	}
	if got.NegativePrompt != "blurry" {
		t.Errorf("negative prompt: %q", got.NegativePrompt)
	}
	if !got.GuessMode {
		t.Error("guess mode must be set")
	}
}

func TestHandlePredict_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid argument", fmt.Errorf("%w: steps out of range", refiner.ErrInvalidArgument), http.StatusBadRequest},
		{"decode failure", fmt.Errorf("%w: bad png", imaging.ErrDecode), http.StatusUnprocessableEntity},
		{"out of memory", engine.ErrOutOfMemory, http.StatusServiceUnavailable},
		{"host closed", engine.ErrHostClosed, http.StatusServiceUnavailable},
		{"internal", errors.New("pipeline exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := testAPI(t, &fakePredicter{err: tt.err}, nil)
			rec := postPredict(t, api, `{"prompt":"p","image_path":"/in.png"}`)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp ErrorResponse
			decodeJSON(t, rec, &resp)
			if resp.Message == "" {
				t.Error("error response must carry a message")
			}
		})
	}
}

func TestHandlePredict_BadJSON(t *testing.T) {
	predicter := &fakePredicter{}
	api, _ := testAPI(t, predicter, nil)

	rec := postPredict(t, api, `{"prompt": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: %d", rec.Code)
	}
	if predicter.calls != 0 {
		t.Errorf("predicter must not be called on malformed input, calls=%d", predicter.calls)
	}
}

func TestHandlePredict_MethodNotAllowed(t *testing.T) {
	api, _ := testAPI(t, &fakePredicter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/predict", nil)
	rec := httptest.NewRecorder()
	api.HandlePredict(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	api, _ := testAPI(t, &fakePredicter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	api.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var resp StatusResponse
	decodeJSON(t, rec, &resp)
	if resp.Health != metrics.SystemHealthRunning {
		t.Errorf("health: %q", resp.Health)
	}
	if resp.Version != "1.2.3" || resp.Backend != "stub" {
		t.Errorf("version/backend: %q/%q", resp.Version, resp.Backend)
	}
	if resp.UptimeSecs <= 0 {
		t.Errorf("uptime_secs: %v", resp.UptimeSecs)
	}
	if resp.GPUAvail {
		t.Error("gpu_available must be false without a collector")
	}
}

func TestHandlePredictions(t *testing.T) {
	history := &fakeHistory{
		records: []refiner.PredictionRecord{
			{ID: "a", Prompt: "one", Status: "success"},
			{ID: "b", Prompt: "two", Status: "error"},
		},
	}
	api, _ := testAPI(t, &fakePredicter{}, history)

	req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
	rec := httptest.NewRecorder()
	api.HandlePredictions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var resp PredictionsResponse
	decodeJSON(t, rec, &resp)
	if resp.Count != 2 {
		t.Errorf("count: %d", resp.Count)
	}
	if history.lastLimit != 20 {
		t.Errorf("default limit: %d", history.lastLimit)
	}
}

func TestHandlePredictions_LimitClamped(t *testing.T) {
	history := &fakeHistory{}
	api, _ := testAPI(t, &fakePredicter{}, history)

	req := httptest.NewRequest(http.MethodGet, "/api/predictions?limit=5000", nil)
	rec := httptest.NewRecorder()
	api.HandlePredictions(rec, req)

	if history.lastLimit != 100 {
		t.Errorf("limit must clamp to 100, got %d", history.lastLimit)
	}
}

func TestHandlePredictions_NoHistoryConfigured(t *testing.T) {
	api, _ := testAPI(t, &fakePredicter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
	rec := httptest.NewRecorder()
	api.HandlePredictions(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	api, store := testAPI(t, &fakePredicter{}, nil)

	now := time.Now()
	store.RecordRequest(metrics.RequestRecord{
		ID: "1", Scheduler: "DDIM", Status: metrics.RequestStatusSuccess,
		StartTime: now, Duration: time.Second,
	})
	store.RecordRequest(metrics.RequestRecord{
		ID: "2", Scheduler: "DDIM", Status: metrics.RequestStatusError,
		StartTime: now, Duration: time.Second, ErrorMsg: "boom",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	api.HandleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var resp MetricsResponse
	decodeJSON(t, rec, &resp)
	if resp.TotalProcessed != 2 || resp.TotalSuccess != 1 || resp.TotalErrors != 1 {
		t.Errorf("totals: %+v", resp)
	}
	if resp.SuccessRate != 50 {
		t.Errorf("success rate: %v", resp.SuccessRate)
	}
	if resp.ByScheduler["DDIM"] == nil {
		t.Error("per-scheduler metrics missing")
	}
}

func TestHandleGPU_NotConfigured(t *testing.T) {
	api, _ := testAPI(t, &fakePredicter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/gpu", nil)
	rec := httptest.NewRecorder()
	api.HandleGPU(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var resp GPUResponse
	decodeJSON(t, rec, &resp)
	if resp.Available {
		t.Error("available must be false without a collector")
	}
	if resp.Error == "" {
		t.Error("expected an explanatory error message")
	}
}

func TestPredictRequest_RoundTripBody(t *testing.T) {
	// Values encoded by a Go client survive the request decode unchanged.
	steps := 30
	seed := int64(99)
	in := PredictRequest{
		Prompt:    "p",
		ImagePath: "/in.png",
		Steps:     &steps,
		Seed:      &seed,
	}
	body, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out PredictRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Steps == nil || *out.Steps != 30 || out.Seed == nil || *out.Seed != 99 {
		t.Errorf("round trip lost optional fields: %+v", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{3*time.Hour + 25*time.Minute + 45*time.Second, "3h25m45s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
