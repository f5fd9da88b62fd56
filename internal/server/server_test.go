package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/SCATR/internal/config"
	"github.com/copyleftdev/SCATR/internal/interp/rbf"
	"github.com/copyleftdev/SCATR/internal/logging"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"

	// Small caps so the limit paths are cheap to exercise.
	cfg.Interpolation.MaxPoints = 64
	cfg.Interpolation.MaxQueries = 64
	cfg.Interpolation.DefaultKernel = "thin-plate"
	cfg.Interpolation.TuneMaxIters = 50

	return cfg
}

// testLogger creates a logger that swallows output.
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.ErrorLevel, io.Discard)
}

func newTestServer(t *testing.T) (*Server, chi.Router) {
	t.Helper()

	srv := NewServer(testConfig(t), testLogger(t))
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

// doJSON performs a request with body encoded as JSON and returns the
// recorded response.
func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst))
}

// squareFit is a fit request whose exact-interpolation behavior is known.
func squareFit() fitRequest {
	return fitRequest{
		Points: [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
		Values: []float64{0, 1, 1, 2},
		Kernel: "thin-plate",
	}
}

func fitSquare(t *testing.T, h http.Handler) modelResponse {
	t.Helper()

	rr := doJSON(t, h, http.MethodPost, "/api/v1/models", squareFit())
	require.Equal(t, http.StatusCreated, rr.Code, "fit should succeed: %s", rr.Body.String())

	var meta modelResponse
	decodeJSON(t, rr, &meta)
	return meta
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	assert.NotNil(t, srv, "Server should be created")
}

func TestRegisterRoutes(t *testing.T) {
	_, r := newTestServer(t)

	// Routes answer something other than 404 even on bad input.
	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/models", true},
		{"POST", "/api/v1/models/import", true},
		{"GET", "/api/v1/kernels", true},
		{"POST", "/api/v1/tune", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Registered by cmd/server, not here
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if tt.shouldExist && rr.Code == http.StatusNotFound {
				t.Errorf("Route %s %s should exist but returned 404", tt.method, tt.path)
			}
			if !tt.shouldExist && rr.Code != http.StatusNotFound {
				t.Errorf("Route %s %s should not exist but returned %d", tt.method, tt.path, rr.Code)
			}
		})
	}
}

func TestFitAndEvaluate(t *testing.T) {
	_, r := newTestServer(t)

	meta := fitSquare(t, r)
	assert.True(t, strings.HasPrefix(meta.ID, "mdl_"), "ID should carry the mdl_ prefix, got %q", meta.ID)
	assert.Equal(t, "thin-plate", meta.Kernel)
	assert.Equal(t, 4, meta.Points)
	assert.Equal(t, 2, meta.Dimension)
	assert.Greater(t, meta.Epsilon, 0.0, "resolved epsilon should be recorded")
	assert.Zero(t, meta.Smoothing)

	// The model reproduces its training values through the HTTP layer.
	rr := doJSON(t, r, http.MethodPost, "/api/v1/models/"+meta.ID+"/evaluate", evaluateRequest{
		Points: squareFit().Points,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got evaluateResponse
	decodeJSON(t, rr, &got)
	require.Len(t, got.Values, 4)
	for i, want := range squareFit().Values {
		assert.InDelta(t, want, got.Values[i], 1e-8, "training point %d", i)
	}
}

func TestFitDefaultsKernelFromConfig(t *testing.T) {
	_, r := newTestServer(t)

	req := squareFit()
	req.Kernel = ""
	rr := doJSON(t, r, http.MethodPost, "/api/v1/models", req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var meta modelResponse
	decodeJSON(t, rr, &meta)
	assert.Equal(t, "thin-plate", meta.Kernel)
}

func TestFitValidation(t *testing.T) {
	_, r := newTestServer(t)

	manyPoints := make([][]float64, 65)
	manyValues := make([]float64, 65)
	for i := range manyPoints {
		manyPoints[i] = []float64{float64(i)}
	}

	tests := []struct {
		name       string
		req        fitRequest
		wantStatus int
		wantKind   string
	}{
		{
			name:       "empty training set",
			req:        fitRequest{Kernel: "thin-plate"},
			wantStatus: http.StatusBadRequest,
			wantKind:   kindEmptyTrainingSet,
		},
		{
			name: "points and values length mismatch",
			req: fitRequest{
				Points: [][]float64{{0}, {1}},
				Values: []float64{1},
				Kernel: "thin-plate",
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   kindDimensionMismatch,
		},
		{
			name: "unknown kernel",
			req: fitRequest{
				Points: [][]float64{{0}, {1}},
				Values: []float64{1, 2},
				Kernel: "cubic",
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   kindInvalidKernel,
		},
		{
			name: "coincident points without smoothing",
			req: fitRequest{
				Points: [][]float64{{1, 1}, {1, 1}},
				Values: []float64{0, 1},
				Kernel: "thin-plate",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   kindSingularMatrix,
		},
		{
			name: "negative smoothing",
			req: fitRequest{
				Points:    [][]float64{{0}, {1}},
				Values:    []float64{1, 2},
				Kernel:    "thin-plate",
				Smoothing: -0.5,
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   kindBadRequest,
		},
		{
			name: "too many points",
			req: fitRequest{
				Points: manyPoints,
				Values: manyValues,
				Kernel: "thin-plate",
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   kindBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, r, http.MethodPost, "/api/v1/models", tt.req)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())

			var resp errorResponse
			decodeJSON(t, rr, &resp)
			assert.Equal(t, tt.wantKind, resp.Error.Kind)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestFitMalformedBody(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp errorResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, kindBadRequest, resp.Error.Kind)
}

func TestGetModel(t *testing.T) {
	_, r := newTestServer(t)
	meta := fitSquare(t, r)

	rr := doJSON(t, r, http.MethodGet, "/api/v1/models/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got modelResponse
	decodeJSON(t, rr, &got)
	assert.Equal(t, meta, got)

	rr = doJSON(t, r, http.MethodGet, "/api/v1/models/mdl_missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var resp errorResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, kindNotFound, resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "not found")
}

func TestDeleteModel(t *testing.T) {
	_, r := newTestServer(t)
	meta := fitSquare(t, r)

	rr := doJSON(t, r, http.MethodDelete, "/api/v1/models/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, r, http.MethodGet, "/api/v1/models/"+meta.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "deleted model should be gone")

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/models/"+meta.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "second delete should miss")
}

func TestEvaluateValidation(t *testing.T) {
	_, r := newTestServer(t)
	meta := fitSquare(t, r)

	t.Run("unknown model", func(t *testing.T) {
		rr := doJSON(t, r, http.MethodPost, "/api/v1/models/mdl_missing/evaluate", evaluateRequest{
			Points: [][]float64{{0, 0}},
		})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		rr := doJSON(t, r, http.MethodPost, "/api/v1/models/"+meta.ID+"/evaluate", evaluateRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp errorResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, kindBadRequest, resp.Error.Kind)
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		rr := doJSON(t, r, http.MethodPost, "/api/v1/models/"+meta.ID+"/evaluate", evaluateRequest{
			Points: [][]float64{{0, 0, 0}},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp errorResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, kindDimensionMismatch, resp.Error.Kind)
	})

	t.Run("too many queries", func(t *testing.T) {
		queries := make([][]float64, 65)
		for i := range queries {
			queries[i] = []float64{0, 0}
		}
		rr := doJSON(t, r, http.MethodPost, "/api/v1/models/"+meta.ID+"/evaluate", evaluateRequest{
			Points: queries,
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp errorResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, kindBadRequest, resp.Error.Kind)
		assert.Contains(t, resp.Error.Message, "exceeds the limit")
	})
}

func TestSnapshotImportRoundTrip(t *testing.T) {
	_, r := newTestServer(t)
	meta := fitSquare(t, r)

	rr := doJSON(t, r, http.MethodGet, "/api/v1/models/"+meta.ID+"/snapshot", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var snap rbf.Snapshot
	decodeJSON(t, rr, &snap)
	assert.Equal(t, "thin-plate", snap.Kernel)
	require.Len(t, snap.Weights, 4)
	require.Len(t, snap.Points, 4)

	rr = doJSON(t, r, http.MethodPost, "/api/v1/models/import", snap)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var imported modelResponse
	decodeJSON(t, rr, &imported)
	assert.NotEqual(t, meta.ID, imported.ID, "import should register a fresh model")
	assert.Equal(t, meta.Kernel, imported.Kernel)
	assert.Equal(t, meta.Points, imported.Points)
	assert.Equal(t, meta.Dimension, imported.Dimension)

	// Original and imported models agree exactly off the training grid.
	query := evaluateRequest{Points: [][]float64{{0.3, 0.6}}}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/models/"+meta.ID+"/evaluate", query)
	require.Equal(t, http.StatusOK, rr.Code)
	var orig evaluateResponse
	decodeJSON(t, rr, &orig)

	rr = doJSON(t, r, http.MethodPost, "/api/v1/models/"+imported.ID+"/evaluate", query)
	require.Equal(t, http.StatusOK, rr.Code)
	var restored evaluateResponse
	decodeJSON(t, rr, &restored)

	require.Equal(t, orig.Values, restored.Values)
}

func TestImportValidation(t *testing.T) {
	_, r := newTestServer(t)

	snap := rbf.Snapshot{
		Kernel:  "cubic",
		Epsilon: 1.0,
		Points:  [][]float64{{0}, {1}},
		Weights: []float64{1, 2},
	}
	rr := doJSON(t, r, http.MethodPost, "/api/v1/models/import", snap)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp errorResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, kindInvalidKernel, resp.Error.Kind)
}

func TestKernelsEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	rr := doJSON(t, r, http.MethodGet, "/api/v1/kernels", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp kernelsResponse
	decodeJSON(t, rr, &resp)
	assert.Len(t, resp.Kernels, 7)
	assert.Contains(t, resp.Kernels, "thin-plate")
	assert.Contains(t, resp.Kernels, "gaussian")
	assert.Contains(t, resp.Kernels, "inverse-multiquadric")
}

func TestTuneEndpoint(t *testing.T) {
	_, r := newTestServer(t)

	points := make([][]float64, 12)
	values := make([]float64, 12)
	for i := range points {
		x := 0.5 * float64(i)
		points[i] = []float64{x}
		values[i] = math.Sin(x)
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/tune", tuneRequest{
		Points:    points,
		Values:    values,
		Kernel:    "gaussian",
		Smoothing: 0.01,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp tuneResponse
	decodeJSON(t, rr, &resp)
	assert.Greater(t, resp.Epsilon, 0.0)
	assert.False(t, math.IsInf(resp.LOORMSE, 0) || math.IsNaN(resp.LOORMSE), "score must be finite")
}

func TestTuneRejectsFixedShapeKernel(t *testing.T) {
	_, r := newTestServer(t)

	// The configured default kernel takes no shape parameter, so omitting
	// the kernel is rejected with a message that names the problem.
	rr := doJSON(t, r, http.MethodPost, "/api/v1/tune", tuneRequest{
		Points: [][]float64{{0}, {1}, {2}},
		Values: []float64{0, 1, 2},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp errorResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, kindBadRequest, resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "takes no shape parameter")
}

func TestErrorEnvelopeCarriesCallPath(t *testing.T) {
	_, r := newTestServer(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/models", fitRequest{Kernel: "thin-plate"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp errorResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, kindEmptyTrainingSet, resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "server: fit", "message should name the failing operation")
	assert.Contains(t, resp.Error.Message, "training set is empty")
}

func TestMetricsCount(t *testing.T) {
	_, r := newTestServer(t)

	fitsBefore := testutil.ToFloat64(fitsTotal.WithLabelValues("thin-plate", "ok"))
	evalsBefore := testutil.ToFloat64(evaluationsTotal)

	meta := fitSquare(t, r)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/models/"+meta.ID+"/evaluate", evaluateRequest{
		Points: [][]float64{{0, 0}, {1, 0}, {0.5, 0.5}},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, fitsBefore+1, testutil.ToFloat64(fitsTotal.WithLabelValues("thin-plate", "ok")))
	assert.Equal(t, evalsBefore+3, testutil.ToFloat64(evaluationsTotal))
}

func TestClose(t *testing.T) {
	srv, r := newTestServer(t)
	meta := fitSquare(t, r)

	require.NoError(t, srv.Close(), "Close should not return an error")

	rr := doJSON(t, r, http.MethodGet, "/api/v1/models/"+meta.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "Close should drop registered models")
}
