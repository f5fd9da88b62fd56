package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/SCATR/internal/config"
	"github.com/copyleftdev/SCATR/internal/interp"
	"github.com/copyleftdev/SCATR/internal/interp/kernels"
	"github.com/copyleftdev/SCATR/internal/interp/rbf"
	"github.com/copyleftdev/SCATR/internal/interp/tune"
	"github.com/copyleftdev/SCATR/internal/logging"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// ModelState is a fitted model held in the registry together with the
// metadata reported to clients. Models are immutable once registered, so
// reads need no locking beyond the registry map itself.
type ModelState struct {
	ID        string
	CreatedAt time.Time
	Kernel    string
	Epsilon   float64
	Smoothing float64
	Points    int
	Dimension int

	interpolator *rbf.Interpolator
}

// metadata renders the client-facing view of the model.
func (m *ModelState) metadata() modelResponse {
	return modelResponse{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Kernel:    m.Kernel,
		Epsilon:   m.Epsilon,
		Smoothing: m.Smoothing,
		Points:    m.Points,
		Dimension: m.Dimension,
	}
}

// Server implements the HTTP and JSON-RPC server for the interpolation
// service. It keeps fitted models in an in-memory registry and provides
// endpoints to fit, query, export, import and drop them. Fits run
// synchronously: the system solve is a bounded computation, so there are no
// job states and nothing to cancel.
type Server struct {
	cfg    *config.Config
	logger Logger
	engine *zap.Logger

	// Model registry
	models   map[string]*ModelState
	modelsMu sync.RWMutex // Protects the models map
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger) *Server {
	// The engine speaks zap; bridge the service logger so fit internals land
	// in the same output stream.
	engine := logging.NewZapLogger(logger.WithFields(map[string]interface{}{
		"component": "interp",
	}))

	return &Server{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		models: make(map[string]*ModelState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/models", s.handleFit)
		r.Post("/models/import", s.handleImport)
		r.Get("/models/{id}", s.handleGetModel)
		r.Delete("/models/{id}", s.handleDeleteModel)
		r.Post("/models/{id}/evaluate", s.handleEvaluate)
		r.Get("/models/{id}/snapshot", s.handleSnapshot)
		r.Get("/kernels", s.handleKernels)
		r.Post("/tune", s.handleTune)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// fitRequest is the body of POST /models and the params of rbf.fit. A zero
// epsilon requests the data-driven estimate; an absent kernel falls back to
// the configured default.
type fitRequest struct {
	Points    [][]float64 `json:"points"`
	Values    []float64   `json:"values"`
	Kernel    string      `json:"kernel,omitempty"`
	Epsilon   float64     `json:"epsilon,omitempty"`
	Smoothing float64     `json:"smoothing,omitempty"`
}

// modelResponse is the metadata returned for a registered model.
type modelResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kernel    string    `json:"kernel"`
	Epsilon   float64   `json:"epsilon"`
	Smoothing float64   `json:"smoothing"`
	Points    int       `json:"points"`
	Dimension int       `json:"dimension"`
}

type evaluateRequest struct {
	Points [][]float64 `json:"points"`
}

type evaluateResponse struct {
	Values []float64 `json:"values"`
}

type tuneRequest struct {
	Points    [][]float64 `json:"points"`
	Values    []float64   `json:"values"`
	Kernel    string      `json:"kernel,omitempty"`
	Smoothing float64     `json:"smoothing,omitempty"`
}

type tuneResponse struct {
	Epsilon float64 `json:"epsilon"`
	LOORMSE float64 `json:"loo_rmse"`
}

type kernelsResponse struct {
	Kernels []string `json:"kernels"`
}

// errorBody is the inner object of the REST error envelope.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errorResponse is the envelope for every REST failure.
type errorResponse struct {
	Error errorBody `json:"error"`
}

// Error kinds reported in the REST envelope and in JSON-RPC error data.
// Clients switch on these rather than parsing messages.
const (
	kindEmptyTrainingSet  = "empty_training_set"
	kindDimensionMismatch = "dimension_mismatch"
	kindInvalidKernel     = "invalid_kernel"
	kindSingularMatrix    = "singular_matrix"
	kindNotFound          = "not_found"
	kindBadRequest        = "bad_request"
	kindInternal          = "internal"
)

// errNotFound reports a model ID absent from the registry.
type errNotFound struct{ id string }

func (e *errNotFound) Error() string { return fmt.Sprintf("model %q not found", e.id) }

// errorKind classifies a domain error into its stable kind tag. Engine
// validation failures that carry no typed kind are still the caller's
// fault, so anything wrapped by the interp package maps to bad_request.
func errorKind(err error) string {
	var (
		nfErr   *errNotFound
		dimErr  *interp.ErrDimensionMismatch
		kernErr *interp.ErrInvalidKernel
		singErr *interp.ErrSingularMatrix
	)
	switch {
	case errors.As(err, &nfErr):
		return kindNotFound
	case errors.Is(err, interp.ErrEmptyTrainingSet):
		return kindEmptyTrainingSet
	case errors.As(err, &dimErr):
		return kindDimensionMismatch
	case errors.As(err, &kernErr):
		return kindInvalidKernel
	case errors.As(err, &singErr):
		return kindSingularMatrix
	default:
		if _, ok := interp.IsInterpError(err); ok {
			return kindBadRequest
		}
		return kindInternal
	}
}

// statusForKind maps an error kind to its HTTP status code.
func statusForKind(kind string) int {
	switch kind {
	case kindEmptyTrainingSet, kindDimensionMismatch, kindInvalidKernel, kindBadRequest:
		return http.StatusBadRequest
	case kindSingularMatrix:
		return http.StatusUnprocessableEntity
	case kindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleFit handles POST /models. The fit runs synchronously and the model
// is registered under a fresh ID on success.
func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	const op = "fit"

	var req fitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, op, interp.NewErrorf("invalid request body: %v", err), kindBadRequest)
		return
	}

	if n := len(req.Points); n > s.cfg.Interpolation.MaxPoints {
		err := interp.NewErrorf("training set of %d points exceeds the limit of %d", n, s.cfg.Interpolation.MaxPoints)
		s.writeError(w, r, op, err, kindBadRequest)
		return
	}

	state, err := s.fitModel(req)
	if err != nil {
		s.writeError(w, r, op, err, errorKind(err))
		return
	}

	s.respondJSON(w, http.StatusCreated, state.metadata())
}

// fitModel resolves the kernel, fits the interpolator and registers the
// result. Both the REST and JSON-RPC fit paths go through here so the
// metrics see every fit.
func (s *Server) fitModel(req fitRequest) (*ModelState, error) {
	kind, err := s.resolveKernel(req.Kernel)
	if err != nil {
		return nil, err
	}

	opts := []rbf.Option{rbf.WithLogger(s.engine)}
	if req.Smoothing != 0 {
		opts = append(opts, rbf.WithSmoothing(req.Smoothing))
	}
	if req.Epsilon != 0 {
		opts = append(opts, rbf.WithEpsilon(req.Epsilon))
	}

	start := time.Now()
	model, err := rbf.New(req.Points, req.Values, kind, opts...)
	if err != nil {
		fitsTotal.WithLabelValues(kind.String(), "error").Inc()
		return nil, err
	}
	fitsTotal.WithLabelValues(kind.String(), "ok").Inc()
	fitDuration.Observe(time.Since(start).Seconds())

	state := s.register(model)

	s.logger.Info("Model fitted", map[string]interface{}{
		"model_id":  state.ID,
		"kernel":    state.Kernel,
		"points":    state.Points,
		"dimension": state.Dimension,
		"epsilon":   state.Epsilon,
		"smoothing": state.Smoothing,
	})

	return state, nil
}

// register stores the model in the registry under a fresh ID.
func (s *Server) register(model *rbf.Interpolator) *ModelState {
	now := time.Now()
	state := &ModelState{
		ID:        fmt.Sprintf("mdl_%d", now.UnixNano()),
		CreatedAt: now,
		Kernel:    model.Kind().String(),
		Epsilon:   model.Epsilon(),
		Smoothing: model.Smoothing(),
		Points:    model.Len(),
		Dimension: model.Dim(),

		interpolator: model,
	}

	s.modelsMu.Lock()
	s.models[state.ID] = state
	s.modelsMu.Unlock()

	return state
}

// lookup fetches a model from the registry.
func (s *Server) lookup(id string) (*ModelState, bool) {
	s.modelsMu.RLock()
	defer s.modelsMu.RUnlock()
	state, ok := s.models[id]
	return state, ok
}

// resolveKernel parses the requested kernel name, falling back to the
// configured default when the request leaves it empty.
func (s *Server) resolveKernel(name string) (kernels.Kind, error) {
	if name == "" {
		name = s.cfg.Interpolation.DefaultKernel
	}
	kind, err := kernels.ParseKind(name)
	if err != nil {
		return 0, &interp.ErrInvalidKernel{Name: name}
	}
	return kind, nil
}

// handleGetModel handles GET /models/{id}.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	const op = "get model"

	id := chi.URLParam(r, "id")
	state, ok := s.lookup(id)
	if !ok {
		s.writeError(w, r, op, &errNotFound{id}, kindNotFound)
		return
	}

	s.respondJSON(w, http.StatusOK, state.metadata())
}

// handleDeleteModel handles DELETE /models/{id}.
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	const op = "delete model"

	id := chi.URLParam(r, "id")

	s.modelsMu.Lock()
	_, ok := s.models[id]
	delete(s.models, id)
	s.modelsMu.Unlock()

	if !ok {
		s.writeError(w, r, op, &errNotFound{id}, kindNotFound)
		return
	}

	s.logger.Info("Model deleted", map[string]interface{}{
		"model_id": id,
	})

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleEvaluate handles POST /models/{id}/evaluate. Queries are evaluated
// in input order; a single query is a one-element batch.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	const op = "evaluate"

	id := chi.URLParam(r, "id")
	state, ok := s.lookup(id)
	if !ok {
		s.writeError(w, r, op, &errNotFound{id}, kindNotFound)
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, op, interp.NewErrorf("invalid request body: %v", err), kindBadRequest)
		return
	}
	if len(req.Points) == 0 {
		s.writeError(w, r, op, interp.NewError("at least one query point is required"), kindBadRequest)
		return
	}
	if n := len(req.Points); n > s.cfg.Interpolation.MaxQueries {
		err := interp.NewErrorf("batch of %d queries exceeds the limit of %d", n, s.cfg.Interpolation.MaxQueries)
		s.writeError(w, r, op, err, kindBadRequest)
		return
	}

	values, err := state.interpolator.EvaluateMany(req.Points)
	if err != nil {
		s.writeError(w, r, op, err, errorKind(err))
		return
	}
	evaluationsTotal.Add(float64(len(values)))

	s.respondJSON(w, http.StatusOK, evaluateResponse{Values: values})
}

// handleSnapshot handles GET /models/{id}/snapshot. The body is everything
// needed to reconstruct evaluate behavior without re-solving.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "snapshot"

	id := chi.URLParam(r, "id")
	state, ok := s.lookup(id)
	if !ok {
		s.writeError(w, r, op, &errNotFound{id}, kindNotFound)
		return
	}

	s.respondJSON(w, http.StatusOK, state.interpolator.Snapshot())
}

// handleImport handles POST /models/import. The body is a snapshot as
// produced by GET /models/{id}/snapshot; the model is restored without
// re-solving and registered under a fresh ID.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	const op = "import"

	var snap rbf.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		s.writeError(w, r, op, interp.NewErrorf("invalid request body: %v", err), kindBadRequest)
		return
	}

	if n := len(snap.Points); n > s.cfg.Interpolation.MaxPoints {
		err := interp.NewErrorf("snapshot of %d points exceeds the limit of %d", n, s.cfg.Interpolation.MaxPoints)
		s.writeError(w, r, op, err, kindBadRequest)
		return
	}

	model, err := rbf.Restore(&snap, rbf.WithLogger(s.engine))
	if err != nil {
		s.writeError(w, r, op, err, errorKind(err))
		return
	}

	state := s.register(model)

	s.logger.Info("Model imported", map[string]interface{}{
		"model_id": state.ID,
		"kernel":   state.Kernel,
		"points":   state.Points,
	})

	s.respondJSON(w, http.StatusCreated, state.metadata())
}

// handleKernels handles GET /kernels.
func (s *Server) handleKernels(w http.ResponseWriter, r *http.Request) {
	kinds := kernels.All()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}

	s.respondJSON(w, http.StatusOK, kernelsResponse{Kernels: names})
}

// handleTune handles POST /tune. The kernel defaults like a fit request
// does, so when the configured default kernel takes no shape parameter the
// request has to name one explicitly.
func (s *Server) handleTune(w http.ResponseWriter, r *http.Request) {
	const op = "tune"

	var req tuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, op, interp.NewErrorf("invalid request body: %v", err), kindBadRequest)
		return
	}

	if n := len(req.Points); n > s.cfg.Interpolation.MaxPoints {
		err := interp.NewErrorf("training set of %d points exceeds the limit of %d", n, s.cfg.Interpolation.MaxPoints)
		s.writeError(w, r, op, err, kindBadRequest)
		return
	}

	kind, err := s.resolveKernel(req.Kernel)
	if err != nil {
		s.writeError(w, r, op, err, errorKind(err))
		return
	}

	result, err := tune.Epsilon(req.Points, req.Values, tune.Config{
		Kernel:        kind,
		Smoothing:     req.Smoothing,
		MaxIterations: s.cfg.Interpolation.TuneMaxIters,
		Logger:        s.engine,
	})
	if err != nil {
		s.writeError(w, r, op, err, errorKind(err))
		return
	}

	s.respondJSON(w, http.StatusOK, tuneResponse{Epsilon: result.Epsilon, LOORMSE: result.RMSE})
}

// writeError maps err onto the REST error envelope. Errors from the interp
// packages get tagged with the failing server operation first, so both the
// log line and the envelope message read like a call path.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error, kind string) {
	if ie, ok := interp.IsInterpError(err); ok {
		err = ie.WithComponent("server").WithOperation(op)
	}

	status := statusForKind(kind)

	s.logger.Error("Request failed", map[string]interface{}{
		"kind":      kind,
		"status":    status,
		"method":    r.Method,
		"path":      r.URL.Path,
		"operation": op,
		"error":     err.Error(),
	})

	s.respondJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: err.Error()}})
}

// respondJSON writes v as the response body with the given status.
func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Close drops every registered model.
func (s *Server) Close() error {
	s.modelsMu.Lock()
	defer s.modelsMu.Unlock()

	s.models = make(map[string]*ModelState)
	return nil
}
