package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/copyleftdev/SCATR/internal/interp"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

// jsonRPCRequest is the wire form of a JSON-RPC 2.0 call. Params are held
// raw so each method can decode its own shape.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// errInvalidParams marks parameter decoding failures so the dispatcher can
// answer with the dedicated JSON-RPC code instead of a generic server error.
type errInvalidParams struct{ err error }

func (e *errInvalidParams) Error() string { return e.err.Error() }

func (e *errInvalidParams) Unwrap() error { return e.err }

// unmarshalParams decodes the request params into dst.
func unmarshalParams(params json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return &errInvalidParams{interp.NewError("params are required")}
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &errInvalidParams{interp.NewErrorf("invalid params: %v", err)}
	}
	return nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request jsonRPCRequest

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithRPCError(w, rpcParseError, "Parse error", nil, nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithRPCError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "rbf.fit":
		result, err = s.rpcFit(request.Params)
	case "rbf.evaluate":
		result, err = s.rpcEvaluate(request.Params)
	case "rbf.evaluateMany":
		result, err = s.rpcEvaluateMany(request.Params)
	case "rbf.snapshot":
		result, err = s.rpcSnapshot(request.Params)
	default:
		s.respondWithRPCError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		var invalid *errInvalidParams
		if errors.As(err, &invalid) {
			s.respondWithRPCError(w, rpcInvalidParams, "Invalid params", request.ID, map[string]interface{}{
				"detail": invalid.Error(),
			})
			return
		}
		s.respondWithRPCError(w, rpcServerError, err.Error(), request.ID, map[string]interface{}{
			"kind": errorKind(err),
		})
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// rpcFit implements the rbf.fit method. Params mirror the body of
// POST /models; the result is the registered model's metadata.
func (s *Server) rpcFit(params json.RawMessage) (interface{}, error) {
	var req fitRequest
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}

	if n := len(req.Points); n > s.cfg.Interpolation.MaxPoints {
		return nil, &errInvalidParams{interp.NewErrorf("training set of %d points exceeds the limit of %d", n, s.cfg.Interpolation.MaxPoints)}
	}

	state, err := s.fitModel(req)
	if err != nil {
		return nil, err
	}
	return state.metadata(), nil
}

type rpcEvaluateParams struct {
	ModelID string    `json:"model_id"`
	Point   []float64 `json:"point"`
}

// rpcEvaluate implements the rbf.evaluate method for a single query point.
func (s *Server) rpcEvaluate(params json.RawMessage) (interface{}, error) {
	var req rpcEvaluateParams
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}

	state, ok := s.lookup(req.ModelID)
	if !ok {
		return nil, &errNotFound{req.ModelID}
	}

	v, err := state.interpolator.Evaluate(req.Point)
	if err != nil {
		return nil, err
	}
	evaluationsTotal.Inc()

	return map[string]float64{"value": v}, nil
}

type rpcEvaluateManyParams struct {
	ModelID string      `json:"model_id"`
	Points  [][]float64 `json:"points"`
}

// rpcEvaluateMany implements the rbf.evaluateMany method.
func (s *Server) rpcEvaluateMany(params json.RawMessage) (interface{}, error) {
	var req rpcEvaluateManyParams
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}

	if n := len(req.Points); n > s.cfg.Interpolation.MaxQueries {
		return nil, &errInvalidParams{interp.NewErrorf("batch of %d queries exceeds the limit of %d", n, s.cfg.Interpolation.MaxQueries)}
	}

	state, ok := s.lookup(req.ModelID)
	if !ok {
		return nil, &errNotFound{req.ModelID}
	}

	values, err := state.interpolator.EvaluateMany(req.Points)
	if err != nil {
		return nil, err
	}
	evaluationsTotal.Add(float64(len(values)))

	return evaluateResponse{Values: values}, nil
}

type rpcSnapshotParams struct {
	ModelID string `json:"model_id"`
}

// rpcSnapshot implements the rbf.snapshot method.
func (s *Server) rpcSnapshot(params json.RawMessage) (interface{}, error) {
	var req rpcSnapshotParams
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}

	state, ok := s.lookup(req.ModelID)
	if !ok {
		return nil, &errNotFound{req.ModelID}
	}

	return state.interpolator.Snapshot(), nil
}

// respondWithRPCError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithRPCError(w http.ResponseWriter, code int, message string, id interface{}, data map[string]interface{}) {
	s.logger.Error("RPC request error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		errObj["data"] = data
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   errObj,
		"id":      id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
