// Package interp defines the scattered-data interpolation contract shared by
// the engine implementations and the service layer, along with the error
// kinds a fit or evaluation can produce.
package interp

// Evaluator evaluates a fitted scattered-data model at query points.
type Evaluator interface {
	// Evaluate returns the model value at a single query point. The query
	// must have the same dimension as the training points.
	Evaluate(query []float64) (float64, error)

	// EvaluateMany evaluates the model at each query point in order. The
	// i-th result corresponds to the i-th query.
	EvaluateMany(queries [][]float64) ([]float64, error)
}
