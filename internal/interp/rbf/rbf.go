// Package rbf fits scattered data with radial basis function interpolation.
// A fitted Interpolator is the weighted combination of kernel translates
// centered on the training points that reproduces (or, with smoothing,
// approximates) the training values, and it evaluates that surface at
// arbitrary query points of the same dimension.
package rbf

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/SCATR/internal/interp"
	"github.com/copyleftdev/SCATR/internal/interp/kernels"
)

// Interpolator is an immutable fitted interpolation model. All methods are
// safe for concurrent use.
type Interpolator struct {
	points  [][]float64
	values  []float64
	weights []float64

	kind      kernels.Kind
	fn        kernels.Func
	epsilon   float64
	smoothing float64
	dim       int

	logger *zap.Logger
}

var _ interp.Evaluator = (*Interpolator)(nil)

// New fits an interpolation model to the training data. Construction either
// fully succeeds or fails with no usable model: it validates the inputs,
// resolves the shape parameter (estimating one from the data unless
// WithEpsilon fixed it), resolves the kernel, assembles the interpolation
// system and solves it for the weights. The training slices are deep-copied;
// the caller may reuse them afterwards.
func New(points [][]float64, values []float64, kind kernels.Kind, opts ...Option) (*Interpolator, error) {
	const op = "Interpolator.New"

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	n := len(points)
	if n == 0 {
		return nil, interp.WrapError(interp.ErrEmptyTrainingSet, "rbf: "+op)
	}
	if len(values) != n {
		err := &interp.ErrDimensionMismatch{Expected: n, Actual: len(values)}
		return nil, interp.WrapError(err, "rbf: "+op)
	}
	dim := len(points[0])
	for _, p := range points[1:] {
		if len(p) != dim {
			err := &interp.ErrDimensionMismatch{Expected: dim, Actual: len(p)}
			return nil, interp.WrapError(err, "rbf: "+op)
		}
	}
	if o.smoothing < 0 {
		err := interp.NewErrorf("smoothing must be non-negative, got %g", o.smoothing)
		return nil, interp.WrapError(err, "rbf: "+op)
	}
	if o.epsilon < 0 {
		err := interp.NewErrorf("shape parameter must be positive, got %g", o.epsilon)
		return nil, interp.WrapError(err, "rbf: "+op)
	}

	eps := o.epsilon
	if eps == 0 {
		eps = EstimateEpsilon(points)
	}

	fn, err := kernels.Provider(kind)
	if err != nil {
		return nil, interp.WrapError(&interp.ErrInvalidKernel{Name: kind.String()}, "rbf: "+op)
	}

	o.logger.Debug("Fitting interpolation model",
		zap.Int("points", n),
		zap.Int("dim", dim),
		zap.String("kernel", kind.String()),
		zap.Float64("epsilon", eps),
		zap.Float64("smoothing", o.smoothing),
	)

	pts := make([][]float64, n)
	for i, p := range points {
		pts[i] = append([]float64(nil), p...)
	}
	vals := append([]float64(nil), values...)

	aug := systemPool.Get(n * (n + 1))
	if err := buildSystem(pts, vals, fn, eps, o.smoothing, aug); err != nil {
		systemPool.Put(aug)
		return nil, interp.WrapError(err, "rbf: "+op)
	}

	weights, err := solveSystem(aug, n)
	systemPool.Put(aug)
	if err != nil {
		return nil, interp.WrapError(err, "rbf: "+op)
	}

	o.logger.Debug("Successfully fitted interpolation model",
		zap.Int("points", n),
		zap.Int("dim", dim),
	)

	return &Interpolator{
		points:    pts,
		values:    vals,
		weights:   weights,
		kind:      kind,
		fn:        fn,
		epsilon:   eps,
		smoothing: o.smoothing,
		dim:       dim,
		logger:    o.logger,
	}, nil
}

// Evaluate returns the interpolated value at the query point: the sum over
// all training points of weight times kernel applied to the distance. It is
// a pure function of the fitted state and the query.
func (it *Interpolator) Evaluate(query []float64) (float64, error) {
	if len(query) != it.dim {
		return 0, &interp.ErrDimensionMismatch{Expected: it.dim, Actual: len(query)}
	}

	var sum float64
	for i, p := range it.points {
		sum += it.weights[i] * it.fn(kernels.Distance(query, p), it.epsilon)
	}
	return sum, nil
}

// EvaluateMany evaluates the model at each query point in order. It fails
// fast: the first query whose dimension does not match the model aborts the
// batch with an error naming that query's index, and no partial results are
// returned.
func (it *Interpolator) EvaluateMany(queries [][]float64) ([]float64, error) {
	const op = "Interpolator.EvaluateMany"

	out := make([]float64, len(queries))
	for i, q := range queries {
		v, err := it.Evaluate(q)
		if err != nil {
			return nil, interp.WrapErrorf(err, "rbf: %s: query %d", op, i)
		}
		out[i] = v
	}
	return out, nil
}

// Kind returns the kernel the model was fitted with.
func (it *Interpolator) Kind() kernels.Kind { return it.kind }

// Epsilon returns the shape parameter frozen at fit time.
func (it *Interpolator) Epsilon() float64 { return it.epsilon }

// Smoothing returns the regularization weight the model was fitted with.
func (it *Interpolator) Smoothing() float64 { return it.smoothing }

// Dim returns the dimension of the training and query points.
func (it *Interpolator) Dim() int { return it.dim }

// Len returns the number of training points.
func (it *Interpolator) Len() int { return len(it.points) }

// Weights returns a copy of the fitted weight vector.
func (it *Interpolator) Weights() []float64 {
	return append([]float64(nil), it.weights...)
}
