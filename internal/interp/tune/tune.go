// Package tune selects a shape parameter for the kernels that take one by
// minimizing leave-one-out cross-validation error over the training data.
//
// For the interpolation system A·w = b, the leave-one-out residual at point
// i equals w_i divided by the i-th diagonal entry of the inverse of A, so
// scoring a candidate costs a single inversion instead of n refits.
package tune

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/SCATR/internal/interp"
	"github.com/copyleftdev/SCATR/internal/interp/kernels"
	"github.com/copyleftdev/SCATR/internal/interp/rbf"
)

// defaultMaxIterations bounds each Nelder-Mead run when the caller does not.
const defaultMaxIterations = 100

// Config controls a shape-parameter search.
type Config struct {
	// Kernel is the kernel the parameter is tuned for. It must be one that
	// consumes a shape parameter.
	Kernel kernels.Kind

	// Smoothing is the regularization weight applied to the system diagonal
	// during scoring. It should match the weight the final fit will use.
	Smoothing float64

	// MaxIterations bounds each Nelder-Mead run. Zero selects the default.
	MaxIterations int

	// Logger receives progress at debug level. Nil disables logging.
	Logger *zap.Logger
}

// Result is the outcome of a shape-parameter search.
type Result struct {
	// Epsilon is the selected shape parameter.
	Epsilon float64

	// RMSE is the leave-one-out root-mean-square error at Epsilon.
	RMSE float64
}

// Epsilon searches for the shape parameter that minimizes leave-one-out
// error on the given training data. The search runs Nelder-Mead over
// log10(epsilon) from three starts around the data-driven estimate, which
// keeps every candidate positive and covers an order of magnitude in each
// direction. Candidates whose system cannot be inverted score +Inf and are
// abandoned by the search.
func Epsilon(points [][]float64, values []float64, cfg Config) (Result, error) {
	const op = "Epsilon"

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fn, err := kernels.Provider(cfg.Kernel)
	if err != nil {
		return Result{}, interp.WrapError(&interp.ErrInvalidKernel{Name: cfg.Kernel.String()}, "tune: "+op)
	}
	if !cfg.Kernel.UsesEpsilon() {
		err := interp.NewErrorf("kernel %v takes no shape parameter", cfg.Kernel)
		return Result{}, interp.WrapError(err, "tune: "+op)
	}

	n := len(points)
	if n < 2 {
		err := interp.NewError("need at least two training points")
		return Result{}, interp.WrapError(err, "tune: "+op)
	}
	if len(values) != n {
		err := &interp.ErrDimensionMismatch{Expected: n, Actual: len(values)}
		return Result{}, interp.WrapError(err, "tune: "+op)
	}
	dim := len(points[0])
	for _, p := range points[1:] {
		if len(p) != dim {
			err := &interp.ErrDimensionMismatch{Expected: dim, Actual: len(p)}
			return Result{}, interp.WrapError(err, "tune: "+op)
		}
	}
	if cfg.Smoothing < 0 {
		err := interp.NewErrorf("smoothing must be non-negative, got %g", cfg.Smoothing)
		return Result{}, interp.WrapError(err, "tune: "+op)
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	eps0 := rbf.EstimateEpsilon(points)
	if eps0 <= 0 {
		eps0 = 1.0
	}

	logger.Debug("Tuning shape parameter",
		zap.String("kernel", cfg.Kernel.String()),
		zap.Int("points", n),
		zap.Float64("initial_epsilon", eps0),
		zap.Int("max_iterations", maxIter),
	)

	y := mat.NewVecDense(n, append([]float64(nil), values...))

	problem := optimize.Problem{
		Func: func(t []float64) float64 {
			return looRMSE(points, y, fn, math.Pow(10, t[0]), cfg.Smoothing)
		},
	}

	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: maxIter,
		},
	}

	t0 := math.Log10(eps0)
	starts := []float64{t0 - 1, t0, t0 + 1}

	bestT := t0
	bestVal := math.Inf(1)

	for _, start := range starts {
		method := &optimize.NelderMead{
			Reflection:  1.0, // Standard reflection coefficient
			Expansion:   2.0, // Standard expansion coefficient
			Contraction: 0.5, // Standard contraction coefficient
			Shrink:      0.5, // Standard shrink coefficient
			SimplexSize: 0.2, // Size of auto-constructed initial simplex
		}

		result, err := optimize.Minimize(problem, []float64{start}, settings, method)
		if err == nil && result.F < bestVal {
			bestVal = result.F
			bestT = result.X[0]
		}
	}

	if math.IsInf(bestVal, 1) {
		if v := looRMSE(points, y, fn, eps0, cfg.Smoothing); !math.IsInf(v, 1) {
			bestT, bestVal = t0, v
		} else {
			err := interp.NewError("no shape parameter yields an invertible system; training data may contain duplicate points")
			return Result{}, interp.WrapError(err, "tune: "+op)
		}
	}

	best := Result{
		Epsilon: math.Pow(10, bestT),
		RMSE:    bestVal,
	}

	logger.Debug("Selected shape parameter",
		zap.Float64("epsilon", best.Epsilon),
		zap.Float64("rmse", best.RMSE),
	)

	return best, nil
}

// looRMSE scores one shape parameter by Rippa's leave-one-out identity.
// Systems the inversion rejects score +Inf.
func looRMSE(points [][]float64, y *mat.VecDense, fn kernels.Func, eps, lambda float64) float64 {
	n := len(points)
	phi0 := fn(0, eps)

	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		a.SetSym(i, i, phi0+lambda)
		for j := i + 1; j < n; j++ {
			a.SetSym(i, j, fn(kernels.Distance(points[i], points[j]), eps))
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		// An ill-conditioned but computable inverse is still worth scoring;
		// an infinite condition number means no inverse was produced at all.
		cond, ok := err.(mat.Condition)
		if !ok || math.IsInf(float64(cond), 1) {
			return math.Inf(1)
		}
	}

	w := mat.NewVecDense(n, nil)
	w.MulVec(&inv, y)

	var sum float64
	for i := 0; i < n; i++ {
		d := inv.At(i, i)
		if d == 0 {
			return math.Inf(1)
		}
		e := w.AtVec(i) / d
		sum += e * e
	}

	rmse := math.Sqrt(sum / float64(n))
	if math.IsNaN(rmse) {
		return math.Inf(1)
	}
	return rmse
}

// LOOError reports the leave-one-out root-mean-square error of a single
// kernel and shape-parameter combination on the given training data. It
// scores the same objective Epsilon minimizes, which makes it useful for
// judging a hand-picked parameter against a tuned one. Kernels without a
// shape parameter may be scored too; eps is ignored for them.
func LOOError(points [][]float64, values []float64, kind kernels.Kind, eps, lambda float64) (float64, error) {
	const op = "LOOError"

	fn, err := kernels.Provider(kind)
	if err != nil {
		return 0, interp.WrapError(&interp.ErrInvalidKernel{Name: kind.String()}, "tune: "+op)
	}
	if kind.UsesEpsilon() && eps <= 0 {
		err := interp.NewErrorf("shape parameter must be positive, got %g", eps)
		return 0, interp.WrapError(err, "tune: "+op)
	}
	if lambda < 0 {
		err := interp.NewErrorf("smoothing must be non-negative, got %g", lambda)
		return 0, interp.WrapError(err, "tune: "+op)
	}

	n := len(points)
	if n < 2 {
		err := interp.NewError("need at least two training points")
		return 0, interp.WrapError(err, "tune: "+op)
	}
	if len(values) != n {
		err := &interp.ErrDimensionMismatch{Expected: n, Actual: len(values)}
		return 0, interp.WrapError(err, "tune: "+op)
	}
	dim := len(points[0])
	for _, p := range points[1:] {
		if len(p) != dim {
			err := &interp.ErrDimensionMismatch{Expected: dim, Actual: len(p)}
			return 0, interp.WrapError(err, "tune: "+op)
		}
	}

	y := mat.NewVecDense(n, append([]float64(nil), values...))
	v := looRMSE(points, y, fn, eps, lambda)
	if math.IsInf(v, 1) {
		err := interp.NewError("system is not invertible at this shape parameter")
		return 0, interp.WrapError(err, "tune: "+op)
	}
	return v, nil
}
