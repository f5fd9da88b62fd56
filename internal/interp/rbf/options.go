package rbf

import "go.uber.org/zap"

// options collects the tunable parameters of a fit.
type options struct {
	epsilon   float64
	smoothing float64
	logger    *zap.Logger
}

func defaultOptions() *options {
	return &options{
		epsilon:   0, // zero means estimate from the training data
		smoothing: 0,
		logger:    zap.NewNop(),
	}
}

// Option configures a fit.
type Option func(*options)

// WithEpsilon fixes the kernel shape parameter instead of estimating it from
// the training data. It must be positive. Kernels that take no shape
// parameter ignore it.
func WithEpsilon(eps float64) Option {
	return func(o *options) {
		o.epsilon = eps
	}
}

// WithSmoothing sets the regularization weight added to the system diagonal.
// It must be non-negative. Zero demands exact interpolation; larger values
// trade fidelity at the training points for robustness to noise.
func WithSmoothing(lambda float64) Option {
	return func(o *options) {
		o.smoothing = lambda
	}
}

// WithLogger attaches a structured logger to the fit and the resulting model.
// A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
