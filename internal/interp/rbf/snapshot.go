package rbf

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/SCATR/internal/interp"
	"github.com/copyleftdev/SCATR/internal/interp/kernels"
)

// Snapshot captures the state needed to reconstruct a model's evaluate
// behavior without re-solving the interpolation system: the kernel tag, the
// frozen shape parameter, the smoothing weight, the training points and the
// fitted weights.
type Snapshot struct {
	Kernel    string      `json:"kernel"`
	Epsilon   float64     `json:"epsilon"`
	Smoothing float64     `json:"smoothing"`
	Points    [][]float64 `json:"points"`
	Weights   []float64   `json:"weights"`
}

// Snapshot returns a deep copy of the model's persistable state.
func (it *Interpolator) Snapshot() *Snapshot {
	points := make([][]float64, len(it.points))
	for i, p := range it.points {
		points[i] = append([]float64(nil), p...)
	}
	return &Snapshot{
		Kernel:    it.kind.String(),
		Epsilon:   it.epsilon,
		Smoothing: it.smoothing,
		Points:    points,
		Weights:   append([]float64(nil), it.weights...),
	}
}

// Restore rebuilds a model from a snapshot without re-solving the linear
// system. The snapshot must carry a known kernel tag, at least one training
// point, points of a uniform dimension and exactly one weight per point.
// Fit parameters come from the snapshot itself; of the options only
// WithLogger is consulted. The restored model carries no training values,
// which evaluation does not need. Snapshot contents are deep-copied.
func Restore(snap *Snapshot, opts ...Option) (*Interpolator, error) {
	const op = "Restore"

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if snap == nil {
		return nil, interp.WrapError(interp.NewError("snapshot is nil"), "rbf: "+op)
	}

	kind, err := kernels.ParseKind(snap.Kernel)
	if err != nil {
		return nil, interp.WrapError(&interp.ErrInvalidKernel{Name: snap.Kernel}, "rbf: "+op)
	}
	fn, err := kernels.Provider(kind)
	if err != nil {
		return nil, interp.WrapError(&interp.ErrInvalidKernel{Name: snap.Kernel}, "rbf: "+op)
	}

	n := len(snap.Points)
	if n == 0 {
		return nil, interp.WrapError(interp.ErrEmptyTrainingSet, "rbf: "+op)
	}
	if len(snap.Weights) != n {
		err := &interp.ErrDimensionMismatch{Expected: n, Actual: len(snap.Weights)}
		return nil, interp.WrapError(err, "rbf: "+op)
	}
	dim := len(snap.Points[0])
	for _, p := range snap.Points[1:] {
		if len(p) != dim {
			err := &interp.ErrDimensionMismatch{Expected: dim, Actual: len(p)}
			return nil, interp.WrapError(err, "rbf: "+op)
		}
	}
	if snap.Smoothing < 0 {
		err := interp.NewErrorf("smoothing must be non-negative, got %g", snap.Smoothing)
		return nil, interp.WrapError(err, "rbf: "+op)
	}

	points := make([][]float64, n)
	for i, p := range snap.Points {
		points[i] = append([]float64(nil), p...)
	}

	o.logger.Debug("Restored interpolation model from snapshot",
		zap.Int("points", n),
		zap.Int("dim", dim),
		zap.String("kernel", snap.Kernel),
	)

	return &Interpolator{
		points:    points,
		weights:   append([]float64(nil), snap.Weights...),
		kind:      kind,
		fn:        fn,
		epsilon:   snap.Epsilon,
		smoothing: snap.Smoothing,
		dim:       dim,
		logger:    o.logger,
	}, nil
}
