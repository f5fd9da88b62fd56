package rbf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/SCATR/internal/interp"
	"github.com/copyleftdev/SCATR/internal/interp/kernels"
)

func TestSnapshotRestore(t *testing.T) {
	model, err := New(squarePoints, squareValues, kernels.Multiquadric, WithSmoothing(0.05))
	require.NoError(t, err)

	snap := model.Snapshot()
	assert.Equal(t, "multiquadric", snap.Kernel)
	assert.Equal(t, model.Epsilon(), snap.Epsilon)
	assert.Equal(t, 0.05, snap.Smoothing)
	require.Len(t, snap.Weights, model.Len())

	restored, err := Restore(snap)
	require.NoError(t, err)

	queries := [][]float64{{0, 0}, {0.3, 0.7}, {1.5, -0.5}}
	want, err := model.EvaluateMany(queries)
	require.NoError(t, err)
	got, err := restored.EvaluateMany(queries)
	require.NoError(t, err)
	require.Equal(t, want, got, "restored model must evaluate identically without re-solving")

	// The snapshot holds deep copies; mutating it must not reach either model.
	snap.Points[0][0] = 42
	v, err := model.Evaluate(queries[0])
	require.NoError(t, err)
	assert.Equal(t, want[0], v)
	v, err = restored.Evaluate(queries[0])
	require.NoError(t, err)
	assert.Equal(t, want[0], v)
}

func TestRestoreValidation(t *testing.T) {
	model, err := New(squarePoints, squareValues, kernels.ThinPlate)
	require.NoError(t, err)
	good := model.Snapshot()

	t.Run("nil snapshot", func(t *testing.T) {
		_, err := Restore(nil)
		require.Error(t, err)
	})

	t.Run("unknown kernel", func(t *testing.T) {
		snap := *good
		snap.Kernel = "cubic"
		_, err := Restore(&snap)
		var bad *interp.ErrInvalidKernel
		require.ErrorAs(t, err, &bad)
		assert.Equal(t, "cubic", bad.Name)
	})

	t.Run("no points", func(t *testing.T) {
		snap := *good
		snap.Points = nil
		_, err := Restore(&snap)
		assert.ErrorIs(t, err, interp.ErrEmptyTrainingSet)
	})

	t.Run("weight count mismatch", func(t *testing.T) {
		snap := *good
		snap.Weights = snap.Weights[:2]
		_, err := Restore(&snap)
		var dim *interp.ErrDimensionMismatch
		require.ErrorAs(t, err, &dim)
		assert.Equal(t, 4, dim.Expected)
		assert.Equal(t, 2, dim.Actual)
	})

	t.Run("ragged points", func(t *testing.T) {
		snap := *good
		snap.Points = [][]float64{{0, 0}, {1}, {0, 1}, {1, 1}}
		_, err := Restore(&snap)
		var dim *interp.ErrDimensionMismatch
		require.ErrorAs(t, err, &dim)
	})

	t.Run("negative smoothing", func(t *testing.T) {
		snap := *good
		snap.Smoothing = -0.5
		_, err := Restore(&snap)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smoothing must be non-negative")
	})
}
