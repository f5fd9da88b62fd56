package rbf

import (
	"math"

	"github.com/copyleftdev/SCATR/internal/interp"
)

// pivotThreshold is the smallest pivot magnitude the elimination accepts.
// A pivot below it means the system is numerically degenerate, typically
// duplicate or near-duplicate training points with too little smoothing.
const pivotThreshold = 1e-12

// solveSystem solves the augmented system [A | b] stored row-major in aug
// with stride n+1, using Gaussian elimination with partial pivoting followed
// by back substitution, and returns the solution as a fresh slice. aug is
// consumed as scratch space.
//
// The elimination is strictly sequential. The pivot order fixes the
// floating-point operation order, which keeps repeated fits over identical
// inputs bit-identical.
func solveSystem(aug []float64, n int) ([]float64, error) {
	stride := n + 1

	// Forward elimination with partial pivoting.
	for col := 0; col < n; col++ {
		maxRow := col
		maxVal := math.Abs(aug[col*stride+col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r*stride+col]); v > maxVal {
				maxVal = v
				maxRow = r
			}
		}

		if maxVal < pivotThreshold {
			return nil, &interp.ErrSingularMatrix{Column: col, Pivot: maxVal}
		}

		if maxRow != col {
			top := aug[col*stride : col*stride+stride]
			other := aug[maxRow*stride : maxRow*stride+stride]
			for k := col; k < stride; k++ {
				top[k], other[k] = other[k], top[k]
			}
		}

		pivot := aug[col*stride+col]
		for r := col + 1; r < n; r++ {
			factor := aug[r*stride+col] / pivot
			for k := col; k < stride; k++ {
				aug[r*stride+k] -= factor * aug[col*stride+k]
			}
		}
	}

	// Back substitution.
	w := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i*stride+n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i*stride+j] * w[j]
		}
		w[i] = sum / aug[i*stride+i]
	}

	return w, nil
}
