package rbf

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/copyleftdev/SCATR/internal/interp/kernels"
)

// parallelRows is the training-set size above which matrix assembly fans out
// across goroutines. Below it the scheduling overhead outweighs the work.
const parallelRows = 256

// buildSystem fills aug with the augmented interpolation system [A | b],
// row-major with stride n+1. A[i][j] holds the kernel applied to the distance
// between training points i and j, the diagonal carries the kernel value at
// zero distance plus the smoothing weight, and the last column holds the
// training values.
//
// Rows write disjoint slices and every entry is a single kernel evaluation,
// so the parallel path fills the exact same matrix as the sequential one.
func buildSystem(points [][]float64, values []float64, fn kernels.Func, eps, lambda float64, aug []float64) error {
	n := len(points)
	stride := n + 1
	phi0 := fn(0, eps)

	fillRow := func(i int) {
		row := aug[i*stride : (i+1)*stride]
		for j := 0; j < n; j++ {
			if i == j {
				row[j] = phi0 + lambda
				continue
			}
			row[j] = fn(kernels.Distance(points[i], points[j]), eps)
		}
		row[n] = values[i]
	}

	if n < parallelRows {
		for i := 0; i < n; i++ {
			fillRow(i)
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		i := i // pin per-iteration value; required under go < 1.22 loop semantics
		g.Go(func() error {
			fillRow(i)
			return nil
		})
	}
	return g.Wait()
}
