package rbf

import "github.com/copyleftdev/SCATR/internal/interp/kernels"

// epsilonSampleSize caps how many leading training points feed the shape
// parameter estimate. Pair counts grow quadratically with the sample, so the
// cap keeps estimation cost flat for large training sets.
const epsilonSampleSize = 100

// EstimateEpsilon derives a default shape parameter from the spatial spread
// of the training data: the mean pairwise Euclidean distance over all
// unordered pairs among the first min(N, epsilonSampleSize) points. The
// prefix is fixed rather than sampled so the estimate is reproducible for a
// given input order. With fewer than two points there are no pairs and the
// estimate falls back to 1.0.
//
// New applies this estimate whenever WithEpsilon is absent.
func EstimateEpsilon(points [][]float64) float64 {
	n := len(points)
	if n > epsilonSampleSize {
		n = epsilonSampleSize
	}
	if n < 2 {
		return 1.0
	}

	var sum float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += kernels.Distance(points[i], points[j])
		}
	}
	pairs := n * (n - 1) / 2
	return sum / float64(pairs)
}
