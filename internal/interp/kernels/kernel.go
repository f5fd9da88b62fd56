// Package kernels provides the radial basis kernel functions used by the
// interpolation engine. A kernel maps a non-negative Euclidean distance r
// (and, for the distance-scaled kernels, a shape parameter eps) to a real
// value.
package kernels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Kind identifies one of the supported radial basis kernels.
type Kind int

const (
	// ThinPlate is the thin-plate spline kernel r^2*ln(r).
	ThinPlate Kind = iota
	// Multiquadric is sqrt(1+(eps*r)^2).
	Multiquadric
	// InverseMultiquadric is 1/sqrt(1+(eps*r)^2).
	InverseMultiquadric
	// Gaussian is exp(-(eps*r)^2).
	Gaussian
	// Linear is r.
	Linear
	// Squared is r^2.
	Squared
	// Quintic is r^5.
	Quintic
)

// String returns the canonical kernel name.
func (k Kind) String() string {
	switch k {
	case ThinPlate:
		return "thin-plate"
	case Multiquadric:
		return "multiquadric"
	case InverseMultiquadric:
		return "inverse-multiquadric"
	case Gaussian:
		return "gaussian"
	case Linear:
		return "linear"
	case Squared:
		return "squared"
	case Quintic:
		return "quintic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// All returns the supported kernel kinds in declaration order.
func All() []Kind {
	return []Kind{ThinPlate, Multiquadric, InverseMultiquadric, Gaussian, Linear, Squared, Quintic}
}

// ParseKind maps a kernel name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "thin-plate":
		return ThinPlate, nil
	case "multiquadric":
		return Multiquadric, nil
	case "inverse-multiquadric":
		return InverseMultiquadric, nil
	case "gaussian":
		return Gaussian, nil
	case "linear":
		return Linear, nil
	case "squared":
		return Squared, nil
	case "quintic":
		return Quintic, nil
	default:
		return 0, fmt.Errorf("unknown kernel %q", name)
	}
}

// UsesEpsilon reports whether k is scaled by the shape parameter.
func (k Kind) UsesEpsilon() bool {
	switch k {
	case Multiquadric, InverseMultiquadric, Gaussian:
		return true
	}
	return false
}

// Func evaluates a radial basis kernel at distance r >= 0 with shape
// parameter eps. Kernels that do not use eps ignore it.
type Func func(r, eps float64) float64

// Provider returns the kernel function for k.
func Provider(k Kind) (Func, error) {
	switch k {
	case ThinPlate:
		return thinPlate, nil
	case Multiquadric:
		return multiquadric, nil
	case InverseMultiquadric:
		return inverseMultiquadric, nil
	case Gaussian:
		return gaussian, nil
	case Linear:
		return linear, nil
	case Squared:
		return squared, nil
	case Quintic:
		return quintic, nil
	default:
		return nil, fmt.Errorf("unknown kernel %v", k)
	}
}

// thinPlate computes r^2*ln(r). The r=0 case is a removable singularity and
// is pinned to 0 so ln(0) never produces a NaN.
func thinPlate(r, _ float64) float64 {
	if r == 0 {
		return 0
	}
	return r * r * math.Log(r)
}

func multiquadric(r, eps float64) float64 {
	er := eps * r
	return math.Sqrt(1 + er*er)
}

func inverseMultiquadric(r, eps float64) float64 {
	er := eps * r
	return 1 / math.Sqrt(1+er*er)
}

func gaussian(r, eps float64) float64 {
	er := eps * r
	return math.Exp(-er * er)
}

func linear(r, _ float64) float64 {
	return r
}

func squared(r, _ float64) float64 {
	return r * r
}

func quintic(r, _ float64) float64 {
	return r * r * r * r * r
}

// Distance returns the Euclidean distance between x and y. Both points must
// have the same dimension.
func Distance(x, y []float64) float64 {
	return floats.Distance(x, y, 2)
}
