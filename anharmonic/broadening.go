package anharmonic

import (
	"fmt"
	"math"
)

// Shape selects the broadening kernel that stands in for the energy
// conservation delta in the scattering integrals.
type Shape int

const (
	Gauss Shape = iota
	Lorentz
	Triangle
)

// ParseShape maps a configuration string onto a Shape. Unknown names are
// a configuration error, matching the fail-fast contract of the facade.
func ParseShape(name string) (Shape, error) {
	switch name {
	case "gauss", "":
		return Gauss, nil
	case "lorentz":
		return Lorentz, nil
	case "triangle":
		return Triangle, nil
	}
	return 0, fmt.Errorf("anharmonic: unknown broadening shape %q (want gauss, lorentz or triangle)", name)
}

func (s Shape) String() string {
	switch s {
	case Gauss:
		return "gauss"
	case Lorentz:
		return "lorentz"
	case Triangle:
		return "triangle"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Threshold returns the cutoff multiplier t: triplets with
// |delta| >= t*sigma are dropped before any matrix element is computed.
// The triangle kernel has compact support so t = 1; the open-ended
// kernels keep the conventional two-sigma window.
func (s Shape) Threshold() float64 {
	if s == Triangle {
		return 1
	}
	return 2
}

// Kernel evaluates the normalized broadening kernel at detuning delta with
// width sigma, both in angular units. Every shape integrates to one over
// the real line and is even in delta.
func (s Shape) Kernel(delta, sigma float64) float64 {
	switch s {
	case Lorentz:
		return sigma / (math.Pi * (delta*delta + sigma*sigma))
	case Triangle:
		if a := math.Abs(delta); a < sigma {
			return (sigma - a) / (sigma * sigma)
		}
		return 0
	default:
		x := delta / sigma
		return math.Exp(-x*x/2) / (sigma * math.Sqrt(2*math.Pi))
	}
}
