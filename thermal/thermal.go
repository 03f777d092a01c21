// Package thermal evaluates per-mode statistical observables: phonon
// occupation and heat capacity, in the quantum Bose-Einstein form or the
// classical equipartition limit. Masked modes stay at zero so downstream
// transport sums can run over full arrays.
package thermal

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Akou-stack/kaldo/units"
)

// Population returns the (nk, m) occupations at the given temperature in
// Kelvin. Quantum statistics give the Bose-Einstein factor
// 1/(exp(h nu / kB T) - 1), the classical limit gives kB T / (h nu).
// Only modes flagged in physical contribute; the rest stay zero.
func Population(freq *mat.Dense, temperature float64, classic bool, physical [][]bool) *mat.Dense {
	nk, m := freq.Dims()
	pop := mat.NewDense(nk, m, nil)
	tempTHz := temperature * units.KelvinToTHz
	for ik := 0; ik < nk; ik++ {
		for mu := 0; mu < m; mu++ {
			if !physical[ik][mu] {
				continue
			}
			nu := freq.At(ik, mu)
			if classic {
				pop.Set(ik, mu, tempTHz/nu)
			} else {
				pop.Set(ik, mu, 1/math.Expm1(nu/tempTHz))
			}
		}
	}
	return pop
}

// HeatCapacity returns the (nk, m) mode heat capacities in J/K. The
// classical value is exactly kB per physical mode; the quantum value is
// kB n(n+1) (nu / kB T)^2 with n the Bose-Einstein occupation.
func HeatCapacity(freq, pop *mat.Dense, temperature float64, classic bool, physical [][]bool) *mat.Dense {
	nk, m := freq.Dims()
	cv := mat.NewDense(nk, m, nil)
	tempTHz := temperature * units.KelvinToTHz
	for ik := 0; ik < nk; ik++ {
		for mu := 0; mu < m; mu++ {
			if !physical[ik][mu] {
				continue
			}
			if classic {
				cv.Set(ik, mu, units.KBJoule)
				continue
			}
			n := pop.At(ik, mu)
			x := freq.At(ik, mu) / tempTHz
			cv.Set(ik, mu, units.KBJoule*n*(n+1)*x*x)
		}
	}
	return cv
}
