// Package conductivity aggregates facade observables into the thermal
// conductivity tensor under the relaxation time approximation: each mode
// carries heat independently for one lifetime, kappa = sum over modes of
// c_v v (x) v tau normalized by cell volume and mesh size.
package conductivity

import (
	"math"

	"github.com/Akou-stack/kaldo/phonons"
	"github.com/Akou-stack/kaldo/units"
	"gonum.org/v1/gonum/mat"
)

// PerMode returns every mode's contribution to the conductivity tensor in
// W/(m K), one row per phonon with the 3x3 tensor flattened row-major.
// Modes outside the physical window, and modes whose linewidth vanished so
// no lifetime exists, carry a zero row.
func PerMode(ph *phonons.Phonons) *mat.Dense {
	nk, m := ph.NKPoints(), ph.NModes()
	cv := ph.HeatCapacity()
	vel := ph.Velocity()
	bw := ph.Bandwidth()
	mask := ph.PhysicalMode()
	volume := ph.Atoms().Volume()

	out := mat.NewDense(nk*m, 9, nil)
	norm := units.ThermalConductivity / (volume * float64(nk))
	for ik := 0; ik < nk; ik++ {
		for s := 0; s < m; s++ {
			if mask.At(ik, s) == 0 || bw.At(ik, s) <= 0 {
				continue
			}
			mu := ik*m + s
			tau := 1 / (2 * math.Pi * bw.At(ik, s))
			w := norm * cv.At(ik, s) * tau
			for alpha := 0; alpha < 3; alpha++ {
				for beta := 0; beta < 3; beta++ {
					out.Set(mu, 3*alpha+beta, w*vel.At(mu, alpha)*vel.At(mu, beta))
				}
			}
		}
	}
	return out
}

// RTA sums the per-mode contributions into the 3x3 conductivity tensor in
// W/(m K).
func RTA(ph *phonons.Phonons) *mat.Dense {
	per := PerMode(ph)
	n, _ := per.Dims()
	out := mat.NewDense(3, 3, nil)
	for mu := 0; mu < n; mu++ {
		for alpha := 0; alpha < 3; alpha++ {
			for beta := 0; beta < 3; beta++ {
				out.Set(alpha, beta, out.At(alpha, beta)+per.At(mu, 3*alpha+beta))
			}
		}
	}
	return out
}
