package harmonic

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Dynmat assembles the dynamical matrix at the fractional wavevector q,
//
//	D(q) = sum_l d_l exp(2 pi i q . n_l)
//
// where d_l are the mass-rescaled force constant blocks and n_l the
// centered integer replica triples. The result is Hermitian with angular
// eigenvalues in rad^2/ps^2.
func (s *Solver) Dynmat(q [3]float64) *mat.CDense {
	m := s.Second.NModes()
	d := mat.NewCDense(m, m, nil)
	for l, n := range s.Second.ReplicaFrac {
		arg := 2 * math.Pi * (q[0]*float64(n[0]) + q[1]*float64(n[1]) + q[2]*float64(n[2]))
		chi := cmplx.Exp(complex(0, arg))
		for i3 := 0; i3 < m; i3++ {
			for j3 := 0; j3 < m; j3++ {
				d.Set(i3, j3, d.At(i3, j3)+chi*complex(s.Second.At(i3, l, j3), 0))
			}
		}
	}
	return d
}

// DynmatDerivatives assembles the three cartesian derivatives of the
// dynamical matrix with respect to the wavevector k = 2 pi cellInv^T q,
//
//	dD/dk_a = sum_l i R_la d_l exp(2 pi i q . n_l)
//
// with R_l the cartesian replica vectors. Used by the Hellmann-Feynman
// group velocities.
func (s *Solver) DynmatDerivatives(q [3]float64) [3]*mat.CDense {
	m := s.Second.NModes()
	var out [3]*mat.CDense
	for alpha := 0; alpha < 3; alpha++ {
		out[alpha] = mat.NewCDense(m, m, nil)
	}
	for l, n := range s.Second.ReplicaFrac {
		arg := 2 * math.Pi * (q[0]*float64(n[0]) + q[1]*float64(n[1]) + q[2]*float64(n[2]))
		chi := cmplx.Exp(complex(0, arg))
		r := s.Second.Replicas[l]
		for alpha := 0; alpha < 3; alpha++ {
			factor := complex(0, r[alpha]) * chi
			if factor == 0 {
				continue
			}
			da := out[alpha]
			for i3 := 0; i3 < m; i3++ {
				for j3 := 0; j3 < m; j3++ {
					da.Set(i3, j3, da.At(i3, j3)+factor*complex(s.Second.At(i3, l, j3), 0))
				}
			}
		}
	}
	return out
}
