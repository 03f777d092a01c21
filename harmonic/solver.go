// Package harmonic diagonalizes the dynamical matrix on a set of
// wavevectors and derives the harmonic observables: angular eigenvalues,
// eigenvectors, frequencies in THz and Hellmann-Feynman group velocities.
package harmonic

import (
	"fmt"
	"math"
	"math/cmplx"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Akou-stack/kaldo/ifc"
)

// negativeTolerance scales the largest eigenvalue into the clamping
// threshold below which a negative eigenvalue counts as unstable rather
// than as numerical noise around zero.
const negativeTolerance = 1e-6

// Solver evaluates harmonic properties from second-order force constants.
// Amorphous solvers treat the structure as a single periodic box: the
// dynamical matrix is real and group velocities vanish identically.
type Solver struct {
	Second    *ifc.SecondOrder
	Amorphous bool

	log *zap.Logger
}

// SolverOption configures NewSolver.
type SolverOption func(*Solver)

// WithLogger injects the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) SolverOption {
	return func(s *Solver) { s.log = l }
}

// WithAmorphous switches the solver to the single-wavevector real path.
func WithAmorphous() SolverOption {
	return func(s *Solver) { s.Amorphous = true }
}

// NewSolver wires a solver to mass-rescaled second-order force constants.
func NewSolver(second *ifc.SecondOrder, opts ...SolverOption) (*Solver, error) {
	if second == nil {
		return nil, fmt.Errorf("harmonic: nil second order force constants")
	}
	s := &Solver{Second: second, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Frequencies converts angular eigenvalues to frequencies in THz,
// nu = sqrt(lambda) / 2 pi. Slightly negative eigenvalues are clamped to
// zero; clamps beyond the stability tolerance are reported once per call.
func (s *Solver) Frequencies(es *Eigensystem) *mat.Dense {
	nk, m := es.Values.Dims()
	freq := mat.NewDense(nk, m, nil)

	maxAbs := 0.0
	for ik := 0; ik < nk; ik++ {
		for mu := 0; mu < m; mu++ {
			if a := math.Abs(es.Values.At(ik, mu)); a > maxAbs {
				maxAbs = a
			}
		}
	}
	unstable := 0
	worst := 0.0
	for ik := 0; ik < nk; ik++ {
		for mu := 0; mu < m; mu++ {
			lambda := es.Values.At(ik, mu)
			if lambda < 0 {
				if lambda < -negativeTolerance*maxAbs {
					unstable++
					if lambda < worst {
						worst = lambda
					}
				}
				lambda = 0
			}
			freq.Set(ik, mu, math.Sqrt(lambda)/(2*math.Pi))
		}
	}
	if unstable > 0 {
		s.log.Warn("negative dynamical matrix eigenvalues clamped to zero",
			zap.Int("modes", unstable),
			zap.Float64("worst_eigenvalue", worst))
	}
	return freq
}

// Velocities returns the (nk*m, 3) group velocity components in A/ps via
// v_a = <e| dD/dk_a |e> / (2 omega). Modes with vanishing frequency get
// zero velocity. Amorphous solvers return all zeros: with the single
// replica at the origin the dynamical matrix has no wavevector dependence.
func (s *Solver) Velocities(qpts [][3]float64, es *Eigensystem) *mat.Dense {
	m := s.Second.NModes()
	nk := len(qpts)
	vel := mat.NewDense(nk*m, 3, nil)
	if s.Amorphous {
		return vel
	}

	for ik, q := range qpts {
		derivs := s.DynmatDerivatives(q)
		vecs := es.Vectors[ik]
		for alpha := 0; alpha < 3; alpha++ {
			prod := mulCDense(derivs[alpha], vecs)
			for mu := 0; mu < m; mu++ {
				omega := math.Sqrt(math.Max(es.Values.At(ik, mu), 0))
				if omega <= omegaZeroTolerance {
					continue
				}
				var expect complex128
				for i := 0; i < m; i++ {
					expect += cmplx.Conj(vecs.At(i, mu)) * prod.At(i, mu)
				}
				vel.Set(ik*m+mu, alpha, real(expect)/(2*omega))
			}
		}
	}
	return vel
}

// omegaZeroTolerance is the angular frequency in rad/ps below which a mode
// counts as a zero mode for division purposes.
const omegaZeroTolerance = 1e-6

// mulCDense returns the product a*b. gonum's CDense carries no matrix
// multiplication, so the product is accumulated over the raw row slices.
func mulCDense(a, b *mat.CDense) *mat.CDense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("harmonic: product of (%d, %d) and (%d, %d)", ar, ac, br, bc))
	}
	out := mat.NewCDense(ar, bc, nil)
	ra, rb, ro := a.RawCMatrix(), b.RawCMatrix(), out.RawCMatrix()
	for i := 0; i < ar; i++ {
		arow := ra.Data[i*ra.Stride : i*ra.Stride+ac]
		orow := ro.Data[i*ro.Stride : i*ro.Stride+bc]
		for k, aik := range arow {
			if aik == 0 {
				continue
			}
			brow := rb.Data[k*rb.Stride : k*rb.Stride+bc]
			for j, bkj := range brow {
				orow[j] += aik * bkj
			}
		}
	}
	return out
}
