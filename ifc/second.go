package ifc

import (
	"fmt"
	"math"

	"github.com/Akou-stack/kaldo/grid"
	"github.com/Akou-stack/kaldo/units"
)

// SecondOrder holds the mass-rescaled second-order force constants of a
// supercell, laid out as dynamical-matrix blocks d[i3][l][j3] where i3, j3
// run over the 3*n_atoms cartesian components of the unit cell and l over
// the lattice replicas. Values are stored in internal units so that the
// eigenvalues of the assembled dynamical matrix are angular frequencies
// squared in rad^2/ps^2.
type SecondOrder struct {
	Atoms     *Atoms
	Supercell [3]int

	// Replicas are the centered cartesian replica vectors, ReplicaFrac the
	// matching integer lattice triples used for the Bloch phases.
	Replicas    [][3]float64
	ReplicaFrac [][3]int

	nModes int
	dyn    []float64 // (nModes, nReplicas, nModes), C order
}

// SecondOption configures NewSecondOrder.
type SecondOption func(*secondConfig)

type secondConfig struct {
	acousticSum bool
	gridOrder   grid.Order
}

// WithAcousticSumRule redistributes the self-interaction terms so that each
// row of force constants sums to zero over all partner atoms, restoring the
// translational invariance finite differences break. The three acoustic
// modes then come out at exactly zero frequency at q = 0.
func WithAcousticSumRule() SecondOption {
	return func(c *secondConfig) { c.acousticSum = true }
}

// WithReplicaOrder selects the unraveling convention of the replica grid
// the raw force constants were produced with.
func WithReplicaOrder(o grid.Order) SecondOption {
	return func(c *secondConfig) { c.gridOrder = o }
}

// NewSecondOrder converts a raw (n_atoms, 3, n_replicas, n_atoms, 3) force
// constant tensor in eV/A^2 (flat, C order) into dynamical-matrix blocks.
func NewSecondOrder(atoms *Atoms, supercell [3]int, value []float64, opts ...SecondOption) (*SecondOrder, error) {
	cfg := secondConfig{gridOrder: grid.RowMajor}
	for _, o := range opts {
		o(&cfg)
	}
	rg, err := grid.New(supercell, cfg.gridOrder)
	if err != nil {
		return nil, fmt.Errorf("ifc: supercell: %w", err)
	}
	n := atoms.N()
	nRep := rg.NPoints()
	nModes := 3 * n
	if want := nModes * nRep * nModes; len(value) != want {
		return nil, fmt.Errorf("ifc: second order has %d values, want %d for %d atoms and %v supercell",
			len(value), want, n, supercell)
	}

	raw := make([]float64, len(value))
	copy(raw, value)
	if cfg.acousticSum {
		applyAcousticSumRule(raw, n, nRep)
	}

	s := &SecondOrder{
		Atoms:     atoms,
		Supercell: supercell,
		nModes:    nModes,
		dyn:       raw,
	}
	s.ReplicaFrac = rg.Points(true)
	s.Replicas = make([][3]float64, nRep)
	for l, p := range s.ReplicaFrac {
		for c := 0; c < 3; c++ {
			s.Replicas[l][c] = float64(p[0])*atoms.Cell[0][c] +
				float64(p[1])*atoms.Cell[1][c] +
				float64(p[2])*atoms.Cell[2][c]
		}
	}

	// Mass rescale and unit conversion in place.
	for i3 := 0; i3 < nModes; i3++ {
		mi := atoms.Masses[i3/3]
		for l := 0; l < nRep; l++ {
			row := (i3*nRep + l) * nModes
			for j3 := 0; j3 < nModes; j3++ {
				mj := atoms.Masses[j3/3]
				s.dyn[row+j3] *= units.EvToTenJPerMol / math.Sqrt(mi*mj)
			}
		}
	}
	return s, nil
}

// applyAcousticSumRule subtracts the full row sum from the on-site
// (replica 0, same atom) block. Raw layout: (i3, l, j3).
func applyAcousticSumRule(raw []float64, nAtoms, nRep int) {
	nModes := 3 * nAtoms
	for i3 := 0; i3 < nModes; i3++ {
		i := i3 / 3
		for beta := 0; beta < 3; beta++ {
			sum := 0.0
			for l := 0; l < nRep; l++ {
				row := (i3*nRep + l) * nModes
				for j := 0; j < nAtoms; j++ {
					sum += raw[row+j*3+beta]
				}
			}
			self := i3*nRep*nModes + i*3 + beta
			raw[self] -= sum
		}
	}
}

// NModes returns 3 * n_atoms.
func (s *SecondOrder) NModes() int { return s.nModes }

// NReplicas returns the number of supercell replicas.
func (s *SecondOrder) NReplicas() int { return len(s.Replicas) }

// At returns the mass-rescaled block element d[i3, l, j3].
func (s *SecondOrder) At(i3, l, j3 int) float64 {
	return s.dyn[(i3*len(s.Replicas)+l)*s.nModes+j3]
}

// PairDistance returns the distance between atom i in the home cell and
// atom j shifted into replica l, in Angstrom.
func (s *SecondOrder) PairDistance(i, l, j int) float64 {
	ri := s.Atoms.Positions[i]
	rj := s.Atoms.Positions[j]
	r := s.Replicas[l]
	d := [3]float64{rj[0] + r[0] - ri[0], rj[1] + r[1] - ri[1], rj[2] + r[2] - ri[2]}
	return math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
}
