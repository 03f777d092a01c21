package ifc

import (
	"fmt"

	"github.com/Akou-stack/kaldo/grid"
	"github.com/Akou-stack/kaldo/units"
)

// Entry is one nonzero third-order coupling
// Phi[i3, replica lp + j3, replica lpp + k3] in internal units.
type Entry struct {
	I, LP, J, LPP, K int32
	V                float64
}

// ThirdOrder is the sparse third-order force constant tensor. The first
// atom index always lives in the home cell; the two partners carry a
// replica index each. Immutable once built.
type ThirdOrder struct {
	Atoms     *Atoms
	Supercell [3]int

	Replicas    [][3]float64
	ReplicaFrac [][3]int

	Entries []Entry
	nModes  int
}

// NewThirdOrder builds the sparse tensor from COO entries with values in
// eV/A^3; values are converted to internal units on load.
func NewThirdOrder(atoms *Atoms, supercell [3]int, entries []Entry, opts ...SecondOption) (*ThirdOrder, error) {
	cfg := secondConfig{gridOrder: grid.RowMajor}
	for _, o := range opts {
		o(&cfg)
	}
	rg, err := grid.New(supercell, cfg.gridOrder)
	if err != nil {
		return nil, fmt.Errorf("ifc: third order supercell: %w", err)
	}
	nModes := 3 * atoms.N()
	nRep := rg.NPoints()
	t := &ThirdOrder{
		Atoms:       atoms,
		Supercell:   supercell,
		ReplicaFrac: rg.Points(true),
		nModes:      nModes,
		Entries:     make([]Entry, len(entries)),
	}
	t.Replicas = make([][3]float64, nRep)
	for l, p := range t.ReplicaFrac {
		for c := 0; c < 3; c++ {
			t.Replicas[l][c] = float64(p[0])*atoms.Cell[0][c] +
				float64(p[1])*atoms.Cell[1][c] +
				float64(p[2])*atoms.Cell[2][c]
		}
	}
	for n, e := range entries {
		if e.I < 0 || int(e.I) >= nModes || e.J < 0 || int(e.J) >= nModes || e.K < 0 || int(e.K) >= nModes {
			return nil, fmt.Errorf("ifc: third order entry %d has mode index out of range [0,%d)", n, nModes)
		}
		if e.LP < 0 || int(e.LP) >= nRep || e.LPP < 0 || int(e.LPP) >= nRep {
			return nil, fmt.Errorf("ifc: third order entry %d has replica index out of range [0,%d)", n, nRep)
		}
		e.V *= units.EvToTenJPerMol
		t.Entries[n] = e
	}
	return t, nil
}

// NewThirdOrderFromDense extracts the nonzeros of a dense
// (n_modes, n_replicas, n_modes, n_replicas, n_modes) tensor in eV/A^3
// (flat, C order). Convenient for small systems and fixtures.
func NewThirdOrderFromDense(atoms *Atoms, supercell [3]int, flat []float64, opts ...SecondOption) (*ThirdOrder, error) {
	nModes := 3 * atoms.N()
	nRep := supercell[0] * supercell[1] * supercell[2]
	if want := nModes * nRep * nModes * nRep * nModes; len(flat) != want {
		return nil, fmt.Errorf("ifc: dense third order has %d values, want %d", len(flat), want)
	}
	var entries []Entry
	idx := 0
	for i := 0; i < nModes; i++ {
		for lp := 0; lp < nRep; lp++ {
			for j := 0; j < nModes; j++ {
				for lpp := 0; lpp < nRep; lpp++ {
					for k := 0; k < nModes; k++ {
						if v := flat[idx]; v != 0 {
							entries = append(entries, Entry{
								I: int32(i), LP: int32(lp), J: int32(j),
								LPP: int32(lpp), K: int32(k), V: v,
							})
						}
						idx++
					}
				}
			}
		}
	}
	return NewThirdOrder(atoms, supercell, entries, opts...)
}

// NModes returns 3 * n_atoms.
func (t *ThirdOrder) NModes() int { return t.nModes }

// NReplicas returns the number of supercell replicas.
func (t *ThirdOrder) NReplicas() int { return len(t.Replicas) }

// FilterByDistance returns a copy keeping only couplings whose two partner
// atoms both sit within threshold Angstrom (minimum image) of the first
// atom. This is the tractability cut used for amorphous systems; couplings
// beyond the range simply stop contributing, they are not an error.
func (t *ThirdOrder) FilterByDistance(threshold float64) *ThirdOrder {
	if threshold <= 0 {
		return t
	}
	kept := make([]Entry, 0, len(t.Entries))
	for _, e := range t.Entries {
		ri := t.Atoms.Positions[e.I/3]
		dj := t.Atoms.MinimumImageDistance(ri, t.Atoms.Positions[e.J/3], t.Replicas[e.LP])
		dk := t.Atoms.MinimumImageDistance(ri, t.Atoms.Positions[e.K/3], t.Replicas[e.LPP])
		if dj < threshold && dk < threshold {
			kept = append(kept, e)
		}
	}
	out := *t
	out.Entries = kept
	return &out
}
