package ifc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Atoms carries the fixed-shape structural data the force-constant providers
// hand to this module: unit cell positions in Angstrom, masses in g/mol and
// the cell matrix with lattice vectors as rows. It performs no structure
// building or file parsing.
type Atoms struct {
	Positions [][3]float64
	Masses    []float64
	Cell      [3][3]float64

	cellInv [3][3]float64
}

// NewAtoms validates the structural data and precomputes the cell inverse.
func NewAtoms(positions [][3]float64, masses []float64, cell [3][3]float64) (*Atoms, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("ifc: no atoms")
	}
	if len(masses) != len(positions) {
		return nil, fmt.Errorf("ifc: %d masses for %d positions", len(masses), len(positions))
	}
	for i, m := range masses {
		if m <= 0 {
			return nil, fmt.Errorf("ifc: mass of atom %d is %g, must be positive", i, m)
		}
	}
	c := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c.Set(i, j, cell[i][j])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(c); err != nil {
		return nil, fmt.Errorf("ifc: singular cell matrix: %v", err)
	}
	a := &Atoms{Positions: positions, Masses: masses, Cell: cell}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.cellInv[i][j] = inv.At(i, j)
		}
	}
	return a, nil
}

// N returns the number of atoms in the unit cell.
func (a *Atoms) N() int { return len(a.Positions) }

// CellInv returns the inverse of the cell matrix. Column i is the i-th
// reciprocal lattice vector divided by 2*pi, in 1/Angstrom.
func (a *Atoms) CellInv() [3][3]float64 { return a.cellInv }

// Volume returns the unit cell volume in Angstrom^3.
func (a *Atoms) Volume() float64 {
	c := a.Cell
	return math.Abs(c[0][0]*(c[1][1]*c[2][2]-c[1][2]*c[2][1]) -
		c[0][1]*(c[1][0]*c[2][2]-c[1][2]*c[2][0]) +
		c[0][2]*(c[1][0]*c[2][1]-c[1][1]*c[2][0]))
}

// Fractional converts a cartesian vector to fractional cell coordinates.
func (a *Atoms) Fractional(r [3]float64) [3]float64 {
	var f [3]float64
	for i := 0; i < 3; i++ {
		f[i] = r[0]*a.cellInv[0][i] + r[1]*a.cellInv[1][i] + r[2]*a.cellInv[2][i]
	}
	return f
}

// MinimumImageDistance returns |rj + shift - ri| after wrapping the
// separation back into the Wigner-Seitz-like box of the cell, so distances
// between periodic copies are measured along the shortest translation.
func (a *Atoms) MinimumImageDistance(ri, rj, shift [3]float64) float64 {
	d := [3]float64{rj[0] + shift[0] - ri[0], rj[1] + shift[1] - ri[1], rj[2] + shift[2] - ri[2]}
	f := a.Fractional(d)
	for i := 0; i < 3; i++ {
		f[i] -= math.Round(f[i])
	}
	var w [3]float64
	for c := 0; c < 3; c++ {
		w[c] = f[0]*a.Cell[0][c] + f[1]*a.Cell[1][c] + f[2]*a.Cell[2][c]
	}
	return math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])
}
