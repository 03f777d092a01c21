// Package grid maps linear indices to points of a uniform three dimensional
// integer mesh and back. The same machinery serves two purposes: the k-point
// mesh over the Brillouin zone (as fractional coordinates in [0,1)) and the
// lattice replica grid of a supercell (as integer triples, optionally wrapped
// to the centered minimum-image interval).
package grid

import "fmt"

// Order fixes the convention used to unravel a linear index into a triple.
type Order byte

const (
	// RowMajor is C ordering: the last axis varies fastest.
	RowMajor Order = 'C'
	// ColMajor is Fortran ordering: the first axis varies fastest.
	ColMajor Order = 'F'
)

// ParseOrder converts the one-letter configuration value ("C" or "F") used
// by the public configuration surface.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "C":
		return RowMajor, nil
	case "F":
		return ColMajor, nil
	}
	return 0, fmt.Errorf("grid: unknown ordering %q (want C or F)", s)
}

// Grid is an immutable uniform mesh of Shape[0]*Shape[1]*Shape[2] points.
type Grid struct {
	Shape [3]int
	Order Order
}

// New validates the mesh shape and ordering.
func New(shape [3]int, order Order) (*Grid, error) {
	for i, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("grid: shape[%d] = %d, all mesh counts must be positive", i, n)
		}
	}
	if order != RowMajor && order != ColMajor {
		return nil, fmt.Errorf("grid: unknown ordering %q", string(order))
	}
	return &Grid{Shape: shape, Order: order}, nil
}

// NPoints returns the total number of mesh points.
func (g *Grid) NPoints() int { return g.Shape[0] * g.Shape[1] * g.Shape[2] }

// Unravel converts a linear index in [0, NPoints) to an integer triple.
func (g *Grid) Unravel(id int) [3]int {
	var p [3]int
	switch g.Order {
	case ColMajor:
		p[0] = id % g.Shape[0]
		id /= g.Shape[0]
		p[1] = id % g.Shape[1]
		p[2] = id / g.Shape[1]
	default:
		p[2] = id % g.Shape[2]
		id /= g.Shape[2]
		p[1] = id % g.Shape[1]
		p[0] = id / g.Shape[1]
	}
	return p
}

// Ravel converts an integer triple to its linear index. Components are
// wrapped modulo the mesh shape, so triples outside the first zone fold back
// onto the grid; this realizes momentum conservation modulo a reciprocal
// lattice vector.
func (g *Grid) Ravel(p [3]int) int {
	var w [3]int
	for i := 0; i < 3; i++ {
		w[i] = p[i] % g.Shape[i]
		if w[i] < 0 {
			w[i] += g.Shape[i]
		}
	}
	if g.Order == ColMajor {
		return w[0] + g.Shape[0]*(w[1]+g.Shape[1]*w[2])
	}
	return (w[0]*g.Shape[1]+w[1])*g.Shape[2] + w[2]
}

// Points enumerates the full integer mesh in linear-index order. With
// centered=true each component c is wrapped to [-n/2, n/2) (minimum image),
// the convention used for supercell replica vectors so that Fourier
// interpolation of force constants uses the shortest lattice translations.
func (g *Grid) Points(centered bool) [][3]int {
	pts := make([][3]int, g.NPoints())
	for id := range pts {
		p := g.Unravel(id)
		if centered {
			for i := 0; i < 3; i++ {
				if 2*p[i] >= g.Shape[i] {
					p[i] -= g.Shape[i]
				}
			}
		}
		pts[id] = p
	}
	return pts
}

// UnitaryGrid returns the ordered fractional coordinates of every mesh
// point, each component in [0,1) and an exact multiple of 1/Shape[i].
func (g *Grid) UnitaryGrid() [][3]float64 {
	qs := make([][3]float64, g.NPoints())
	for id := range qs {
		qs[id] = g.IDToUnitaryGridIndex(id)
	}
	return qs
}

// IDToUnitaryGridIndex returns the fractional coordinate of linear index id,
// consistent with UnitaryGrid ordering.
func (g *Grid) IDToUnitaryGridIndex(id int) [3]float64 {
	p := g.Unravel(id)
	return [3]float64{
		float64(p[0]) / float64(g.Shape[0]),
		float64(p[1]) / float64(g.Shape[1]),
		float64(p[2]) / float64(g.Shape[2]),
	}
}

// FoldIndex returns the linear index of q'' = q +/- q' given the linear
// indices of q and q'. The result is wrapped into the first Brillouin zone,
// so a single sweep over q' visits every allowed third wavevector.
func (g *Grid) FoldIndex(id, idp int, plus bool) int {
	p := g.Unravel(id)
	pp := g.Unravel(idp)
	sign := -1
	if plus {
		sign = 1
	}
	return g.Ravel([3]int{p[0] + sign*pp[0], p[1] + sign*pp[1], p[2] + sign*pp[2]})
}
