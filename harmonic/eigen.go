package harmonic

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Eigensystem holds the diagonalization of the dynamical matrix on a set
// of wavevectors. Values are angular eigenvalues in rad^2/ps^2, ascending
// within each row; Vectors[ik] carries the orthonormal eigenvectors of
// wavevector ik as columns, in the same order. Real marks the amorphous
// path where every eigenvector is purely real.
type Eigensystem struct {
	Values  *mat.Dense
	Vectors []*mat.CDense
	Real    bool
}

// Eigensystem diagonalizes the dynamical matrix at every wavevector.
// Wavevectors are fractional coordinates of the reciprocal cell.
func (s *Solver) Eigensystem(qpts [][3]float64) (*Eigensystem, error) {
	if len(qpts) == 0 {
		return nil, fmt.Errorf("harmonic: no wavevectors")
	}
	m := s.Second.NModes()
	es := &Eigensystem{
		Values:  mat.NewDense(len(qpts), m, nil),
		Vectors: make([]*mat.CDense, len(qpts)),
		Real:    s.Amorphous,
	}
	for ik, q := range qpts {
		var (
			vals []float64
			vecs *mat.CDense
			err  error
		)
		if s.Amorphous {
			vals, vecs, err = realEig(s.Dynmat(q))
		} else {
			vals, vecs, err = hermitianEig(s.Dynmat(q))
		}
		if err != nil {
			return nil, fmt.Errorf("harmonic: wavevector %v: %w", q, err)
		}
		es.Values.SetRow(ik, vals)
		es.Vectors[ik] = vecs
	}
	return es, nil
}

// realEig diagonalizes a real symmetric dynamical matrix.
func realEig(d *mat.CDense) ([]float64, *mat.CDense, error) {
	m, _ := d.Dims()
	sym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			sym.SetSym(i, j, (real(d.At(i, j))+real(d.At(j, i)))/2)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, nil, fmt.Errorf("symmetric eigendecomposition failed")
	}
	var ev mat.Dense
	eig.VectorsTo(&ev)
	vecs := mat.NewCDense(m, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			vecs.Set(i, j, complex(ev.At(i, j), 0))
		}
	}
	return eig.Values(nil), vecs, nil
}

// hermitianEig diagonalizes a Hermitian matrix H = A + iB through the real
// symmetric embedding [[A, -B], [B, A]]. Each eigenvalue of H appears twice
// in the embedding; an eigenvector pair (x, Jx) maps onto a single complex
// eigenvector through phi([u; w]) = u + i w, with phi(Jx) = i phi(x). A
// Gram-Schmidt sweep over the mapped columns in ascending eigenvalue order
// keeps one orthonormal complex vector out of every such pair.
func hermitianEig(h *mat.CDense) ([]float64, *mat.CDense, error) {
	m, _ := h.Dims()
	emb := mat.NewSymDense(2*m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			a := (real(h.At(i, j)) + real(h.At(j, i))) / 2
			b := (imag(h.At(i, j)) - imag(h.At(j, i))) / 2
			emb.SetSym(i, j, a)
			emb.SetSym(m+i, m+j, a)
			emb.SetSym(i, m+j, -b)
			if i != j {
				emb.SetSym(j, m+i, b)
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(emb, true) {
		return nil, nil, fmt.Errorf("embedded eigendecomposition failed")
	}
	lambdas := eig.Values(nil)
	var ev mat.Dense
	eig.VectorsTo(&ev)

	vals := make([]float64, 0, m)
	vecs := mat.NewCDense(m, m, nil)
	basis := make([][]complex128, 0, m)
	candidate := make([]complex128, m)
	for k := 0; k < 2*m && len(basis) < m; k++ {
		for i := 0; i < m; i++ {
			candidate[i] = complex(ev.At(i, k), ev.At(m+i, k))
		}
		// Two projection passes keep the basis orthonormal to working
		// precision even inside large degenerate clusters.
		for pass := 0; pass < 2; pass++ {
			for _, b := range basis {
				var overlap complex128
				for i := 0; i < m; i++ {
					overlap += cmplx.Conj(b[i]) * candidate[i]
				}
				for i := 0; i < m; i++ {
					candidate[i] -= overlap * b[i]
				}
			}
		}
		norm := 0.0
		for i := 0; i < m; i++ {
			c := candidate[i]
			norm += real(c)*real(c) + imag(c)*imag(c)
		}
		norm = math.Sqrt(norm)
		if norm < 1e-6 {
			continue // the i*phi partner of an already accepted column
		}
		mode := len(basis)
		kept := make([]complex128, m)
		for i := 0; i < m; i++ {
			kept[i] = candidate[i] / complex(norm, 0)
			vecs.Set(i, mode, kept[i])
		}
		basis = append(basis, kept)
		vals = append(vals, lambdas[k])
	}
	if len(basis) != m {
		return nil, nil, fmt.Errorf("eigenvector extraction kept %d of %d modes", len(basis), m)
	}
	return vals, vecs, nil
}
