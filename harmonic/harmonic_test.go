package harmonic

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Akou-stack/kaldo/grid"
	"github.com/Akou-stack/kaldo/ifc"
	"github.com/Akou-stack/kaldo/units"
)

// cubicSpringModel builds the nearest-neighbor spring crystal: one atom per
// cubic cell, springs of constant k (eV/A^2) along each axis. The branch
// eigenvalues are 2*K*(1-cos(2 pi q_a)) with K the converted, mass-rescaled
// spring constant.
func cubicSpringModel(t *testing.T, a, k, mass float64, perturb map[int]float64) *ifc.SecondOrder {
	t.Helper()
	atoms, err := ifc.NewAtoms(
		[][3]float64{{0, 0, 0}},
		[]float64{mass},
		[3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}},
	)
	require.NoError(t, err)

	sc := [3]int{3, 3, 3}
	rg, err := grid.New(sc, grid.RowMajor)
	require.NoError(t, err)

	// Raw layout (1, 3, 27, 1, 3): flat index alpha*81 + l*3 + beta.
	raw := make([]float64, 3*27*3)
	put := func(alpha int, rep [3]int, beta int, v float64) {
		l := rg.Ravel(rep)
		raw[alpha*81+l*3+beta] = v
	}
	for alpha := 0; alpha < 3; alpha++ {
		put(alpha, [3]int{0, 0, 0}, alpha, 2*k)
		var plus, minus [3]int
		plus[alpha], minus[alpha] = 1, -1
		put(alpha, plus, alpha, -k)
		put(alpha, minus, alpha, -k)
	}
	for flat, dv := range perturb {
		raw[flat] += dv
	}

	var opts []ifc.SecondOption
	if perturb != nil {
		opts = append(opts, ifc.WithAcousticSumRule())
	}
	second, err := ifc.NewSecondOrder(atoms, sc, raw, opts...)
	require.NoError(t, err)
	return second
}

func springEigenvalue(k, mass, q float64) float64 {
	kk := k * units.EvToTenJPerMol / mass
	return 2 * kk * (1 - math.Cos(2*math.Pi*q))
}

// conjDot returns column i of v conjugate-dotted with column j.
func conjDot(v *mat.CDense, i, j int) complex128 {
	r, _ := v.Dims()
	var sum complex128
	for k := 0; k < r; k++ {
		sum += cmplx.Conj(v.At(k, i)) * v.At(k, j)
	}
	return sum
}

func TestDynmatHermitian(t *testing.T) {
	second := cubicSpringModel(t, 2.5, 1.3, 28.0855, nil)
	s, err := NewSolver(second)
	require.NoError(t, err)

	d := s.Dynmat([3]float64{0.13, 0.37, 0.71})
	m, _ := d.Dims()
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			assert.InDelta(t, 0, cmplx.Abs(d.At(i, j)-cmplx.Conj(d.At(j, i))), 1e-10)
		}
	}
}

func TestSimpleCubicDispersion(t *testing.T) {
	a, k, mass := 2.0, 1.1, 12.011
	second := cubicSpringModel(t, a, k, mass, nil)
	s, err := NewSolver(second)
	require.NoError(t, err)

	qpts := [][3]float64{
		{0, 0, 0},
		{0.25, 0, 0},
		{0.5, 0.5, 0.5},
	}
	es, err := s.Eigensystem(qpts)
	require.NoError(t, err)
	freq := s.Frequencies(es)

	toNu := func(lambda float64) float64 { return math.Sqrt(lambda) / (2 * math.Pi) }

	// Gamma point: three exact zero modes.
	for mu := 0; mu < 3; mu++ {
		assert.InDelta(t, 0, freq.At(0, mu), 1e-9)
	}

	// (0.25, 0, 0): two flat branches and one dispersive branch, ascending.
	lx := springEigenvalue(k, mass, 0.25)
	assert.InDelta(t, 0, freq.At(1, 0), 1e-9)
	assert.InDelta(t, 0, freq.At(1, 1), 1e-9)
	assert.InDelta(t, toNu(lx), freq.At(1, 2), 1e-9)

	// Zone corner: threefold degenerate maximum.
	lm := springEigenvalue(k, mass, 0.5)
	for mu := 0; mu < 3; mu++ {
		assert.InDelta(t, toNu(lm), freq.At(2, mu), 1e-9)
	}
}

func TestEigenvectorsOrthonormalAndResidual(t *testing.T) {
	second := cubicSpringModel(t, 3.1, 0.9, 28.0855, nil)
	s, err := NewSolver(second)
	require.NoError(t, err)

	q := [3]float64{0.2, 0.35, 0.45}
	es, err := s.Eigensystem([][3]float64{q})
	require.NoError(t, err)

	d := s.Dynmat(q)
	v := es.Vectors[0]
	m, _ := d.Dims()

	hv := mulCDense(d, v)
	for mu := 0; mu < m; mu++ {
		lambda := complex(es.Values.At(0, mu), 0)
		for i := 0; i < m; i++ {
			assert.InDelta(t, 0, cmplx.Abs(hv.At(i, mu)-lambda*v.At(i, mu)), 1e-8,
				"eigenpair residual (%d, %d)", i, mu)
		}
	}

	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			want := complex(0, 0)
			if i == j {
				want = 1
			}
			assert.InDelta(t, 0, cmplx.Abs(conjDot(v, i, j)-want), 1e-9)
		}
	}
}

func TestComplexMatrixProduct(t *testing.T) {
	a := mat.NewCDense(2, 3, []complex128{
		complex(1, 1), 2, 0,
		complex(0, -1), 3, complex(1, -2),
	})
	b := mat.NewCDense(3, 2, []complex128{
		2, complex(0, 1),
		complex(1, 1), 0,
		4, -2,
	})

	got := mulCDense(a, b)
	r, c := got.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
	assert.Equal(t, complex(4, 4), got.At(0, 0))
	assert.Equal(t, complex(-1, 1), got.At(0, 1))
	assert.Equal(t, complex(7, -7), got.At(1, 0))
	assert.Equal(t, complex(-1, 4), got.At(1, 1))
}

func TestHermitianEigKnownSpectrum(t *testing.T) {
	// Two trivial levels plus a 2x2 block with eigenpairs
	// (2, (1, i)/sqrt2) and (4, (1, -i)/sqrt2).
	h := mat.NewCDense(4, 4, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)
	h.Set(2, 2, 3)
	h.Set(3, 3, 3)
	h.Set(2, 3, complex(0, 1))
	h.Set(3, 2, complex(0, -1))

	vals, vecs, err := hermitianEig(h)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 2, 4}, vals, 1e-10)

	// The lambda=4 eigenvector must satisfy v[3] = -i v[2] up to phase.
	top, bottom := vecs.At(2, 3), vecs.At(3, 3)
	assert.InDelta(t, 0, cmplx.Abs(bottom-complex(0, -1)*top), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, cmplx.Abs(top), 1e-9)
}

func TestHermitianEigFullyDegenerate(t *testing.T) {
	m := 5
	h := mat.NewCDense(m, m, nil)
	for i := 0; i < m; i++ {
		h.Set(i, i, 2.5)
	}
	vals, vecs, err := hermitianEig(h)
	require.NoError(t, err)
	for _, l := range vals {
		assert.InDelta(t, 2.5, l, 1e-12)
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			want := complex(0, 0)
			if i == j {
				want = 1
			}
			assert.InDelta(t, 0, cmplx.Abs(conjDot(vecs, i, j)-want), 1e-9)
		}
	}
}

func TestAcousticSumRuleRestoresTranslation(t *testing.T) {
	// Contaminate the self-interaction terms the way finite differences do;
	// the sum rule must push the Gamma acoustic modes back to zero.
	perturb := map[int]float64{
		0:        0.3, // (x, onsite, x)
		1*81 + 1: 0.2, // (y, onsite, y)
		2*81 + 2: 0.7, // (z, onsite, z)
	}
	second := cubicSpringModel(t, 2.0, 1.0, 10.0, perturb)
	s, err := NewSolver(second)
	require.NoError(t, err)

	es, err := s.Eigensystem([][3]float64{{0, 0, 0}})
	require.NoError(t, err)
	freq := s.Frequencies(es)
	for mu := 0; mu < 3; mu++ {
		assert.InDelta(t, 0, freq.At(0, mu), 1e-9)
	}
}

func TestVelocitiesAnalytic(t *testing.T) {
	a, k, mass := 2.0, 1.1, 12.011
	second := cubicSpringModel(t, a, k, mass, nil)
	s, err := NewSolver(second)
	require.NoError(t, err)

	q := 0.25
	es, err := s.Eigensystem([][3]float64{{q, 0, 0}})
	require.NoError(t, err)
	vel := s.Velocities([][3]float64{{q, 0, 0}}, es)

	// v = a*K*sin(2 pi q)/omega for the dispersive branch (mode 2 after
	// ascending sort), zero for the flat zero modes.
	kk := k * units.EvToTenJPerMol / mass
	omega := math.Sqrt(2 * kk * (1 - math.Cos(2*math.Pi*q)))
	want := a * kk * math.Sin(2*math.Pi*q) / omega

	assert.InDelta(t, want, vel.At(2, 0), 1e-9)
	assert.InDelta(t, 0, vel.At(2, 1), 1e-9)
	assert.InDelta(t, 0, vel.At(2, 2), 1e-9)
	for mu := 0; mu < 2; mu++ {
		for alpha := 0; alpha < 3; alpha++ {
			assert.Equal(t, 0.0, vel.At(mu, alpha), "zero modes carry no velocity")
		}
	}
}

func TestAmorphousMatchesGammaPoint(t *testing.T) {
	atoms, err := ifc.NewAtoms(
		[][3]float64{{0, 0, 0}, {1.2, 1.1, 0.9}},
		[]float64{12.011, 15.999},
		[3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
	)
	require.NoError(t, err)

	// Symmetric positive semidefinite raw block keeps the single-replica
	// dynamical matrix well posed.
	n := 6
	raw := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for p := 0; p < n; p++ {
				raw[i*n+j] += math.Sin(float64(i*n+p+1)) * math.Sin(float64(j*n+p+1))
			}
		}
	}
	second, err := ifc.NewSecondOrder(atoms, [3]int{1, 1, 1}, raw)
	require.NoError(t, err)

	glass, err := NewSolver(second, WithAmorphous())
	require.NoError(t, err)
	crystal, err := NewSolver(second)
	require.NoError(t, err)

	q := [][3]float64{{0, 0, 0}}
	ga, err := glass.Eigensystem(q)
	require.NoError(t, err)
	gc, err := crystal.Eigensystem(q)
	require.NoError(t, err)

	assert.True(t, ga.Real)
	assert.False(t, gc.Real)
	assert.InDeltaSlice(t, gc.Values.RawRowView(0), ga.Values.RawRowView(0), 1e-9)

	for i := 0; i < n; i++ {
		for mu := 0; mu < n; mu++ {
			assert.Equal(t, 0.0, imag(ga.Vectors[0].At(i, mu)), "amorphous eigenvectors are real")
		}
	}

	vel := glass.Velocities(q, ga)
	for mu := 0; mu < n; mu++ {
		for alpha := 0; alpha < 3; alpha++ {
			assert.Equal(t, 0.0, vel.At(mu, alpha))
		}
	}
}

func TestFrequenciesClampNegative(t *testing.T) {
	second := cubicSpringModel(t, 2.0, 1.0, 10.0, nil)
	s, err := NewSolver(second)
	require.NoError(t, err)

	es := &Eigensystem{Values: mat.NewDense(1, 3, []float64{-1e-9, 0, 4 * math.Pi * math.Pi})}
	freq := s.Frequencies(es)
	assert.Equal(t, 0.0, freq.At(0, 0))
	assert.Equal(t, 0.0, freq.At(0, 1))
	assert.InDelta(t, 1.0, freq.At(0, 2), 1e-12)
}
