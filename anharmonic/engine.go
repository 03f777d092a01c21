// Package anharmonic computes three-phonon scattering: per-mode phase
// space, bandwidths and, on request, the full scattering tensor. The
// projection of the cubic force constants onto phonon triplets follows
// the same contraction for every mode, so backends only differ in how
// modes are scheduled and results do not depend on the backend choice.
package anharmonic

import (
	"fmt"
	"math"
	"math/cmplx"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/Akou-stack/kaldo/grid"
	"github.com/Akou-stack/kaldo/ifc"
)

// omegaTolerance is the angular frequency below which a mode is treated
// as a zero mode and excluded from scattering denominators.
const omegaTolerance = 1e-9

// Config wires the scattering engine. All arrays come precomputed from the
// harmonic and thermal layers; eigenvectors must already be rescaled by
// 1/sqrt(mass) per cartesian component.
type Config struct {
	Grid         *grid.Grid
	Omega        *mat.Dense    // (nk, m) angular frequencies in rad/ps
	Velocity     *mat.Dense    // (nk*m, 3) in A/ps; required for adaptive smearing
	Population   *mat.Dense    // (nk, m)
	Physical     [][]bool      // (nk, m)
	Eigenvectors []*mat.CDense // nk matrices, columns are modes
	Third        *ifc.ThirdOrder
	CellInv      [3][3]float64

	Shape     Shape
	SigmaTHz  float64 // fixed broadening width in THz; <= 0 selects adaptive
	Amorphous bool
	Backend   Backend
	Workers   int // worker pool size for Batched; 0 picks GOMAXPROCS
	Logger    *zap.Logger
}

// Result carries the per-mode scattering output. PsAndGamma column 0 is
// the phase space, column 1 the bandwidth in THz. GammaTensor is only
// populated when requested from Run.
type Result struct {
	PsAndGamma  *mat.Dense
	GammaTensor *mat.Dense
}

// Engine evaluates the three-phonon scattering integrals on a fixed set
// of inputs. Safe for a single Run at a time.
type Engine struct {
	cfg Config
	log *zap.Logger

	nk, m, nRep int

	omega []float64      // flattened (nk*m)
	pop   []float64      // flattened (nk*m)
	phys  []bool         // flattened (nk*m)
	vel   [][3]float64   // flattened (nk*m), nil with fixed smearing
	chi   [][]complex128 // per k-point phases over third-order replicas
	evec  [][]complex128 // per k-point (component, mode) row-major
	evecR []float64      // amorphous real eigenvectors, (component, mode)
}

// NewEngine validates dimensions and flattens the inputs into the layout
// the projection loops consume.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Grid == nil {
		return nil, fmt.Errorf("anharmonic: nil grid")
	}
	if cfg.Third == nil {
		return nil, fmt.Errorf("anharmonic: nil third order force constants")
	}
	if cfg.Omega == nil || cfg.Population == nil {
		return nil, fmt.Errorf("anharmonic: omega and population are required")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("anharmonic: negative worker count %d", cfg.Workers)
	}
	nk := cfg.Grid.NPoints()
	m := cfg.Third.NModes()
	if r, c := cfg.Omega.Dims(); r != nk || c != m {
		return nil, fmt.Errorf("anharmonic: omega is (%d, %d), want (%d, %d)", r, c, nk, m)
	}
	if r, c := cfg.Population.Dims(); r != nk || c != m {
		return nil, fmt.Errorf("anharmonic: population is (%d, %d), want (%d, %d)", r, c, nk, m)
	}
	if len(cfg.Physical) != nk {
		return nil, fmt.Errorf("anharmonic: physical mask has %d rows, want %d", len(cfg.Physical), nk)
	}
	for ik, row := range cfg.Physical {
		if len(row) != m {
			return nil, fmt.Errorf("anharmonic: physical mask row %d has %d modes, want %d", ik, len(row), m)
		}
	}

	e := &Engine{cfg: cfg, log: cfg.Logger, nk: nk, m: m, nRep: cfg.Third.NReplicas()}
	if e.log == nil {
		e.log = zap.NewNop()
	}

	if cfg.Amorphous {
		if nk != 1 {
			return nil, fmt.Errorf("anharmonic: amorphous runs use a single wavevector, grid has %d", nk)
		}
		if e.nRep != 1 {
			return nil, fmt.Errorf("anharmonic: amorphous third order must have a single replica, got %d", e.nRep)
		}
		if cfg.SigmaTHz <= 0 {
			return nil, fmt.Errorf("anharmonic: amorphous systems have no group velocities, a fixed third bandwidth is required")
		}
	}
	if len(cfg.Eigenvectors) != nk {
		return nil, fmt.Errorf("anharmonic: %d eigenvector sets for %d wavevectors", len(cfg.Eigenvectors), nk)
	}
	for ik, v := range cfg.Eigenvectors {
		if r, c := v.Dims(); r != m || c != m {
			return nil, fmt.Errorf("anharmonic: eigenvectors[%d] is (%d, %d), want (%d, %d)", ik, r, c, m, m)
		}
	}
	if cfg.SigmaTHz <= 0 {
		if cfg.Velocity == nil {
			return nil, fmt.Errorf("anharmonic: adaptive smearing requires group velocities")
		}
		if r, c := cfg.Velocity.Dims(); r != nk*m || c != 3 {
			return nil, fmt.Errorf("anharmonic: velocity is (%d, %d), want (%d, 3)", r, c, nk*m)
		}
	}

	e.omega = make([]float64, nk*m)
	e.pop = make([]float64, nk*m)
	e.phys = make([]bool, nk*m)
	for ik := 0; ik < nk; ik++ {
		for s := 0; s < m; s++ {
			e.omega[ik*m+s] = cfg.Omega.At(ik, s)
			e.pop[ik*m+s] = cfg.Population.At(ik, s)
			e.phys[ik*m+s] = cfg.Physical[ik][s]
		}
	}
	if cfg.SigmaTHz <= 0 {
		e.vel = make([][3]float64, nk*m)
		for nu := range e.vel {
			e.vel[nu] = [3]float64{cfg.Velocity.At(nu, 0), cfg.Velocity.At(nu, 1), cfg.Velocity.At(nu, 2)}
		}
	}

	if cfg.Amorphous {
		e.evecR = make([]float64, m*m)
		v := cfg.Eigenvectors[0]
		for i := 0; i < m; i++ {
			for s := 0; s < m; s++ {
				e.evecR[i*m+s] = real(v.At(i, s))
			}
		}
	} else {
		e.evec = make([][]complex128, nk)
		for ik, v := range cfg.Eigenvectors {
			flat := make([]complex128, m*m)
			for i := 0; i < m; i++ {
				for s := 0; s < m; s++ {
					flat[i*m+s] = v.At(i, s)
				}
			}
			e.evec[ik] = flat
		}
		e.chi = make([][]complex128, nk)
		for ik := 0; ik < nk; ik++ {
			q := cfg.Grid.IDToUnitaryGridIndex(ik)
			row := make([]complex128, e.nRep)
			for l, n := range cfg.Third.ReplicaFrac {
				arg := 2 * math.Pi * (q[0]*float64(n[0]) + q[1]*float64(n[1]) + q[2]*float64(n[2]))
				row[l] = cmplx.Exp(complex(0, arg))
			}
			e.chi[ik] = row
		}
	}
	return e, nil
}

// Run projects every mode and returns phase space and bandwidth, plus the
// scattering tensor when withTensor is set. Modes are independent, so the
// Batched backend distributes whole modes and writes stay row-disjoint.
func (e *Engine) Run(withTensor bool) (*Result, error) {
	if withTensor && e.cfg.Amorphous {
		return nil, fmt.Errorf("anharmonic: the scattering tensor is only defined on a wavevector mesh, not for amorphous runs")
	}
	nph := e.nk * e.m
	res := &Result{PsAndGamma: mat.NewDense(nph, 2, nil)}
	if withTensor {
		res.GammaTensor = mat.NewDense(nph, nph, nil)
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	backend := e.cfg.Backend
	if backend == Batched && workers <= 1 {
		e.log.Warn("batched backend without parallelism, running dense",
			zap.Int("workers", workers))
		backend = Dense
	}

	project := func(mu int, ws *scratch) {
		if e.cfg.Amorphous {
			e.projectAmorphous(mu, ws, res)
		} else {
			e.projectCrystal(mu, ws, res)
		}
	}

	if backend == Dense {
		ws := e.newScratch()
		for mu := 0; mu < nph; mu++ {
			project(mu, ws)
		}
		return res, nil
	}

	modes := make(chan int)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ws := e.newScratch()
			for mu := range modes {
				project(mu, ws)
			}
			return nil
		})
	}
	for mu := 0; mu < nph; mu++ {
		modes <- mu
	}
	close(modes)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// scratch is the per-worker workspace; sized once, reused across modes.
type scratch struct {
	psi  []complex128 // (nRep*m)^2 mode-projected third order
	dpp  []complex128 // (nRep*m, m) after the chi'' contraction
	cjk  []complex128 // (m, m) after the chi' contraction
	t1   []complex128 // (m, m) after the q' eigenvector contraction
	proj []complex128 // (m, m) projected amplitudes
	kern []float64    // (m, m) kernel values of the current block

	psiR  []float64 // amorphous counterparts
	t1R   []float64
	projR []float64
}

func (e *Engine) newScratch() *scratch {
	m := e.m
	if e.cfg.Amorphous {
		return &scratch{
			psiR:  make([]float64, m*m),
			t1R:   make([]float64, m*m),
			projR: make([]float64, m*m),
			kern:  make([]float64, m*m),
		}
	}
	rm := e.nRep * m
	return &scratch{
		psi:  make([]complex128, rm*rm),
		dpp:  make([]complex128, rm*m),
		cjk:  make([]complex128, m*m),
		t1:   make([]complex128, m*m),
		proj: make([]complex128, m*m),
		kern: make([]float64, m*m),
	}
}

// kernelBlock fills ws.kern with the broadening kernel of every triplet
// (mu, q' s', q'' s'') of one (sign, q') block, zeroing pairs that miss the
// conservation window, and reports how many survive.
func (e *Engine) kernelBlock(mu, ikp, ikpp int, plus bool, ws *scratch) int {
	omega := e.omega[mu]
	threshold := e.cfg.Shape.Threshold()
	fixed := e.cfg.SigmaTHz > 0
	sigOmega := 2 * math.Pi * e.cfg.SigmaTHz

	survivors := 0
	for sp := 0; sp < e.m; sp++ {
		nup := ikp*e.m + sp
		for spp := 0; spp < e.m; spp++ {
			idx := sp*e.m + spp
			ws.kern[idx] = 0
			nupp := ikpp*e.m + spp
			if !e.phys[nup] || !e.phys[nupp] {
				continue
			}
			op, opp := e.omega[nup], e.omega[nupp]
			if op <= omegaTolerance || opp <= omegaTolerance {
				continue
			}
			delta := omega - op - opp
			if plus {
				delta = omega + op - opp
			}
			so := sigOmega
			if !fixed {
				dv := [3]float64{
					e.vel[nup][0] - e.vel[nupp][0],
					e.vel[nup][1] - e.vel[nupp][1],
					e.vel[nup][2] - e.vel[nupp][2],
				}
				so = 2 * math.Pi * adaptiveSigma(dv, e.cfg.CellInv, e.cfg.Grid.Shape)
			}
			if so <= 0 || math.Abs(delta) >= threshold*so {
				continue
			}
			ws.kern[idx] = e.cfg.Shape.Kernel(delta, so)
			survivors++
		}
	}
	return survivors
}
