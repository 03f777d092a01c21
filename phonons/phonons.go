// Package phonons exposes the phononic observables of a crystal or glass
// through one facade composing the grid, harmonic, thermal and anharmonic
// layers. Every observable is computed at most once per instance and, when
// a disk format is configured, persisted under a label derived from the
// configuration so later runs with the same configuration reuse it.
package phonons

import (
	"fmt"
	"math"

	"github.com/Akou-stack/kaldo/anharmonic"
	"github.com/Akou-stack/kaldo/grid"
	"github.com/Akou-stack/kaldo/harmonic"
	"github.com/Akou-stack/kaldo/ifc"
	"github.com/Akou-stack/kaldo/storage"
	"github.com/Akou-stack/kaldo/thermal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Phonons holds one physical configuration over one set of force constants
// and serves its derived observables. Instances are cheap to build: all
// numerical work happens lazily on first access. Orchestration is
// single-threaded; only the batched scattering backend fans out internally.
type Phonons struct {
	cfg       Config
	fc        *ifc.ForceConstants
	log       *zap.Logger
	grid      *grid.Grid
	solver    *harmonic.Solver
	store     *storage.Store
	shape     anharmonic.Shape
	backend   anharmonic.Backend
	amorphous bool
	nk        int
	nModes    int

	eigensystem  storage.Cell[*harmonic.Eigensystem]
	physicalMode *storage.ArrayCell
	frequency    *storage.ArrayCell
	velocity     *storage.ArrayCell
	eigenvalues  *storage.ArrayCell
	population   *storage.ArrayCell
	heatCapacity *storage.ArrayCell
	bandwidth    *storage.ArrayCell
	phaseSpace   *storage.ArrayCell
	psGamma      *storage.ArrayCell
	gammaTensor  *storage.ArrayCell

	// tensorRun keeps the full scattering result alive once the gamma
	// tensor has been materialized, so the diagonal observables reuse
	// that sweep instead of running a second one.
	tensorRun *anharmonic.Result
}

// New validates the configuration and wires the facade. Every fallible
// choice is checked here so the observable getters never return errors.
func New(cfg Config) (*Phonons, error) {
	if cfg.ForceConstants == nil {
		return nil, fmt.Errorf("phonons: force constants are required")
	}
	if cfg.ForceConstants.Third == nil {
		return nil, fmt.Errorf("phonons: third order force constants are required")
	}
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("phonons: temperature must be positive, got %g", cfg.Temperature)
	}
	for _, n := range cfg.KPts {
		if n <= 0 {
			return nil, fmt.Errorf("phonons: k-point mesh %v must be positive in every direction", cfg.KPts)
		}
	}
	if cfg.MinFrequency < 0 {
		return nil, fmt.Errorf("phonons: min_frequency must be non-negative, got %g", cfg.MinFrequency)
	}
	if cfg.MaxFrequency > 0 && cfg.MaxFrequency <= cfg.MinFrequency {
		return nil, fmt.Errorf("phonons: frequency window (%g, %g) is empty", cfg.MinFrequency, cfg.MaxFrequency)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("phonons: workers must be non-negative, got %d", cfg.Workers)
	}
	order, err := grid.ParseOrder(cfg.GridType)
	if err != nil {
		return nil, err
	}
	shape, err := anharmonic.ParseShape(cfg.BroadeningShape)
	if err != nil {
		return nil, err
	}
	backendName := cfg.Backend
	if backendName == "" {
		backendName = "batched"
	}
	backend, err := anharmonic.ParseBackend(backendName)
	if err != nil {
		return nil, err
	}
	format, err := storage.ParseFormat(cfg.Storage)
	if err != nil {
		return nil, err
	}
	g, err := grid.New(cfg.KPts, order)
	if err != nil {
		return nil, err
	}

	amorphous := cfg.KPts == [3]int{1, 1, 1}
	if amorphous && cfg.ThirdBandwidth <= 0 {
		return nil, fmt.Errorf("phonons: amorphous systems need a fixed third_bandwidth, adaptive smearing has no mesh to scale with")
	}
	if amorphous && cfg.ForceConstants.Third.NReplicas() != 1 {
		return nil, fmt.Errorf("phonons: amorphous runs need single-replica third order constants, got %d replicas",
			cfg.ForceConstants.Third.NReplicas())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	folder := cfg.Folder
	if folder == "" {
		folder = DefaultFolder
	}

	solverOpts := []harmonic.SolverOption{harmonic.WithLogger(logger)}
	if amorphous {
		solverOpts = append(solverOpts, harmonic.WithAmorphous())
	}
	solver, err := harmonic.NewSolver(cfg.ForceConstants.Second, solverOpts...)
	if err != nil {
		return nil, err
	}

	p := &Phonons{
		cfg:       cfg,
		fc:        cfg.ForceConstants,
		log:       logger,
		grid:      g,
		solver:    solver,
		store:     storage.New(folder, format, logger),
		shape:     shape,
		backend:   backend,
		amorphous: amorphous,
		nk:        g.NPoints(),
		nModes:    cfg.ForceConstants.Second.NModes(),
	}

	p.physicalMode = storage.NewArrayCell(p.store, "", "physical_mode")
	p.frequency = storage.NewArrayCell(p.store, "", "frequency")
	p.velocity = storage.NewArrayCell(p.store, "", "velocity")
	p.eigenvalues = storage.NewArrayCell(p.store, "", "eigenvalues")
	thermalLabel := p.thermalLabel()
	p.population = storage.NewArrayCell(p.store, thermalLabel, "population")
	p.heatCapacity = storage.NewArrayCell(p.store, thermalLabel, "heat_capacity")
	scatterLabel := p.scatteringLabel()
	p.bandwidth = storage.NewArrayCell(p.store, scatterLabel, "bandwidth")
	p.phaseSpace = storage.NewArrayCell(p.store, scatterLabel, "phase_space")
	p.psGamma = storage.NewArrayCell(p.store, scatterLabel, "ps_and_gamma")
	p.gammaTensor = storage.NewArrayCell(p.store, scatterLabel, "gamma_tensor")
	return p, nil
}

// NKPoints returns the number of mesh points.
func (p *Phonons) NKPoints() int { return p.nk }

// NModes returns the number of modes per mesh point.
func (p *Phonons) NModes() int { return p.nModes }

// NPhonons returns the total mode count over the mesh.
func (p *Phonons) NPhonons() int { return p.nk * p.nModes }

// Atoms returns the unit cell geometry backing the force constants.
func (p *Phonons) Atoms() *ifc.Atoms { return p.fc.Atoms }

func (p *Phonons) statistics() string {
	if p.cfg.IsClassic {
		return "classic"
	}
	return "quantum"
}

func (p *Phonons) thermalLabel() string {
	return fmt.Sprintf("%g/%s", p.cfg.Temperature, p.statistics())
}

// scatteringLabel keys the triplet-sweep observables. The broadening
// shape is part of the key so two shapes never collide on disk; the
// width segment disappears under adaptive smearing.
func (p *Phonons) scatteringLabel() string {
	label := p.thermalLabel() + "/" + p.shape.String()
	if p.cfg.ThirdBandwidth > 0 {
		label += fmt.Sprintf("/%g", p.cfg.ThirdBandwidth)
	}
	return label
}

func (p *Phonons) qPoints() [][3]float64 { return p.grid.UnitaryGrid() }

// eigen diagonalizes the dynamical matrix on the full mesh once. A
// diagonalization failure means the force constants are inconsistent in a
// way construction cannot see, so it panics rather than poisoning every
// downstream observable.
func (p *Phonons) eigen() *harmonic.Eigensystem {
	return p.eigensystem.Get(func() *harmonic.Eigensystem {
		es, err := p.solver.Eigensystem(p.qPoints())
		if err != nil {
			panic("phonons: " + err.Error())
		}
		return es
	})
}

// Frequency returns the (n_k, n_modes) mode frequencies in THz.
func (p *Phonons) Frequency() *mat.Dense {
	return p.frequency.Get(func() *mat.Dense {
		return p.solver.Frequencies(p.eigen())
	})
}

// Eigenvalues returns the (n_k, n_modes) dynamical matrix eigenvalues,
// ascending per wavevector, in squared angular frequency units.
func (p *Phonons) Eigenvalues() *mat.Dense {
	return p.eigenvalues.Get(func() *mat.Dense {
		return p.eigen().Values
	})
}

// Eigenvectors returns the dynamical matrix eigenvectors per wavevector,
// one matrix per mesh point with modes as columns. Complex data stays in
// memory; it is never persisted.
func (p *Phonons) Eigenvectors() []*mat.CDense {
	return p.eigen().Vectors
}

// Velocity returns the (n_k*n_modes, 3) group velocities in A/ps.
func (p *Phonons) Velocity() *mat.Dense {
	return p.velocity.Get(func() *mat.Dense {
		return p.solver.Velocities(p.qPoints(), p.eigen())
	})
}

// PhysicalMode flags the modes that take part in transport, 1 for
// physical and 0 for masked. The three acoustic modes at the zone center
// are always masked, as is anything outside the configured frequency
// window.
func (p *Phonons) PhysicalMode() *mat.Dense {
	return p.physicalMode.Get(func() *mat.Dense {
		freq := p.Frequency()
		mask := mat.NewDense(p.nk, p.nModes, nil)
		for ik := 0; ik < p.nk; ik++ {
			for s := 0; s < p.nModes; s++ {
				nu := freq.At(ik, s)
				ok := nu > p.cfg.MinFrequency
				if p.cfg.MaxFrequency > 0 {
					ok = ok && nu < p.cfg.MaxFrequency
				}
				if ik == 0 && s < 3 {
					ok = false
				}
				if ok {
					mask.Set(ik, s, 1)
				}
			}
		}
		return mask
	})
}

func (p *Phonons) physicalMask() [][]bool {
	m := p.PhysicalMode()
	mask := make([][]bool, p.nk)
	for ik := range mask {
		row := make([]bool, p.nModes)
		for s := range row {
			row[s] = m.At(ik, s) != 0
		}
		mask[ik] = row
	}
	return mask
}

// Population returns the (n_k, n_modes) phonon occupations, Bose-Einstein
// or equipartition according to the configured statistics. Masked modes
// stay zero.
func (p *Phonons) Population() *mat.Dense {
	return p.population.Get(func() *mat.Dense {
		return thermal.Population(p.Frequency(), p.cfg.Temperature, p.cfg.IsClassic, p.physicalMask())
	})
}

// HeatCapacity returns the (n_k, n_modes) per-mode heat capacities in J/K.
func (p *Phonons) HeatCapacity() *mat.Dense {
	return p.heatCapacity.Get(func() *mat.Dense {
		return thermal.HeatCapacity(p.Frequency(), p.Population(), p.cfg.Temperature, p.cfg.IsClassic, p.physicalMask())
	})
}

// Omega returns the angular frequencies 2 pi nu in rad/ps.
func (p *Phonons) Omega() *mat.Dense {
	omega := mat.NewDense(p.nk, p.nModes, nil)
	omega.Scale(2*math.Pi, p.Frequency())
	return omega
}

// Bandwidth returns the (n_k, n_modes) scattering linewidths in THz, the
// inverse lifetimes up to a factor 2 pi.
func (p *Phonons) Bandwidth() *mat.Dense {
	return p.bandwidth.Get(func() *mat.Dense {
		return p.reshapeColumn(p.psAndGamma(), 1)
	})
}

// PhaseSpace returns the (n_k, n_modes) three-phonon phase space, the
// kernel-weighted count of energy and momentum conserving triplets.
func (p *Phonons) PhaseSpace() *mat.Dense {
	return p.phaseSpace.Get(func() *mat.Dense {
		return p.reshapeColumn(p.psAndGamma(), 0)
	})
}

// ScatteringMatrix runs the triplet sweep with the pairwise tensor enabled
// and returns the (n_phonons, n_phonons) coupling matrix in THz. Only
// k-point meshes support it. Bandwidth and PhaseSpace reuse the diagonal
// part of this run when it happened first.
func (p *Phonons) ScatteringMatrix() (*mat.Dense, error) {
	if p.amorphous {
		return nil, fmt.Errorf("phonons: the scattering matrix needs a k-point mesh, amorphous runs have none")
	}
	return p.gammaTensor.Get(func() *mat.Dense {
		res := p.runScattering(true)
		p.tensorRun = res
		return res.GammaTensor
	}), nil
}

func (p *Phonons) psAndGamma() *mat.Dense {
	return p.psGamma.Get(func() *mat.Dense {
		if p.tensorRun != nil {
			return p.tensorRun.PsAndGamma
		}
		return p.runScattering(false).PsAndGamma
	})
}

func (p *Phonons) reshapeColumn(pg *mat.Dense, col int) *mat.Dense {
	out := mat.NewDense(p.nk, p.nModes, nil)
	for ik := 0; ik < p.nk; ik++ {
		for s := 0; s < p.nModes; s++ {
			out.Set(ik, s, pg.At(ik*p.nModes+s, col))
		}
	}
	return out
}

// runScattering assembles the engine from cached observables. New already
// validated the whole configuration, so an engine error here means the
// inputs fell out of sync with each other and panicking is the honest
// report.
func (p *Phonons) runScattering(withTensor bool) *anharmonic.Result {
	eng, err := anharmonic.NewEngine(anharmonic.Config{
		Grid:         p.grid,
		Omega:        p.Omega(),
		Velocity:     p.Velocity(),
		Population:   p.Population(),
		Physical:     p.physicalMask(),
		Eigenvectors: p.rescaledEigenvectors(),
		Third:        p.fc.Third,
		CellInv:      p.fc.Atoms.CellInv(),
		Shape:        p.shape,
		SigmaTHz:     p.cfg.ThirdBandwidth,
		Amorphous:    p.amorphous,
		Backend:      p.backend,
		Workers:      p.cfg.Workers,
		Logger:       p.log,
	})
	var res *anharmonic.Result
	if err == nil {
		res, err = eng.Run(withTensor)
	}
	if err != nil {
		panic("phonons: " + err.Error())
	}
	return res
}

// rescaledEigenvectors divides each cartesian component by the square root
// of its atom's mass, the normal-coordinate convention the scattering
// projection expects.
func (p *Phonons) rescaledEigenvectors() []*mat.CDense {
	es := p.eigen()
	masses := p.fc.Atoms.Masses
	out := make([]*mat.CDense, len(es.Vectors))
	for ik, v := range es.Vectors {
		r := mat.NewCDense(p.nModes, p.nModes, nil)
		for i := 0; i < p.nModes; i++ {
			w := complex(1/math.Sqrt(masses[i/3]), 0)
			for s := 0; s < p.nModes; s++ {
				r.Set(i, s, v.At(i, s)*w)
			}
		}
		out[ik] = r
	}
	return out
}
