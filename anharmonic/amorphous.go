package anharmonic

import (
	"math"

	"github.com/Akou-stack/kaldo/units"
)

// projectAmorphous is the single-wavevector projection: eigenvectors are
// real, Bloch phases collapse to one and every mode pair is a candidate
// triplet. The weights and prefactor match the crystal path with N_k = 1.
func (e *Engine) projectAmorphous(mu int, ws *scratch, res *Result) {
	if !e.phys[mu] {
		return
	}
	omega := e.omega[mu]
	if omega <= omegaTolerance {
		return
	}

	m := e.m
	for i := range ws.psiR {
		ws.psiR[i] = 0
	}
	for _, en := range e.cfg.Third.Entries {
		ws.psiR[int(en.J)*m+int(en.K)] += en.V * e.evecR[int(en.I)*m+mu]
	}

	// proj = E^T psi E with the real eigenvector matrix.
	for i := range ws.t1R {
		ws.t1R[i] = 0
	}
	for j := 0; j < m; j++ {
		prow := ws.psiR[j*m : (j+1)*m]
		erow := e.evecR[j*m : (j+1)*m]
		for sp := 0; sp < m; sp++ {
			a := erow[sp]
			if a == 0 {
				continue
			}
			trow := ws.t1R[sp*m : (sp+1)*m]
			for k := 0; k < m; k++ {
				trow[k] += a * prow[k]
			}
		}
	}
	for sp := 0; sp < m; sp++ {
		trow := ws.t1R[sp*m : (sp+1)*m]
		prow := ws.projR[sp*m : (sp+1)*m]
		for spp := range prow {
			prow[spp] = 0
		}
		for k := 0; k < m; k++ {
			t := trow[k]
			if t == 0 {
				continue
			}
			erow := e.evecR[k*m : (k+1)*m]
			for spp := 0; spp < m; spp++ {
				prow[spp] += t * erow[spp]
			}
		}
	}

	prefactor := math.Pi * units.HBar / 4
	var ps, gamma float64
	for _, plus := range [2]bool{true, false} {
		if e.kernelBlock(mu, 0, 0, plus, ws) == 0 {
			continue
		}
		for sp := 0; sp < m; sp++ {
			for spp := 0; spp < m; spp++ {
				kern := ws.kern[sp*m+spp]
				if kern <= 0 {
					continue
				}
				f := (1 + e.pop[sp] + e.pop[spp]) / 2
				if plus {
					f = e.pop[sp] - e.pop[spp]
				}
				p := ws.projR[sp*m+spp]

				ps += f * kern
				gamma += prefactor * p * p * f * kern / (omega * e.omega[sp] * e.omega[spp])
			}
		}
	}
	res.PsAndGamma.Set(mu, 0, ps)
	res.PsAndGamma.Set(mu, 1, gamma/(2*math.Pi))
}
