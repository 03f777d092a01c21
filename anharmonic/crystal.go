package anharmonic

import (
	"math"
	"math/cmplx"

	"github.com/Akou-stack/kaldo/units"
)

// projectCrystal accumulates phase space, bandwidth and the per-mode
// scattering tensor row for one mode mu = (ik, s):
//
//	gamma_ang = pi hbar / (4 N_k) sum |P|^2 F K(delta, sigma) / (w w' w'')
//
// with F+ = n' - n'' for absorption and F- = (1 + n' + n'')/2 for emission.
// The third wavevector is fixed by momentum conservation on the mesh.
func (e *Engine) projectCrystal(mu int, ws *scratch, res *Result) {
	ik, s := mu/e.m, mu%e.m
	if !e.phys[mu] {
		return
	}
	omega := e.omega[mu]
	if omega <= omegaTolerance {
		return
	}

	m := e.m
	rm := e.nRep * m
	for i := range ws.psi {
		ws.psi[i] = 0
	}
	ev := e.evec[ik]
	for _, en := range e.cfg.Third.Entries {
		w := complex(en.V, 0) * ev[int(en.I)*m+s]
		ws.psi[(int(en.LP)*m+int(en.J))*rm+int(en.LPP)*m+int(en.K)] += w
	}

	var row []float64
	if res.GammaTensor != nil {
		row = res.GammaTensor.RawRowView(mu)
	}

	prefactor := math.Pi * units.HBar / 4
	var ps, gamma float64
	for _, plus := range [2]bool{true, false} {
		for ikp := 0; ikp < e.nk; ikp++ {
			ikpp := e.cfg.Grid.FoldIndex(ik, ikp, plus)
			if e.kernelBlock(mu, ikp, ikpp, plus, ws) == 0 {
				continue
			}
			e.contractBlock(ikp, ikpp, plus, ws)

			for sp := 0; sp < m; sp++ {
				nup := ikp*m + sp
				for spp := 0; spp < m; spp++ {
					kern := ws.kern[sp*m+spp]
					if kern <= 0 {
						continue
					}
					nupp := ikpp*m + spp
					f := (1 + e.pop[nup] + e.pop[nupp]) / 2
					if plus {
						f = e.pop[nup] - e.pop[nupp]
					}
					p := ws.proj[sp*m+spp]
					amp := real(p)*real(p) + imag(p)*imag(p)

					ps += f * kern
					c := prefactor * amp * f * kern / (omega * e.omega[nup] * e.omega[nupp])
					gamma += c
					if row != nil {
						cTHz := c / (2 * math.Pi)
						if plus {
							row[nup] -= cTHz
							row[nupp] += cTHz
						} else {
							row[nup] += cTHz
							row[nupp] += cTHz
						}
					}
				}
			}
		}
	}

	nk := float64(e.nk)
	res.PsAndGamma.Set(mu, 0, ps/nk)
	res.PsAndGamma.Set(mu, 1, gamma/(2*math.Pi*nk))
	if row != nil {
		for i := range row {
			row[i] /= nk
		}
	}
}

// contractBlock folds ws.psi with the Bloch phases of (q', q'') and both
// partner eigenvector sets, leaving the projected amplitudes P[s', s''] in
// ws.proj. The q' leg is conjugated for emission, the q'' leg always.
func (e *Engine) contractBlock(ikp, ikpp int, plus bool, ws *scratch) {
	m := e.m
	rm := e.nRep * m
	chiP, chiPP := e.chi[ikp], e.chi[ikpp]

	// dpp[(lp m + j), k] = sum_lpp conj(chi''_lpp) psi[(lp m + j), (lpp m + k)]
	for rj := 0; rj < rm; rj++ {
		base := rj * rm
		drow := ws.dpp[rj*m : (rj+1)*m]
		for k := range drow {
			drow[k] = 0
		}
		for lpp := 0; lpp < e.nRep; lpp++ {
			cc := cmplx.Conj(chiPP[lpp])
			prow := ws.psi[base+lpp*m : base+lpp*m+m]
			for k := 0; k < m; k++ {
				drow[k] += cc * prow[k]
			}
		}
	}

	// cjk[j, k] = sum_lp chi'_lp dpp[(lp m + j), k]
	for i := range ws.cjk {
		ws.cjk[i] = 0
	}
	for lp := 0; lp < e.nRep; lp++ {
		c := chiP[lp]
		if !plus {
			c = cmplx.Conj(c)
		}
		for j := 0; j < m; j++ {
			drow := ws.dpp[(lp*m+j)*m : (lp*m+j+1)*m]
			crow := ws.cjk[j*m : (j+1)*m]
			for k := 0; k < m; k++ {
				crow[k] += c * drow[k]
			}
		}
	}

	// t1[s', k] = sum_j e'(j, s') cjk[j, k]
	evp, evpp := e.evec[ikp], e.evec[ikpp]
	for i := range ws.t1 {
		ws.t1[i] = 0
	}
	for j := 0; j < m; j++ {
		crow := ws.cjk[j*m : (j+1)*m]
		erow := evp[j*m : (j+1)*m]
		for sp := 0; sp < m; sp++ {
			a := erow[sp]
			if !plus {
				a = cmplx.Conj(a)
			}
			if a == 0 {
				continue
			}
			trow := ws.t1[sp*m : (sp+1)*m]
			for k := 0; k < m; k++ {
				trow[k] += a * crow[k]
			}
		}
	}

	// proj[s', s''] = sum_k t1[s', k] conj(e''(k, s''))
	for sp := 0; sp < m; sp++ {
		trow := ws.t1[sp*m : (sp+1)*m]
		prow := ws.proj[sp*m : (sp+1)*m]
		for spp := range prow {
			prow[spp] = 0
		}
		for k := 0; k < m; k++ {
			t := trow[k]
			if t == 0 {
				continue
			}
			erow := evpp[k*m : (k+1)*m]
			for spp := 0; spp < m; spp++ {
				prow[spp] += t * cmplx.Conj(erow[spp])
			}
		}
	}
}
