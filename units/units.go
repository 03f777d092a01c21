// Package units defines the internal unit system shared by the lattice
// dynamics packages: lengths in Angstrom, time in picoseconds, masses in
// g/mol (atomic mass units) and energies in 10 J/mol. In this system the
// eigenvalues of the mass-rescaled dynamical matrix are angular frequencies
// squared in rad^2/ps^2, so no further conversion factors appear in the
// harmonic or anharmonic kernels.
package units

import "math"

// CODATA 2018 derived constants.
const (
	// EvToTenJPerMol converts eV to 10 J/mol (e * N_A / 10). Force
	// constants supplied in eV/A^2 or eV/A^3 are scaled by this factor on
	// load.
	EvToTenJPerMol = 9648.533212331288

	// HBar is the reduced Planck constant in (10 J/mol)*ps.
	HBar = 6.350779926105674

	// KB is the Boltzmann constant in (10 J/mol)/K.
	KB = 0.8314462618153242

	// KBJoule is the Boltzmann constant in J/K, the output unit of the
	// per-mode heat capacity.
	KBJoule = 1.380649e-23

	// KelvinToTHz converts a temperature in K to k_B*T/h in THz.
	KelvinToTHz = 0.02083661912333992

	// THzToMeV is the energy of a 1 THz phonon in meV (h * 1e12 / e * 1e3).
	THzToMeV = 4.135667696923859
)

// ThermalConductivity converts J/(K*A*ps), the natural unit of
// c_v * v_a * v_b * tau / volume, to W/(m*K).
const ThermalConductivity = 1e22

// ToTHz converts an angular frequency in rad/ps to an ordinary frequency
// in THz.
func ToTHz(omega float64) float64 { return omega / (2 * math.Pi) }

// ToAngular converts an ordinary frequency in THz to rad/ps.
func ToAngular(nu float64) float64 { return nu * 2 * math.Pi }
