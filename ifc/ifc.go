// Package ifc holds interatomic force constants and the geometry they act
// on. Second and third order constants are loaded in eV/A^2 and eV/A^3 and
// stored mass-rescaled in internal units (10 J/mol, Angstrom, g/mol for the
// second order; conversion only for the third, whose mass rescale happens
// per eigenvector during scattering).
package ifc

import "fmt"

// ForceConstants bundles the geometry with both orders of force constants.
type ForceConstants struct {
	Atoms  *Atoms
	Second *SecondOrder
	Third  *ThirdOrder

	// DistanceThreshold, when positive, prunes third-order couplings by
	// interatomic distance before any scattering run.
	DistanceThreshold float64
}

// NewForceConstants validates that both orders share the same geometry.
// Third may be nil when only harmonic observables are wanted.
func NewForceConstants(second *SecondOrder, third *ThirdOrder, distanceThreshold float64) (*ForceConstants, error) {
	if second == nil {
		return nil, fmt.Errorf("ifc: second order force constants are required")
	}
	if third != nil {
		if third.Atoms != second.Atoms {
			return nil, fmt.Errorf("ifc: second and third order built on different atoms")
		}
		if distanceThreshold > 0 {
			third = third.FilterByDistance(distanceThreshold)
		}
	}
	return &ForceConstants{
		Atoms:             second.Atoms,
		Second:            second,
		Third:             third,
		DistanceThreshold: distanceThreshold,
	}, nil
}
