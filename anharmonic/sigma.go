package anharmonic

import "math"

// adaptiveSigma estimates the smearing width in THz for one phonon pair
// from the group velocity difference, following the mesh-aware recipe
//
//	sigma^2 = 1/6 sum_i [ (v' - v'') . g_i / n_i ]^2
//
// with g_i the i-th column of the reciprocal cell matrix (cell inverse)
// and n_i the mesh divisions along that axis. Flat bands give zero width;
// callers must treat that as "no conserving triplet" rather than divide.
func adaptiveSigma(dv [3]float64, cellInv [3][3]float64, mesh [3]int) float64 {
	sum := 0.0
	for i := 0; i < 3; i++ {
		d := (dv[0]*cellInv[0][i] + dv[1]*cellInv[1][i] + dv[2]*cellInv[2][i]) / float64(mesh[i])
		sum += d * d
	}
	return math.Sqrt(sum / 6)
}
