package geometry

// Covalent radii in Angstrom indexed by atomic number.
// Values from Cordero et al., 2008 (DOI:10.1039/B801115J).
var covalentRadii = map[int]float64{
	1:  0.31, // H
	2:  0.28, // He
	3:  1.28, // Li
	4:  0.96, // Be
	5:  0.84, // B
	6:  0.76, // C, sp3
	7:  0.71, // N
	8:  0.66, // O
	9:  0.57, // F
	10: 0.58, // Ne
	11: 1.66, // Na
	12: 1.41, // Mg
	13: 1.21, // Al
	14: 1.11, // Si
	15: 1.07, // P
	16: 1.05, // S
	17: 1.02, // Cl
	18: 1.06, // Ar
	19: 2.03, // K
	20: 1.76, // Ca
	22: 1.60, // Ti
	24: 1.39, // Cr
	25: 1.61, // Mn, hs
	26: 1.52, // Fe, hs
	27: 1.50, // Co, hs
	28: 1.24, // Ni
	29: 1.32, // Cu
	30: 1.22, // Zn
	31: 1.22, // Ga
	32: 1.20, // Ge
	34: 1.20, // Se
	35: 1.20, // Br
	46: 1.39, // Pd
	47: 1.45, // Ag
	53: 1.39, // I
	78: 1.36, // Pt
	79: 1.36, // Au
}

// fallback for elements outside the table
const defaultCovalentRadius = 1.5

// CovalentRadius returns the covalent radius for an atomic number
func CovalentRadius(z int) float64 {
	if r, ok := covalentRadii[z]; ok {
		return r
	}
	return defaultCovalentRadius
}

// MinDistance returns the minimum allowed separation between two species,
// the sum of their covalent radii scaled by factor
func MinDistance(z1, z2 int, factor float64) float64 {
	return factor * (CovalentRadius(z1) + CovalentRadius(z2))
}
