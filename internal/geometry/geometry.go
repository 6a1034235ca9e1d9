// Package geometry provides the small set of Cartesian-space operations the
// optimizer needs: pair distances, centroids, reflections and the
// minimum-distance checks that keep generated structures physical.
package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/atomevolve/atomevolve-go/internal/types"
)

// PositionMatrix wraps the flat position slice of a structure as an n x 3
// dense matrix. The matrix shares backing storage with the structure.
func PositionMatrix(s *types.Structure) *mat.Dense {
	n := s.NAtoms()
	if n == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(n, 3, s.Positions)
}

// Distance returns the Euclidean distance between atoms i and j
func Distance(s *types.Structure, i, j int) float64 {
	dx := s.Positions[3*i] - s.Positions[3*j]
	dy := s.Positions[3*i+1] - s.Positions[3*j+1]
	dz := s.Positions[3*i+2] - s.Positions[3*j+2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Centroid returns the unweighted geometric center of the structure
func Centroid(s *types.Structure) [3]float64 {
	var c [3]float64
	n := s.NAtoms()
	if n == 0 {
		return c
	}
	p := PositionMatrix(s)
	for k := 0; k < 3; k++ {
		col := mat.Col(nil, k, p)
		c[k] = floats.Sum(col) / float64(n)
	}
	return c
}

// Translate shifts every atom by the given displacement
func Translate(s *types.Structure, d [3]float64) {
	for i := 0; i < s.NAtoms(); i++ {
		s.Positions[3*i] += d[0]
		s.Positions[3*i+1] += d[1]
		s.Positions[3*i+2] += d[2]
	}
}

// SortedPairDistances returns all interatomic distances in ascending order.
// This is the geometric descriptor used for structural similarity.
func SortedPairDistances(s *types.Structure) []float64 {
	n := s.NAtoms()
	dists := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dists = append(dists, Distance(s, i, j))
		}
	}
	sort.Float64s(dists)
	return dists
}

// TooClose reports whether any atom pair violates the minimum-distance
// constraint derived from covalent radii scaled by factor
func TooClose(s *types.Structure, factor float64) bool {
	n := s.NAtoms()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Distance(s, i, j) < MinDistance(s.Numbers[i], s.Numbers[j], factor) {
				return true
			}
		}
	}
	return false
}

// PointTooClose reports whether point p violates the minimum-distance
// constraint against the first n atoms of the structure
func PointTooClose(s *types.Structure, n int, z int, p [3]float64, factor float64) bool {
	for i := 0; i < n; i++ {
		dx := s.Positions[3*i] - p[0]
		dy := s.Positions[3*i+1] - p[1]
		dz := s.Positions[3*i+2] - p[2]
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if d < MinDistance(s.Numbers[i], z, factor) {
			return true
		}
	}
	return false
}

// RandomUnitVector returns a vector uniformly distributed on the unit
// sphere, built from two uniform variates
func RandomUnitVector(u1, u2 float64) [3]float64 {
	theta := 2 * math.Pi * u1
	z := 2*u2 - 1
	r := math.Sqrt(1 - z*z)
	return [3]float64{r * math.Cos(theta), r * math.Sin(theta), z}
}

// SignedPlaneDistance returns the signed distance of atom i from the plane
// through point with unit normal n
func SignedPlaneDistance(s *types.Structure, i int, point, n [3]float64) float64 {
	return (s.Positions[3*i]-point[0])*n[0] +
		(s.Positions[3*i+1]-point[1])*n[1] +
		(s.Positions[3*i+2]-point[2])*n[2]
}

// Reflect mirrors atom i through the plane defined by point and unit normal n
func Reflect(s *types.Structure, i int, point, n [3]float64) [3]float64 {
	d := SignedPlaneDistance(s, i, point, n)
	return [3]float64{
		s.Positions[3*i] - 2*d*n[0],
		s.Positions[3*i+1] - 2*d*n[1],
		s.Positions[3*i+2] - 2*d*n[2],
	}
}
