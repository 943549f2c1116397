// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package utils provides point set generators for tests and examples.
package utils

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
)

// RandomPointsInBox generates cnt uniformly distributed points in the axis
// aligned box [lo, hi). The seed parameter ensures reproducibility.
func RandomPointsInBox(cnt int, lo, hi r3.Vector, seed int64) []r3.Vector {
	//nolint:gosec
	random := rand.New(rand.NewSource(seed))
	size := hi.Sub(lo)
	points := make([]r3.Vector, cnt)
	for i := range cnt {
		points[i] = r3.Vector{
			X: lo.X + random.Float64()*size.X,
			Y: lo.Y + random.Float64()*size.Y,
			Z: lo.Z + random.Float64()*size.Z,
		}
	}
	return points
}

// RandomPointsInBall generates cnt uniformly distributed points inside the
// ball of the given center and radius.
func RandomPointsInBall(cnt int, center r3.Vector, radius float64, seed int64) []r3.Vector {
	//nolint:gosec
	random := rand.New(rand.NewSource(seed))
	points := make([]r3.Vector, 0, cnt)
	for len(points) < cnt {
		p := r3.Vector{
			X: 2*random.Float64() - 1,
			Y: 2*random.Float64() - 1,
			Z: 2*random.Float64() - 1,
		}
		if p.Norm2() > 1 {
			continue
		}
		points = append(points, center.Add(p.Mul(radius)))
	}
	return points
}

// RandomPointsOnSphere generates cnt uniformly distributed points on the sphere
// of the given center and radius.
func RandomPointsOnSphere(cnt int, center r3.Vector, radius float64, seed int64) []r3.Vector {
	//nolint:gosec
	random := rand.New(rand.NewSource(seed))
	points := make([]r3.Vector, cnt)
	for i := range cnt {
		z := 2*random.Float64() - 1
		phi := 2 * math.Pi * random.Float64()
		s := math.Sqrt(1 - z*z)
		p := r3.Vector{X: s * math.Cos(phi), Y: s * math.Sin(phi), Z: z}
		points[i] = center.Add(p.Mul(radius))
	}
	return points
}

// FCCLattice returns the sites of an nx*ny*nz block of face-centered cubic
// unit cells with lattice constant a, starting at the origin.
func FCCLattice(nx, ny, nz int, a float64) []r3.Vector {
	basis := [4]r3.Vector{
		{},
		{X: 0.5, Y: 0.5},
		{X: 0.5, Z: 0.5},
		{Y: 0.5, Z: 0.5},
	}
	points := make([]r3.Vector, 0, 4*nx*ny*nz)
	for i := range nx {
		for j := range ny {
			for k := range nz {
				cell := r3.Vector{X: float64(i), Y: float64(j), Z: float64(k)}
				for _, b := range basis {
					points = append(points, cell.Add(b).Mul(a))
				}
			}
		}
	}
	return points
}
