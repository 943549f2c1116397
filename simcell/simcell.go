// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package simcell describes a parallelepiped simulation cell with optional
// periodic boundary conditions along each cell vector.
package simcell

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

var ErrSingularCell = errors.New("simcell: cell vectors are linearly dependent")

// Cell is a simulation cell spanned by three cell vectors (the matrix columns)
// and anchored at an origin.
type Cell struct {
	matrix  mgl64.Mat3
	inverse mgl64.Mat3
	origin  mgl64.Vec3
	pbc     [3]bool
}

// New returns a cell with the given cell vectors, origin and periodic flags.
func New(a, b, c, origin r3.Vector, pbc [3]bool) (Cell, error) {
	m := mgl64.Mat3FromCols(toVec3(a), toVec3(b), toVec3(c))
	det := m.Det()
	if det == 0 || math.IsNaN(det) {
		return Cell{}, ErrSingularCell
	}
	inv := m.Inv()
	if inv == (mgl64.Mat3{}) {
		return Cell{}, ErrSingularCell
	}
	return Cell{
		matrix:  m,
		inverse: inv,
		origin:  toVec3(origin),
		pbc:     pbc,
	}, nil
}

// NewBox returns an orthogonal cell with edge lengths lx, ly, lz at the origin.
func NewBox(lx, ly, lz float64, pbc [3]bool) (Cell, error) {
	return New(r3.Vector{X: lx}, r3.Vector{Y: ly}, r3.Vector{Z: lz}, r3.Vector{}, pbc)
}

func (c Cell) Matrix() mgl64.Mat3 {
	return c.matrix
}

func (c Cell) Origin() r3.Vector {
	return fromVec3(c.origin)
}

// PBC reports whether the cell is periodic along dimension dim.
func (c Cell) PBC(dim int) bool {
	return c.pbc[dim]
}

func (c Cell) PBCFlags() [3]bool {
	return c.pbc
}

// Volume returns the absolute volume of the cell.
func (c Cell) Volume() float64 {
	return math.Abs(c.matrix.Det())
}

// CellVector returns the cell vector along dimension dim.
func (c Cell) CellVector(dim int) r3.Vector {
	return fromVec3(c.matrix.Col(dim))
}

// CellNormalVector returns the unit normal of the cell face spanned by the two
// other cell vectors, oriented towards the positive side of dimension dim.
func (c Cell) CellNormalVector(dim int) r3.Vector {
	u := c.matrix.Col((dim + 1) % 3)
	w := c.matrix.Col((dim + 2) % 3)
	n := u.Cross(w).Normalize()
	if n.Dot(c.matrix.Col(dim)) < 0 {
		n = n.Mul(-1)
	}
	return fromVec3(n)
}

// AbsoluteToReduced converts a point to reduced cell coordinates.
func (c Cell) AbsoluteToReduced(p r3.Vector) r3.Vector {
	return fromVec3(c.inverse.Mul3x1(toVec3(p).Sub(c.origin)))
}

// ReducedToAbsolute converts a point in reduced cell coordinates to Cartesian coordinates.
func (c Cell) ReducedToAbsolute(p r3.Vector) r3.Vector {
	return fromVec3(c.matrix.Mul3x1(toVec3(p)).Add(c.origin))
}

func (c Cell) AbsoluteToReducedVector(v r3.Vector) r3.Vector {
	return fromVec3(c.inverse.Mul3x1(toVec3(v)))
}

func (c Cell) ReducedToAbsoluteVector(v r3.Vector) r3.Vector {
	return fromVec3(c.matrix.Mul3x1(toVec3(v)))
}

// WrapPoint maps p into the primary cell image along the periodic dimensions.
func (c Cell) WrapPoint(p r3.Vector) r3.Vector {
	pv := toVec3(p)
	for dim := range 3 {
		if !c.pbc[dim] {
			continue
		}
		s := math.Floor(c.reducedComponent(pv.Sub(c.origin), dim))
		if s != 0 {
			pv = pv.Sub(c.matrix.Col(dim).Mul(s))
		}
	}
	return fromVec3(pv)
}

// WrapVector applies the minimum image convention to v along the periodic
// dimensions.
func (c Cell) WrapVector(v r3.Vector) r3.Vector {
	vv := toVec3(v)
	for dim := range 3 {
		if !c.pbc[dim] {
			continue
		}
		s := math.Floor(c.reducedComponent(vv, dim) + 0.5)
		if s != 0 {
			vv = vv.Sub(c.matrix.Col(dim).Mul(s))
		}
	}
	return fromVec3(vv)
}

// IsWrappedVector reports whether v spans half a cell or more along any
// periodic dimension.
func (c Cell) IsWrappedVector(v r3.Vector) bool {
	vv := toVec3(v)
	for dim := range 3 {
		if c.pbc[dim] && math.Abs(c.reducedComponent(vv, dim)) >= 0.5 {
			return true
		}
	}
	return false
}

func (c Cell) reducedComponent(v mgl64.Vec3, dim int) float64 {
	return c.inverse.At(dim, 0)*v[0] + c.inverse.At(dim, 1)*v[1] + c.inverse.At(dim, 2)*v[2]
}

func toVec3(v r3.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromVec3(v mgl64.Vec3) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
