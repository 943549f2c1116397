// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package polyhedra builds coordination polyhedra: the convex hulls of the
// bonded neighbors of selected particles.
package polyhedra

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/2dChan/alphasurface/halfedge"
	"github.com/2dChan/alphasurface/internal/parallel"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/golang/geo/r3"
	"github.com/markus-wa/quickhull-go/v2"
	"go.uber.org/zap"
)

const (
	defaultEps = 1e-12
)

var (
	ErrNoSelection       = errors.New("polyhedra: select particles first for which coordination polyhedra should be generated")
	ErrNoBonds           = errors.New("polyhedra: bonds between particles are required")
	ErrSelectionMismatch = errors.New("polyhedra: selection length does not match particle count")
	ErrInvalidCutoff     = errors.New("polyhedra: cutoff must be positive")
)

// Bond connects particle Index1 to the periodic image of particle Index2
// shifted by PBCShift cell vectors.
type Bond struct {
	Index1   int
	Index2   int
	PBCShift [3]int
}

// Delta returns the vector from particle Index1 to the bonded image of
// particle Index2.
func (b Bond) Delta(cell simcell.Cell, positions []r3.Vector) r3.Vector {
	delta := positions[b.Index2].Sub(positions[b.Index1])
	for dim, s := range b.PBCShift {
		if s != 0 {
			delta = delta.Add(cell.CellVector(dim).Mul(float64(s)))
		}
	}
	return delta
}

type Options struct {
	Workers int
	Eps     float64
	Logger  *zap.Logger
}

type Option func(*Options) error

// WithWorkers sets the number of goroutines building hulls. Zero or less uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *Options) error {
		o.Workers = n
		return nil
	}
}

// WithEps sets the tolerance of the convex hull computation.
func WithEps(eps float64) Option {
	return func(o *Options) error {
		if eps <= 0 || math.IsNaN(eps) {
			return errors.New("polyhedra: eps must be positive")
		}
		o.Eps = eps
		return nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) error {
		if logger == nil {
			return errors.New("polyhedra: logger must not be nil")
		}
		o.Logger = logger
		return nil
	}
}

// Construct builds one polyhedron per selected particle from the end points
// of its bonds and returns them merged into a single mesh, in particle order.
// Particles with fewer than four non-coplanar bonded neighbors produce no
// polyhedron.
func Construct(ctx context.Context, cell simcell.Cell, positions []r3.Vector, selection []bool, bonds []Bond,
	setters ...Option) (*halfedge.Basic, error) {
	opts := Options{
		Eps:    defaultEps,
		Logger: zap.NewNop(),
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return nil, err
		}
	}
	if selection == nil {
		return nil, ErrNoSelection
	}
	if bonds == nil {
		return nil, ErrNoBonds
	}
	if len(selection) != len(positions) {
		return nil, fmt.Errorf("%w: %d != %d", ErrSelectionMismatch, len(selection), len(positions))
	}

	start := time.Now()
	bondsOf := make([][]int, len(positions))
	for i, b := range bonds {
		if b.Index1 < 0 || b.Index1 >= len(positions) || b.Index2 < 0 || b.Index2 >= len(positions) {
			continue
		}
		bondsOf[b.Index1] = append(bondsOf[b.Index1], i)
	}

	var selected []int
	for i, sel := range selection {
		if sel {
			selected = append(selected, i)
		}
	}

	meshes := make([]*halfedge.Basic, len(selected))
	parallel.For(opts.Workers, len(selected), func(k int) {
		if ctx.Err() != nil {
			return
		}
		i := selected[k]
		p := positions[i]
		points := make([]r3.Vector, 0, len(bondsOf[i]))
		for _, b := range bondsOf[i] {
			points = append(points, p.Add(bonds[b].Delta(cell, positions)))
		}
		m := halfedge.NewBasic()
		ConstructConvexHull(m, points, opts.Eps)
		meshes[k] = m
	})
	if err := ctx.Err(); err != nil {
		opts.Logger.Info("polyhedra construction canceled")
		return nil, fmt.Errorf("polyhedra: %w", err)
	}

	out := halfedge.NewBasic()
	numPolyhedra := 0
	for _, m := range meshes {
		if m.FaceCount() == 0 {
			continue
		}
		out.Append(m)
		numPolyhedra++
	}
	out.ReindexVerticesAndFaces()
	opts.Logger.Debug("coordination polyhedra constructed",
		zap.Int("selected", len(selected)),
		zap.Int("polyhedra", numPolyhedra),
		zap.Int("faces", out.FaceCount()),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// ConstructConvexHull adds the closed convex hull of points to m, with faces
// wound counter-clockwise when seen from outside. It reports whether a hull
// was added; fewer than four non-coplanar points add nothing.
func ConstructConvexHull[V, E, F any](m *halfedge.Mesh[V, E, F], points []r3.Vector, eps float64) bool {
	if !spansVolume(points, eps) {
		return false
	}
	originalVertexCount := m.VertexCount()
	originalFaceCount := m.FaceCount()

	ch := new(quickhull.QuickHull).ConvexHull(points, true, true, eps)
	if len(ch.Indices) < 12 || len(ch.Indices)%3 != 0 {
		return false
	}

	var centroid r3.Vector
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))

	verts := make([]halfedge.VertexID, len(points))
	for i, p := range points {
		verts[i] = m.CreateVertex(p)
	}
	for t := 0; t < len(ch.Indices); t += 3 {
		a, b, c := ch.Indices[t], ch.Indices[t+1], ch.Indices[t+2]
		n := points[b].Sub(points[a]).Cross(points[c].Sub(points[a]))
		if n.Dot(points[a].Sub(centroid)) < 0 {
			b, c = c, b
		}
		m.CreateFace(verts[a], verts[b], verts[c])
	}

	if !m.ConnectOppositeHalfedges() {
		for m.FaceCount() > originalFaceCount {
			m.RemoveFace(m.FaceCount() - 1)
		}
		for m.VertexCount() > originalVertexCount {
			m.RemoveVertex(m.VertexCount() - 1)
		}
		return false
	}

	// Drop interior points.
	for i := m.VertexCount() - 1; i >= originalVertexCount; i-- {
		if m.NumEdges(m.Vertex(i)) == 0 {
			m.RemoveVertex(i)
		}
	}
	m.ReindexVerticesAndFaces()
	return true
}

// spansVolume reports whether points contain four corners of a tetrahedron
// with a volume above eps.
func spansVolume(points []r3.Vector, eps float64) bool {
	if len(points) < 4 {
		return false
	}
	n := 1
	var a, b r3.Vector
	for _, p := range points[1:] {
		d := p.Sub(points[0])
		switch n {
		case 1:
			if d.Norm2() > 0 {
				a = d
				n = 2
			}
		case 2:
			if a.Cross(d).Norm2() > 0 {
				b = d
				n = 3
			}
		case 3:
			if math.Abs(a.Cross(b).Dot(d)) > eps {
				return true
			}
		}
	}
	return false
}

// FindBonds returns all pairs of particles closer than cutoff under the
// minimum image convention, one bond per direction. cutoff must be smaller
// than half the cell width along every periodic direction.
func FindBonds(cell simcell.Cell, positions []r3.Vector, cutoff float64) ([]Bond, error) {
	if cutoff <= 0 || math.IsNaN(cutoff) {
		return nil, ErrInvalidCutoff
	}
	cutoff2 := cutoff * cutoff
	var bonds []Bond
	for i := range positions {
		for j := i + 1; j < len(positions); j++ {
			d := positions[j].Sub(positions[i])
			r := cell.AbsoluteToReducedVector(d)
			var shift [3]int
			for dim, x := range [3]float64{r.X, r.Y, r.Z} {
				if cell.PBC(dim) {
					shift[dim] = -int(math.Floor(x + 0.5))
				}
			}
			b := Bond{Index1: i, Index2: j, PBCShift: shift}
			if b.Delta(cell, positions).Norm2() >= cutoff2 {
				continue
			}
			bonds = append(bonds, b, Bond{Index1: j, Index2: i, PBCShift: [3]int{-shift[0], -shift[1], -shift[2]}})
		}
	}
	return bonds, nil
}
