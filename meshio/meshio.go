// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package meshio writes triangle meshes to STL files and SVG drawings.
package meshio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/2dChan/alphasurface/halfedge"
	svg "github.com/ajstarks/svgo"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/golang/geo/r3"
)

const (
	defaultWidth  = 800
	defaultHeight = 800
	margin        = 10

	backgroundStyle = "fill:rgb(255,255,255)"
	edgeStyle       = "stroke:rgb(60,60,60);stroke-width:0.5;stroke-linejoin:round"
)

var ErrEmptyMesh = errors.New("meshio: mesh has no triangles")

// SaveSTL writes the triangles of tm to a binary STL file.
func SaveSTL(path string, tm *halfedge.TriMesh) error {
	if len(tm.Triangles) == 0 {
		return ErrEmptyMesh
	}
	tris := make([]*sdf.Triangle3, len(tm.Triangles))
	for i := range tm.Triangles {
		a, b, c := tm.TriangleVertices(i)
		tris[i] = &sdf.Triangle3{toVec(a), toVec(b), toVec(c)}
	}
	if err := render.SaveSTL(path, tris); err != nil {
		return fmt.Errorf("meshio: %w", err)
	}
	return nil
}

func toVec(p r3.Vector) v3.Vec {
	return v3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

type SVGOptions struct {
	Width, Height int
	ViewDirection r3.Vector
}

type SVGOption func(*SVGOptions) error

func WithSize(width, height int) SVGOption {
	return func(o *SVGOptions) error {
		if width <= 2*margin || height <= 2*margin {
			return fmt.Errorf("meshio: size %dx%d too small", width, height)
		}
		o.Width, o.Height = width, height
		return nil
	}
}

// WithViewDirection sets the direction the camera looks along.
func WithViewDirection(dir r3.Vector) SVGOption {
	return func(o *SVGOptions) error {
		if dir.Norm2() == 0 {
			return errors.New("meshio: view direction must be non-zero")
		}
		o.ViewDirection = dir.Normalize()
		return nil
	}
}

type projectedTriangle struct {
	xs, ys [3]int
	depth  float64
	shade  float64
}

// WriteSVG draws an orthographic projection of tm. Triangles are painted back
// to front and shaded by the angle between their normal and the view
// direction; triangles facing away are skipped.
func WriteSVG(w io.Writer, tm *halfedge.TriMesh, setters ...SVGOption) error {
	opts := SVGOptions{
		Width:         defaultWidth,
		Height:        defaultHeight,
		ViewDirection: r3.Vector{X: -1, Y: -1, Z: -1}.Normalize(),
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return err
		}
	}
	if len(tm.Triangles) == 0 {
		return ErrEmptyMesh
	}

	view := opts.ViewDirection
	right := view.Ortho()
	up := right.Cross(view).Normalize()

	minU, maxU := math.Inf(1), math.Inf(-1)
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, p := range tm.Vertices {
		u, v := p.Dot(right), p.Dot(up)
		minU, maxU = min(minU, u), max(maxU, u)
		minV, maxV = min(minV, v), max(maxV, v)
	}
	scale := math.Min(
		float64(opts.Width-2*margin)/math.Max(maxU-minU, 1e-12),
		float64(opts.Height-2*margin)/math.Max(maxV-minV, 1e-12))
	toScreen := func(p r3.Vector) (int, int) {
		x := margin + (p.Dot(right)-minU)*scale
		y := float64(opts.Height) - margin - (p.Dot(up)-minV)*scale
		return int(math.Round(x)), int(math.Round(y))
	}

	tris := make([]projectedTriangle, 0, len(tm.Triangles))
	for i := range tm.Triangles {
		a, b, c := tm.TriangleVertices(i)
		n := b.Sub(a).Cross(c.Sub(a))
		if n.Norm2() == 0 {
			continue
		}
		facing := -n.Normalize().Dot(view)
		if facing <= 0 {
			continue
		}
		var pt projectedTriangle
		for k, p := range [3]r3.Vector{a, b, c} {
			pt.xs[k], pt.ys[k] = toScreen(p)
		}
		pt.depth = a.Add(b).Add(c).Dot(view) / 3
		pt.shade = facing
		tris = append(tris, pt)
	}
	sort.Slice(tris, func(i, j int) bool {
		return tris[i].depth > tris[j].depth
	})

	canvas := svg.New(w)
	canvas.Start(opts.Width, opts.Height)
	canvas.Rect(0, 0, opts.Width, opts.Height, backgroundStyle)
	for _, t := range tris {
		g := int(80 + 160*t.shade)
		style := fmt.Sprintf("fill:rgb(%d,%d,%d);%s", g/2, g*3/4, g, edgeStyle)
		canvas.Polygon(t.xs[:], t.ys[:], style)
	}
	canvas.End()
	return nil
}
