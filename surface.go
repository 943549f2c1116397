// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package alphasurface

import (
	"fmt"
	"strings"

	"github.com/2dChan/alphasurface/halfedge"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/golang/geo/r3"
)

// Attribute keys published by Surface.Attributes.
const (
	AttributeSurfaceArea = "ConstructSurfaceMesh.surface_area"
	AttributeSolidVolume = "ConstructSurfaceMesh.solid_volume"
)

// Surface is the result of ConstructSurface.
type Surface struct {
	// NOTE: Faces are wound counter-clockwise when looking from empty space.
	// Vertex positions are not wrapped into the cell.
	Mesh *halfedge.Basic
	Cell simcell.Cell

	SolidVolume float64
	TotalVolume float64
	SurfaceArea float64

	// IsCompletelySolid is set when every primary tetrahedron is solid. The
	// mesh is empty in that case.
	IsCompletelySolid bool
}

func (s *Surface) NumFacets() int {
	return s.Mesh.FaceCount()
}

// Facet returns the facet with the given dense index.
// It returns an error if the index is out of range.
func (s *Surface) Facet(i int) (Facet, error) {
	if i < 0 || i >= s.Mesh.FaceCount() {
		return Facet{}, fmt.Errorf("Facet: index %d out of range [0 %d)", i, s.Mesh.FaceCount())
	}
	return Facet{idx: i, s: s}, nil
}

// TriMesh returns the mesh as a plain triangle list.
func (s *Surface) TriMesh() *halfedge.TriMesh {
	tm := &halfedge.TriMesh{}
	s.Mesh.ConvertToTriMesh(tm)
	return tm
}

// SolidFraction returns the share of the cell volume that is solid.
func (s *Surface) SolidFraction() float64 {
	return s.SolidVolume / s.TotalVolume
}

func (s *Surface) Attributes() map[string]float64 {
	return map[string]float64{
		AttributeSurfaceArea: s.SurfaceArea,
		AttributeSolidVolume: s.SolidVolume,
	}
}

// Summary returns a human readable report of the computed quantities.
func (s *Surface) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Surface area: %g\n", s.SurfaceArea)
	fmt.Fprintf(&b, "Solid volume: %g\n", s.SolidVolume)
	fmt.Fprintf(&b, "Total cell volume: %g\n", s.TotalVolume)
	fmt.Fprintf(&b, "Solid volume fraction: %g\n", s.SolidFraction())
	fmt.Fprintf(&b, "Surface area per solid volume: %g\n", s.SurfaceArea/s.SolidVolume)
	fmt.Fprintf(&b, "Surface area per total volume: %g", s.SurfaceArea/s.TotalVolume)
	return b.String()
}

// Facet is a view structure for accessing a face of a Surface mesh.
type Facet struct {
	idx int
	s   *Surface
}

func (f Facet) Index() int {
	return f.idx
}

func (f Facet) id() halfedge.FaceID {
	return f.s.Mesh.Face(f.idx)
}

// NumVertices returns the number of vertices of the facet.
// This equals the number of neighbors.
func (f Facet) NumVertices() int {
	return f.s.Mesh.EdgeCount(f.id())
}

// VertexIndices returns the dense mesh indices of the facet vertices in
// winding order.
func (f Facet) VertexIndices() []int {
	m := f.s.Mesh
	verts := m.FaceVertices(nil, f.id())
	indices := make([]int, len(verts))
	for i, v := range verts {
		indices[i] = m.VertexIndex(v)
	}
	return indices
}

// Vertex returns the position of the vertex at the specified index.
// It returns an error if the index is out of range.
func (f Facet) Vertex(i int) (r3.Vector, error) {
	e, err := f.edge(i)
	if err != nil {
		return r3.Vector{}, fmt.Errorf("Vertex: %w", err)
	}
	return f.s.Mesh.Pos(f.s.Mesh.Vertex1(e)), nil
}

// Neighbor returns the facet across the edge leaving vertex i.
// It returns an error if the index is out of range.
func (f Facet) Neighbor(i int) (Facet, error) {
	e, err := f.edge(i)
	if err != nil {
		return Facet{}, fmt.Errorf("Neighbor: %w", err)
	}
	m := f.s.Mesh
	o := m.OppositeEdge(e)
	if o == halfedge.NoEdge {
		return Facet{}, fmt.Errorf("Neighbor: edge %d has no opposite", i)
	}
	return Facet{idx: m.FaceIndex(m.EdgeFace(o)), s: f.s}, nil
}

// Area returns the facet area with edges wrapped at periodic boundaries.
func (f Facet) Area() float64 {
	return facetArea(f.s.Mesh, f.s.Cell, f.id())
}

// Normal returns the unit normal of the facet, pointing into empty space.
func (f Facet) Normal() r3.Vector {
	return facetCross(f.s.Mesh, f.s.Cell, f.id()).Mul(-1).Normalize()
}

func (f Facet) edge(i int) (halfedge.EdgeID, error) {
	m := f.s.Mesh
	n := m.EdgeCount(f.id())
	if i < 0 || i >= n {
		return halfedge.NoEdge, fmt.Errorf("index %d out of range [0 %d)", i, n)
	}
	e := m.FaceEdges(f.id())
	for range i {
		e = m.NextFaceEdge(e)
	}
	return e, nil
}
