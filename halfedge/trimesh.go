// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package halfedge

import (
	"github.com/golang/geo/r3"
)

// TriMesh is an indexed triangle list.
type TriMesh struct {
	Vertices  []r3.Vector
	Triangles [][3]int
}

// ConvertToTriMesh copies the vertices of m into out in dense index order and
// fan-triangulates every face around the origin of its first edge.
func (m *Mesh[V, E, F]) ConvertToTriMesh(out *TriMesh) {
	out.Vertices = out.Vertices[:0]
	out.Triangles = out.Triangles[:0]
	for _, v := range m.vertices {
		out.Vertices = append(out.Vertices, m.vertexPool[v].pos)
	}
	for _, f := range m.faces {
		first := m.facePool[f].edges
		base := m.vertexPool[m.Vertex1(first)].index
		for e := m.edgePool[first].nextFace; m.edgePool[e].nextFace != first; e = m.edgePool[e].nextFace {
			out.Triangles = append(out.Triangles, [3]int{
				base,
				m.vertexPool[m.Vertex1(e)].index,
				m.vertexPool[m.edgePool[e].vertex2].index,
			})
		}
	}
}

// TriangleVertices returns the corner positions of triangle i.
func (tm *TriMesh) TriangleVertices(i int) (r3.Vector, r3.Vector, r3.Vector) {
	if i < 0 || i >= len(tm.Triangles) {
		panic("TriangleVertices: index out of range")
	}
	t := tm.Triangles[i]
	return tm.Vertices[t[0]], tm.Vertices[t[1]], tm.Vertices[t[2]]
}

// SignedVolume returns the volume enclosed by the triangles, positive when
// they are wound counter-clockwise seen from outside.
func (tm *TriMesh) SignedVolume() float64 {
	var vol float64
	for i := range tm.Triangles {
		a, b, c := tm.TriangleVertices(i)
		vol += a.Dot(b.Cross(c))
	}
	return vol / 6
}

// Area returns the total triangle area.
func (tm *TriMesh) Area() float64 {
	var area float64
	for i := range tm.Triangles {
		a, b, c := tm.TriangleVertices(i)
		area += b.Sub(a).Cross(c.Sub(a)).Norm()
	}
	return area / 2
}
