// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package halfedge implements an arena-backed half-edge mesh.
//
// Vertices, edges and faces live in pools owned by the Mesh and are addressed
// by integer handles. Handles stay valid until the element is removed; removed
// slots are recycled by later Create calls. Vertices and faces additionally
// carry a dense index (their position in Vertices() and Faces()). Removal
// swap-removes from the dense arrays, so indices are not stable across
// deletions.
package halfedge

import (
	"slices"

	"github.com/golang/geo/r3"
)

type (
	VertexID int32
	EdgeID   int32
	FaceID   int32
)

const (
	NoVertex VertexID = -1
	NoEdge   EdgeID   = -1
	NoFace   FaceID   = -1
)

// Empty is the payload type of meshes without per-element data.
type Empty = struct{}

// Basic is a mesh without per-element payload.
type Basic = Mesh[Empty, Empty, Empty]

type vertex[V any] struct {
	pos      r3.Vector
	edges    EdgeID
	numEdges int
	index    int
	data     V
}

type edge[E any] struct {
	vertex2    VertexID
	face       FaceID
	opposite   EdgeID
	nextVertex EdgeID
	nextFace   EdgeID
	prevFace   EdgeID
	data       E
}

type face[F any] struct {
	edges EdgeID
	index int
	flags uint32
	data  F
}

// Mesh is a polygon mesh with vertex payload V, edge payload E and face payload F.
// The zero value is an empty mesh ready for use. A Mesh must not be used
// concurrently from multiple goroutines while it is being mutated.
type Mesh[V, E, F any] struct {
	vertexPool []vertex[V]
	edgePool   []edge[E]
	facePool   []face[F]

	vertices []VertexID
	faces    []FaceID

	freeVertices []VertexID
	freeEdges    []EdgeID
	freeFaces    []FaceID
}

// New returns an empty mesh.
func New[V, E, F any]() *Mesh[V, E, F] {
	return &Mesh[V, E, F]{}
}

// NewBasic returns an empty mesh without payload.
func NewBasic() *Basic {
	return New[Empty, Empty, Empty]()
}

// VertexCount returns the number of live vertices.
func (m *Mesh[V, E, F]) VertexCount() int {
	return len(m.vertices)
}

// FaceCount returns the number of live faces.
func (m *Mesh[V, E, F]) FaceCount() int {
	return len(m.faces)
}

// Vertices returns the dense vertex array. The slice must not be modified.
func (m *Mesh[V, E, F]) Vertices() []VertexID {
	return m.vertices
}

// Faces returns the dense face array. The slice must not be modified.
func (m *Mesh[V, E, F]) Faces() []FaceID {
	return m.faces
}

// Vertex returns the vertex with dense index i.
func (m *Mesh[V, E, F]) Vertex(i int) VertexID {
	if i < 0 || i >= len(m.vertices) {
		panic("halfedge: Vertex: index out of range")
	}
	return m.vertices[i]
}

// Face returns the face with dense index i.
func (m *Mesh[V, E, F]) Face(i int) FaceID {
	if i < 0 || i >= len(m.faces) {
		panic("halfedge: Face: index out of range")
	}
	return m.faces[i]
}

// Reserve grows the pools so that the given numbers of vertices and faces can
// be created without reallocation.
func (m *Mesh[V, E, F]) Reserve(vertexCount, faceCount int) {
	if n := vertexCount - len(m.vertices); n > 0 {
		m.vertices = slices.Grow(m.vertices, n)
		m.vertexPool = slices.Grow(m.vertexPool, n)
	}
	if n := faceCount - len(m.faces); n > 0 {
		m.faces = slices.Grow(m.faces, n)
		m.facePool = slices.Grow(m.facePool, n)
		m.edgePool = slices.Grow(m.edgePool, 3*n)
	}
}

// Clear removes all elements and releases the pools.
func (m *Mesh[V, E, F]) Clear() {
	*m = Mesh[V, E, F]{}
}

// Swap exchanges the contents of two meshes.
func (m *Mesh[V, E, F]) Swap(other *Mesh[V, E, F]) {
	*m, *other = *other, *m
}

// Vertices

// CreateVertex adds an isolated vertex at pos.
func (m *Mesh[V, E, F]) CreateVertex(pos r3.Vector) VertexID {
	var id VertexID
	if n := len(m.freeVertices); n > 0 {
		id = m.freeVertices[n-1]
		m.freeVertices = m.freeVertices[:n-1]
	} else {
		id = VertexID(len(m.vertexPool))
		m.vertexPool = append(m.vertexPool, vertex[V]{})
	}
	m.vertexPool[id] = vertex[V]{
		pos:   pos,
		edges: NoEdge,
		index: len(m.vertices),
	}
	m.vertices = append(m.vertices, id)
	return id
}

// RemoveVertex deletes the vertex with dense index i. The vertex must not have
// any edges. The last vertex takes over index i.
func (m *Mesh[V, E, F]) RemoveVertex(i int) {
	v := m.Vertex(i)
	if m.vertexPool[v].numEdges != 0 {
		panic("halfedge: RemoveVertex: vertex still has edges")
	}
	last := len(m.vertices) - 1
	if i != last {
		moved := m.vertices[last]
		m.vertices[i] = moved
		m.vertexPool[moved].index = i
	}
	m.vertices = m.vertices[:last]
	m.vertexPool[v] = vertex[V]{edges: NoEdge, index: -1}
	m.freeVertices = append(m.freeVertices, v)
}

func (m *Mesh[V, E, F]) Pos(v VertexID) r3.Vector {
	return m.vertexPool[v].pos
}

func (m *Mesh[V, E, F]) SetPos(v VertexID, pos r3.Vector) {
	m.vertexPool[v].pos = pos
}

// VertexEdges returns the head of the vertex's outgoing edge list.
// Follow the list with NextVertexEdge.
func (m *Mesh[V, E, F]) VertexEdges(v VertexID) EdgeID {
	return m.vertexPool[v].edges
}

// NumEdges returns the number of outgoing edges of v.
func (m *Mesh[V, E, F]) NumEdges(v VertexID) int {
	return m.vertexPool[v].numEdges
}

// VertexIndex returns the dense index of v.
func (m *Mesh[V, E, F]) VertexIndex(v VertexID) int {
	return m.vertexPool[v].index
}

func (m *Mesh[V, E, F]) VertexData(v VertexID) *V {
	return &m.vertexPool[v].data
}

// NumManifolds returns how many separate manifold fans meet at v.
func (m *Mesh[V, E, F]) NumManifolds(v VertexID) int {
	visited := make(map[EdgeID]struct{}, m.vertexPool[v].numEdges)
	count := 0
	for e := m.vertexPool[v].edges; e != NoEdge; e = m.edgePool[e].nextVertex {
		if _, ok := visited[e]; ok {
			continue
		}
		count++
		cur := e
		for {
			visited[cur] = struct{}{}
			cur = m.edgePool[m.edgePool[cur].prevFace].opposite
			if cur == NoEdge || cur == e {
				break
			}
		}
	}
	return count
}

func (m *Mesh[V, E, F]) addEdgeToVertex(v VertexID, e EdgeID) {
	m.edgePool[e].nextVertex = m.vertexPool[v].edges
	m.vertexPool[v].edges = e
	m.vertexPool[v].numEdges++
}

func (m *Mesh[V, E, F]) removeEdgeFromVertex(v VertexID, e EdgeID) {
	vert := &m.vertexPool[v]
	if vert.edges == e {
		vert.edges = m.edgePool[e].nextVertex
	} else {
		prev := vert.edges
		for prev != NoEdge && m.edgePool[prev].nextVertex != e {
			prev = m.edgePool[prev].nextVertex
		}
		if prev == NoEdge {
			panic("halfedge: edge is not in the vertex edge list")
		}
		m.edgePool[prev].nextVertex = m.edgePool[e].nextVertex
	}
	m.edgePool[e].nextVertex = NoEdge
	vert.numEdges--
}

// transferEdgeToVertex moves the outgoing edge e from one vertex to another and
// redirects the opposite edge to end at the new vertex.
func (m *Mesh[V, E, F]) transferEdgeToVertex(e EdgeID, from, to VertexID) {
	m.removeEdgeFromVertex(from, e)
	m.addEdgeToVertex(to, e)
	if o := m.edgePool[e].opposite; o != NoEdge {
		m.edgePool[o].vertex2 = to
	}
}

// Edges

// Vertex1 returns the origin vertex of e.
func (m *Mesh[V, E, F]) Vertex1(e EdgeID) VertexID {
	return m.edgePool[m.edgePool[e].prevFace].vertex2
}

// Vertex2 returns the destination vertex of e.
func (m *Mesh[V, E, F]) Vertex2(e EdgeID) VertexID {
	return m.edgePool[e].vertex2
}

func (m *Mesh[V, E, F]) EdgeFace(e EdgeID) FaceID {
	return m.edgePool[e].face
}

func (m *Mesh[V, E, F]) NextVertexEdge(e EdgeID) EdgeID {
	return m.edgePool[e].nextVertex
}

func (m *Mesh[V, E, F]) NextFaceEdge(e EdgeID) EdgeID {
	return m.edgePool[e].nextFace
}

func (m *Mesh[V, E, F]) PrevFaceEdge(e EdgeID) EdgeID {
	return m.edgePool[e].prevFace
}

// OppositeEdge returns the opposite half-edge of e, or NoEdge.
func (m *Mesh[V, E, F]) OppositeEdge(e EdgeID) EdgeID {
	return m.edgePool[e].opposite
}

func (m *Mesh[V, E, F]) EdgeData(e EdgeID) *E {
	return &m.edgePool[e].data
}

// LinkToOppositeEdge makes e and o opposites of each other. Both must be
// unlinked and o must run in the reverse direction of e.
func (m *Mesh[V, E, F]) LinkToOppositeEdge(e, o EdgeID) {
	if m.edgePool[e].opposite != NoEdge || m.edgePool[o].opposite != NoEdge {
		panic("halfedge: LinkToOppositeEdge: edge is already linked")
	}
	if m.Vertex1(e) != m.Vertex2(o) || m.Vertex2(e) != m.Vertex1(o) {
		panic("halfedge: LinkToOppositeEdge: edges are not reverse of each other")
	}
	m.edgePool[e].opposite = o
	m.edgePool[o].opposite = e
}

// UnlinkFromOppositeEdge breaks the opposite link of e and returns the former
// opposite edge.
func (m *Mesh[V, E, F]) UnlinkFromOppositeEdge(e EdgeID) EdgeID {
	o := m.edgePool[e].opposite
	if o == NoEdge {
		panic("halfedge: UnlinkFromOppositeEdge: edge has no opposite")
	}
	m.edgePool[e].opposite = NoEdge
	m.edgePool[o].opposite = NoEdge
	return o
}

func (m *Mesh[V, E, F]) createEdge(v1, v2 VertexID, f FaceID, prev EdgeID) EdgeID {
	var e EdgeID
	if n := len(m.freeEdges); n > 0 {
		e = m.freeEdges[n-1]
		m.freeEdges = m.freeEdges[:n-1]
	} else {
		e = EdgeID(len(m.edgePool))
		m.edgePool = append(m.edgePool, edge[E]{})
	}
	m.edgePool[e] = edge[E]{
		vertex2:    v2,
		face:       f,
		opposite:   NoEdge,
		nextVertex: NoEdge,
		nextFace:   NoEdge,
		prevFace:   prev,
	}
	if prev != NoEdge {
		m.edgePool[prev].nextFace = e
	}
	m.addEdgeToVertex(v1, e)
	return e
}

// RemoveEdge returns an edge that has been detached from its vertex, face and
// opposite edge to the pool.
func (m *Mesh[V, E, F]) RemoveEdge(e EdgeID) {
	if m.edgePool[e].opposite != NoEdge {
		panic("halfedge: RemoveEdge: edge is still linked to its opposite")
	}
	m.edgePool[e] = edge[E]{
		vertex2:    NoVertex,
		face:       NoFace,
		opposite:   NoEdge,
		nextVertex: NoEdge,
		nextFace:   NoEdge,
		prevFace:   NoEdge,
	}
	m.freeEdges = append(m.freeEdges, e)
}

// Faces

// CreateFace adds a face bounded by the given vertices in order. Opposite
// edges are not linked.
func (m *Mesh[V, E, F]) CreateFace(vs ...VertexID) FaceID {
	if len(vs) < 2 {
		panic("halfedge: CreateFace: at least two vertices required")
	}
	var f FaceID
	if n := len(m.freeFaces); n > 0 {
		f = m.freeFaces[n-1]
		m.freeFaces = m.freeFaces[:n-1]
	} else {
		f = FaceID(len(m.facePool))
		m.facePool = append(m.facePool, face[F]{})
	}
	m.facePool[f] = face[F]{edges: NoEdge, index: len(m.faces)}
	m.faces = append(m.faces, f)

	first := m.createEdge(vs[0], vs[1], f, NoEdge)
	last := first
	for i := 1; i < len(vs); i++ {
		last = m.createEdge(vs[i], vs[(i+1)%len(vs)], f, last)
	}
	m.edgePool[last].nextFace = first
	m.edgePool[first].prevFace = last
	m.facePool[f].edges = first
	return f
}

// RemoveFace deletes the face with dense index i together with its edges.
// Opposite links of the face's edges are broken, leaving a hole. The last face
// takes over index i.
func (m *Mesh[V, E, F]) RemoveFace(i int) {
	f := m.Face(i)
	first := m.facePool[f].edges
	var ring []EdgeID
	e := first
	for {
		ring = append(ring, e)
		e = m.edgePool[e].nextFace
		if e == first {
			break
		}
	}
	for _, e := range ring {
		if m.edgePool[e].opposite != NoEdge {
			m.UnlinkFromOppositeEdge(e)
		}
		m.removeEdgeFromVertex(m.Vertex1(e), e)
	}
	for _, e := range ring {
		m.RemoveEdge(e)
	}

	last := len(m.faces) - 1
	if i != last {
		moved := m.faces[last]
		m.faces[i] = moved
		m.facePool[moved].index = i
	}
	m.faces = m.faces[:last]
	m.facePool[f] = face[F]{edges: NoEdge, index: -1}
	m.freeFaces = append(m.freeFaces, f)
}

// FaceEdges returns one edge of the face ring. Follow the ring with NextFaceEdge.
func (m *Mesh[V, E, F]) FaceEdges(f FaceID) EdgeID {
	return m.facePool[f].edges
}

// FaceIndex returns the dense index of f.
func (m *Mesh[V, E, F]) FaceIndex(f FaceID) int {
	return m.facePool[f].index
}

func (m *Mesh[V, E, F]) FaceData(f FaceID) *F {
	return &m.facePool[f].data
}

func (m *Mesh[V, E, F]) FaceFlags(f FaceID) uint32 {
	return m.facePool[f].flags
}

func (m *Mesh[V, E, F]) TestFaceFlag(f FaceID, flag uint32) bool {
	return m.facePool[f].flags&flag != 0
}

func (m *Mesh[V, E, F]) SetFaceFlag(f FaceID, flag uint32) {
	m.facePool[f].flags |= flag
}

func (m *Mesh[V, E, F]) ClearFaceFlag(f FaceID, flag uint32) {
	m.facePool[f].flags &^= flag
}

// ClearFaceFlags clears flag on every face.
func (m *Mesh[V, E, F]) ClearFaceFlags(flag uint32) {
	for _, f := range m.faces {
		m.facePool[f].flags &^= flag
	}
}

// EdgeCount returns the number of edges in the ring of f.
func (m *Mesh[V, E, F]) EdgeCount(f FaceID) int {
	first := m.facePool[f].edges
	n := 0
	for e := first; ; {
		n++
		e = m.edgePool[e].nextFace
		if e == first {
			return n
		}
	}
}

// FindEdge returns the edge of f running from v1 to v2, or NoEdge.
func (m *Mesh[V, E, F]) FindEdge(f FaceID, v1, v2 VertexID) EdgeID {
	first := m.facePool[f].edges
	for e := first; ; {
		if m.edgePool[e].vertex2 == v2 && m.Vertex1(e) == v1 {
			return e
		}
		e = m.edgePool[e].nextFace
		if e == first {
			return NoEdge
		}
	}
}

// FaceVertices appends the vertices of f in ring order to dst, starting with the
// origin of FaceEdges(f).
func (m *Mesh[V, E, F]) FaceVertices(dst []VertexID, f FaceID) []VertexID {
	first := m.facePool[f].edges
	for e := first; ; {
		dst = append(dst, m.Vertex1(e))
		e = m.edgePool[e].nextFace
		if e == first {
			return dst
		}
	}
}

// Topology

// ConnectOppositeHalfedges links every unlinked edge with an unlinked edge
// running in the reverse direction, if one exists. It reports whether the mesh
// is closed afterwards.
func (m *Mesh[V, E, F]) ConnectOppositeHalfedges() bool {
	closed := true
	for _, v1 := range m.vertices {
		for e := m.vertexPool[v1].edges; e != NoEdge; e = m.edgePool[e].nextVertex {
			if m.edgePool[e].opposite != NoEdge {
				continue
			}
			v2 := m.edgePool[e].vertex2
			for o := m.vertexPool[v2].edges; o != NoEdge; o = m.edgePool[o].nextVertex {
				if m.edgePool[o].vertex2 == v1 && m.edgePool[o].opposite == NoEdge {
					m.edgePool[e].opposite = o
					m.edgePool[o].opposite = e
					break
				}
			}
			if m.edgePool[e].opposite == NoEdge {
				closed = false
			}
		}
	}
	return closed
}

// IsClosed reports whether every edge has an opposite edge.
func (m *Mesh[V, E, F]) IsClosed() bool {
	for _, v := range m.vertices {
		for e := m.vertexPool[v].edges; e != NoEdge; e = m.edgePool[e].nextVertex {
			o := m.edgePool[e].opposite
			if o == NoEdge {
				return false
			}
			if m.edgePool[o].opposite != e || m.edgePool[o].vertex2 != v {
				panic("halfedge: IsClosed: asymmetric opposite link")
			}
		}
	}
	return true
}

// DuplicateSharedVertices splits vertices where several manifold fans meet.
// Every extra fan is moved to a new vertex at the same position. It returns the
// number of vertices that were split.
func (m *Mesh[V, E, F]) DuplicateSharedVertices() int {
	split := 0
	oldCount := len(m.vertices)
	visited := make(map[EdgeID]struct{})
	for i := range oldCount {
		v := m.vertices[i]
		numEdges := m.vertexPool[v].numEdges
		if numEdges == 0 {
			continue
		}

		clear(visited)
		first := m.vertexPool[v].edges
		cur := first
		fan := 0
		for {
			visited[cur] = struct{}{}
			fan++
			cur = m.edgePool[m.edgePool[cur].prevFace].opposite
			if cur == NoEdge {
				panic("halfedge: DuplicateSharedVertices: mesh is not closed")
			}
			if cur == first {
				break
			}
		}
		if fan == numEdges {
			continue
		}

		for fan < numEdges {
			start := NoEdge
			for e := m.vertexPool[v].edges; e != NoEdge; e = m.edgePool[e].nextVertex {
				if _, ok := visited[e]; !ok {
					start = e
					break
				}
			}
			if start == NoEdge {
				panic("halfedge: DuplicateSharedVertices: inconsistent edge list")
			}
			nv := m.CreateVertex(m.vertexPool[v].pos)
			m.vertexPool[nv].data = m.vertexPool[v].data
			cur := start
			for {
				next := m.edgePool[m.edgePool[cur].prevFace].opposite
				visited[cur] = struct{}{}
				fan++
				m.transferEdgeToVertex(cur, v, nv)
				cur = next
				if cur == start {
					break
				}
			}
		}
		split++
	}
	return split
}

// ReindexVerticesAndFaces rewrites the dense index of every vertex and face
// from its position in the dense arrays.
func (m *Mesh[V, E, F]) ReindexVerticesAndFaces() {
	for i, v := range m.vertices {
		m.vertexPool[v].index = i
	}
	for i, f := range m.faces {
		m.facePool[f].index = i
	}
}

// Copying

// Append adds copies of all vertices and faces of src to m, including payloads
// and opposite links. Dense indices of the copies follow the existing elements.
func (m *Mesh[V, E, F]) Append(src *Mesh[V, E, F]) {
	appendMesh(m, src, func(dst *V, s *V) { *dst = *s }, func(dst *E, s *E) { *dst = *s }, func(dst *F, s *F) { *dst = *s })
}

// Clone returns a deep copy of m with identical dense indices.
func (m *Mesh[V, E, F]) Clone() *Mesh[V, E, F] {
	c := New[V, E, F]()
	c.Append(m)
	return c
}

// CopyFrom replaces the contents of dst with the topology, positions and face
// flags of src. Dense indices are preserved. Payloads of dst are zeroed since
// the payload types may differ.
func CopyFrom[V, E, F, V2, E2, F2 any](dst *Mesh[V, E, F], src *Mesh[V2, E2, F2]) {
	dst.Clear()
	appendMesh(dst, src, nil, nil, nil)
}

func appendMesh[V, E, F, V2, E2, F2 any](dst *Mesh[V, E, F], src *Mesh[V2, E2, F2],
	copyV func(*V, *V2), copyE func(*E, *E2), copyF func(*F, *F2)) {
	dst.Reserve(len(dst.vertices)+len(src.vertices), len(dst.faces)+len(src.faces))

	vmap := make(map[VertexID]VertexID, len(src.vertices))
	for _, v := range src.vertices {
		nv := dst.CreateVertex(src.vertexPool[v].pos)
		if copyV != nil {
			copyV(&dst.vertexPool[nv].data, &src.vertexPool[v].data)
		}
		vmap[v] = nv
	}

	emap := make(map[EdgeID]EdgeID)
	var ring []VertexID
	for _, f := range src.faces {
		ring = src.FaceVertices(ring[:0], f)
		for i := range ring {
			ring[i] = vmap[ring[i]]
		}
		nf := dst.CreateFace(ring...)
		dst.facePool[nf].flags = src.facePool[f].flags
		if copyF != nil {
			copyF(&dst.facePool[nf].data, &src.facePool[f].data)
		}

		se := src.facePool[f].edges
		de := dst.facePool[nf].edges
		for {
			emap[se] = de
			if copyE != nil {
				copyE(&dst.edgePool[de].data, &src.edgePool[se].data)
			}
			se = src.edgePool[se].nextFace
			de = dst.edgePool[de].nextFace
			if se == src.facePool[f].edges {
				break
			}
		}
	}

	for se, de := range emap {
		if so := src.edgePool[se].opposite; so != NoEdge {
			dst.edgePool[de].opposite = emap[so]
		}
	}
}
