// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package manifold extracts the interfaces between differently classified
// regions of a Delaunay tessellation as closed half-edge meshes.
package manifold

import (
	"errors"
	"fmt"

	"github.com/2dChan/alphasurface/delaunay"
	"github.com/2dChan/alphasurface/halfedge"
	"github.com/2dChan/alphasurface/progress"
	"github.com/golang/geo/r3"
)

var (
	ErrCellTooSmall         = errors.New("manifold: simulation cell length is too small for the given probe sphere radius")
	ErrAdjacentFaceNotFound = errors.New("manifold: adjacent cell face not found")
	ErrOppositeEdgeNotFound = errors.New("manifold: opposite half-edge not found")
	ErrOpenManifold         = errors.New("manifold: constructed mesh is not closed")
)

// RegionFunc returns the region of a cell that passed the alpha test. Region 0
// is reserved for empty space.
type RegionFunc func(cell int) int

// PrepareFaceFunc is called for every created face with the particle indices
// of its vertices and the facet it was created from.
type PrepareFaceFunc func(face halfedge.FaceID, particleIndices [3]int, facet delaunay.Facet)

// LinkManifoldsFunc is called with each edge of a face and the corresponding
// edge of the face on the other side of the interface. It may be called more
// than once for the same pair.
type LinkManifoldsFunc func(edge, oppositeEdge halfedge.EdgeID)

type config struct {
	flipOrientation bool
	twoSided        bool
	prepareFace     PrepareFaceFunc
	linkManifolds   LinkManifoldsFunc
}

type Option func(*config)

// FlipOrientation reverses the winding of all created faces. Faces are wound
// so that their normals point into their region by default.
func FlipOrientation() Option {
	return func(c *config) {
		c.flipOrientation = true
	}
}

// TwoSided additionally creates the faces of empty space, wound opposite to
// the faces of the adjacent region.
func TwoSided() Option {
	return func(c *config) {
		c.twoSided = true
	}
}

func WithPrepareFace(fn PrepareFaceFunc) Option {
	return func(c *config) {
		c.prepareFace = fn
	}
}

func WithLinkManifolds(fn LinkManifoldsFunc) Option {
	return func(c *config) {
		c.linkManifolds = fn
	}
}

// Helper builds the interface mesh of one tessellation. It is not safe for
// concurrent use.
type Helper[V, E, F any] struct {
	tess      *delaunay.Tessellation
	mesh      *halfedge.Mesh[V, E, F]
	alpha     float64
	positions []r3.Vector
	cfg       config

	spaceFillingRegion int
	numSolidCells      int

	tetrahedraFaceList [][4]halfedge.FaceID
	faceLookupMap      map[[3]int]halfedge.FaceID
	vertexMap          []halfedge.VertexID
	firstFace          int
}

// New returns a helper that adds the interface faces of tess to mesh. alpha is
// the squared probe sphere radius. positions supplies the output vertex
// position of every particle index.
func New[V, E, F any](tess *delaunay.Tessellation, mesh *halfedge.Mesh[V, E, F], alpha float64,
	positions []r3.Vector, opts ...Option) *Helper[V, E, F] {
	h := &Helper[V, E, F]{
		tess:      tess,
		mesh:      mesh,
		alpha:     alpha,
		positions: positions,
	}
	for _, opt := range opts {
		opt(&h.cfg)
	}
	return h
}

// SpaceFillingRegion returns the region shared by all primary cells, 0 if the
// primary cells are all empty or there are none, and -1 if they belong to
// several regions.
func (h *Helper[V, E, F]) SpaceFillingRegion() int {
	return h.spaceFillingRegion
}

// NumSolidCells returns the number of primary cells with a non-zero region.
func (h *Helper[V, E, F]) NumSolidCells() int {
	return h.numSolidCells
}

// Construct classifies all cells and builds the interface mesh. It returns
// false if the task was canceled.
func (h *Helper[V, E, F]) Construct(determineCellRegion RegionFunc, task *progress.Task) (bool, error) {
	h.firstFace = h.mesh.FaceCount()
	task.BeginSubSteps(1, 6, 1)
	defer task.EndSubSteps()

	if !h.classifyTetrahedra(determineCellRegion, task) {
		return false, nil
	}
	task.NextSubStep()

	ok, err := h.createInterfaceFacets(task)
	if err != nil || !ok {
		return false, err
	}
	task.NextSubStep()

	ok, err = h.linkHalfedges(task)
	if err != nil || !ok {
		return false, err
	}
	if !h.isClosed() {
		return false, ErrOpenManifold
	}
	return true, nil
}

// classifyTetrahedra assigns a region to every cell and a dense index to every
// primary cell with a non-zero region.
func (h *Helper[V, E, F]) classifyTetrahedra(determineCellRegion RegionFunc, task *progress.Task) bool {
	task.SetText("Classifying tetrahedra")
	n := h.tess.NumberOfTetrahedra()
	task.SetMaximum(int64(n))

	h.numSolidCells = 0
	h.spaceFillingRegion = -2
	for c := range n {
		region := 0
		if h.tess.AlphaTest(c, h.alpha) {
			region = determineCellRegion(c)
		}
		h.tess.SetUserField(c, region)

		if !h.tess.IsGhostCell(c) {
			switch h.spaceFillingRegion {
			case -2:
				h.spaceFillingRegion = region
			case region:
			default:
				h.spaceFillingRegion = -1
			}
		}

		if region != 0 && !h.tess.IsGhostCell(c) {
			h.tess.SetCellIndex(c, h.numSolidCells)
			h.numSolidCells++
		} else {
			h.tess.SetCellIndex(c, -1)
		}

		if !task.SetValueIntermittent(int64(c)) {
			return false
		}
	}
	if h.spaceFillingRegion == -2 {
		h.spaceFillingRegion = 0
	}
	return true
}

// faceVertex returns the local cell vertex index of corner v of a face created
// from the facet opposite vertex face.
func (h *Helper[V, E, F]) faceVertex(face, v int) int {
	if h.cfg.flipOrientation {
		v = 2 - v
	}
	return delaunay.CellFacetVertexIndex(face, v)
}

func (h *Helper[V, E, F]) createInterfaceFacets(task *progress.Task) (bool, error) {
	task.SetText("Constructing interface mesh")
	n := h.tess.NumberOfTetrahedra()
	task.SetMaximum(int64(h.numSolidCells))

	h.vertexMap = make([]halfedge.VertexID, len(h.positions))
	for i := range h.vertexMap {
		h.vertexMap[i] = halfedge.NoVertex
	}
	h.tetrahedraFaceList = h.tetrahedraFaceList[:0]
	h.faceLookupMap = make(map[[3]int]halfedge.FaceID)

	simCell := h.tess.SimCell()
	processed := 0
	for c := range n {
		if h.tess.CellIndex(c) == -1 {
			continue
		}
		if !task.SetValueIntermittent(int64(processed)) {
			return false, nil
		}
		processed++

		for e1 := range 4 {
			p1 := h.tess.VertexPosition(h.tess.CellVertex(c, e1))
			for e2 := e1 + 1; e2 < 4; e2++ {
				p2 := h.tess.VertexPosition(h.tess.CellVertex(c, e2))
				if simCell.IsWrappedVector(p2.Sub(p1)) {
					return false, ErrCellTooSmall
				}
			}
		}

		region := h.tess.UserField(c)
		faces := [4]halfedge.FaceID{halfedge.NoFace, halfedge.NoFace, halfedge.NoFace, halfedge.NoFace}
		hasFaces := false
		for f := range 4 {
			mirror := h.tess.MirrorFacet(delaunay.Facet{Cell: c, Face: f})
			adjacentRegion := h.tess.UserField(mirror.Cell)
			if adjacentRegion == region {
				continue
			}
			faces[f] = h.createFace(delaunay.Facet{Cell: c, Face: f})
			hasFaces = true

			if h.cfg.twoSided && adjacentRegion == 0 {
				h.createFace(mirror)
			}
		}

		if hasFaces {
			h.tess.SetCellIndex(c, len(h.tetrahedraFaceList))
			h.tetrahedraFaceList = append(h.tetrahedraFaceList, faces)
		} else {
			h.tess.SetCellIndex(c, -1)
		}
	}
	return true, nil
}

// createFace adds the triangle of facet f to the mesh and records it in the
// lookup map.
func (h *Helper[V, E, F]) createFace(f delaunay.Facet) halfedge.FaceID {
	var verts [3]halfedge.VertexID
	var particles [3]int
	for v := range 3 {
		vh := h.tess.CellVertex(f.Cell, h.faceVertex(f.Face, v))
		idx := h.tess.VertexIndex(vh)
		particles[v] = idx
		if h.vertexMap[idx] == halfedge.NoVertex {
			h.vertexMap[idx] = h.mesh.CreateVertex(h.positions[idx])
		}
		verts[v] = h.vertexMap[idx]
	}
	face := h.mesh.CreateFace(verts[0], verts[1], verts[2])
	h.faceLookupMap[canonicalTriple(particles)] = face
	if h.cfg.prepareFace != nil {
		h.cfg.prepareFace(face, particles, f)
	}
	return face
}

// canonicalTriple rotates t so that its smallest element comes first. The
// rotation keeps the winding, so both sides of a facet map to different keys.
func canonicalTriple(t [3]int) [3]int {
	switch {
	case t[1] < t[0] && t[1] < t[2]:
		return [3]int{t[1], t[2], t[0]}
	case t[2] < t[0] && t[2] < t[1]:
		return [3]int{t[2], t[0], t[1]}
	}
	return t
}

// findCellFace returns the face created from facet f, or NoFace.
func (h *Helper[V, E, F]) findCellFace(f delaunay.Facet) halfedge.FaceID {
	if idx := h.tess.CellIndex(f.Cell); idx != -1 {
		return h.tetrahedraFaceList[idx][f.Face]
	}
	var particles [3]int
	for v := range 3 {
		particles[v] = h.tess.VertexIndex(h.tess.CellVertex(f.Cell, h.faceVertex(f.Face, v)))
	}
	if face, ok := h.faceLookupMap[canonicalTriple(particles)]; ok {
		return face
	}
	return halfedge.NoFace
}

// findAdjacentFace walks around edge e of the face created from facet f,
// staying inside the region of f's cell, and returns the next interface facet
// of that region.
func (h *Helper[V, E, F]) findAdjacentFace(f delaunay.Facet, e int) delaunay.Facet {
	v1 := h.faceVertex(f.Face, e)
	v2 := h.faceVertex(f.Face, (e+1)%3)
	region := h.tess.UserField(f.Cell)

	circ := h.tess.IncidentFacets(f.Cell, v1, v2, f.Face)
	for range h.tess.NumberOfTetrahedra() {
		circ.Next()
		if h.tess.UserField(circ.Facet().Cell) != region {
			return h.tess.MirrorFacet(circ.Facet())
		}
	}
	return delaunay.Facet{Cell: -1, Face: -1}
}

func (h *Helper[V, E, F]) linkHalfedges(task *progress.Task) (bool, error) {
	task.SetText("Linking half-edges")
	task.SetMaximum(int64(len(h.tetrahedraFaceList)))

	for c := range h.tess.NumberOfTetrahedra() {
		idx := h.tess.CellIndex(c)
		if idx == -1 {
			continue
		}
		if !task.SetValueIntermittent(int64(idx)) {
			return false, nil
		}
		for f := range 4 {
			face := h.tetrahedraFaceList[idx][f]
			if face == halfedge.NoFace {
				continue
			}
			facet := delaunay.Facet{Cell: c, Face: f}
			if err := h.linkFace(facet, face); err != nil {
				return false, err
			}

			if !h.cfg.twoSided {
				continue
			}
			outer := h.tess.MirrorFacet(facet)
			outerFace := h.findCellFace(outer)
			if outerFace == halfedge.NoFace {
				continue
			}
			if h.tess.UserField(outer.Cell) == 0 {
				if err := h.linkFace(outer, outerFace); err != nil {
					return false, err
				}
			}
			if h.cfg.linkManifolds != nil {
				h.linkOppositeFaces(face, outerFace)
			}
		}
	}
	return true, nil
}

// linkFace connects every unlinked edge of face, created from facet f, with
// the opposite edge of the adjacent face of the same region.
func (h *Helper[V, E, F]) linkFace(f delaunay.Facet, face halfedge.FaceID) error {
	edge := h.mesh.FaceEdges(face)
	for e := range 3 {
		if h.mesh.OppositeEdge(edge) == halfedge.NoEdge {
			adjacent := h.findAdjacentFace(f, e)
			if adjacent.Cell < 0 {
				return fmt.Errorf("%w: cell %d facet %d", ErrAdjacentFaceNotFound, f.Cell, f.Face)
			}
			adjacentFace := h.findCellFace(adjacent)
			if adjacentFace == halfedge.NoFace {
				return fmt.Errorf("%w: cell %d facet %d", ErrAdjacentFaceNotFound, adjacent.Cell, adjacent.Face)
			}
			opposite := h.mesh.FindEdge(adjacentFace, h.mesh.Vertex2(edge), h.mesh.Vertex1(edge))
			if opposite == halfedge.NoEdge || h.mesh.OppositeEdge(opposite) != halfedge.NoEdge {
				return fmt.Errorf("%w: cell %d facet %d edge %d", ErrOppositeEdgeNotFound, f.Cell, f.Face, e)
			}
			h.mesh.LinkToOppositeEdge(edge, opposite)
		}
		edge = h.mesh.NextFaceEdge(edge)
	}
	return nil
}

// linkOppositeFaces reports the edge pairs of two faces created from both
// sides of the same facet.
func (h *Helper[V, E, F]) linkOppositeFaces(face, outerFace halfedge.FaceID) {
	edge := h.mesh.FaceEdges(face)
	for range 3 {
		outer := h.mesh.FindEdge(outerFace, h.mesh.Vertex2(edge), h.mesh.Vertex1(edge))
		if outer != halfedge.NoEdge {
			h.cfg.linkManifolds(edge, outer)
		}
		edge = h.mesh.NextFaceEdge(edge)
	}
}

// isClosed reports whether every face created by Construct is fully linked.
func (h *Helper[V, E, F]) isClosed() bool {
	faces := h.mesh.Faces()
	for _, face := range faces[h.firstFace:] {
		edge := h.mesh.FaceEdges(face)
		for range h.mesh.EdgeCount(face) {
			if h.mesh.OppositeEdge(edge) == halfedge.NoEdge {
				return false
			}
			edge = h.mesh.NextFaceEdge(edge)
		}
	}
	return true
}
