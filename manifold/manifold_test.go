// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package manifold

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/2dChan/alphasurface/delaunay"
	"github.com/2dChan/alphasurface/halfedge"
	"github.com/2dChan/alphasurface/progress"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/2dChan/alphasurface/utils"
	"github.com/golang/geo/r3"
)

const volumeTolerance = 1e-9

func TestCanonicalTriple(t *testing.T) {
	tests := []struct {
		in   [3]int
		want [3]int
	}{
		{[3]int{1, 2, 3}, [3]int{1, 2, 3}},
		{[3]int{2, 3, 1}, [3]int{1, 2, 3}},
		{[3]int{3, 1, 2}, [3]int{1, 2, 3}},
		{[3]int{1, 3, 2}, [3]int{1, 3, 2}},
		{[3]int{3, 2, 1}, [3]int{1, 3, 2}},
	}
	for _, tt := range tests {
		if got := canonicalTriple(tt.in); got != tt.want {
			t.Errorf("canonicalTriple(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConstruct_ConvexHull(t *testing.T) {
	tess, points := mustBallTessellation(t, 120)
	mesh := halfedge.NewBasic()
	h := New(tess, mesh, 1e6, points)
	mustConstruct(t, h, solidRegion)

	if got := h.SpaceFillingRegion(); got != 1 {
		t.Errorf("SpaceFillingRegion() = %d, want 1", got)
	}
	if got, want := h.NumSolidCells(), tess.NumberOfPrimaryTetrahedra(); got != want {
		t.Errorf("NumSolidCells() = %d, want %d", got, want)
	}
	if !mesh.IsClosed() {
		t.Fatalf("IsClosed() = false, want true")
	}
	if got := eulerCharacteristic(mesh); got != 2 {
		t.Errorf("Euler characteristic = %d, want 2", got)
	}

	var tm halfedge.TriMesh
	mesh.ConvertToTriMesh(&tm)
	want := -solidVolume(tess)
	if got := tm.SignedVolume(); math.Abs(got-want) > volumeTolerance {
		t.Errorf("SignedVolume() = %v, want %v", got, want)
	}
}

func TestConstruct_FlipOrientation(t *testing.T) {
	tess, points := mustBallTessellation(t, 80)
	flipped := halfedge.NewBasic()
	mustConstruct(t, New(tess, flipped, 1e6, points, FlipOrientation()), solidRegion)

	tess2, _ := mustBallTessellation(t, 80)
	plain := halfedge.NewBasic()
	mustConstruct(t, New(tess2, plain, 1e6, points), solidRegion)

	var a, b halfedge.TriMesh
	flipped.ConvertToTriMesh(&a)
	plain.ConvertToTriMesh(&b)
	if got, want := a.SignedVolume(), solidVolume(tess); math.Abs(got-want) > volumeTolerance {
		t.Errorf("SignedVolume() = %v, want %v", got, want)
	}
	if math.Abs(a.SignedVolume()+b.SignedVolume()) > volumeTolerance {
		t.Errorf("SignedVolume() = %v and %v, want opposite values", a.SignedVolume(), b.SignedVolume())
	}
	if flipped.FaceCount() != plain.FaceCount() {
		t.Fatalf("FaceCount() = %d and %d, want equal", flipped.FaceCount(), plain.FaceCount())
	}

	particleOf := make(map[r3.Vector]int, len(points))
	for i, p := range points {
		particleOf[p] = i
	}
	faceParticles := func(m *halfedge.Basic, f halfedge.FaceID) [3]int {
		var out [3]int
		for i, v := range m.FaceVertices(nil, f) {
			out[i] = particleOf[m.Pos(v)]
		}
		return out
	}

	plainFaces := make(map[[3]int]bool, plain.FaceCount())
	for _, f := range plain.Faces() {
		plainFaces[canonicalTriple(faceParticles(plain, f))] = true
	}
	for _, f := range flipped.Faces() {
		p := faceParticles(flipped, f)
		reversed := canonicalTriple([3]int{p[0], p[2], p[1]})
		if !plainFaces[reversed] {
			t.Errorf("flipped face %v has no counterpart wound %v", p, reversed)
		}
		delete(plainFaces, reversed)
	}
	if len(plainFaces) != 0 {
		t.Errorf("%d faces have no flipped counterpart", len(plainFaces))
	}
}

func TestConstruct_TwoSided(t *testing.T) {
	tess, points := mustBallTessellation(t, 80)
	single := halfedge.NewBasic()
	mustConstruct(t, New(tess, single, 1e6, points), solidRegion)

	tess2, _ := mustBallTessellation(t, 80)
	double := halfedge.NewBasic()
	links := 0
	h := New(tess2, double, 1e6, points, TwoSided(), WithLinkManifolds(func(e1, e2 halfedge.EdgeID) {
		if double.Vertex1(e1) != double.Vertex2(e2) || double.Vertex2(e1) != double.Vertex1(e2) {
			t.Errorf("linked edges %d and %d do not run in opposite directions", e1, e2)
		}
		links++
	}))
	mustConstruct(t, h, solidRegion)

	if got, want := double.FaceCount(), 2*single.FaceCount(); got != want {
		t.Errorf("FaceCount() = %d, want %d", got, want)
	}
	if !double.IsClosed() {
		t.Errorf("IsClosed() = false, want true")
	}
	if links < 3*single.FaceCount() {
		t.Errorf("link callback called %d times, want at least %d", links, 3*single.FaceCount())
	}

	var tm halfedge.TriMesh
	double.ConvertToTriMesh(&tm)
	if got := tm.SignedVolume(); math.Abs(got) > volumeTolerance {
		t.Errorf("SignedVolume() = %v, want 0", got)
	}
}

func TestConstruct_PrepareFace(t *testing.T) {
	tess, points := mustBallTessellation(t, 60)
	mesh := halfedge.NewBasic()
	calls := 0
	h := New(tess, mesh, 1e6, points, WithPrepareFace(func(face halfedge.FaceID, particles [3]int, facet delaunay.Facet) {
		calls++
		verts := mesh.FaceVertices(nil, face)
		for i, p := range particles {
			if mesh.Pos(verts[i]) != points[p] {
				t.Errorf("face %d vertex %d position = %v, want %v", face, i, mesh.Pos(verts[i]), points[p])
			}
		}
		if tess.UserField(facet.Cell) == 0 {
			t.Errorf("face %d created from an empty cell", face)
		}
	}))
	mustConstruct(t, h, solidRegion)
	if calls != mesh.FaceCount() {
		t.Errorf("prepare callback called %d times, want %d", calls, mesh.FaceCount())
	}
}

func TestConstruct_Empty(t *testing.T) {
	tess, points := mustBallTessellation(t, 60)
	mesh := halfedge.NewBasic()
	h := New(tess, mesh, 1e-12, points)
	mustConstruct(t, h, solidRegion)

	if got := h.SpaceFillingRegion(); got != 0 {
		t.Errorf("SpaceFillingRegion() = %d, want 0", got)
	}
	if got := mesh.FaceCount(); got != 0 {
		t.Errorf("FaceCount() = %d, want 0", got)
	}
}

func TestConstruct_TwoRegions(t *testing.T) {
	tess, points := mustBallTessellation(t, 150)
	mesh := halfedge.NewBasic()
	h := New(tess, mesh, 1e6, points)
	mustConstruct(t, h, func(c int) int {
		var centroid r3.Vector
		for i := range 4 {
			centroid = centroid.Add(tess.VertexPosition(tess.CellVertex(c, i)))
		}
		if centroid.X/4 < 5 {
			return 1
		}
		return 2
	})

	if got := h.SpaceFillingRegion(); got != -1 {
		t.Errorf("SpaceFillingRegion() = %d, want -1", got)
	}
	if !mesh.IsClosed() {
		t.Errorf("IsClosed() = false, want true")
	}
	var tm halfedge.TriMesh
	mesh.ConvertToTriMesh(&tm)
	if got, want := tm.SignedVolume(), -solidVolume(tess); math.Abs(got-want) > volumeTolerance {
		t.Errorf("SignedVolume() = %v, want %v", got, want)
	}
}

func TestConstruct_PeriodicSolid(t *testing.T) {
	cell := mustNewBox(t, 3, [3]bool{true, true, true})
	points := utils.FCCLattice(3, 3, 3, 1)
	tess := mustGenerate(t, cell, points, 2)
	mesh := halfedge.NewBasic()
	h := New(tess, mesh, 1, points)
	mustConstruct(t, h, solidRegion)

	if got := h.SpaceFillingRegion(); got != 1 {
		t.Errorf("SpaceFillingRegion() = %d, want 1", got)
	}
	if got := mesh.FaceCount(); got != 0 {
		t.Errorf("FaceCount() = %d, want 0", got)
	}
}

func TestConstruct_PeriodicSlab(t *testing.T) {
	cell := mustNewBox(t, 4, [3]bool{true, true, true})
	var points []r3.Vector
	for _, p := range utils.FCCLattice(4, 4, 4, 1) {
		if p.Z < 2 {
			points = append(points, p)
		}
	}
	tess := mustGenerate(t, cell, points, 3)
	mesh := halfedge.NewBasic()
	h := New(tess, mesh, 1, points, FlipOrientation())
	mustConstruct(t, h, solidRegion)

	if got := h.SpaceFillingRegion(); got != -1 {
		t.Errorf("SpaceFillingRegion() = %d, want -1", got)
	}
	if mesh.FaceCount() == 0 {
		t.Fatalf("FaceCount() = 0, want > 0")
	}
	if !mesh.IsClosed() {
		t.Errorf("IsClosed() = false, want true")
	}
}

func TestConstruct_CellTooSmall(t *testing.T) {
	cell := mustNewBox(t, 1, [3]bool{true, true, true})
	points := utils.FCCLattice(1, 1, 1, 1)
	tess := mustGenerate(t, cell, points, 2)
	h := New(tess, halfedge.NewBasic(), 100, points)
	_, err := h.Construct(solidRegion, nil)
	if !errors.Is(err, ErrCellTooSmall) {
		t.Errorf("Construct() error = %v, want %v", err, ErrCellTooSmall)
	}
}

func TestConstruct_Canceled(t *testing.T) {
	tess, points := mustBallTessellation(t, 60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := New(tess, halfedge.NewBasic(), 1e6, points).Construct(solidRegion, progress.New(ctx, nil))
	if err != nil {
		t.Fatalf("Construct() error = %v, want nil", err)
	}
	if ok {
		t.Errorf("Construct() = true, want false")
	}
}

func TestConstruct_AppendsToMesh(t *testing.T) {
	tess, points := mustBallTessellation(t, 60)
	mesh := halfedge.NewBasic()
	v := mesh.CreateVertex(r3.Vector{})
	mesh.CreateFace(v, v, v)
	h := New(tess, mesh, 1e6, points)
	if _, err := h.Construct(solidRegion, nil); err != nil {
		t.Fatalf("Construct() error = %v, want nil", err)
	}
	if mesh.FaceCount() < 5 {
		t.Errorf("FaceCount() = %d, want > 4", mesh.FaceCount())
	}
}

// Helpers

func solidRegion(int) int {
	return 1
}

func solidVolume(tess *delaunay.Tessellation) float64 {
	vol := 0.0
	for c := range tess.NumberOfTetrahedra() {
		if !tess.IsGhostCell(c) && tess.UserField(c) != 0 {
			vol += math.Abs(tess.CellVolume(c))
		}
	}
	return vol
}

func mustNewBox(t testing.TB, l float64, pbc [3]bool) simcell.Cell {
	t.Helper()
	cell, err := simcell.NewBox(l, l, l, pbc)
	if err != nil {
		t.Fatalf("simcell.NewBox() error = %v, want nil", err)
	}
	return cell
}

func mustGenerate(t testing.TB, cell simcell.Cell, points []r3.Vector, ghost float64,
	opts ...delaunay.Option) *delaunay.Tessellation {
	t.Helper()
	tess, err := delaunay.New(opts...)
	if err != nil {
		t.Fatalf("delaunay.New() error = %v, want nil", err)
	}
	if _, err := tess.Generate(cell, points, ghost, nil, nil); err != nil {
		t.Fatalf("Generate() error = %v, want nil", err)
	}
	return tess
}

func mustBallTessellation(t testing.TB, n int) (*delaunay.Tessellation, []r3.Vector) {
	t.Helper()
	points := utils.RandomPointsInBall(n, r3.Vector{X: 5, Y: 5, Z: 5}, 3, 0)
	cell := mustNewBox(t, 10, [3]bool{})
	return mustGenerate(t, cell, points, 0, delaunay.WithJitter(0)), points
}

func mustConstruct[V, E, F any](t testing.TB, h *Helper[V, E, F], region RegionFunc) {
	t.Helper()
	ok, err := h.Construct(region, nil)
	if err != nil {
		t.Fatalf("Construct() error = %v, want nil", err)
	}
	if !ok {
		t.Fatalf("Construct() = false, want true")
	}
}

func eulerCharacteristic(m *halfedge.Basic) int {
	halfEdges := 0
	for _, f := range m.Faces() {
		halfEdges += m.EdgeCount(f)
	}
	return m.VertexCount() - halfEdges/2 + m.FaceCount()
}
