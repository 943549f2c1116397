// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package delaunay computes 3D Delaunay tessellations of particle sets inside a
// simulation cell, including periodic ghost images of the particles.
package delaunay

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/2dChan/alphasurface/progress"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/golang/geo/r3"
)

// Infinite is the handle of the vertex at infinity.
const Infinite = -1

const (
	defaultJitter = 2e-5
	defaultSeed   = 4
)

// Progress weights of ghost replication and point insertion.
const (
	ghostStepWeight     = 1
	insertionStepWeight = 10
)

var (
	ErrInvalidGhostLayer = errors.New("delaunay: ghost layer size must be non-negative")
	ErrSelectionMismatch = errors.New("delaunay: selection length does not match particle count")
)

// cellFacetVertexIndex lists, for every facet of a cell, the local indices of
// its three vertices. Each triangle is wound so that its normal points into
// the cell.
var cellFacetVertexIndex = [4][3]int{{1, 3, 2}, {0, 2, 3}, {0, 3, 1}, {0, 1, 2}}

// CellFacetVertexIndex returns the local cell vertex index of the v-th corner of
// the facet opposite vertex face.
func CellFacetVertexIndex(face, v int) int {
	return cellFacetVertexIndex[face][v]
}

// Facet is the triangular facet of Cell opposite its vertex Face.
type Facet struct {
	Cell int
	Face int
}

type Options struct {
	Jitter float64
	Seed   int64
}

type Option func(*Options) error

// WithJitter sets the magnitude of the random displacement applied to every
// point before triangulation.
func WithJitter(jitter float64) Option {
	return func(o *Options) error {
		if jitter < 0 || math.IsNaN(jitter) {
			return errors.New("delaunay: jitter must be non-negative")
		}
		o.Jitter = jitter
		return nil
	}
}

// WithSeed sets the seed of the random number generator used for jitter and
// point location.
func WithSeed(seed int64) Option {
	return func(o *Options) error {
		o.Seed = seed
		return nil
	}
}

type cellInfo struct {
	ghost     bool
	userField int
	index     int
}

// Tessellation is a Delaunay tetrahedralization of a particle set and its
// periodic ghost images. Cells touching the vertex at infinity are kept so
// that the convex hull can be traversed.
type Tessellation struct {
	opts Options

	simCell            simcell.Cell
	points             []r3.Vector
	particleIndices    []int
	shifts             [][3]int
	primaryVertexCount int

	cells      []tetra
	info       []cellInfo
	numPrimary int
}

func New(setters ...Option) (*Tessellation, error) {
	opts := Options{
		Jitter: defaultJitter,
		Seed:   defaultSeed,
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return nil, err
		}
	}
	return &Tessellation{opts: opts}, nil
}

// StencilCount returns the number of periodic image layers needed to cover a
// ghost layer of the given thickness, maximized over the periodic dimensions.
func StencilCount(cell simcell.Cell, ghostLayerSize float64) int {
	n := 0
	for dim := range 3 {
		if !cell.PBC(dim) {
			continue
		}
		width := math.Abs(cell.CellVector(dim).Dot(cell.CellNormalVector(dim)))
		n = max(n, int(math.Ceil(ghostLayerSize/width)))
	}
	return n
}

// Generate tessellates the given positions. Particles with a false entry in
// selection are skipped; a nil selection keeps all particles. It returns false
// if the task was canceled.
func (t *Tessellation) Generate(cell simcell.Cell, positions []r3.Vector, ghostLayerSize float64,
	selection []bool, task *progress.Task) (bool, error) {
	if ghostLayerSize < 0 || math.IsNaN(ghostLayerSize) {
		return false, ErrInvalidGhostLayer
	}
	if selection != nil && len(selection) != len(positions) {
		return false, fmt.Errorf("%w: %d != %d", ErrSelectionMismatch, len(selection), len(positions))
	}
	t.reset(cell)
	task.SetText("Generating Delaunay tessellation")
	task.BeginSubSteps(ghostStepWeight, insertionStepWeight)
	defer task.EndSubSteps()

	//nolint:gosec
	rng := rand.New(rand.NewSource(t.opts.Seed))
	jitter := func() float64 {
		return t.opts.Jitter * (2*rng.Float64() - 1)
	}
	for i, p := range positions {
		if selection != nil && !selection[i] {
			continue
		}
		wp := cell.WrapPoint(p)
		wp = r3.Vector{X: wp.X + jitter(), Y: wp.Y + jitter(), Z: wp.Z + jitter()}
		t.points = append(t.points, wp)
		t.particleIndices = append(t.particleIndices, i)
		t.shifts = append(t.shifts, [3]int{})
	}
	t.primaryVertexCount = len(t.points)

	if !t.generateGhosts(ghostLayerSize, task) {
		return false, nil
	}
	task.NextSubStep()

	tr := newTriangulator(t.points, t.opts.Seed, task)
	ok, err := tr.run()
	if err != nil || !ok {
		return false, err
	}
	t.cells = tr.compact()
	t.classifyCells()
	return !task.IsCanceled(), nil
}

func (t *Tessellation) reset(cell simcell.Cell) {
	t.simCell = cell
	t.points = t.points[:0]
	t.particleIndices = t.particleIndices[:0]
	t.shifts = t.shifts[:0]
	t.primaryVertexCount = 0
	t.cells = nil
	t.info = nil
	t.numPrimary = 0
}

// generateGhosts appends the periodic images of the primary points that lie
// within ghostLayerSize of the cell along every periodic cell normal.
func (t *Tessellation) generateGhosts(ghostLayerSize float64, task *progress.Task) bool {
	cell := t.simCell
	var stencil [3]int
	var normals [3]r3.Vector
	var cuts [3][2]float64
	corner := cell.Origin().Add(cell.CellVector(0)).Add(cell.CellVector(1)).Add(cell.CellVector(2))
	for dim := range 3 {
		normals[dim] = cell.CellNormalVector(dim)
		cuts[dim][0] = normals[dim].Dot(cell.Origin()) - ghostLayerSize
		cuts[dim][1] = normals[dim].Dot(corner) + ghostLayerSize
		if cell.PBC(dim) {
			width := math.Abs(cell.CellVector(dim).Dot(normals[dim]))
			stencil[dim] = int(math.Ceil(ghostLayerSize / width))
		}
	}

	n := int64(t.primaryVertexCount)
	task.SetMaximum(int64((2*stencil[0]+1)*(2*stencil[1]+1)*(2*stencil[2]+1)) * n)
	images := int64(0)
	for ix := -stencil[0]; ix <= stencil[0]; ix++ {
		for iy := -stencil[1]; iy <= stencil[1]; iy++ {
			for iz := -stencil[2]; iz <= stencil[2]; iz++ {
				base := images * n
				images++
				if !task.SetValue(base) {
					return false
				}
				if ix == 0 && iy == 0 && iz == 0 {
					continue
				}
				shift := cell.ReducedToAbsoluteVector(r3.Vector{X: float64(ix), Y: float64(iy), Z: float64(iz)})
				for v := range t.primaryVertexCount {
					if !task.SetValueIntermittent(base + int64(v)) {
						return false
					}
					q := t.points[v].Add(shift)
					if !t.insideCuts(q, normals, cuts) {
						continue
					}
					t.points = append(t.points, q)
					t.particleIndices = append(t.particleIndices, t.particleIndices[v])
					t.shifts = append(t.shifts, [3]int{ix, iy, iz})
				}
			}
		}
	}
	return true
}

func (t *Tessellation) insideCuts(q r3.Vector, normals [3]r3.Vector, cuts [3][2]float64) bool {
	for dim := range 3 {
		if !t.simCell.PBC(dim) {
			continue
		}
		d := normals[dim].Dot(q)
		if d < cuts[dim][0] || d > cuts[dim][1] {
			return false
		}
	}
	return true
}

// classifyCells marks ghost cells and assigns dense indices to the others.
func (t *Tessellation) classifyCells() {
	t.info = make([]cellInfo, len(t.cells))
	t.numPrimary = 0
	for c := range t.cells {
		ghost := t.classifyGhostCell(c)
		t.info[c] = cellInfo{ghost: ghost, index: -1}
		if !ghost {
			t.info[c].index = t.numPrimary
			t.numPrimary++
		}
	}
}

// classifyGhostCell reports whether a cell is infinite or is a periodic image
// of another cell. Exactly one image of every cell is primary: the one whose
// head vertex (lowest particle index, then lowest image shift) is a primary
// vertex.
func (t *Tessellation) classifyGhostCell(c int) bool {
	if !t.IsValidCell(c) {
		return true
	}
	v := t.cells[c].v
	head := v[0]
	for _, w := range v[1:] {
		if t.vertexLess(w, head) {
			head = w
		}
	}
	return t.IsGhostVertex(head)
}

func (t *Tessellation) vertexLess(a, b int) bool {
	pa, pb := t.particleIndices[a], t.particleIndices[b]
	if pa != pb {
		return pa < pb
	}
	sa, sb := t.shifts[a], t.shifts[b]
	for dim := range 3 {
		if sa[dim] != sb[dim] {
			return sa[dim] < sb[dim]
		}
	}
	return false
}

// SimCell returns the simulation cell of the last Generate call.
func (t *Tessellation) SimCell() simcell.Cell {
	return t.simCell
}

// NumberOfTetrahedra returns the number of cells including ghost and infinite cells.
func (t *Tessellation) NumberOfTetrahedra() int {
	return len(t.cells)
}

// NumberOfPrimaryTetrahedra returns the number of non-ghost cells.
func (t *Tessellation) NumberOfPrimaryTetrahedra() int {
	return t.numPrimary
}

// NumberOfVertices returns the number of primary and ghost vertices.
func (t *Tessellation) NumberOfVertices() int {
	return len(t.points)
}

func (t *Tessellation) PrimaryVertexCount() int {
	return t.primaryVertexCount
}

// IsValidCell reports whether c is a finite cell.
func (t *Tessellation) IsValidCell(c int) bool {
	return t.cells[c].infiniteIndex() < 0
}

func (t *Tessellation) IsGhostCell(c int) bool {
	return t.info[c].ghost
}

func (t *Tessellation) IsGhostVertex(v int) bool {
	return v == Infinite || v >= t.primaryVertexCount
}

// CellVertex returns the handle of the i-th vertex of cell c.
func (t *Tessellation) CellVertex(c, i int) int {
	return t.cells[c].v[i]
}

// CellNeighbor returns the cell across the facet opposite vertex i of c.
func (t *Tessellation) CellNeighbor(c, i int) int {
	return t.cells[c].n[i]
}

// VertexPosition returns the (perturbed) position of vertex v.
func (t *Tessellation) VertexPosition(v int) r3.Vector {
	if v == Infinite {
		panic("VertexPosition: vertex at infinity")
	}
	return t.points[v]
}

// VertexIndex returns the index of the input particle vertex v is an image of.
func (t *Tessellation) VertexIndex(v int) int {
	if v == Infinite {
		panic("VertexIndex: vertex at infinity")
	}
	return t.particleIndices[v]
}

// VertexShift returns the periodic image of vertex v in units of cell vectors.
func (t *Tessellation) VertexShift(v int) [3]int {
	if v == Infinite {
		panic("VertexShift: vertex at infinity")
	}
	return t.shifts[v]
}

func (t *Tessellation) CellIndex(c int) int {
	return t.info[c].index
}

func (t *Tessellation) SetCellIndex(c, index int) {
	t.info[c].index = index
}

func (t *Tessellation) UserField(c int) int {
	return t.info[c].userField
}

func (t *Tessellation) SetUserField(c, value int) {
	t.info[c].userField = value
}

// MirrorFacet returns the same facet seen from the neighboring cell.
func (t *Tessellation) MirrorFacet(f Facet) Facet {
	n := t.cells[f.Cell].n[f.Face]
	return Facet{Cell: n, Face: t.cells[n].neighborIndex(f.Cell)}
}

// CellVolume returns the signed volume of a finite cell.
func (t *Tessellation) CellVolume(c int) float64 {
	v := t.cells[c].v
	return tetrahedronVolume(t.points[v[0]], t.points[v[1]], t.points[v[2]], t.points[v[3]])
}

// AlphaTest reports whether the circumradius of cell c is smaller than
// sqrt(alpha). Infinite cells never pass.
func (t *Tessellation) AlphaTest(c int, alpha float64) bool {
	if !t.IsValidCell(c) {
		return false
	}
	v := t.cells[c].v
	v0 := t.points[v[0]]
	p := t.points[v[1]].Sub(v0)
	q := t.points[v[2]].Sub(v0)
	r := t.points[v[3]].Sub(v0)
	num := q.Cross(r).Mul(p.Norm2()).
		Add(r.Cross(p).Mul(q.Norm2())).
		Add(p.Cross(q).Mul(r.Norm2()))
	den := 2 * p.Dot(q.Cross(r))
	if den == 0 {
		return false
	}
	return num.Norm2()/(den*den) < alpha
}

// IncidentFacets returns a circulator over the facets around the edge between
// local vertices i and j of cell c, starting at facet face of c. face must be
// one of the two facets of c containing the edge.
func (t *Tessellation) IncidentFacets(c, i, j, face int) FacetCirculator {
	if i == j || face == i || face == j {
		panic("IncidentFacets: facet does not contain the edge")
	}
	return FacetCirculator{
		t:    t,
		s:    t.cells[c].v[i],
		u:    t.cells[c].v[j],
		cell: c,
		face: face,
	}
}

// FacetCirculator walks around a tessellation edge. Its position is a facet
// containing the edge, seen from the cell the walk is currently in.
type FacetCirculator struct {
	t    *Tessellation
	s, u int
	cell int
	face int
}

// Facet returns the current position.
func (fc *FacetCirculator) Facet() Facet {
	return Facet{Cell: fc.cell, Face: fc.face}
}

// Next leaves the current cell through its other facet containing the edge.
func (fc *FacetCirculator) Next() {
	t := &fc.t.cells[fc.cell]
	g := 6 - t.indexOf(fc.s) - t.indexOf(fc.u) - fc.face
	d := t.n[g]
	fc.face = fc.t.cells[d].neighborIndex(fc.cell)
	fc.cell = d
}

// Prev is the inverse of Next.
func (fc *FacetCirculator) Prev() {
	e := fc.t.cells[fc.cell].n[fc.face]
	te := &fc.t.cells[e]
	h := te.neighborIndex(fc.cell)
	fc.face = 6 - te.indexOf(fc.s) - te.indexOf(fc.u) - h
	fc.cell = e
}
