// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package delaunay

import (
	"errors"
	"math/rand"

	"github.com/2dChan/alphasurface/progress"
	"github.com/golang/geo/r3"
)

var ErrDegenerateInput = errors.New("delaunay: input points are coplanar or fewer than 4 distinct points")

// tetra is a cell of the triangulation. n[i] is the cell across the facet
// opposite v[i]. Cells with an Infinite vertex close the convex hull.
type tetra struct {
	v [4]int
	n [4]int
}

func (t *tetra) infiniteIndex() int {
	for i, v := range t.v {
		if v == Infinite {
			return i
		}
	}
	return -1
}

func (t *tetra) indexOf(v int) int {
	for i, w := range t.v {
		if w == v {
			return i
		}
	}
	return -1
}

func (t *tetra) neighborIndex(c int) int {
	for i, n := range t.n {
		if n == c {
			return i
		}
	}
	return -1
}

type boundaryFacet struct {
	cell, face int
}

// triangulator builds the Delaunay tetrahedralization of a point set by
// incremental Bowyer-Watson insertion with an infinite vertex.
type triangulator struct {
	points []r3.Vector
	task   *progress.Task
	rng    *rand.Rand

	cells    []tetra
	alive    []bool
	free     []int
	inCavity []uint32
	tested   []uint32
	stamp    uint32
	hint     int

	cavity   []int
	boundary []boundaryFacet
	links    map[[2]int]boundaryFacet
}

func newTriangulator(points []r3.Vector, seed int64, task *progress.Task) *triangulator {
	return &triangulator{
		points: points,
		task:   task,
		//nolint:gosec
		rng:   rand.New(rand.NewSource(seed)),
		links: make(map[[2]int]boundaryFacet),
	}
}

// run inserts all points. It returns false if the task was canceled.
func (tr *triangulator) run() (bool, error) {
	corners, ok := tr.initialCorners()
	if !ok {
		return false, ErrDegenerateInput
	}
	tr.createInitialCells(corners)

	tr.task.SetMaximum(int64(len(tr.points)))
	for p := range tr.points {
		if p == corners[0] || p == corners[1] || p == corners[2] || p == corners[3] {
			continue
		}
		if !tr.task.SetValueIntermittent(int64(p)) {
			return false, nil
		}
		tr.insert(p)
	}
	return !tr.task.IsCanceled(), nil
}

// initialCorners picks four points spanning a tetrahedron of non-zero volume.
func (tr *triangulator) initialCorners() ([4]int, bool) {
	var c [4]int
	n := len(tr.points)
	if n < 4 {
		return c, false
	}
	c[0] = 0
	c[1] = -1
	for i := 1; i < n; i++ {
		if tr.points[i] != tr.points[c[0]] {
			c[1] = i
			break
		}
	}
	if c[1] < 0 {
		return c, false
	}
	c[2] = -1
	for i := c[1] + 1; i < n; i++ {
		d := tr.points[c[1]].Sub(tr.points[c[0]]).Cross(tr.points[i].Sub(tr.points[c[0]]))
		if d.Norm2() > 0 {
			c[2] = i
			break
		}
	}
	if c[2] < 0 {
		return c, false
	}
	c[3] = -1
	for i := c[2] + 1; i < n; i++ {
		if orient(tr.points[c[0]], tr.points[c[1]], tr.points[c[2]], tr.points[i]) != 0 {
			c[3] = i
			break
		}
	}
	if c[3] < 0 {
		return c, false
	}
	return c, true
}

func (tr *triangulator) createInitialCells(c [4]int) {
	v := c
	if orient(tr.points[v[0]], tr.points[v[1]], tr.points[v[2]], tr.points[v[3]]) < 0 {
		v[0], v[1] = v[1], v[0]
	}
	tr.alloc(tetra{v: v, n: [4]int{-1, -1, -1, -1}})
	for f := range 4 {
		w := v
		w[f] = Infinite
		w[(f+1)%4], w[(f+2)%4] = w[(f+2)%4], w[(f+1)%4]
		tr.alloc(tetra{v: w, n: [4]int{-1, -1, -1, -1}})
	}

	facets := make(map[[3]int]boundaryFacet, 10)
	for cell := range tr.cells {
		for f := range 4 {
			key := facetKey(tr.cells[cell].v, f)
			if other, ok := facets[key]; ok {
				tr.cells[cell].n[f] = other.cell
				tr.cells[other.cell].n[other.face] = cell
				delete(facets, key)
			} else {
				facets[key] = boundaryFacet{cell, f}
			}
		}
	}
	tr.hint = 0
}

func facetKey(v [4]int, f int) [3]int {
	var k [3]int
	j := 0
	for i := range 4 {
		if i != f {
			k[j] = v[i]
			j++
		}
	}
	if k[0] > k[1] {
		k[0], k[1] = k[1], k[0]
	}
	if k[1] > k[2] {
		k[1], k[2] = k[2], k[1]
	}
	if k[0] > k[1] {
		k[0], k[1] = k[1], k[0]
	}
	return k
}

func (tr *triangulator) alloc(t tetra) int {
	if n := len(tr.free); n > 0 {
		c := tr.free[n-1]
		tr.free = tr.free[:n-1]
		tr.cells[c] = t
		tr.alive[c] = true
		return c
	}
	tr.cells = append(tr.cells, t)
	tr.alive = append(tr.alive, true)
	tr.inCavity = append(tr.inCavity, 0)
	tr.tested = append(tr.tested, 0)
	return len(tr.cells) - 1
}

// substituted returns the corner positions of cell c with vertex i replaced by p.
func (tr *triangulator) substituted(c, i int, p r3.Vector) [4]r3.Vector {
	var q [4]r3.Vector
	for k, v := range tr.cells[c].v {
		if k == i {
			q[k] = p
		} else {
			q[k] = tr.points[v]
		}
	}
	return q
}

// conflict reports whether point p lies inside the circumsphere of cell c.
// For an infinite cell the circumsphere degenerates to the open half-space
// beyond its hull facet.
func (tr *triangulator) conflict(c, p int) bool {
	pp := tr.points[p]
	t := &tr.cells[c]
	if k := t.infiniteIndex(); k >= 0 {
		q := tr.substituted(c, k, pp)
		switch orient(q[0], q[1], q[2], q[3]) {
		case 1:
			return true
		case -1:
			return false
		}
		var f [3]r3.Vector
		j := 0
		for i, v := range t.v {
			if i != k {
				f[j] = tr.points[v]
				j++
			}
		}
		return incircle(f[0], f[1], f[2], pp)
	}
	a, b, cc, d := tr.points[t.v[0]], tr.points[t.v[1]], tr.points[t.v[2]], tr.points[t.v[3]]
	return insphere(a, b, cc, d, pp) > 0
}

// locate returns a cell in conflict with p, or -1 if p coincides with an
// existing vertex.
func (tr *triangulator) locate(p int) int {
	pp := tr.points[p]
	c := tr.hint
	if k := tr.cells[c].infiniteIndex(); k >= 0 {
		if tr.conflict(c, p) {
			return c
		}
		c = tr.cells[c].n[k]
	}

	maxSteps := len(tr.cells) + 16
	for range maxSteps {
		if tr.cells[c].infiniteIndex() >= 0 {
			if tr.conflict(c, p) {
				return c
			}
			break
		}
		next := -1
		off := tr.rng.Intn(4)
		for j := range 4 {
			i := (off + j) & 3
			q := tr.substituted(c, i, pp)
			if orient(q[0], q[1], q[2], q[3]) < 0 {
				next = tr.cells[c].n[i]
				break
			}
		}
		if next < 0 {
			if tr.conflict(c, p) {
				return c
			}
			break
		}
		c = next
	}

	for c := range tr.cells {
		if tr.alive[c] && tr.conflict(c, p) {
			return c
		}
	}
	return -1
}

func (tr *triangulator) insert(p int) bool {
	start := tr.locate(p)
	if start < 0 {
		return false
	}

	tr.stamp++
	stamp := tr.stamp
	tr.cavity = append(tr.cavity[:0], start)
	tr.inCavity[start] = stamp
	for k := 0; k < len(tr.cavity); k++ {
		c := tr.cavity[k]
		for _, o := range tr.cells[c].n {
			if tr.inCavity[o] == stamp || tr.tested[o] == stamp {
				continue
			}
			tr.tested[o] = stamp
			if tr.conflict(o, p) {
				tr.inCavity[o] = stamp
				tr.cavity = append(tr.cavity, o)
			}
		}
	}

	// The cavity must be star-shaped as seen from p. Rounding in the conflict
	// tests on degenerate configurations can violate this; grow the cavity
	// until every new finite cell is positively oriented.
	pp := tr.points[p]
	for {
		tr.collectBoundary(stamp)
		grow := -1
		for _, b := range tr.boundary {
			if tr.cells[b.cell].infiniteIndex() >= 0 && tr.cells[b.cell].infiniteIndex() != b.face {
				continue
			}
			q := tr.substituted(b.cell, b.face, pp)
			if orient(q[0], q[1], q[2], q[3]) <= 0 {
				grow = tr.cells[b.cell].n[b.face]
				break
			}
		}
		if grow < 0 {
			break
		}
		tr.inCavity[grow] = stamp
		tr.cavity = append(tr.cavity, grow)
	}

	clear(tr.links)
	last := -1
	for _, b := range tr.boundary {
		old := tr.cells[b.cell]
		outer := old.n[b.face]
		v := old.v
		v[b.face] = p
		n := [4]int{-1, -1, -1, -1}
		n[b.face] = outer
		nc := tr.alloc(tetra{v: v, n: n})
		if j := tr.cells[outer].neighborIndex(b.cell); j >= 0 {
			tr.cells[outer].n[j] = nc
		}

		for j := range 4 {
			if j == b.face {
				continue
			}
			var key [2]int
			m := 0
			for i := range 4 {
				if i != j && i != b.face {
					key[m] = v[i]
					m++
				}
			}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if other, ok := tr.links[key]; ok {
				tr.cells[nc].n[j] = other.cell
				tr.cells[other.cell].n[other.face] = nc
				delete(tr.links, key)
			} else {
				tr.links[key] = boundaryFacet{nc, j}
			}
		}
		last = nc
	}

	for _, c := range tr.cavity {
		tr.alive[c] = false
		tr.free = append(tr.free, c)
	}
	tr.hint = last
	return true
}

// collectBoundary gathers the cavity facets whose outer cell is not in the cavity.
func (tr *triangulator) collectBoundary(stamp uint32) {
	tr.boundary = tr.boundary[:0]
	for _, c := range tr.cavity {
		for i, o := range tr.cells[c].n {
			if tr.inCavity[o] != stamp {
				tr.boundary = append(tr.boundary, boundaryFacet{c, i})
			}
		}
	}
}

// compact returns the live cells with contiguous handles.
func (tr *triangulator) compact() []tetra {
	remap := make([]int, len(tr.cells))
	n := 0
	for c := range tr.cells {
		if tr.alive[c] {
			remap[c] = n
			n++
		} else {
			remap[c] = -1
		}
	}
	out := make([]tetra, 0, n)
	for c, t := range tr.cells {
		if !tr.alive[c] {
			continue
		}
		for i := range 4 {
			t.n[i] = remap[t.n[i]]
		}
		out = append(out, t)
	}
	return out
}
