// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package delaunay

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/2dChan/alphasurface/progress"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/2dChan/alphasurface/utils"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
)

// Options

func TestWithJitter(t *testing.T) {
	tests := []struct {
		name    string
		jitter  float64
		wantErr bool
	}{
		{"jitter positive", 1e-3, false},
		{"jitter zero", 0, false},
		{"jitter negative", -1, true},
		{"jitter NaN", math.NaN(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &Options{Jitter: defaultJitter}
			err := WithJitter(tt.jitter)(opts)
			if (err != nil) != tt.wantErr {
				errValMsg := "nil"
				if tt.wantErr {
					errValMsg = "non-nil"
				}
				t.Errorf("WithJitter(%v) error = %v, want %v", tt.jitter, err, errValMsg)
			}
			if err == nil && opts.Jitter != tt.jitter {
				t.Errorf("WithJitter(%v) opts.Jitter = %v, want %v", tt.jitter, opts.Jitter, tt.jitter)
			}
		})
	}
}

func TestNew_InvalidOption(t *testing.T) {
	if _, err := New(WithJitter(-1)); err == nil {
		t.Errorf("New(WithJitter(-1)) error = nil, want non-nil")
	}
}

// Predicates

func TestOrient(t *testing.T) {
	a, b, c := r3.Vector{}, r3.Vector{X: 1}, r3.Vector{Y: 1}
	tests := []struct {
		name string
		d    r3.Vector
		want int
	}{
		{"above", r3.Vector{Z: 1}, 1},
		{"below", r3.Vector{Z: -1}, -1},
		{"coplanar", r3.Vector{X: 3, Y: -2}, 0},
		{"barely above", r3.Vector{X: 0.5, Y: 0.5, Z: 1e-200}, 1},
		{"barely below", r3.Vector{X: 1e10, Y: 1e10, Z: -1e-200}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orient(a, b, c, tt.d); got != tt.want {
				t.Errorf("orient(a, b, c, %v) = %d, want %d", tt.d, got, tt.want)
			}
		})
	}
}

func TestInsphere(t *testing.T) {
	a, b, c, d := r3.Vector{}, r3.Vector{X: 1}, r3.Vector{Y: 1}, r3.Vector{Z: 1}
	tests := []struct {
		name string
		e    r3.Vector
		want int
	}{
		{"center", r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}, 1},
		{"far", r3.Vector{X: 5, Y: 5, Z: 5}, -1},
		{"on sphere", r3.Vector{X: 1, Y: 1, Z: 1}, 0},
		{"inside near corner", r3.Vector{X: 0.99, Y: 0.99, Z: 0.99}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insphere(a, b, c, d, tt.e); got != tt.want {
				t.Errorf("insphere(a, b, c, d, %v) = %d, want %d", tt.e, got, tt.want)
			}
			if got := insphereExact(a, b, c, d, tt.e); got != tt.want {
				t.Errorf("insphereExact(a, b, c, d, %v) = %d, want %d", tt.e, got, tt.want)
			}
		})
	}
}

// Tessellation

func TestGenerate_SingleTetrahedron(t *testing.T) {
	tess := mustNewTessellation(t, WithJitter(0))
	cell := mustNewBox(t, 2, [3]bool{})
	points := []r3.Vector{{}, {X: 1}, {Y: 1}, {Z: 1}}

	mustGenerate(t, tess, cell, points, 0, nil)
	if got := tess.NumberOfTetrahedra(); got != 5 {
		t.Errorf("tess.NumberOfTetrahedra() = %d, want 5", got)
	}
	if got := tess.NumberOfPrimaryTetrahedra(); got != 1 {
		t.Errorf("tess.NumberOfPrimaryTetrahedra() = %d, want 1", got)
	}
	c := firstValidCell(t, tess)
	if got := tess.CellVolume(c); math.Abs(got-1.0/6) > 1e-15 {
		t.Errorf("tess.CellVolume(%d) = %v, want %v", c, got, 1.0/6)
	}
	if got := tess.CellIndex(c); got != 0 {
		t.Errorf("tess.CellIndex(%d) = %d, want 0", c, got)
	}
}

func TestGenerate_DegenerateInput(t *testing.T) {
	tests := []struct {
		name   string
		points []r3.Vector
	}{
		{"three points", []r3.Vector{{}, {X: 1}, {Y: 1}}},
		{"coplanar", []r3.Vector{{}, {X: 1}, {Y: 1}, {X: 1, Y: 1}, {X: 2, Y: 3}}},
		{"duplicates", []r3.Vector{{X: 1}, {X: 1}, {X: 1}, {X: 1}}},
	}
	cell := mustNewBox(t, 10, [3]bool{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tess := mustNewTessellation(t, WithJitter(0))
			ok, err := tess.Generate(cell, tt.points, 0, nil, nil)
			if ok || !errors.Is(err, ErrDegenerateInput) {
				t.Errorf("tess.Generate(...) = %v, %v, want false, %v", ok, err, ErrDegenerateInput)
			}
		})
	}
}

func TestGenerate_NegativeGhostLayer(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 10, [3]bool{true, true, true})
	ok, err := tess.Generate(cell, utils.RandomPointsInBox(10, r3.Vector{}, r3.Vector{X: 10, Y: 10, Z: 10}, 0), -1, nil, nil)
	if ok || !errors.Is(err, ErrInvalidGhostLayer) {
		t.Errorf("tess.Generate(..., -1, ...) = %v, %v, want false, %v", ok, err, ErrInvalidGhostLayer)
	}
}

func TestGenerate_SelectionMismatch(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 10, [3]bool{})
	points := utils.RandomPointsInBox(10, r3.Vector{}, r3.Vector{X: 10, Y: 10, Z: 10}, 0)
	for _, selection := range [][]bool{make([]bool, 9), make([]bool, 11)} {
		ok, err := tess.Generate(cell, points, 0, selection, nil)
		if ok || !errors.Is(err, ErrSelectionMismatch) {
			t.Errorf("tess.Generate() with %d selection flags = %v, %v, want false, %v",
				len(selection), ok, err, ErrSelectionMismatch)
		}
	}
}

func TestGenerate_CanceledDuringGhostImages(t *testing.T) {
	const numPoints = 3000
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 10, [3]bool{true, true, true})
	points := utils.RandomPointsInBox(numPoints, r3.Vector{}, r3.Vector{X: 10, Y: 10, Z: 10}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	canceledAt := -1.0
	task := progress.New(ctx, func(fraction float64, _ string) {
		if fraction > 0 && canceledAt < 0 {
			canceledAt = fraction
			cancel()
		}
	})

	ok, err := tess.Generate(cell, points, 2, nil, task)
	if ok || err != nil {
		t.Fatalf("tess.Generate() = %v, %v, want false, nil", ok, err)
	}
	// 27 images share the ghost step; cancellation must be seen inside the first one.
	firstImage := float64(ghostStepWeight) / float64(ghostStepWeight+insertionStepWeight) / 27
	if canceledAt <= 0 || canceledAt >= firstImage {
		t.Errorf("canceled at fraction %v, want in (0, %v)", canceledAt, firstImage)
	}
}

func TestGenerate_ProgressNonDecreasing(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 10, [3]bool{true, true, true})
	points := utils.RandomPointsInBox(2000, r3.Vector{}, r3.Vector{X: 10, Y: 10, Z: 10}, 3)

	var fractions []float64
	task := progress.New(context.Background(), func(fraction float64, _ string) {
		fractions = append(fractions, fraction)
	})
	if ok, err := tess.Generate(cell, points, 2, nil, task); !ok || err != nil {
		t.Fatalf("tess.Generate() = %v, %v, want true, nil", ok, err)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("fraction[%d] = %v < fraction[%d] = %v, want non-decreasing", i, fractions[i], i-1, fractions[i-1])
		}
	}
	if got := fractions[len(fractions)-1]; got != 1 {
		t.Errorf("last fraction = %v, want 1", got)
	}
}

func TestGenerate_DelaunayProperty(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 1, [3]bool{})
	points := utils.RandomPointsInBox(80, r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 1}, 11)
	mustGenerate(t, tess, cell, points, 0, nil)

	for c := range tess.NumberOfTetrahedra() {
		if !tess.IsValidCell(c) {
			continue
		}
		p := cellPoints(tess, c)
		if orient(p[0], p[1], p[2], p[3]) <= 0 {
			t.Errorf("cell %d is not positively oriented", c)
		}
		for v := range tess.NumberOfVertices() {
			if insphere(p[0], p[1], p[2], p[3], tess.VertexPosition(v)) > 0 {
				t.Errorf("vertex %d lies inside the circumsphere of cell %d", v, c)
			}
		}
	}
}

func TestGenerate_Adjacency(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 1, [3]bool{})
	points := utils.RandomPointsInBox(60, r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 1}, 5)
	mustGenerate(t, tess, cell, points, 0, nil)

	for c := range tess.NumberOfTetrahedra() {
		for f := range 4 {
			facet := Facet{Cell: c, Face: f}
			mirror := tess.MirrorFacet(facet)
			if got := tess.MirrorFacet(mirror); got != facet {
				t.Errorf("MirrorFacet(MirrorFacet(%v)) = %v", facet, got)
			}
			if diff := cmp.Diff(facetVertexSet(tess, facet), facetVertexSet(tess, mirror)); diff != "" {
				t.Errorf("facet %v and its mirror differ (-want +got):\n%s", facet, diff)
			}
		}
	}
}

func TestGenerate_ConvexHullVolume(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 1, [3]bool{})
	points := utils.RandomPointsInBox(50, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, r3.Vector{X: 0.9, Y: 0.9, Z: 0.9}, 2)
	for x := range 2 {
		for y := range 2 {
			for z := range 2 {
				points = append(points, r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}
	mustGenerate(t, tess, cell, points, 0, nil)

	var vol float64
	for c := range tess.NumberOfTetrahedra() {
		if tess.IsValidCell(c) {
			vol += tess.CellVolume(c)
		}
	}
	if math.Abs(vol-1) > 1e-3 {
		t.Errorf("total cell volume = %v, want ≈1", vol)
	}
}

func TestGenerate_PeriodicPrimaryCellsTileCell(t *testing.T) {
	tests := []struct {
		name   string
		pbc    [3]bool
		points []r3.Vector
	}{
		{"fcc lattice", [3]bool{true, true, true}, utils.FCCLattice(3, 3, 3, 1)},
		{"random", [3]bool{true, true, true}, utils.RandomPointsInBox(150, r3.Vector{}, r3.Vector{X: 3, Y: 3, Z: 3}, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tess := mustNewTessellation(t)
			cell := mustNewBox(t, 3, tt.pbc)
			mustGenerate(t, tess, cell, tt.points, 2.5, nil)

			if tess.NumberOfVertices() <= tess.PrimaryVertexCount() {
				t.Fatalf("no ghost vertices were generated")
			}
			var vol float64
			for c := range tess.NumberOfTetrahedra() {
				if !tess.IsGhostCell(c) {
					vol += tess.CellVolume(c)
				}
			}
			if math.Abs(vol-cell.Volume()) > 1e-9 {
				t.Errorf("primary cell volume = %v, want %v", vol, cell.Volume())
			}
		})
	}
}

func TestGenerate_Selection(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 1, [3]bool{})
	points := utils.RandomPointsInBox(40, r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 1}, 3)
	selection := make([]bool, len(points))
	for i := range selection {
		selection[i] = i%2 == 0
	}
	mustGenerate(t, tess, cell, points, 0, selection)

	if got := tess.PrimaryVertexCount(); got != 20 {
		t.Errorf("tess.PrimaryVertexCount() = %d, want 20", got)
	}
	for v := range tess.NumberOfVertices() {
		if idx := tess.VertexIndex(v); !selection[idx] {
			t.Errorf("tess.VertexIndex(%d) = %d, an unselected particle", v, idx)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cell := mustNewBox(t, 2, [3]bool{true, false, true})
	points := utils.RandomPointsInBox(60, r3.Vector{}, r3.Vector{X: 2, Y: 2, Z: 2}, 9)

	a := mustNewTessellation(t)
	b := mustNewTessellation(t)
	mustGenerate(t, a, cell, points, 0.8, nil)
	mustGenerate(t, b, cell, points, 0.8, nil)
	if diff := cmp.Diff(a.cells, b.cells, cmp.AllowUnexported(tetra{})); diff != "" {
		t.Errorf("repeated Generate mismatch (-want +got):\n%s", diff)
	}
}

func TestTessellation_AlphaTest(t *testing.T) {
	tess := mustNewTessellation(t, WithJitter(0))
	cell := mustNewBox(t, 2, [3]bool{})
	mustGenerate(t, tess, cell, []r3.Vector{{}, {X: 1}, {Y: 1}, {Z: 1}}, 0, nil)
	c := firstValidCell(t, tess)

	tests := []struct {
		name  string
		alpha float64
		want  bool
	}{
		{"larger", 0.76, true},
		{"smaller", 0.74, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tess.AlphaTest(c, tt.alpha); got != tt.want {
				t.Errorf("tess.AlphaTest(%d, %v) = %v, want %v", c, tt.alpha, got, tt.want)
			}
		})
	}
	for c := range tess.NumberOfTetrahedra() {
		if !tess.IsValidCell(c) && tess.AlphaTest(c, math.Inf(1)) {
			t.Errorf("tess.AlphaTest(%d) = true for infinite cell", c)
		}
	}
}

func TestTessellation_AlphaTestMonotonic(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 1, [3]bool{})
	mustGenerate(t, tess, cell, utils.RandomPointsInBox(40, r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 1}, 4), 0, nil)

	const small, large = 0.02, 0.05
	nSmall, nLarge := 0, 0
	for c := range tess.NumberOfTetrahedra() {
		s, l := tess.AlphaTest(c, small), tess.AlphaTest(c, large)
		if s {
			nSmall++
		}
		if l {
			nLarge++
		}
		if s && !l {
			t.Errorf("cell %d is solid for alpha %v but not for %v", c, small, large)
		}
	}
	if nSmall >= nLarge {
		t.Errorf("solid cells = %d (alpha %v), %d (alpha %v), want growth", nSmall, small, nLarge, large)
	}
}

func TestTessellation_IncidentFacets(t *testing.T) {
	tess := mustNewTessellation(t)
	cell := mustNewBox(t, 1, [3]bool{})
	mustGenerate(t, tess, cell, utils.RandomPointsInBox(60, r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 1}, 6), 0, nil)

	for c := range tess.NumberOfTetrahedra() {
		s, u := tess.CellVertex(c, 0), tess.CellVertex(c, 1)
		start := Facet{Cell: c, Face: 2}
		circ := tess.IncidentFacets(c, 0, 1, 2)
		steps := 0
		for {
			prev := circ.Facet()
			circ.Next()
			steps++
			f := circ.Facet()
			vs := facetVertexSet(tess, f)
			if _, ok := vs[s]; !ok {
				t.Fatalf("facet %v does not contain edge vertex %d", f, s)
			}
			if _, ok := vs[u]; !ok {
				t.Fatalf("facet %v does not contain edge vertex %d", f, u)
			}
			back := circ
			back.Prev()
			if back.Facet() != prev {
				t.Fatalf("Prev() after Next() = %v, want %v", back.Facet(), prev)
			}
			if f == start || steps > tess.NumberOfTetrahedra() {
				break
			}
		}
		if steps < 3 {
			t.Errorf("edge of cell %d has %d incident cells, want >= 3", c, steps)
		}
		if circ.Facet() != start {
			t.Errorf("circulation around edge of cell %d did not return to start", c)
		}
	}
}

func TestIncidentFacets_InvalidFacet(t *testing.T) {
	tess := mustNewTessellation(t, WithJitter(0))
	cell := mustNewBox(t, 2, [3]bool{})
	mustGenerate(t, tess, cell, []r3.Vector{{}, {X: 1}, {Y: 1}, {Z: 1}}, 0, nil)
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("tess.IncidentFacets(0, 0, 1, 1) did not panic, want panic")
		}
	}()
	tess.IncidentFacets(0, 0, 1, 1)
}

func TestStencilCount(t *testing.T) {
	tests := []struct {
		name  string
		pbc   [3]bool
		ghost float64
		want  int
	}{
		{"non periodic", [3]bool{}, 100, 0},
		{"one layer", [3]bool{true, true, true}, 9, 1},
		{"two layers", [3]bool{false, true, false}, 15, 2},
		{"zero", [3]bool{true, true, true}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := mustNewBox(t, 10, tt.pbc)
			if got := StencilCount(cell, tt.ghost); got != tt.want {
				t.Errorf("StencilCount(cell, %v) = %d, want %d", tt.ghost, got, tt.want)
			}
		})
	}
}

// Benchmarks

func BenchmarkGenerate(b *testing.B) {
	cell, err := simcell.NewBox(10, 10, 10, [3]bool{true, true, true})
	if err != nil {
		b.Fatalf("simcell.NewBox() error = %v", err)
	}
	points := utils.RandomPointsInBox(1000, r3.Vector{}, r3.Vector{X: 10, Y: 10, Z: 10}, 0)
	tess, err := New()
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := tess.Generate(cell, points, 3, nil, nil); err != nil {
			b.Fatalf("tess.Generate() error = %v", err)
		}
	}
}

// Helpers

func mustNewTessellation(t *testing.T, opts ...Option) *Tessellation {
	t.Helper()
	tess, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tess
}

func mustNewBox(t *testing.T, l float64, pbc [3]bool) simcell.Cell {
	t.Helper()
	cell, err := simcell.NewBox(l, l, l, pbc)
	if err != nil {
		t.Fatalf("simcell.NewBox(%v) error = %v", l, err)
	}
	return cell
}

func mustGenerate(t *testing.T, tess *Tessellation, cell simcell.Cell, points []r3.Vector, ghost float64, selection []bool) {
	t.Helper()
	ok, err := tess.Generate(cell, points, ghost, selection, nil)
	if err != nil || !ok {
		t.Fatalf("tess.Generate() = %v, %v, want true, nil", ok, err)
	}
}

func firstValidCell(t *testing.T, tess *Tessellation) int {
	t.Helper()
	for c := range tess.NumberOfTetrahedra() {
		if tess.IsValidCell(c) {
			return c
		}
	}
	t.Fatalf("tessellation has no finite cell")
	return -1
}

func cellPoints(tess *Tessellation, c int) [4]r3.Vector {
	var p [4]r3.Vector
	for i := range 4 {
		p[i] = tess.VertexPosition(tess.CellVertex(c, i))
	}
	return p
}

func facetVertexSet(tess *Tessellation, f Facet) map[int]struct{} {
	set := make(map[int]struct{}, 3)
	for v := range 3 {
		set[tess.CellVertex(f.Cell, CellFacetVertexIndex(f.Face, v))] = struct{}{}
	}
	return set
}
