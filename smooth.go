// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package alphasurface

import (
	"github.com/2dChan/alphasurface/halfedge"
	"github.com/2dChan/alphasurface/internal/parallel"
	"github.com/2dChan/alphasurface/progress"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/golang/geo/r3"
)

// Taubin low-pass filter parameters.
const (
	smoothingKPB    = 0.1
	smoothingLambda = 0.5
)

// SmoothMesh applies the given number of Taubin smoothing iterations to a
// closed mesh. Each iteration is a shrinking pass followed by an inflating
// pass, which keeps the enclosed volume approximately constant. Vertex deltas
// are wrapped at periodic boundaries of cell. It returns false if the task was
// canceled.
func SmoothMesh[V, E, F any](m *halfedge.Mesh[V, E, F], cell simcell.Cell, iterations int, task *progress.Task) bool {
	mu := 1 / (smoothingKPB - 1/smoothingLambda)
	task.SetText("Smoothing surface mesh")
	task.SetMaximum(int64(iterations))

	displacements := make([]r3.Vector, m.VertexCount())
	for it := range iterations {
		smoothMeshIteration(m, cell, smoothingLambda, displacements)
		smoothMeshIteration(m, cell, mu, displacements)
		if !task.SetValue(int64(it + 1)) {
			return false
		}
	}
	return true
}

// smoothMeshIteration moves every vertex towards the mean of its neighbors,
// scaled by prefactor. All displacements are computed before any is applied.
func smoothMeshIteration[V, E, F any](m *halfedge.Mesh[V, E, F], cell simcell.Cell, prefactor float64,
	displacements []r3.Vector) {
	parallel.For(0, m.VertexCount(), func(i int) {
		v := m.Vertex(i)
		first := m.VertexEdges(v)
		if first == halfedge.NoEdge {
			displacements[i] = r3.Vector{}
			return
		}
		pos := m.Pos(v)
		var d r3.Vector
		n := 0
		e := first
		for {
			d = d.Add(cell.WrapVector(m.Pos(m.Vertex2(e)).Sub(pos)))
			n++
			e = m.OppositeEdge(m.PrevFaceEdge(e))
			if e == first || e == halfedge.NoEdge {
				break
			}
		}
		displacements[i] = d.Mul(prefactor / float64(n))
	})

	for i, v := range m.Vertices() {
		m.SetPos(v, m.Pos(v).Add(displacements[i]))
	}
}
