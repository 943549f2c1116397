// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package delaunay

import (
	"math"
	"math/big"

	"github.com/golang/geo/r3"
)

// Relative error bounds of the floating point filters. Results within the bound
// are recomputed exactly.
const (
	orientErrBound   = 1e-13
	insphereErrBound = 1e-12
)

// orient returns +1 if d lies on the positive side of the plane through a, b, c
// ((b-a)x(c-a) points towards d), -1 if on the negative side and 0 if the four
// points are coplanar.
func orient(a, b, c, d r3.Vector) int {
	ba, ca, da := b.Sub(a), c.Sub(a), d.Sub(a)
	det := ba.Cross(ca).Dot(da)
	bound := orientErrBound * ba.Norm() * ca.Norm() * da.Norm()
	if det > bound {
		return 1
	}
	if det < -bound {
		return -1
	}
	return orientExact(a, b, c, d)
}

func orientExact(a, b, c, d r3.Vector) int {
	pa := r3.PreciseVectorFromVector(a)
	ba := r3.PreciseVectorFromVector(b).Sub(pa)
	ca := r3.PreciseVectorFromVector(c).Sub(pa)
	da := r3.PreciseVectorFromVector(d).Sub(pa)
	return ba.Cross(ca).Dot(da).Sign()
}

// insphere returns +1 if e lies strictly inside the circumsphere of the
// positively oriented tetrahedron a, b, c, d, -1 if outside and 0 if on it.
func insphere(a, b, c, d, e r3.Vector) int {
	ae, be, ce, de := a.Sub(e), b.Sub(e), c.Sub(e), d.Sub(e)
	wa, wb, wc, wd := ae.Norm2(), be.Norm2(), ce.Norm2(), de.Norm2()
	ma := be.Dot(ce.Cross(de))
	mb := ae.Dot(ce.Cross(de))
	mc := ae.Dot(be.Cross(de))
	md := ae.Dot(be.Cross(ce))
	det := -wa*ma + wb*mb - wc*mc + wd*md

	na, nb, nc, nd := math.Sqrt(wa), math.Sqrt(wb), math.Sqrt(wc), math.Sqrt(wd)
	bound := insphereErrBound * (wa*nb*nc*nd + wb*na*nc*nd + wc*na*nb*nd + wd*na*nb*nc)
	if det > bound {
		return -1
	}
	if det < -bound {
		return 1
	}
	return insphereExact(a, b, c, d, e)
}

func insphereExact(a, b, c, d, e r3.Vector) int {
	pe := r3.PreciseVectorFromVector(e)
	ae := r3.PreciseVectorFromVector(a).Sub(pe)
	be := r3.PreciseVectorFromVector(b).Sub(pe)
	ce := r3.PreciseVectorFromVector(c).Sub(pe)
	de := r3.PreciseVectorFromVector(d).Sub(pe)

	term := func(w r3.PreciseVector, x, y, z r3.PreciseVector) *big.Float {
		return new(big.Float).Mul(w.Dot(w), x.Dot(y.Cross(z)))
	}
	det := new(big.Float).Neg(term(ae, be, ce, de))
	det.Add(det, term(be, ae, ce, de))
	det.Sub(det, term(ce, ae, be, de))
	det.Add(det, term(de, ae, be, ce))
	return -det.Sign()
}

// incircle reports whether d lies strictly inside the circumcircle of the
// triangle a, b, c. The four points are assumed to be coplanar.
func incircle(a, b, c, d r3.Vector) bool {
	ba, ca := b.Sub(a), c.Sub(a)
	n := ba.Cross(ca)
	n2 := n.Norm2()
	if n2 == 0 {
		return false
	}
	center := a.Add(n.Cross(ba).Mul(ca.Norm2()).Add(ca.Cross(n).Mul(ba.Norm2())).Mul(1 / (2 * n2)))
	return d.Sub(center).Norm2() < a.Sub(center).Norm2()
}

// tetrahedronVolume returns the signed volume of the tetrahedron a, b, c, d.
func tetrahedronVolume(a, b, c, d r3.Vector) float64 {
	return b.Sub(a).Cross(c.Sub(a)).Dot(d.Sub(a)) / 6
}
