/*
Copyright © 2013 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package eikonaltomo

import (
	"math"

	"github.com/ctessum/sparse"
)

// GradientEdgeWidth is the number of grid cells trimmed from each edge by a
// central-difference gradient. Gradient arrays inhabit the interior shape
// returned by Grid.InteriorShape(GradientEdgeWidth, GradientEdgeWidth).
const GradientEdgeWidth = 1

// Gradient computes the central-difference gradient of a full-shape field.
// It returns two interior-shape arrays, dZdLat and dZdLon, one grid cell
// narrower than full on every edge. Each row uses that row's own
// kilometer-scaled spacing, since DLonKm varies with latitude on an
// ellipsoid.
func Gradient(g *Grid, z *sparse.DenseArray) (dZdLat, dZdLon *sparse.DenseArray) {
	rows, cols := g.InteriorShape(GradientEdgeWidth, GradientEdgeWidth)
	dZdLat = sparse.ZerosDense(rows, cols)
	dZdLon = sparse.ZerosDense(rows, cols)
	for i := 0; i < rows; i++ {
		fi := i + GradientEdgeWidth
		dLatKm := 2 * g.DLatKm[fi]
		dLonKm := 2 * g.DLonKm[fi]
		for j := 0; j < cols; j++ {
			fj := j + GradientEdgeWidth
			dLat := (z.Get(fi+1, fj) - z.Get(fi-1, fj)) / dLatKm
			dLon := (z.Get(fi, fj+1) - z.Get(fi, fj-1)) / dLonKm
			dZdLat.Set(dLat, i, j)
			dZdLon.Set(dLon, i, j)
		}
	}
	return dZdLat, dZdLon
}

// Laplacian estimates the Laplacian of a full-shape field from its gradient
// by Green's theorem: the flux of the gradient around the boundary of a
// one-cell rectangular loop, divided by the loop's area. This is the
// normative scheme used throughout the package; it is more tolerant of
// noisy travel-time surfaces than a direct second-difference stencil because
// it only ever differentiates the already-smoothed gradient field once more.
//
// dZdLat and dZdLon must be the gradient-interior arrays returned by
// Gradient. The result is narrower than the gradient arrays by one cell on
// every edge, i.e. two cells narrower than full.
const LaplacianEdgeWidth = GradientEdgeWidth + 1

func Laplacian(g *Grid, dZdLat, dZdLon *sparse.DenseArray) *sparse.DenseArray {
	rows, cols := g.InteriorShape(LaplacianEdgeWidth, LaplacianEdgeWidth)
	out := sparse.ZerosDense(rows, cols)
	for i := 0; i < rows; i++ {
		// Index into the gradient-interior arrays, which are already offset
		// by GradientEdgeWidth relative to full grid rows/columns.
		gi := i + 1
		fi := i + LaplacianEdgeWidth
		dLatKm := g.DLatKm[fi]
		dLonKm := g.DLonKm[fi]
		for j := 0; j < cols; j++ {
			gj := j + 1
			gradXp := dZdLon.Get(gi, gj+1)
			gradXn := dZdLon.Get(gi, gj-1)
			gradYp := dZdLat.Get(gi+1, gj)
			gradYn := dZdLat.Get(gi-1, gj)
			// The loop passes through the four neighboring cell centers, so
			// its sides are two grid steps long in each direction.
			loopSum := (gradXp-gradXn)*2*dLatKm + (gradYp-gradYn)*2*dLonKm
			area := 4 * dLatKm * dLonKm
			out.Set(loopSum/area, i, j)
		}
	}
	return out
}

// ApparentVelocity converts a gradient-interior slowness vector field into
// an apparent velocity field, 1/|grad T|. Cells where the gradient magnitude
// is exactly zero are assigned the fallback slowness floorSlowness (matching
// the original field's treatment of flat patches in the travel-time surface,
// which would otherwise produce an infinite velocity) rather than being
// masked outright; CurvatureQC and NearNeighborQC are responsible for
// rejecting genuinely bad cells.
const floorSlowness = 0.3

func ApparentVelocity(dZdLat, dZdLon *sparse.DenseArray) *sparse.DenseArray {
	rows, cols := dZdLat.Shape[0], dZdLat.Shape[1]
	out := sparse.ZerosDense(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			gy := dZdLat.Get(i, j)
			gx := dZdLon.Get(i, j)
			slowness := math.Sqrt(gy*gy + gx*gx)
			if slowness == 0 {
				slowness = floorSlowness
			}
			out.Set(1/slowness, i, j)
		}
	}
	return out
}

// PropagationAzimuth returns the propagation angle implied by the gradient
// at one interior cell: atan2(dZ/dLat, dZ/dLon) in degrees, already folded
// to (-180, 180] by the range of atan2 itself. Comparing this directly
// against a station's forward azimuth (also in (-180, 180] once normalized
// by geodesy.NormalizeSeismic) is what yields the propagation deflection
// used by EikonalField.
func PropagationAzimuth(dZdLat, dZdLon float64) float64 {
	return math.Atan2(dZdLat, dZdLon) * 180 / math.Pi
}
