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
	"sort"

	"github.com/ctessum/sparse"
)

// Reason-code enumeration. Values are part of the persisted contract: do not
// renumber them.
const (
	ReasonOK                  = 0
	ReasonTensionDisagreement = 1
	ReasonNearNeighbor        = 2
	ReasonSlownessRange       = 3
	ReasonZeroAdjacent        = 4
	ReasonEpicentralTooClose  = 5
	ReasonLaplacianThreshold  = 6
	ReasonHelmholtzAmplitude  = 7
	ReasonHelmholtzRadicand   = 8
	ReasonInsufficientCount   = 10
)

// DefaultLaplacianThreshold is lplc_threshold for phase-velocity fields, in
// s/km^2.
const DefaultLaplacianThreshold = 0.002

// DefaultTensionDisagreement is the travel-time tension-disagreement
// threshold, in seconds.
const DefaultTensionDisagreement = 2.0

// CurvatureQC compares the two tension surfaces and the Green's-Laplacian of
// the zero-tension surface, returning Laplacian-interior-shape reason codes.
// tension0 and tension02 are full-shape; lplc is already Laplacian-interior.
// amplitudeField selects the tension-disagreement threshold: for travel-time
// fields it is an absolute threshold in seconds; for amplitude fields it is
// 0.01 times the median of the tension0 surface.
type CurvatureQC struct {
	LaplacianThreshold  float64
	TensionThreshold    float64
	AmplitudeField      bool
}

// NewCurvatureQC returns a CurvatureQC configured for a travel-time field
// with the default thresholds.
func NewCurvatureQC() *CurvatureQC {
	return &CurvatureQC{
		LaplacianThreshold: DefaultLaplacianThreshold,
		TensionThreshold:   DefaultTensionDisagreement,
	}
}

// Evaluate applies the two ordered rules — tension disagreement (code 1)
// then Laplacian threshold (code 6) — to the region covered by the
// Laplacian-interior shape, returning one reason code per cell in that
// shape's row-major order. lplc's cell (i, j) lines up with the full-grid
// cell (i+nLplc, j+nLplc) of tension0 and tension02. nGrad is not used.
func (q *CurvatureQC) Evaluate(g *Grid, tension0, tension02 *sparse.DenseArray, lplc *sparse.DenseArray, nGrad, nLplc int) []int {
	threshold := q.TensionThreshold
	if q.AmplitudeField {
		threshold = 0.01 * median(tension0.Elements)
	}

	rows, cols := g.InteriorShape(nLplc, nLplc)
	reason := make([]int, rows*cols)
	for i := 0; i < rows; i++ {
		fi := i + nLplc
		for j := 0; j < cols; j++ {
			fj := j + nLplc
			idx := i*cols + j
			diff := tension0.Get(fi, fj) - tension02.Get(fi, fj)
			switch {
			case math.Abs(diff) > threshold:
				reason[idx] = ReasonTensionDisagreement
			case math.Abs(lplc.Get(i, j)) > q.LaplacianThreshold:
				reason[idx] = ReasonLaplacianThreshold
			default:
				reason[idx] = ReasonOK
			}
		}
	}
	return reason
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
