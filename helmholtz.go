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

// HelmholtzThreshold is the cutoff applied to the amplitude-Laplacian
// correction after its 9/2 dimensional reshaping: cells where |L(A)| * 9/2
// exceeds this value are rejected regardless of the radicand sign check.
const HelmholtzThreshold = 0.2

// ApplyHelmholtzCorrection augments an EikonalField with the finite-frequency
// amplitude correction: L(A) = lplcAmp / (A * omega^2), omega = 2*pi/period.
// ampSurface and lplcAmp must already be on the field's gradient-interior
// shape (lplcAmp is itself already Laplacian-interior in the source pipeline
// but is re-embedded into gradient-interior shape by the caller, the same
// way CurvatureQC's output is). ampReason carries any rejection the
// amplitude field's own CurvatureQC/NearNeighborQC pass produced, coded
// ReasonHelmholtzAmplitude where nonzero.
func ApplyHelmholtzCorrection(f *EikonalField, ampSurface, lplcAmp *sparse.DenseArray, ampReason []int) {
	omega := 2 * math.Pi / f.Period
	rows, cols := f.AppV.Shape[0], f.AppV.Shape[1]

	f.LplcAmp = lplcAmp
	f.CorV = sparse.ZerosDense(rows, cols)
	f.ReasonHelm = make([]int, rows*cols)
	copy(f.ReasonHelm, f.ReasonN)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			idx := i*cols + j
			appV := f.AppV.Get(i, j)
			f.CorV.Set(appV, i, j) // placeholder until corrected below

			if f.ReasonHelm[idx] != ReasonOK {
				continue
			}
			a := ampSurface.Get(i, j)
			if a == 0 || (ampReason != nil && ampReason[idx] != ReasonOK) {
				f.ReasonHelm[idx] = ReasonHelmholtzAmplitude
				continue
			}

			l := lplcAmp.Get(i, j) / (a * omega * omega)
			if math.Abs(l)*9/2 > HelmholtzThreshold {
				f.ReasonHelm[idx] = ReasonHelmholtzAmplitude
				continue
			}

			radicand := 1/(appV*appV) - l
			if radicand <= 0 {
				f.ReasonHelm[idx] = ReasonHelmholtzRadicand
				continue
			}
			f.CorV.Set(1/math.Sqrt(radicand), i, j)
		}
	}
}
