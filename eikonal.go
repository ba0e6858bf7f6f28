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

	"github.com/spatialmodel/eikonaltomo/internal/geodesy"
)

// EikonalField is the per-source, per-period product of the eikonal
// pipeline: an interpolated travel-time surface, its gradient and derived
// azimuth/velocity fields, and the reason_n mask that records why each
// interior cell was or wasn't accepted.
type EikonalField struct {
	Grid          *Grid
	SourceID      string
	Evlo, Evla    float64
	Period        float64
	NGrad, NLplc  int

	T             *sparse.DenseArray // full shape, post-QC (zeroed where rejected by code 1)
	DTdLat, DTdLon *sparse.DenseArray // gradient-interior shape
	ProAngle      *sparse.DenseArray // gradient-interior shape, degrees
	AppV          *sparse.DenseArray // gradient-interior shape, km/s
	Az, Baz       *sparse.DenseArray // gradient-interior shape, degrees
	DeltaAz       *sparse.DenseArray // gradient-interior shape, degrees

	ReasonN []int // gradient-interior shape, row-major

	// Amplitude-corrected fields, populated only when HelmholtzCorrection
	// runs.
	LplcAmp    *sparse.DenseArray
	CorV       *sparse.DenseArray
	ReasonHelm []int

	NTotalGrd int
	NValidGrd int
}

// BuildEikonalField runs the full per-source pipeline described by the
// package's design: interpolate twice, apply curvature and near-neighbor QC,
// take the gradient, gate on slowness, compute azimuth and deflection, and
// derive apparent velocity. It runs to completion without any suspension
// point, so a worker pool can run many of these concurrently with no
// synchronization beyond each one owning its own EikonalField.
func BuildEikonalField(g *Grid, sourceID string, evlo, evla, period float64, samples []ScatterSample, nGrad, nLplc int, curvature *CurvatureQC, nearNeighbor *NearNeighborQC) (*EikonalField, error) {
	if nLplc < nGrad+1 {
		return nil, ConfigError{Field: "n_lplc", Reason: "must be at least n_grad + 1"}
	}

	interp0 := NewScatterInterpolator(0.0)
	interp02 := NewScatterInterpolator(0.2)
	tension0, err := interp0.Interpolate(g, samples)
	if err != nil {
		return nil, wrapInterpolationError(sourceID, err)
	}
	tension02, err := interp02.Interpolate(g, samples)
	if err != nil {
		return nil, wrapInterpolationError(sourceID, err)
	}

	dZdLat0, dZdLon0 := Gradient(g, tension0)
	lplc := Laplacian(g, dZdLat0, dZdLon0)

	if curvature == nil {
		curvature = NewCurvatureQC()
	}
	reason := curvature.Evaluate(g, tension0, tension02, lplc, nGrad, nLplc)

	// Laplacian-interior reason codes are computed on a region narrower than
	// the gradient-interior one; re-embed them into gradient-interior shape
	// before the rest of the pipeline, which all operates at that shape.
	reason = embedLplcIntoGrad(g, reason, nGrad, nLplc)

	// Code-1 cells have T zeroed before the real gradient is taken, so the
	// gradient never straddles a fabricated discontinuity; this is also
	// what triggers the code-4 zero-guard below.
	t := tension0.Copy()
	rows, cols := g.InteriorShape(nGrad, nGrad)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if reason[i*cols+j] == ReasonTensionDisagreement {
				t.Set(0, i+nGrad, j+nGrad)
			}
		}
	}

	if nearNeighbor == nil {
		nearNeighbor = NewNearNeighborQC(DefaultNearNeighborRadius(period))
	}
	nearNeighbor.Evaluate(g, samples, nGrad, nGrad, reason)

	dZdLat, dZdLon := Gradient(g, t)

	zeroGuard(reason, t, g, nGrad)

	appV := ApparentVelocity(dZdLat, dZdLon)
	proAngle := sparse.ZerosDense(rows, cols)
	az := sparse.ZerosDense(rows, cols)
	baz := sparse.ZerosDense(rows, cols)
	deltaAz := sparse.ZerosDense(rows, cols)

	cdist := nearNeighbor.Cdist
	for i := 0; i < rows; i++ {
		fi := i + nGrad
		lat := g.Lat(fi)
		for j := 0; j < cols; j++ {
			idx := i*cols + j
			fj := j + nGrad
			lon := g.Lon(fj)

			gy, gx := dZdLat.Get(i, j), dZdLon.Get(i, j)
			proAngle.Set(PropagationAzimuth(gy, gx), i, j)

			if reason[idx] != ReasonOK {
				continue
			}

			slowness := math.Sqrt(gy*gy + gx*gx)
			if slowness < 0.2 || slowness > 0.5 {
				reason[idx] = ReasonSlownessRange
				continue
			}

			distKm, cellToSourceAz, cellToSourceBaz := geodesy.Inverse(lon, lat, evlo, evla)
			azSeismic := geodesy.NormalizeSeismic(cellToSourceAz)
			bazSeismic := geodesy.NormalizeSeismic(cellToSourceBaz)
			az.Set(azSeismic, i, j)
			baz.Set(bazSeismic, i, j)

			delta := geodesy.FoldTo180(proAngle.Get(i, j) - azSeismic)
			if distKm < cdist+50 {
				reason[idx] = ReasonEpicentralTooClose
				delta = 0
			}
			deltaAz.Set(delta, i, j)
		}
	}

	nValid := 0
	for _, r := range reason {
		if r == ReasonOK {
			nValid++
		}
	}

	return &EikonalField{
		Grid: g, SourceID: sourceID, Evlo: evlo, Evla: evla, Period: period,
		NGrad: nGrad, NLplc: nLplc,
		T: t, DTdLat: dZdLat, DTdLon: dZdLon,
		ProAngle: proAngle, AppV: appV, Az: az, Baz: baz, DeltaAz: deltaAz,
		ReasonN:   reason,
		NTotalGrd: rows * cols,
		NValidGrd: nValid,
	}, nil
}

// CoverageRatio returns the fraction of interior cells this source validly
// covers: n_valid_grd / n_total_grd.
func (f *EikonalField) CoverageRatio() float64 {
	if f.NTotalGrd == 0 {
		return 0
	}
	return float64(f.NValidGrd) / float64(f.NTotalGrd)
}

func wrapInterpolationError(sourceID string, err error) error {
	if ie, ok := err.(InterpolationError); ok {
		ie.Source = sourceID
		return ie
	}
	return err
}

// embedLplcIntoGrad re-expresses reason codes computed on the
// Laplacian-interior shape as a gradient-interior shaped slice, leaving the
// extra border (the cells lost to the second derivative but not the first)
// at ReasonOK; NearNeighborQC and the slowness/azimuth stages below will
// still evaluate and potentially reject those cells on their own terms.
func embedLplcIntoGrad(g *Grid, lplcReason []int, nGrad, nLplc int) []int {
	gradRows, gradCols := g.InteriorShape(nGrad, nGrad)
	lplcRows, lplcCols := g.InteriorShape(nLplc, nLplc)
	out := make([]int, gradRows*gradCols)

	rowOffset := nLplc - nGrad
	colOffset := nLplc - nGrad
	for i := 0; i < lplcRows; i++ {
		for j := 0; j < lplcCols; j++ {
			out[(i+rowOffset)*gradCols+(j+colOffset)] = lplcReason[i*lplcCols+j]
		}
	}
	return out
}

// zeroGuard marks the four orthogonal neighbors of every post-QC zero cell
// inside the gradient interior with ReasonZeroAdjacent (zero cells in the
// border ring outside that interior are not considered), so the gradient step never silently differentiates
// across a fabricated discontinuity.
func zeroGuard(reason []int, t *sparse.DenseArray, g *Grid, nGrad int) {
	rows, cols := g.InteriorShape(nGrad, nGrad)
	type cell struct{ i, j int }
	var zeros []cell
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if t.Get(i+nGrad, j+nGrad) == 0 {
				zeros = append(zeros, cell{i, j})
			}
		}
	}
	mark := func(i, j int) {
		if i < 0 || i >= rows || j < 0 || j >= cols {
			return
		}
		idx := i*cols + j
		if reason[idx] == ReasonOK {
			reason[idx] = ReasonZeroAdjacent
		}
	}
	for _, z := range zeros {
		mark(z.i+1, z.j)
		mark(z.i-1, z.j)
		mark(z.i, z.j+1)
		mark(z.i, z.j-1)
	}
}
