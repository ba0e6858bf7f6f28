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

	"gonum.org/v1/gonum/mat"
)

// DefaultNBin is the number of azimuth bins spanning [-180, 180) used by the
// anisotropic stacker.
const DefaultNBin = 20

// DefaultSpacingAni is the target coarsened-cell side, in degrees.
const DefaultSpacingAni = 0.3

// DefaultNThresh is the minimum per-bin event count below which a bin is
// zeroed in the final output.
const DefaultNThresh = 10

// DefaultNTotalThresh is the minimum total near-neighbor measurement count,
// summed over all bins, below which a coarsened cell is zeroed entirely.
const DefaultNTotalThresh = 45

// AnisotropicMap is the binned output of one period's anisotropic stacking,
// on a coarsened grid of shape (CoarseRows, CoarseCols).
type AnisotropicMap struct {
	Period     float64
	CoarseRows int
	CoarseCols int
	NBin       int

	// Per (bin, coarse cell), row-major with bin as the outer index.
	SlownessPerturbation []float64
	SlownessSEM          []float64
	VelSEM               []float64
	Hist                 []int

	NMeasureAni []int // per coarse cell, total across bins before the n_b<2 gate
}

// SinusoidFit is the per-cell azimuthal fit v(theta) = A0 + A2*cos(2*(theta-phi2)),
// optionally with an A1*cos(theta-phi1) term.
type SinusoidFit struct {
	A0, A2, Phi2 float64
	A1, Phi1     float64
	HasA1        bool
}

// AnisotropicStacker coarsens the interior grid and bins events by azimuth,
// reporting per-bin slowness perturbations and their standard errors.
type AnisotropicStacker struct {
	NBin         int
	NThresh      int
	NTotalThresh int

	// MinAzi and MaxAzi bound the azimuth range binned into NBin bins; the
	// package default spans the full circle, [-180, 180).
	MinAzi, MaxAzi float64
}

func NewAnisotropicStacker() *AnisotropicStacker {
	return &AnisotropicStacker{
		NBin: DefaultNBin, NThresh: DefaultNThresh, NTotalThresh: DefaultNTotalThresh,
		MinAzi: -180, MaxAzi: 180,
	}
}

// CoarsenFactor chooses odd coarsening factors (gx, gy) so a coarsened cell
// spans approximately spacingAni degrees, given the fine grid's spacing.
func CoarsenFactor(g *Grid, spacingAni float64) (gy, gx int) {
	gy = oddFactor(spacingAni / g.DLat)
	gx = oddFactor(spacingAni / g.DLon)
	return gy, gx
}

func oddFactor(ratio float64) int {
	n := int(math.Round(ratio))
	if n < 1 {
		n = 1
	}
	if n%2 == 0 {
		n++
	}
	return n
}

// Stack bins the cell contribution of every valid event whose reason code is
// ReasonOK there, within the window of gy*gx fine cells around each coarsened
// cell center, into NBin azimuth bins, then applies the bin- and cell-level
// count gates. Events that IsotropicStacker's 2-sigma rule rejected at a cell
// are not excluded here.
func (s *AnisotropicStacker) Stack(e *EventEnsemble, iso *StackedMap, gy, gx int) *AnisotropicMap {
	coarseRows := e.Rows / gy
	coarseCols := e.Cols / gx
	nBin := s.NBin
	out := &AnisotropicMap{
		Period: e.Period, CoarseRows: coarseRows, CoarseCols: coarseCols, NBin: nBin,
		SlownessPerturbation: make([]float64, nBin*coarseRows*coarseCols),
		SlownessSEM:          make([]float64, nBin*coarseRows*coarseCols),
		VelSEM:               make([]float64, nBin*coarseRows*coarseCols),
		Hist:                 make([]int, nBin*coarseRows*coarseCols),
		NMeasureAni:          make([]int, coarseRows*coarseCols),
	}

	span := s.MaxAzi - s.MinAzi
	if span <= 0 {
		span = 360
	}
	binWidth := span / float64(nBin)

	for ci := 0; ci < coarseRows; ci++ {
		for cj := 0; cj < coarseCols; cj++ {
			coarseIdx := ci*coarseCols + cj

			// Per-bin accumulated slowness perturbations and inverse values.
			perturb := make([][]float64, nBin)
			invVel := make([][]float64, nBin)

			for fi := ci * gy; fi < (ci+1)*gy && fi < e.Rows; fi++ {
				for fj := cj * gx; fj < (cj+1)*gx && fj < e.Cols; fj++ {
					fineIdx := fi*e.Cols + fj
					sBarQC := iso.Slowness[fineIdx]
					if sBarQC == 0 {
						continue
					}
					for _, ev := range e.events {
						if !ev.valid || ev.reasonN[fineIdx] != ReasonOK {
							continue
						}
						bin := s.azimuthBin(ev.az[fineIdx], binWidth)
						perturb[bin] = append(perturb[bin], ev.slowness[fineIdx]-sBarQC)
						invVel[bin] = append(invVel[bin], 1/ev.slowness[fineIdx])
					}
				}
			}

			total := 0
			for b := 0; b < nBin; b++ {
				idx := b*coarseRows*coarseCols + coarseIdx
				n := len(perturb[b])
				out.Hist[idx] = n
				total += n
				if n < 2 {
					continue
				}
				meanPerturb, _ := unweightedMean(perturb[b])
				meanVel, _ := unweightedMean(invVel[b])
				out.SlownessPerturbation[idx] = meanPerturb
				out.SlownessSEM[idx] = unweightedSEMKish(perturb[b], meanPerturb)
				out.VelSEM[idx] = unweightedSEMKish(invVel[b], meanVel)
			}
			out.NMeasureAni[coarseIdx] = total

			if total < s.NTotalThresh {
				for b := 0; b < nBin; b++ {
					idx := b*coarseRows*coarseCols + coarseIdx
					out.SlownessPerturbation[idx] = 0
					out.SlownessSEM[idx] = 0
					out.VelSEM[idx] = 0
				}
				continue
			}
			for b := 0; b < nBin; b++ {
				idx := b*coarseRows*coarseCols + coarseIdx
				if out.Hist[idx] < s.NThresh {
					out.SlownessPerturbation[idx] = 0
					out.SlownessSEM[idx] = 0
					out.VelSEM[idx] = 0
				}
			}
		}
	}
	return out
}

// azimuthBin maps az into [0, NBin) over the stacker's configured
// [MinAzi, MaxAzi) range, wrapping modulo the range's span.
func (s *AnisotropicStacker) azimuthBin(az, binWidth float64) int {
	span := s.MaxAzi - s.MinAzi
	if span <= 0 {
		span = 360
	}
	shifted := az - s.MinAzi
	for shifted < 0 {
		shifted += span
	}
	for shifted >= span {
		shifted -= span
	}
	b := int(shifted / binWidth)
	if b >= s.NBin {
		b = s.NBin - 1
	}
	return b
}

func unweightedMean(xs []float64) (mean float64, n int) {
	n = len(xs)
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	return mean / float64(n), n
}

// unweightedSEMKish applies the Kish-corrected weighted-SEM formula of
// IsotropicStacker with unit weights, which reduces to the ordinary SEM
// sqrt(variance/(n-1)).
func unweightedSEMKish(xs []float64, mean float64) float64 {
	n := len(xs)
	if n <= 1 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n) / float64(n-1))
}

// FitSinusoid performs a least-squares fit of v(theta) = A0 + C2*cos(2*theta)
// + S2*sin(2*theta), returning A2 = hypot(C2, S2) and Phi2 = atan2(S2, C2)/2
// (the amplitude/phase form), weighted by
// 1/sigma_b per bin, requiring at least 5 valid bins. Bins with zero SEM
// (gated out) are excluded from the design matrix.
func FitSinusoid(binCenters, velocities, sems []float64) (SinusoidFit, error) {
	var rows [][]float64
	var obs []float64
	var weights []float64
	for i, sem := range sems {
		if sem == 0 {
			continue
		}
		theta := binCenters[i] * math.Pi / 180
		rows = append(rows, []float64{1, math.Cos(2 * theta), math.Sin(2 * theta)})
		obs = append(obs, velocities[i])
		weights = append(weights, 1/sem)
	}
	if len(rows) < 5 {
		return SinusoidFit{}, InsufficientDataError{Period: 0, MaxCellCount: len(rows), Threshold: 5}
	}

	n := len(rows)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 1, nil)
	for i := range rows {
		w := weights[i]
		a.Set(i, 0, rows[i][0]*w)
		a.Set(i, 1, rows[i][1]*w)
		a.Set(i, 2, rows[i][2]*w)
		b.Set(i, 0, obs[i]*w)
	}

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return SinusoidFit{}, NumericError{Reason: "sinusoid least-squares fit did not solve: " + err.Error()}
	}

	a0 := x.At(0, 0)
	c2 := x.At(1, 0)
	s2 := x.At(2, 0)
	a2 := math.Hypot(c2, s2)
	phi2 := math.Atan2(s2, c2) / 2 * 180 / math.Pi

	return SinusoidFit{A0: a0, A2: a2, Phi2: phi2}, nil
}
