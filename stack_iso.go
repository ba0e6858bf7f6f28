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

import "math"

// StackedMap is the stacked output of one period: weighted-mean slowness
// and its uncertainty, raw and QC'd event counts, a mask, and the derived
// isotropic velocity and its standard error.
type StackedMap struct {
	Period float64
	Rows   int
	Cols   int

	Slowness    []float64
	SlownessStd []float64
	NMeasure    []int
	NMeasureQC  []int
	Mask        []bool
	VelIso      []float64
	VelSEM      []float64
}

// IsotropicStacker computes a two-pass, azimuth-balanced weighted mean
// slowness per cell, rejecting outliers on the second pass and reporting the
// standard error of the mean using the Kish effective-N correction.
type IsotropicStacker struct {
	// AzimuthWindow is the half-width, in degrees, of the azimuthal peer
	// window used to count an event's coverage neighbors: peers within
	// AzimuthWindow of an event's azimuth (modulo 360) count toward its
	// weight denominator.
	AzimuthWindow float64

	// OutlierSigma is the number of weighted standard deviations beyond
	// which an event is rejected as an outlier on pass 2.
	OutlierSigma float64
}

// NewIsotropicStacker returns a stacker configured with the package
// defaults: a 20-degree azimuthal window and a 2-sigma outlier cut.
func NewIsotropicStacker() *IsotropicStacker {
	return &IsotropicStacker{AzimuthWindow: 20, OutlierSigma: 2}
}

// Stack produces a StackedMap from an ensemble whose gates have already been
// applied via EventEnsemble.ApplyGates.
func (s *IsotropicStacker) Stack(e *EventEnsemble) *StackedMap {
	rows, cols := e.Rows, e.Cols
	out := &StackedMap{
		Period: e.Period, Rows: rows, Cols: cols,
		Slowness: make([]float64, rows*cols), SlownessStd: make([]float64, rows*cols),
		NMeasure: make([]int, rows*cols), NMeasureQC: make([]int, rows*cols),
		Mask: make([]bool, rows*cols), VelIso: make([]float64, rows*cols),
		VelSEM: make([]float64, rows*cols),
	}

	n := rows * cols
	for idx := 0; idx < n; idx++ {
		slow, az, valid := s.collectCell(e, idx)
		if len(valid) == 0 {
			out.Mask[idx] = true
			continue
		}
		out.NMeasure[idx] = len(valid)

		weights := s.azimuthalWeights(az, valid)
		weights = s.rejectTails(weights)

		sBar, m := weightedMean(slow, weights)
		if m == 0 {
			out.Mask[idx] = true
			continue
		}
		sigma := weightedStd(slow, weights, sBar, m)

		qcWeights := make([]float64, len(weights))
		qcCount := 0
		for i, w := range weights {
			if w == 0 {
				continue
			}
			if math.Abs(slow[i]-sBar) > s.OutlierSigma*sigma {
				continue
			}
			qcWeights[i] = w
			qcCount++
		}
		out.NMeasureQC[idx] = qcCount

		sBarQC, mQC := weightedMean(slow, qcWeights)
		if mQC == 0 {
			out.Mask[idx] = true
			continue
		}
		out.Slowness[idx] = sBarQC
		out.SlownessStd[idx] = weightedStd(slow, qcWeights, sBarQC, mQC)
		out.VelIso[idx] = 1 / sBarQC

		sumW := sum(qcWeights)
		if sumW == 0 {
			out.Mask[idx] = true
			continue
		}
		out.VelSEM[idx] = isotropicSEM(slow, qcWeights, out.VelIso[idx], mQC, sumW)
	}
	return out
}

// collectCell gathers every valid event's slowness and azimuth at one cell,
// restricted to events whose reason code is ReasonOK there.
func (s *IsotropicStacker) collectCell(e *EventEnsemble, idx int) (slow, az []float64, eventIdx []int) {
	for i, ev := range e.events {
		if !ev.valid {
			continue
		}
		if ev.reasonN[idx] != ReasonOK {
			continue
		}
		slow = append(slow, ev.slowness[idx])
		az = append(az, ev.az[idx])
		eventIdx = append(eventIdx, i)
	}
	return slow, az, eventIdx
}

// azimuthalWeights implements pass 1: each event's weight is the inverse of
// the count of azimuthal peers (events whose azimuth lies within
// AzimuthWindow of this event's, modulo 360), with isolated events (a peer
// count of exactly 1, i.e. only themselves) zeroed out entirely.
func (s *IsotropicStacker) azimuthalWeights(az []float64, eventIdx []int) []float64 {
	w := make([]float64, len(az))
	for i := range az {
		count := 0
		for j := range az {
			if azimuthWithin(az[i], az[j], s.AzimuthWindow) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		// An event with no azimuthal peer among several candidates is
		// "isolated" and contributes nothing; but when it is the only
		// candidate at all, there was no crowd for it to be isolated from,
		// so it keeps its weight (this is what makes single-event stacking
		// idempotent).
		if count == 1 && len(az) > 1 {
			w[i] = 0
			continue
		}
		w[i] = 1 / float64(count)
	}
	return w
}

func azimuthWithin(a, b, window float64) bool {
	d := math.Mod(math.Abs(a-b), 360)
	return d < window || d > 360-window
}

// rejectTails implements pass 2: clamp each weight to mean + 3*stddev of the
// weight distribution, then renormalize so weights sum to 1.
func (s *IsotropicStacker) rejectTails(weights []float64) []float64 {
	n := 0
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
			n++
		}
	}
	if n == 0 {
		return weights
	}
	mean := sum / float64(n)
	var variance float64
	for _, w := range weights {
		if w > 0 {
			variance += (w - mean) * (w - mean)
		}
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)
	clamp := mean + 3*stddev

	out := make([]float64, len(weights))
	var total float64
	for i, w := range weights {
		if w > clamp {
			w = clamp
		}
		out[i] = w
		total += w
	}
	if total == 0 {
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// weightedMean returns the weighted mean of xs under weights, and the
// number of nonzero weights M. The result is normalized by sum(weights), so
// callers may pass either a normalized weight vector (sums to 1, as
// rejectTails produces) or an arbitrary subset of one (as the post-outlier
// qcWeights are, which no longer sum to 1 once pass 2 zeroes some entries).
func weightedMean(xs, weights []float64) (mean float64, m int) {
	var sum, sumW float64
	for i, w := range weights {
		if w == 0 {
			continue
		}
		sum += w * xs[i]
		sumW += w
		m++
	}
	if sumW == 0 {
		return 0, 0
	}
	return sum / sumW, m
}

// weightedStd implements the Kish effective-N corrected weighted standard
// deviation: sqrt(sum(w*(x-mean)^2) / (sum(w) * (M-1)/M)).
func weightedStd(xs, weights []float64, mean float64, m int) float64 {
	if m <= 1 {
		return 0
	}
	var numerator, sumW float64
	for i, w := range weights {
		if w == 0 {
			continue
		}
		numerator += w * (xs[i] - mean) * (xs[i] - mean)
		sumW += w
	}
	denom := sumW * float64(m-1) / float64(m)
	if denom == 0 {
		return 0
	}
	return math.Sqrt(numerator / denom)
}

// isotropicSEM computes the weighted-SEM formula from the weighted
// arithmetic mean's statistical properties:
// sqrt( sum(w_i * (1/s_i - vBar))^2 * M / (sumW^2 * (M-1)) ).
func isotropicSEM(slow, weights []float64, vBar float64, m int, sumW float64) float64 {
	if m <= 1 {
		return 0
	}
	var numerator float64
	for i, w := range weights {
		if w == 0 {
			continue
		}
		d := w * (1/slow[i] - vBar)
		numerator += d * d
	}
	denom := sumW * sumW * float64(m-1)
	if denom == 0 {
		return 0
	}
	return math.Sqrt(numerator * float64(m) / denom)
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
