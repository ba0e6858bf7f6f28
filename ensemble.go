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

// DefaultCoverageThreshold is the minimum fraction of interior cells a
// source must validly cover before its entire reason_n array is discarded.
const DefaultCoverageThreshold = 0.1

// DefaultMinRawMeasurements is the minimum number of events contributing
// reason_n == 0 at a cell before that cell is globally disabled across the
// ensemble.
const DefaultMinRawMeasurements = 50

// DefaultThreshMeasure is the minimum per-cell event count (after all gates)
// required to stack a period at all.
const DefaultThreshMeasure = 80

// eventRecord is one source's contribution to a period's ensemble: its
// slowness and azimuth on the gradient-interior grid, and its (possibly
// globally invalidated) reason codes.
type eventRecord struct {
	sourceID string
	slowness []float64 // 0 where AppV == 0
	az       []float64
	reasonN  []int
	valid    bool
}

// EventEnsemble buffers every EikonalField computed for one period so the
// stackers can run weighted statistics across sources. Its shape is set
// once, from the first field added; Runner builds every field for a period
// on its one Grid, so every event's arrays are the same length.
type EventEnsemble struct {
	Period float64
	Rows   int
	Cols   int

	events []eventRecord

	CoverageThreshold  float64
	MinRawMeasurements int
	ThreshMeasure      int
}

// NewEventEnsemble returns an ensemble for one period with default gate
// thresholds.
func NewEventEnsemble(period float64) *EventEnsemble {
	return &EventEnsemble{
		Period:             period,
		CoverageThreshold:  DefaultCoverageThreshold,
		MinRawMeasurements: DefaultMinRawMeasurements,
		ThreshMeasure:      DefaultThreshMeasure,
	}
}

// Add inserts one source's EikonalField into the ensemble. A source whose
// coverage ratio falls below CoverageThreshold is retained in the ensemble
// (so its count still appears in diagnostics) but marked invalid: none of
// its cells contribute to stacking.
func (e *EventEnsemble) Add(f *EikonalField) {
	if e.Rows == 0 && e.Cols == 0 {
		e.Rows, e.Cols = f.AppV.Shape[0], f.AppV.Shape[1]
	}
	n := e.Rows * e.Cols
	slowness := make([]float64, n)
	az := make([]float64, n)
	reason := make([]int, n)
	copy(reason, f.ReasonN)

	for i := 0; i < e.Rows; i++ {
		for j := 0; j < e.Cols; j++ {
			idx := i*e.Cols + j
			if v := f.AppV.Get(i, j); v != 0 {
				slowness[idx] = 1 / v
			}
			az[idx] = f.Az.Get(i, j)
		}
	}

	e.events = append(e.events, eventRecord{
		sourceID: f.SourceID,
		slowness: slowness,
		az:       az,
		reasonN:  reason,
		valid:    f.CoverageRatio() >= e.CoverageThreshold,
	})
}

// ApplyGates runs the coverage-ratio gate (already applied per-source in
// Add) and the minimum-raw-measurement gate: any cell supported by fewer
// than MinRawMeasurements valid events across the whole ensemble is globally
// disabled, its reason code forced to ReasonInsufficientCount in every
// event's record.
func (e *EventEnsemble) ApplyGates() {
	n := e.Rows * e.Cols
	counts := make([]int, n)
	for _, ev := range e.events {
		if !ev.valid {
			continue
		}
		for idx, r := range ev.reasonN {
			if r == ReasonOK {
				counts[idx]++
			}
		}
	}
	for idx, c := range counts {
		if c < e.MinRawMeasurements {
			for i := range e.events {
				e.events[i].reasonN[idx] = ReasonInsufficientCount
			}
		}
	}
}

// MaxCellCount returns the highest number of valid, gated measurements at
// any single cell, used to decide whether a period clears ThreshMeasure.
func (e *EventEnsemble) MaxCellCount() int {
	n := e.Rows * e.Cols
	counts := make([]int, n)
	for _, ev := range e.events {
		if !ev.valid {
			continue
		}
		for idx, r := range ev.reasonN {
			if r == ReasonOK {
				counts[idx]++
			}
		}
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return max
}

// CheckThreshMeasure returns InsufficientDataError if the period's best
// covered cell still falls short of ThreshMeasure.
func (e *EventEnsemble) CheckThreshMeasure() error {
	max := e.MaxCellCount()
	if max < e.ThreshMeasure {
		return InsufficientDataError{Period: e.Period, MaxCellCount: max, Threshold: e.ThreshMeasure}
	}
	return nil
}

// N returns the number of events (sources) held, valid or not.
func (e *EventEnsemble) N() int { return len(e.events) }
