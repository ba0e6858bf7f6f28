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

import "github.com/spatialmodel/eikonaltomo/internal/geodesy"

// DefaultNearNeighborRadius returns cdist, in km, for a travel-time field at
// the given period: max(4*period, 150).
func DefaultNearNeighborRadius(period float64) float64 {
	cdist := 4 * period
	if cdist < 150 {
		cdist = 150
	}
	return cdist
}

// NearNeighborQC flags interior grid cells that lack station support spread
// across all four geographic quadrants within a radius. It is the most
// expensive QC step because it is, in the worst case, quadratic in station
// count times grid cells; the quadrant-keyed early exit below is what keeps
// it tractable.
type NearNeighborQC struct {
	Cdist float64
}

func NewNearNeighborQC(cdist float64) *NearNeighborQC {
	return &NearNeighborQC{Cdist: cdist}
}

// quadrant returns the NE/NW/SE/SW bucket index (0-3) of sample relative to
// the cell, using the sign of the raw longitude/latitude differences, not a
// geodesic bearing: this matches the bookkeeping the original station-density
// check used and is cheap.
func quadrant(cellLon, cellLat, sampleLon, sampleLat float64) int {
	east := 0
	if sampleLon-cellLon >= 0 {
		east = 1
	}
	north := 0
	if sampleLat-cellLat >= 0 {
		north = 1
	}
	return east*2 + north
}

// Passes reports whether the cell at (lon, lat) has near-neighbor support:
// at least one sample in each of the four quadrants, drawn from a set of at
// least four samples within 2*Cdist km of the cell and at least 1 km away
// (coincident samples do not count as independent support).
func (q *NearNeighborQC) Passes(lon, lat float64, samples []ScatterSample) bool {
	var seen [4]bool
	count := 0
	for _, s := range samples {
		distKm, _, _ := geodesy.Inverse(lon, lat, s.Lon, s.Lat)
		if distKm >= 2*q.Cdist || distKm < 1 {
			continue
		}
		quad := quadrant(lon, lat, s.Lon, s.Lat)
		if seen[quad] {
			continue
		}
		seen[quad] = true
		count++
		if count == 4 {
			return true
		}
	}
	return false
}

// Evaluate runs Passes over every cell in the interior defined by (nLat,
// nLon) and writes into reason, in that interior's row-major order:
// ReasonNearNeighbor where Passes is false, unchanged where it is true. Cells already
// carrying a nonzero reason code from an earlier QC stage are left alone,
// matching the pipeline's "first matching code wins, in stage order" rule.
func (q *NearNeighborQC) Evaluate(g *Grid, samples []ScatterSample, nLat, nLon int, reason []int) {
	rows, cols := g.InteriorShape(nLat, nLon)
	for i := 0; i < rows; i++ {
		lat := g.Lat(i + nLat)
		for j := 0; j < cols; j++ {
			idx := i*cols + j
			if reason[idx] != ReasonOK {
				continue
			}
			lon := g.Lon(j + nLon)
			if !q.Passes(lon, lat, samples) {
				reason[idx] = ReasonNearNeighbor
			}
		}
	}
}
