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
	"github.com/ctessum/sparse"

	"github.com/spatialmodel/eikonaltomo/internal/geodesy"
)

// Grid is a regular latitude/longitude grid with per-row kilometer-scaled
// spacing. Every per-grid array produced by this package inhabits one of
// three shapes: full (Nlat, Nlon), gradient-interior (Nlat-2*n, Nlon-2*n)
// for some gradient edge width n, or Laplacian-interior for some larger
// edge width. Grid knows how to enumerate and convert between them.
type Grid struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	DLat, DLon     float64
	Nlat, Nlon     int

	// DLatKm[i] and DLonKm[i] are the kilometer distances spanned by one
	// grid step in latitude and longitude respectively, at row i. DLonKm
	// varies with latitude; DLatKm is nearly but not exactly constant on
	// an ellipsoid.
	DLatKm []float64
	DLonKm []float64
}

// NewGrid constructs a Grid from a bounding box and spacing. It returns a
// ConfigError if the spacings are non-positive or the bounding box is
// degenerate.
func NewGrid(minLon, maxLon, minLat, maxLat, dlon, dlat float64) (*Grid, error) {
	if dlon <= 0 {
		return nil, ConfigError{Field: "dlon", Reason: "must be positive"}
	}
	if dlat <= 0 {
		return nil, ConfigError{Field: "dlat", Reason: "must be positive"}
	}
	if maxLon <= minLon {
		return nil, ConfigError{Field: "lon bounds", Reason: "max_lon must exceed min_lon"}
	}
	if maxLat <= minLat {
		return nil, ConfigError{Field: "lat bounds", Reason: "max_lat must exceed min_lat"}
	}

	g := &Grid{
		MinLat: minLat, MaxLat: maxLat,
		MinLon: minLon, MaxLon: maxLon,
		DLat: dlat, DLon: dlon,
	}
	g.Nlat = int(round((maxLat-minLat)/dlat)) + 1
	g.Nlon = int(round((maxLon-minLon)/dlon)) + 1
	g.MaxLat = minLat + dlat*float64(g.Nlat-1)
	g.MaxLon = minLon + dlon*float64(g.Nlon-1)

	g.DLatKm = make([]float64, g.Nlat)
	g.DLonKm = make([]float64, g.Nlat)
	for i := 0; i < g.Nlat; i++ {
		lat := minLat + dlat*float64(i)
		dLatKm, _, _ := geodesy.Inverse(0, lat, 0, lat+dlat)
		dLonKm, _, _ := geodesy.Inverse(0, lat, dlon, lat)
		g.DLatKm[i] = dLatKm
		g.DLonKm[i] = dLonKm
	}
	return g, nil
}

// OptimizeDLat returns a latitude spacing such that, at the vertical
// midpoint of the grid's latitude range, a step of dlat in latitude spans
// approximately the same ground distance as a step of dlon in longitude.
// This corresponds to the `optimize_spacing` configuration option.
func OptimizeDLat(minLat, maxLat, dlon float64) float64 {
	midLat := (minLat + maxLat) / 2
	dLonKm, _, _ := geodesy.Inverse(0, midLat, dlon, midLat)
	lo, hi := 1e-6, 10.0
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		dLatKm, _, _ := geodesy.Inverse(0, midLat, 0, midLat+mid)
		if dLatKm < dLonKm {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// Lat returns the latitude of row i.
func (g *Grid) Lat(i int) float64 { return g.MinLat + g.DLat*float64(i) }

// Lon returns the longitude of column j.
func (g *Grid) Lon(j int) float64 { return g.MinLon + g.DLon*float64(j) }

// InteriorShape returns the number of rows and columns remaining after
// trimming nLat rows and nLon columns from each edge.
func (g *Grid) InteriorShape(nLat, nLon int) (rows, cols int) {
	return g.Nlat - 2*nLat, g.Nlon - 2*nLon
}

// InteriorIndices enumerates the (i, j) full-grid indices belonging to the
// interior region defined by edge widths (nLat, nLon).
func (g *Grid) InteriorIndices(nLat, nLon int) [][2]int {
	rows, cols := g.InteriorShape(nLat, nLon)
	out := make([][2]int, 0, rows*cols)
	for i := nLat; i < g.Nlat-nLat; i++ {
		for j := nLon; j < g.Nlon-nLon; j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

// FullToInterior extracts the interior sub-array from a full-shape array,
// trimming nLat rows and nLon columns from each edge.
func (g *Grid) FullToInterior(full *sparse.DenseArray, nLat, nLon int) *sparse.DenseArray {
	rows, cols := g.InteriorShape(nLat, nLon)
	out := sparse.ZerosDense(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(full.Get(i+nLat, j+nLon), i, j)
		}
	}
	return out
}

// InteriorToFull embeds an interior-shape array into a new full-shape array,
// filling the border with borderValue.
func (g *Grid) InteriorToFull(interior *sparse.DenseArray, nLat, nLon int, borderValue float64) *sparse.DenseArray {
	out := sparse.ZerosDense(g.Nlat, g.Nlon)
	if borderValue != 0 {
		for i := 0; i < g.Nlat; i++ {
			for j := 0; j < g.Nlon; j++ {
				out.Set(borderValue, i, j)
			}
		}
	}
	rows, cols := interior.Shape[0], interior.Shape[1]
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(interior.Get(i, j), i+nLat, j+nLon)
		}
	}
	return out
}

// PromoteMask embeds an interior-shape boolean mask (stored as a
// DenseArray with 0/1 values) into a full-shape boolean grid, with the
// border forced to true: points that fall outside any derivative's
// interior can never be said to have passed quality control.
func (g *Grid) PromoteMask(interior *sparse.DenseArray, nLat, nLon int) []bool {
	full := make([]bool, g.Nlat*g.Nlon)
	for i := 0; i < g.Nlat; i++ {
		for j := 0; j < g.Nlon; j++ {
			idx := i*g.Nlon + j
			if i < nLat || i >= g.Nlat-nLat || j < nLon || j >= g.Nlon-nLon {
				full[idx] = true
			}
		}
	}
	rows, cols := interior.Shape[0], interior.Shape[1]
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			full[(i+nLat)*g.Nlon+(j+nLon)] = interior.Get(i, j) != 0
		}
	}
	return full
}

func round(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
