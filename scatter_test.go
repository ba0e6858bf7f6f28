package eikonaltomo

import (
	"math"
	"testing"
)

func TestScatterInterpolatorRecoversConstantField(t *testing.T) {
	g, err := NewGrid(0, 2, 0, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	var samples []ScatterSample
	for i := 0; i < g.Nlat; i++ {
		for j := 0; j < g.Nlon; j++ {
			samples = append(samples, ScatterSample{Lon: g.Lon(j), Lat: g.Lat(i), Value: 5.0})
		}
	}
	interp := NewScatterInterpolator(0.0)
	surface, err := interp.Interpolate(g, samples)
	if err != nil {
		t.Fatal(err)
	}
	for i := 2; i < g.Nlat-2; i++ {
		for j := 2; j < g.Nlon-2; j++ {
			if math.Abs(surface.Get(i, j)-5.0) > 0.05 {
				t.Errorf("cell (%d,%d): got %g, want ~5.0", i, j, surface.Get(i, j))
			}
		}
	}
}

func TestScatterInterpolatorZeroOutsideConvexHull(t *testing.T) {
	g, err := NewGrid(0, 10, 0, 10, 1.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	// Scatter samples clustered in the grid's southwest corner only.
	samples := []ScatterSample{
		{Lon: 0, Lat: 0, Value: 1},
		{Lon: 1, Lat: 0, Value: 1},
		{Lon: 0, Lat: 1, Value: 1},
	}
	interp := NewScatterInterpolator(0.0)
	surface, err := interp.Interpolate(g, samples)
	if err != nil {
		t.Fatal(err)
	}
	if surface.Get(9, 9) != 0 {
		t.Errorf("far corner cell should be outside the convex hull and thus zero, got %g", surface.Get(9, 9))
	}
}

func TestIDWValueExactAtSample(t *testing.T) {
	samples := []ScatterSample{{Lon: 0, Lat: 0, Value: 7}, {Lon: 5, Lat: 5, Value: 1}}
	v := idwValue(0, 0, samples, 2)
	if v != 7 {
		t.Errorf("idwValue at an exact sample location: got %g, want 7", v)
	}
}
