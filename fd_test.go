package eikonaltomo

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/eikonaltomo/internal/geodesy"
)

// linearField fills a full-shape array with a·lat_km + b·lon_km, measuring
// distances from the grid's southwest corner, to exercise the gradient's
// consistency property against a field with known, constant derivatives.
func linearField(g *Grid, a, b float64) *sparse.DenseArray {
	z := sparse.ZerosDense(g.Nlat, g.Nlon)
	for i := 0; i < g.Nlat; i++ {
		latKm, _, _ := geodesy.Inverse(g.MinLon, g.MinLat, g.MinLon, g.Lat(i))
		for j := 0; j < g.Nlon; j++ {
			lonKm, _, _ := geodesy.Inverse(g.MinLon, g.Lat(i), g.Lon(j), g.Lat(i))
			z.Set(a*latKm+b*lonKm, i, j)
		}
	}
	return z
}

func TestGradientConsistencyOnLinearField(t *testing.T) {
	g, err := NewGrid(0, 2, 0, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	a, b := 2.0, -3.0
	z := linearField(g, a, b)
	dZdLat, dZdLon := Gradient(g, z)
	rows, cols := dZdLat.Shape[0], dZdLat.Shape[1]
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if rel := math.Abs(dZdLat.Get(i, j)-a) / math.Abs(a); rel > 1e-6 {
				t.Errorf("dZ/dLat at (%d,%d): got %g, want %g (rel err %g)", i, j, dZdLat.Get(i, j), a, rel)
			}
			if rel := math.Abs(dZdLon.Get(i, j)-b) / math.Abs(b); rel > 1e-6 {
				t.Errorf("dZ/dLon at (%d,%d): got %g, want %g (rel err %g)", i, j, dZdLon.Get(i, j), b, rel)
			}
		}
	}
}

func TestGreenLaplacianMatchesAnalyticPointSource(t *testing.T) {
	g, err := NewGrid(0, 4, 0, 4, 0.1, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	const v = 3.0
	srcLon, srcLat := 2.0, 2.0

	z := sparse.ZerosDense(g.Nlat, g.Nlon)
	for i := 0; i < g.Nlat; i++ {
		for j := 0; j < g.Nlon; j++ {
			distKm, _, _ := geodesy.Inverse(g.Lon(j), g.Lat(i), srcLon, srcLat)
			z.Set(distKm/v, i, j)
		}
	}
	dZdLat, dZdLon := Gradient(g, z)
	lplc := Laplacian(g, dZdLat, dZdLon)

	maxSpacing := g.DLatKm[len(g.DLatKm)/2]
	if g.DLonKm[len(g.DLonKm)/2] > maxSpacing {
		maxSpacing = g.DLonKm[len(g.DLonKm)/2]
	}

	rows, cols := lplc.Shape[0], lplc.Shape[1]
	checked := 0
	for i := 0; i < rows; i++ {
		fi := i + LaplacianEdgeWidth
		for j := 0; j < cols; j++ {
			fj := j + LaplacianEdgeWidth
			distKm, _, _ := geodesy.Inverse(g.Lon(fj), g.Lat(fi), srcLon, srcLat)
			if distKm <= 5*maxSpacing {
				continue
			}
			analytic := 1 / (v * distKm)
			got := lplc.Get(i, j)
			if rel := math.Abs(got-analytic) / math.Abs(analytic); rel > 0.05 {
				t.Errorf("Laplacian at (%d,%d), dist=%gkm: got %g, want %g (rel err %g)",
					i, j, distKm, got, analytic, rel)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("no cells were far enough from the source to check")
	}
}

func TestApparentVelocityFloorsZeroSlowness(t *testing.T) {
	z := sparse.ZerosDense(3, 3)
	v := ApparentVelocity(z, z)
	want := 1 / floorSlowness
	if v.Get(1, 1) != want {
		t.Errorf("ApparentVelocity with zero gradient: got %g, want %g", v.Get(1, 1), want)
	}
}
