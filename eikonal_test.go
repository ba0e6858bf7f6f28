package eikonaltomo

import (
	"testing"

	"github.com/spatialmodel/eikonaltomo/internal/geodesy"
)

// TestBuildEikonalFieldUniformVelocity constructs a synthetic source far from
// a small grid and feeds it travel times generated from a constant velocity,
// so the wavefront crossing the grid is nearly planar. The recovered
// apparent velocity at accepted interior cells should cluster near the
// injected value.
func TestBuildEikonalFieldUniformVelocity(t *testing.T) {
	g, err := NewGrid(0, 2, 0, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	const velocity = 3.0
	const evlo, evla = -40.0, 1.0 // far to the west: wavefronts cross west-to-east

	var samples []ScatterSample
	for i := 0; i < g.Nlat; i++ {
		for j := 0; j < g.Nlon; j++ {
			lon, lat := g.Lon(j), g.Lat(i)
			distKm, _, _ := geodesy.Inverse(lon, lat, evlo, evla)
			samples = append(samples, ScatterSample{Lon: lon, Lat: lat, Value: distKm / velocity})
		}
	}

	nGrad, nLplc := 1, 2
	curvature := NewCurvatureQC()
	nearNeighbor := NewNearNeighborQC(50) // small radius: every interior cell still has stations in all four quadrants within 2*cdist

	field, err := BuildEikonalField(g, "synthetic", evlo, evla, 20, samples, nGrad, nLplc, curvature, nearNeighbor)
	if err != nil {
		t.Fatalf("BuildEikonalField: %v", err)
	}

	rows, cols := g.InteriorShape(nGrad, nGrad)
	if field.NTotalGrd != rows*cols {
		t.Fatalf("got NTotalGrd %d, want %d", field.NTotalGrd, rows*cols)
	}

	nChecked, nClose := 0, 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			idx := i*cols + j
			if field.ReasonN[idx] != ReasonOK {
				continue
			}
			nChecked++
			v := field.AppV.Get(i, j)
			if rel := (v - velocity) / velocity; rel > -0.25 && rel < 0.25 {
				nClose++
			}
		}
	}
	if nChecked == 0 {
		t.Fatal("no interior cells passed QC; expected at least some valid cells for a clean planar wavefront")
	}
	if float64(nClose)/float64(nChecked) < 0.5 {
		t.Errorf("only %d/%d accepted cells recovered the injected velocity within 25%%", nClose, nChecked)
	}
}

func TestBuildEikonalFieldRejectsMismatchedInteriorWidths(t *testing.T) {
	g, err := NewGrid(0, 2, 0, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	samples := []ScatterSample{{Lon: 1, Lat: 1, Value: 1}}
	_, err = BuildEikonalField(g, "s", -40, 1, 20, samples, 2, 2, nil, nil)
	if err == nil {
		t.Fatal("expected a ConfigError when n_lplc is not at least n_grad+1")
	}
	if _, ok := err.(ConfigError); !ok {
		t.Errorf("got error of type %T, want ConfigError", err)
	}
}
