package eikonaltomo

import (
	"testing"

	"github.com/ctessum/sparse"
)

func TestCurvatureQCTensionDisagreement(t *testing.T) {
	g, err := NewGrid(0, 2, 0, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	tension0 := fakeDenseFromSliceFull(g, 1.0)
	tension02 := fakeDenseFromSliceFull(g, 1.0)
	// Disagree by more than the default 2-second threshold at one cell.
	tension02.Set(10.0, 5, 5)

	nGrad, nLplc := 1, 2
	dZdLat, dZdLon := Gradient(g, tension0)
	lplc := Laplacian(g, dZdLat, dZdLon)

	q := NewCurvatureQC()
	reason := q.Evaluate(g, tension0, tension02, lplc, nGrad, nLplc)

	_, cols := g.InteriorShape(nLplc, nLplc)
	idx := (5-nLplc)*cols + (5 - nLplc)
	if reason[idx] != ReasonTensionDisagreement {
		t.Errorf("got reason %d at disagreement cell, want ReasonTensionDisagreement", reason[idx])
	}
}

func TestCurvatureQCLaplacianThreshold(t *testing.T) {
	g, err := NewGrid(0, 2, 0, 2, 0.2, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	tension0 := fakeDenseFromSliceFull(g, 0)
	for i := 0; i < g.Nlat; i++ {
		for j := 0; j < g.Nlon; j++ {
			if i == j {
				tension0.Set(float64(i*i), i, j)
			}
		}
	}
	tension02 := tension0.Copy()

	nGrad, nLplc := 1, 2
	dZdLat, dZdLon := Gradient(g, tension0)
	lplc := Laplacian(g, dZdLat, dZdLon)

	q := NewCurvatureQC()
	q.LaplacianThreshold = 1e-9 // force the rule to trigger broadly
	reason := q.Evaluate(g, tension0, tension02, lplc, nGrad, nLplc)

	anyRejected := false
	for _, r := range reason {
		if r == ReasonLaplacianThreshold {
			anyRejected = true
			break
		}
	}
	if !anyRejected {
		t.Error("expected at least one cell to fail the Laplacian threshold with an aggressively low threshold")
	}
}

func fakeDenseFromSliceFull(g *Grid, val float64) *sparse.DenseArray {
	d := sparse.ZerosDense(g.Nlat, g.Nlon)
	for i := 0; i < g.Nlat; i++ {
		for j := 0; j < g.Nlon; j++ {
			d.Set(val, i, j)
		}
	}
	return d
}
