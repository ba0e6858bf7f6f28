package eikonaltomo

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
)

func fakeDense(rows, cols int, fill func(i, j int) float64) *sparse.DenseArray {
	d := sparse.ZerosDense(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d.Set(fill(i, j), i, j)
		}
	}
	return d
}

func TestStoreFieldRoundTrip(t *testing.T) {
	rows, cols := 3, 2
	pf := PersistedField{
		RunID: "run1", Period: 12.5, SourceID: "STA1",
		Az:       fakeDense(rows, cols, func(i, j int) float64 { return float64(i*cols + j) }),
		AppV:     fakeDense(rows, cols, func(i, j int) float64 { return 3.0 }),
		ProAngle: fakeDense(rows, cols, func(i, j int) float64 { return 45.0 }),
		Baz:      fakeDense(rows, cols, func(i, j int) float64 { return 200.0 }),
		T:        fakeDense(rows, cols, func(i, j int) float64 { return 10.0 }),
		ReasonN:  []int32{0, 0, 1, 0, 2, 0},
		NTotal:   6, NValid: 4,
	}

	path := filepath.Join(t.TempDir(), "field.cdf")
	store := NewStore()
	if err := store.WriteField(path, pf); err != nil {
		t.Fatalf("WriteField: %v", err)
	}

	got, err := store.ReadField(path, pf.RunID, pf.Period, pf.SourceID)
	if err != nil {
		t.Fatalf("ReadField: %v", err)
	}
	for i, want := range pf.ReasonN {
		if got.ReasonN[i] != want {
			t.Errorf("reason_n[%d]: got %d, want %d", i, got.ReasonN[i], want)
		}
	}
	if got.NTotal != pf.NTotal || got.NValid != pf.NValid {
		t.Errorf("n_total/n_valid: got %d/%d, want %d/%d", got.NTotal, got.NValid, pf.NTotal, pf.NValid)
	}
	for i, want := range pf.Az.Elements {
		if math.Abs(got.Az.Elements[i]-want) > 1e-4 {
			t.Errorf("az[%d]: got %g, want %g", i, got.Az.Elements[i], want)
		}
	}
	if got.CorV != nil {
		t.Error("expected no corv variable when Helmholtz did not run")
	}
}

func TestStoreFieldRoundTripWithHelmholtz(t *testing.T) {
	rows, cols := 2, 2
	pf := PersistedField{
		RunID: "run1", Period: 25, SourceID: "STA2",
		Az: fakeDense(rows, cols, func(i, j int) float64 { return 1 }), AppV: fakeDense(rows, cols, func(i, j int) float64 { return 3 }),
		ProAngle: fakeDense(rows, cols, func(i, j int) float64 { return 1 }), Baz: fakeDense(rows, cols, func(i, j int) float64 { return 1 }),
		T:           fakeDense(rows, cols, func(i, j int) float64 { return 1 }),
		ReasonN:     []int32{0, 0, 0, 0},
		CorV:        fakeDense(rows, cols, func(i, j int) float64 { return 3.1 }),
		LplcAmp:     fakeDense(rows, cols, func(i, j int) float64 { return 0.001 }),
		ReasonNHelm: []int32{0, 7, 0, 0},
	}

	path := filepath.Join(t.TempDir(), "field_helm.cdf")
	store := NewStore()
	if err := store.WriteField(path, pf); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	got, err := store.ReadField(path, pf.RunID, pf.Period, pf.SourceID)
	if err != nil {
		t.Fatalf("ReadField: %v", err)
	}
	if got.CorV == nil {
		t.Fatal("expected corv variable to round-trip")
	}
	for i, want := range pf.ReasonNHelm {
		if got.ReasonNHelm[i] != want {
			t.Errorf("reason_n_helm[%d]: got %d, want %d", i, got.ReasonNHelm[i], want)
		}
	}
}

func TestStoreStackRoundTrip(t *testing.T) {
	rows, cols := 2, 2
	e := &EventEnsemble{Period: 10, Rows: rows, Cols: cols}
	for i := 0; i < 5; i++ {
		e.events = append(e.events, fakeEnsembleEvent(rows, cols, 0.3, 10, ReasonOK))
		e.events = append(e.events, fakeEnsembleEvent(rows, cols, 0.3, 190, ReasonOK))
	}
	e.MinRawMeasurements = 0
	e.ApplyGates()
	iso := NewIsotropicStacker().Stack(e)

	result := &PeriodResult{Iso: iso}
	ps := NewPersistedStack("run2", result)

	path := filepath.Join(t.TempDir(), "stack.cdf")
	store := NewStore()
	if err := store.WriteStack(path, ps); err != nil {
		t.Fatalf("WriteStack: %v", err)
	}

	got, err := store.ReadStack(path, ps.RunID, ps.Period)
	if err != nil {
		t.Fatalf("ReadStack: %v", err)
	}
	for i, want := range iso.Slowness {
		if math.Abs(got.Slowness.Elements[i]-want) > 1e-6 {
			t.Errorf("slowness[%d]: got %g, want %g", i, got.Slowness.Elements[i], want)
		}
	}
	for i, want := range iso.NMeasure {
		if int(got.NMeasure[i]) != want {
			t.Errorf("n_measure[%d]: got %d, want %d", i, got.NMeasure[i], want)
		}
	}
	if got.NBin != 0 {
		t.Errorf("expected NBin 0 when anisotropic stacking did not run, got %d", got.NBin)
	}
}

func TestStoreStackRoundTripWithAnisotropic(t *testing.T) {
	rows, cols := 6, 6
	e := &EventEnsemble{Period: 10, Rows: rows, Cols: cols}
	for i := 0; i < 60; i++ {
		az := float64(i%18) * 20
		e.events = append(e.events, fakeEnsembleEvent(rows, cols, 0.3, az, ReasonOK))
	}
	e.MinRawMeasurements = 0
	e.ApplyGates()
	iso := NewIsotropicStacker().Stack(e)
	aniso := NewAnisotropicStacker().Stack(e, iso, 3, 3)

	result := &PeriodResult{Iso: iso, Aniso: aniso}
	ps := NewPersistedStack("run3", result)

	path := filepath.Join(t.TempDir(), "stack_ani.cdf")
	store := NewStore()
	if err := store.WriteStack(path, ps); err != nil {
		t.Fatalf("WriteStack: %v", err)
	}

	got, err := store.ReadStack(path, ps.RunID, ps.Period)
	if err != nil {
		t.Fatalf("ReadStack: %v", err)
	}
	if got.NBin != aniso.NBin || got.CoarseRows != aniso.CoarseRows || got.CoarseCols != aniso.CoarseCols {
		t.Fatalf("ani shape: got (%d,%d,%d), want (%d,%d,%d)",
			got.NBin, got.CoarseRows, got.CoarseCols, aniso.NBin, aniso.CoarseRows, aniso.CoarseCols)
	}
	for i, want := range aniso.Hist {
		if int(got.HistArr[i]) != want {
			t.Errorf("hist[%d]: got %d, want %d", i, got.HistArr[i], want)
		}
	}
	for i, want := range aniso.SlownessPerturbation {
		if math.Abs(got.SlownessAni.Elements[i]-want) > 1e-6 {
			t.Errorf("slowness_ani[%d]: got %g, want %g", i, got.SlownessAni.Elements[i], want)
		}
	}
}
