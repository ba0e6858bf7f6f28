package eikonaltomo

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func TestApplyHelmholtzCorrectionPassesThroughNearZeroAmplitudeLaplacian(t *testing.T) {
	rows, cols := 2, 2
	f := &EikonalField{
		Period:  20,
		AppV:    fakeDenseFromSlice(rows, cols, []float64{3, 3, 3, 3}),
		ReasonN: []int{ReasonOK, ReasonOK, ReasonOK, ReasonOK},
	}
	amp := fakeDenseFromSlice(rows, cols, []float64{1, 1, 1, 1})
	lplcAmp := sparse.ZerosDense(rows, cols) // zero amplitude-Laplacian: no correction needed

	ApplyHelmholtzCorrection(f, amp, lplcAmp, nil)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if f.ReasonHelm[i*cols+j] != ReasonOK {
				t.Errorf("cell (%d,%d): got reason %d, want ReasonOK", i, j, f.ReasonHelm[i*cols+j])
			}
			if math.Abs(f.CorV.Get(i, j)-3.0) > 1e-9 {
				t.Errorf("cell (%d,%d): got corrected velocity %g, want ~3.0 with a flat amplitude field", i, j, f.CorV.Get(i, j))
			}
		}
	}
}

func TestApplyHelmholtzCorrectionRejectsZeroAmplitude(t *testing.T) {
	rows, cols := 1, 1
	f := &EikonalField{
		Period:  20,
		AppV:    fakeDenseFromSlice(rows, cols, []float64{3}),
		ReasonN: []int{ReasonOK},
	}
	amp := sparse.ZerosDense(rows, cols) // amplitude is zero: cannot normalize L(A)
	lplcAmp := sparse.ZerosDense(rows, cols)

	ApplyHelmholtzCorrection(f, amp, lplcAmp, nil)

	if f.ReasonHelm[0] != ReasonHelmholtzAmplitude {
		t.Errorf("got reason %d, want ReasonHelmholtzAmplitude", f.ReasonHelm[0])
	}
}

func TestApplyHelmholtzCorrectionRejectsNegativeRadicand(t *testing.T) {
	rows, cols := 1, 1
	f := &EikonalField{
		Period:  20,
		AppV:    fakeDenseFromSlice(rows, cols, []float64{3}),
		ReasonN: []int{ReasonOK},
	}
	amp := fakeDenseFromSlice(rows, cols, []float64{1})
	// A huge amplitude-Laplacian drives 1/appV^2 - L(A) negative.
	lplcAmp := fakeDenseFromSlice(rows, cols, []float64{1000})

	ApplyHelmholtzCorrection(f, amp, lplcAmp, nil)

	if f.ReasonHelm[0] != ReasonHelmholtzAmplitude && f.ReasonHelm[0] != ReasonHelmholtzRadicand {
		t.Errorf("got reason %d, want either the amplitude-threshold or radicand rejection code", f.ReasonHelm[0])
	}
}
