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
	"fmt"
	"os"
	"sort"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// PersistedField is the on-disk representation of one source's EikonalField
// for one period, matching the hierarchical binary store contract: every
// array here is part of the persisted schema and must not be renumbered or
// reshaped without a version bump.
type PersistedField struct {
	RunID    string
	Period   float64
	SourceID string

	Az, AppV, ProAngle, Baz, T *sparse.DenseArray
	ReasonN                    []int32
	NTotal, NValid             int32
	CorV, LplcAmp              *sparse.DenseArray // nil if Helmholtz was not run
	ReasonNHelm                []int32
}

// NewPersistedField converts one source's EikonalField into its persisted
// form, for a run identified by runID.
func NewPersistedField(runID string, f *EikonalField) PersistedField {
	pf := PersistedField{
		RunID: runID, Period: f.Period, SourceID: f.SourceID,
		Az: f.Az, AppV: f.AppV, ProAngle: f.ProAngle, Baz: f.Baz, T: f.T,
		ReasonN: toInt32(f.ReasonN),
		NTotal:  int32(f.NTotalGrd), NValid: int32(f.NValidGrd),
	}
	if f.CorV != nil {
		pf.CorV = f.CorV
		pf.LplcAmp = f.LplcAmp
		pf.ReasonNHelm = toInt32(f.ReasonHelm)
	}
	return pf
}

// PersistedStack is the on-disk representation of one period's StackedMap
// (and, when anisotropic stacking ran, its AnisotropicMap), keyed
// stack_{run_id} -> period_in_seconds in the store.
type PersistedStack struct {
	RunID  string
	Period float64
	Rows, Cols int

	Slowness, SlownessStd *sparse.DenseArray
	NMeasure, NMeasureQC  []int32
	Mask                  []int32 // 0/1, promoted from bool for netCDF storage
	VelIso, VelSEM        *sparse.DenseArray

	// NBin, CoarseRows, CoarseCols describe the shape of the Ani fields
	// below, which are flattened bin-major (bin varies slowest) the same
	// way AnisotropicMap stores them. NBin == 0 means anisotropic stacking
	// did not run for this period.
	NBin                  int
	CoarseRows, CoarseCols int
	SlownessAni, SlownessAniSEM, VelAniSEM *sparse.DenseArray
	HistArr, NMeasureAni                   []int32
}

// NewPersistedStack converts one period's PeriodResult into its persisted
// form, for a run identified by runID.
func NewPersistedStack(runID string, result *PeriodResult) PersistedStack {
	iso := result.Iso
	mask := make([]int32, len(iso.Mask))
	for i, m := range iso.Mask {
		if m {
			mask[i] = 1
		}
	}
	ps := PersistedStack{
		RunID: runID, Period: iso.Period, Rows: iso.Rows, Cols: iso.Cols,
		Slowness:    sparse.ZerosDense(iso.Rows, iso.Cols),
		SlownessStd: sparse.ZerosDense(iso.Rows, iso.Cols),
		VelIso:      sparse.ZerosDense(iso.Rows, iso.Cols),
		VelSEM:      sparse.ZerosDense(iso.Rows, iso.Cols),
		NMeasure:    toInt32(iso.NMeasure), NMeasureQC: toInt32(iso.NMeasureQC),
		Mask: mask,
	}
	fillDense(ps.Slowness, iso.Slowness)
	fillDense(ps.SlownessStd, iso.SlownessStd)
	fillDense(ps.VelIso, iso.VelIso)
	fillDense(ps.VelSEM, iso.VelSEM)

	if a := result.Aniso; a != nil {
		ps.NBin, ps.CoarseRows, ps.CoarseCols = a.NBin, a.CoarseRows, a.CoarseCols
		rows := a.NBin * a.CoarseRows
		ps.SlownessAni = sparse.ZerosDense(rows, a.CoarseCols)
		ps.SlownessAniSEM = sparse.ZerosDense(rows, a.CoarseCols)
		ps.VelAniSEM = sparse.ZerosDense(rows, a.CoarseCols)
		fillDense(ps.SlownessAni, a.SlownessPerturbation)
		fillDense(ps.SlownessAniSEM, a.SlownessSEM)
		fillDense(ps.VelAniSEM, a.VelSEM)
		ps.HistArr = toInt32(a.Hist)
		ps.NMeasureAni = toInt32(a.NMeasureAni)
	}
	return ps
}

func toInt32(xs []int) []int32 {
	out := make([]int32, len(xs))
	for i, x := range xs {
		out[i] = int32(x)
	}
	return out
}

// fillDense copies a row-major flat slice into a pre-allocated DenseArray of
// the matching shape.
func fillDense(dst *sparse.DenseArray, flat []float64) {
	rows, cols := dst.Shape[0], dst.Shape[1]
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst.Set(flat[i*cols+j], i, j)
		}
	}
}

// Store writes and reads PersistedField and PersistedStack records to a
// netCDF-formatted file via cdf, the same hierarchical binary container the
// teacher's meteorology preprocessing uses. Group keys are flattened into
// variable name prefixes (cdf has no native grouping), following the naming
// scheme documented on the type.
type Store struct {
	// MaxRetries bounds the number of retries WriteField and WriteStack make
	// after a failed first attempt against transient I/O failures (e.g. a
	// network-mounted output path) before giving up.
	MaxRetries uint64
}

// NewStore returns a Store with a default retry budget of 5 retries (6
// attempts in all).
func NewStore() *Store { return &Store{MaxRetries: 5} }

// variablePrefix returns the flattened key run_id/period/source_id used as a
// netCDF variable name prefix for one field's variables.
func variablePrefix(runID string, period float64, sourceID string) string {
	return fmt.Sprintf("%s_%015.6f_%s", runID, period, sourceID)
}

func stackPrefix(runID string, period float64) string {
	return fmt.Sprintf("stack_%s_%015.6f", runID, period)
}

// WriteField appends one source's field to the store at path, retrying
// transient failures with an exponential backoff, matching the pattern the
// teacher uses around its own remote job submission.
func (s *Store) WriteField(path string, pf PersistedField) error {
	return backoff.Retry(func() error {
		return writeField(path, pf)
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.MaxRetries))
}

func writeField(path string, pf PersistedField) error {
	prefix := variablePrefix(pf.RunID, pf.Period, pf.SourceID)
	rows, cols := pf.Az.Shape[0], pf.Az.Shape[1]
	dims := []string{prefix + "_lat", prefix + "_lon"}

	h := cdf.NewHeader(dims, []int{rows, cols})
	h.AddAttribute("", "run_id", pf.RunID)
	h.AddAttribute("", "period", []float64{pf.Period})
	h.AddAttribute("", "source_id", pf.SourceID)
	h.AddAttribute("", "n_total", []int32{pf.NTotal})
	h.AddAttribute("", "n_valid", []int32{pf.NValid})

	fields := map[string]*sparse.DenseArray{
		"az": pf.Az, "appv": pf.AppV, "proangle": pf.ProAngle, "baz": pf.Baz, "t": pf.T,
	}
	if pf.CorV != nil {
		fields["corv"] = pf.CorV
		fields["lplc_amp"] = pf.LplcAmp
	}
	ints := map[string][]int32{"reason_n": pf.ReasonN}
	if pf.ReasonNHelm != nil {
		ints["reason_n_helm"] = pf.ReasonNHelm
	}

	names := sortedKeys(fields)
	for _, name := range names {
		h.AddVariable(prefix+"_"+name, dims, []float32{0})
		h.AddAttribute(prefix+"_"+name, "units", fieldUnits(name))
	}
	intNames := sortedIntKeys(ints)
	for _, name := range intNames {
		h.AddVariable(prefix+"_"+name, dims, []int32{0})
	}
	h.Define()

	f, err := createOrAppend(path, h)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := writeDense(f, prefix+"_"+name, fields[name]); err != nil {
			return fmt.Errorf("eikonaltomo: writing variable %s: %v", name, err)
		}
	}
	for _, name := range intNames {
		if err := writeInt32(f, prefix+"_"+name, ints[name]); err != nil {
			return fmt.Errorf("eikonaltomo: writing variable %s: %v", name, err)
		}
	}
	return nil
}

func fieldUnits(name string) string {
	switch name {
	case "appv", "corv":
		return "km/s"
	case "az", "baz", "proangle":
		return "degrees"
	case "t":
		return "s"
	default:
		return ""
	}
}

func sortedKeys(m map[string]*sparse.DenseArray) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedIntKeys(m map[string][]int32) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func writeDense(f *cdf.File, name string, data *sparse.DenseArray) error {
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data32)
	return err
}

func writeInt32(f *cdf.File, name string, data []int32) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data)
	return err
}

func readDense(f *cdf.File, name string) *sparse.DenseArray {
	lengths := f.Header.Lengths(name)
	out := sparse.ZerosDense(lengths...)
	data32 := make([]float32, len(out.Elements))
	f.Reader(name, nil, nil).Read(data32)
	for i, v := range data32 {
		out.Elements[i] = float64(v)
	}
	return out
}

func readInt32(f *cdf.File, name string) []int32 {
	lengths := f.Header.Lengths(name)
	n := 1
	for _, l := range lengths {
		n *= l
	}
	out := make([]int32, n)
	f.Reader(name, nil, nil).Read(out)
	return out
}

// WriteStack appends one period's PersistedStack to the store at path,
// retrying transient failures the same way WriteField does.
func (s *Store) WriteStack(path string, ps PersistedStack) error {
	return backoff.Retry(func() error {
		return writeStack(path, ps)
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.MaxRetries))
}

func writeStack(path string, ps PersistedStack) error {
	prefix := stackPrefix(ps.RunID, ps.Period)
	rowDim, colDim := prefix+"_row", prefix+"_col"
	dims := []string{rowDim, colDim}
	dimLens := []string{rowDim, colDim}
	lens := []int{ps.Rows, ps.Cols}

	floats := map[string]*sparse.DenseArray{
		"slowness": ps.Slowness, "slowness_std": ps.SlownessStd,
		"vel_iso": ps.VelIso, "vel_sem": ps.VelSEM,
	}
	ints := map[string][]int32{
		"n_measure": ps.NMeasure, "n_measure_qc": ps.NMeasureQC, "mask": ps.Mask,
	}

	aniRowDim, aniColDim := prefix+"_ani_row", prefix+"_ani_col"
	coarseDim := prefix+"_coarse"
	if ps.NBin > 0 {
		dimLens = append(dimLens, aniRowDim, aniColDim, coarseDim)
		lens = append(lens, ps.NBin*ps.CoarseRows, ps.CoarseCols, ps.CoarseRows*ps.CoarseCols)
		floats["slowness_ani"] = ps.SlownessAni
		floats["slowness_ani_sem"] = ps.SlownessAniSEM
		floats["vel_ani_sem"] = ps.VelAniSEM
	}

	h := cdf.NewHeader(dimLens, lens)
	h.AddAttribute("", "run_id", ps.RunID)
	h.AddAttribute("", "period", []float64{ps.Period})
	h.AddAttribute("", "n_bin", []int32{int32(ps.NBin)})
	h.AddAttribute("", "coarse_rows", []int32{int32(ps.CoarseRows)})
	h.AddAttribute("", "coarse_cols", []int32{int32(ps.CoarseCols)})

	names := sortedKeys(floats)
	aniDims := []string{aniRowDim, aniColDim}
	for _, name := range names {
		d := dims
		if name == "slowness_ani" || name == "slowness_ani_sem" || name == "vel_ani_sem" {
			d = aniDims
		}
		h.AddVariable(prefix+"_"+name, d, []float32{0})
	}
	intNames := sortedIntKeys(ints)
	for _, name := range intNames {
		h.AddVariable(prefix+"_"+name, dims, []int32{0})
	}
	if ps.NBin > 0 {
		h.AddVariable(prefix+"_hist", aniDims, []int32{0})
		h.AddVariable(prefix+"_n_measure_ani", []string{coarseDim}, []int32{0})
	}
	h.Define()

	f, err := createOrAppend(path, h)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := writeDense(f, prefix+"_"+name, floats[name]); err != nil {
			return fmt.Errorf("eikonaltomo: writing variable %s: %v", name, err)
		}
	}
	for _, name := range intNames {
		if err := writeInt32(f, prefix+"_"+name, ints[name]); err != nil {
			return fmt.Errorf("eikonaltomo: writing variable %s: %v", name, err)
		}
	}
	if ps.NBin > 0 {
		if err := writeInt32(f, prefix+"_hist", ps.HistArr); err != nil {
			return fmt.Errorf("eikonaltomo: writing variable hist: %v", err)
		}
		if err := writeInt32(f, prefix+"_n_measure_ani", ps.NMeasureAni); err != nil {
			return fmt.Errorf("eikonaltomo: writing variable n_measure_ani: %v", err)
		}
	}
	return nil
}

// ReadField reads back one source's field record, previously written by
// WriteField, identified by its run ID, period, and source ID.
func (s *Store) ReadField(path, runID string, period float64, sourceID string) (PersistedField, error) {
	r, err := os.Open(path)
	if err != nil {
		return PersistedField{}, err
	}
	defer r.Close()
	f, err := cdf.Open(r)
	if err != nil {
		return PersistedField{}, err
	}

	prefix := variablePrefix(runID, period, sourceID)
	pf := PersistedField{
		RunID: runID, Period: period, SourceID: sourceID,
		Az: readDense(f, prefix+"_az"), AppV: readDense(f, prefix+"_appv"),
		ProAngle: readDense(f, prefix+"_proangle"), Baz: readDense(f, prefix+"_baz"),
		T:       readDense(f, prefix+"_t"),
		ReasonN: readInt32(f, prefix+"_reason_n"),
	}
	if nTotal, ok := f.Header.GetAttribute("", "n_total").([]int32); ok && len(nTotal) > 0 {
		pf.NTotal = nTotal[0]
	}
	if nValid, ok := f.Header.GetAttribute("", "n_valid").([]int32); ok && len(nValid) > 0 {
		pf.NValid = nValid[0]
	}
	for _, v := range f.Header.Variables() {
		if v == prefix+"_corv" {
			pf.CorV = readDense(f, prefix+"_corv")
			pf.LplcAmp = readDense(f, prefix+"_lplc_amp")
			pf.ReasonNHelm = readInt32(f, prefix+"_reason_n_helm")
		}
	}
	return pf, nil
}

// ReadStack reads back one period's stack record, previously written by
// WriteStack, identified by its run ID and period.
func (s *Store) ReadStack(path, runID string, period float64) (PersistedStack, error) {
	r, err := os.Open(path)
	if err != nil {
		return PersistedStack{}, err
	}
	defer r.Close()
	f, err := cdf.Open(r)
	if err != nil {
		return PersistedStack{}, err
	}

	prefix := stackPrefix(runID, period)
	ps := PersistedStack{
		RunID: runID, Period: period,
		Slowness: readDense(f, prefix+"_slowness"), SlownessStd: readDense(f, prefix+"_slowness_std"),
		VelIso: readDense(f, prefix+"_vel_iso"), VelSEM: readDense(f, prefix+"_vel_sem"),
		NMeasure: readInt32(f, prefix+"_n_measure"), NMeasureQC: readInt32(f, prefix+"_n_measure_qc"),
		Mask: readInt32(f, prefix+"_mask"),
	}
	ps.Rows, ps.Cols = ps.Slowness.Shape[0], ps.Slowness.Shape[1]

	nBin := f.Header.GetAttribute("", "n_bin")
	if v, ok := nBin.([]int32); ok && len(v) > 0 && v[0] > 0 {
		ps.NBin = int(v[0])
		if v, ok := f.Header.GetAttribute("", "coarse_rows").([]int32); ok && len(v) > 0 {
			ps.CoarseRows = int(v[0])
		}
		if v, ok := f.Header.GetAttribute("", "coarse_cols").([]int32); ok && len(v) > 0 {
			ps.CoarseCols = int(v[0])
		}
		ps.SlownessAni = readDense(f, prefix+"_slowness_ani")
		ps.SlownessAniSEM = readDense(f, prefix+"_slowness_ani_sem")
		ps.VelAniSEM = readDense(f, prefix+"_vel_ani_sem")
		ps.HistArr = readInt32(f, prefix+"_hist")
		ps.NMeasureAni = readInt32(f, prefix+"_n_measure_ani")
	}
	return ps, nil
}

// createOrAppend opens path for writing, creating it (and its header) if it
// does not already exist. The hierarchical store accumulates many sources
// and periods into one file over the lifetime of a run, so repeated writes
// must not clobber what came before.
func createOrAppend(path string, h *cdf.Header) (*cdf.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		w, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return cdf.Create(w, h)
	}
	w, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return cdf.Open(w)
}
