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
	"context"
	"fmt"
	"runtime"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// SourceInput is one source's raw travel-time (and optionally amplitude)
// scatter samples for one period, as received from the upstream collaborator
// that performs cross-correlation stacking or AFTAN measurement.
type SourceInput struct {
	SourceID       string
	Evlo, Evla     float64
	Samples        []ScatterSample
	AmplitudeSamples []ScatterSample // nil if this source carries no amplitude
}

// PeriodInput is everything needed to build one period's EventEnsemble and
// stack it.
type PeriodInput struct {
	Period  float64
	Sources []SourceInput
}

// Runner orchestrates the eikonal pipeline across sources and periods: a
// parallel worker pool over sources within a period (via requestcache, which
// also deduplicates identical in-flight requests), followed by sequential
// stacking once every source for that period has materialized. Periods
// themselves are processed one at a time, since a period's stack depends on
// having all of that period's EikonalFields in memory at once.
type Runner struct {
	Grid         *Grid
	NGrad, NLplc int
	Curvature    *CurvatureQC
	NearNeighbor func(period float64) *NearNeighborQC
	Iso          *IsotropicStacker
	Log          *logrus.Logger

	// Aniso, if non-nil, runs anisotropic stacking after isotropic stacking
	// for every period. SpacingAni is the coarsened-cell target spacing
	// passed to CoarsenFactor; it is only consulted when Aniso != nil.
	Aniso      *AnisotropicStacker
	SpacingAni float64

	// CoverageThreshold and ThreshMeasure, when positive, override the
	// EventEnsemble package defaults for every period this Runner processes.
	CoverageThreshold float64
	ThreshMeasure     int

	// MinDataPoints, when positive, is the minimum number of raw scatter
	// samples a source must supply for a period before it is dropped from
	// that period's ensemble entirely, logged at Warn.
	MinDataPoints int

	// Store and RunID, when Store is non-nil, persist every source's field
	// and every period's stack to OutputPath as the run proceeds.
	Store      *Store
	RunID      string
	OutputPath string

	fieldCache *requestcache.Cache
}

// NewRunner returns a Runner with the package's default QC and stacking
// configuration, logging to a fresh logrus.Logger in the teacher's style
// (structured fields, not format strings).
func NewRunner(g *Grid, nGrad, nLplc int) *Runner {
	return &Runner{
		Grid: g, NGrad: nGrad, NLplc: nLplc,
		Curvature: NewCurvatureQC(),
		NearNeighbor: func(period float64) *NearNeighborQC {
			return NewNearNeighborQC(DefaultNearNeighborRadius(period))
		},
		Iso: NewIsotropicStacker(),
		Log: NewLogger(),
	}
}

// NewRunnerFromConfig builds a Runner whose every QC and stacking component
// is configured from cfg, so that every field cfg documents actually reaches
// the component it configures. Fields the Config surface doesn't carry an
// override for (e.g. the isotropic stacker's AzimuthWindow/OutlierSigma)
// keep their package defaults.
func NewRunnerFromConfig(cfg *Config) (*Runner, error) {
	g, err := cfg.NewGrid()
	if err != nil {
		return nil, err
	}

	cdist := cfg.Cdist
	r := &Runner{
		Grid: g, NGrad: cfg.NLatGrad, NLplc: cfg.NLatLplc,
		Curvature: &CurvatureQC{
			LaplacianThreshold: cfg.LplcThreshold,
			TensionThreshold:   DefaultTensionDisagreement,
		},
		NearNeighbor: func(period float64) *NearNeighborQC {
			if cdist > 0 {
				return NewNearNeighborQC(cdist)
			}
			return NewNearNeighborQC(DefaultNearNeighborRadius(period))
		},
		Iso: NewIsotropicStacker(),
		Log: NewLogger(),

		CoverageThreshold: cfg.CoverageThreshold,
		ThreshMeasure:     cfg.ThreshMeasure,
		MinDataPoints:     cfg.MinDataPoints,
		SpacingAni:        cfg.SpacingAni,
	}

	aniso := NewAnisotropicStacker()
	aniso.MinAzi, aniso.MaxAzi = cfg.MinAzi, cfg.MaxAzi
	aniso.NBin = cfg.NBin
	aniso.NThresh = cfg.NThresh
	aniso.NTotalThresh = cfg.NTotalThresh
	r.Aniso = aniso

	return r, nil
}

// newEnsemble returns an EventEnsemble for period, with this Runner's
// Config-sourced overrides applied on top of the package defaults.
func (r *Runner) newEnsemble(period float64) *EventEnsemble {
	e := NewEventEnsemble(period)
	if r.CoverageThreshold > 0 {
		e.CoverageThreshold = r.CoverageThreshold
	}
	if r.ThreshMeasure > 0 {
		e.ThreshMeasure = r.ThreshMeasure
	}
	return e
}

type fieldRequest struct {
	source SourceInput
	period float64
}

// buildField is the requestcache ProcessFunc: it runs one source's full
// pipeline to completion, returning an error that the caller decides whether
// to treat as fatal (ConfigError, InputError) or source-local
// (InterpolationError, which the caller drops with a warning).
func (r *Runner) buildField(ctx context.Context, request interface{}) (interface{}, error) {
	req := request.(fieldRequest)
	return BuildEikonalField(r.Grid, req.source.SourceID, req.source.Evlo, req.source.Evla,
		req.period, req.source.Samples, r.NGrad, r.NLplc, r.Curvature, r.NearNeighbor(req.period))
}

// PeriodResult bundles one period's isotropic stack with its anisotropic
// stack, when the Runner is configured to produce one.
type PeriodResult struct {
	Iso   *StackedMap
	Aniso *AnisotropicMap
}

// RunPeriod builds every source's EikonalField concurrently, assembles the
// period's EventEnsemble, applies its gates, and stacks it. It returns
// InsufficientDataError (not aborting other periods) if the period's
// coverage never reaches ThreshMeasure. Sources supplying fewer than
// MinDataPoints raw scatter samples are dropped before they ever reach the
// interpolator, when MinDataPoints is configured positive.
func (r *Runner) RunPeriod(ctx context.Context, input PeriodInput) (*PeriodResult, error) {
	if r.fieldCache == nil {
		r.fieldCache = requestcache.NewCache(r.buildField, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate())
	}

	sources := input.Sources
	if r.MinDataPoints > 0 {
		sources = make([]SourceInput, 0, len(input.Sources))
		for _, src := range input.Sources {
			if len(src.Samples) < r.MinDataPoints {
				r.Log.WithFields(logrus.Fields{
					"period": input.Period,
					"source": src.SourceID,
					"n":      len(src.Samples),
				}).Warn("dropping source: fewer than min_data_points raw samples")
				continue
			}
			sources = append(sources, src)
		}
	}

	requests := make([]*requestcache.Request, len(sources))
	for i, src := range sources {
		requests[i] = r.fieldCache.NewRequest(ctx, fieldRequest{source: src, period: input.Period},
			fmt.Sprintf("%s_%g", src.SourceID, input.Period))
	}

	ensemble := r.newEnsemble(input.Period)
	for i, req := range requests {
		result, err := req.Result()
		if err != nil {
			if _, ok := err.(InterpolationError); ok {
				r.Log.WithFields(logrus.Fields{
					"period": input.Period,
					"source": sources[i].SourceID,
				}).Warn("dropping source: interpolation failed")
				continue
			}
			return nil, err
		}
		field := result.(*EikonalField)
		if r.Store != nil {
			if err := r.Store.WriteField(r.OutputPath, NewPersistedField(r.RunID, field)); err != nil {
				return nil, err
			}
		}
		ensemble.Add(field)
	}

	ensemble.ApplyGates()
	if err := ensemble.CheckThreshMeasure(); err != nil {
		return nil, err
	}

	iso := r.Iso.Stack(ensemble)
	result := &PeriodResult{Iso: iso}
	if r.Aniso != nil {
		spacingAni := r.SpacingAni
		if spacingAni <= 0 {
			spacingAni = DefaultSpacingAni
		}
		gy, gx := CoarsenFactor(r.Grid, spacingAni)
		result.Aniso = r.Aniso.Stack(ensemble, iso, gy, gx)
	}

	if r.Store != nil {
		if err := r.Store.WriteStack(r.OutputPath, NewPersistedStack(r.RunID, result)); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// RunAll processes every period in input in order, collecting a PeriodResult
// for each period that clears ThreshMeasure. Periods that fail with
// InsufficientDataError are logged and omitted from the output rather than
// aborting the run; ConfigError and InputError propagate immediately.
func (r *Runner) RunAll(ctx context.Context, inputs []PeriodInput) (map[float64]*PeriodResult, error) {
	out := make(map[float64]*PeriodResult)
	for _, in := range inputs {
		result, err := r.RunPeriod(ctx, in)
		if err != nil {
			if _, ok := err.(InsufficientDataError); ok {
				r.Log.WithField("period", in.Period).Warn(err.Error())
				continue
			}
			return nil, err
		}
		out[in.Period] = result
	}
	return out, nil
}
