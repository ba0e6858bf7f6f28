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

import "fmt"

// ConfigError is returned when a grid, spacing, or threshold configuration
// is invalid. It is always raised at construction time, before any data
// has been processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("eikonaltomo: invalid configuration for %s: %s", e.Field, e.Reason)
}

// InputError is returned when upstream scatter samples or period arrays
// are malformed: non-finite values, inconsistent periods between sources,
// or colliding source identifiers within a run.
type InputError struct {
	Source string
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("eikonaltomo: invalid input for source %q: %s", e.Source, e.Reason)
}

// InterpolationError is returned when the scatter-to-grid surface fit fails
// to converge or produces non-finite cells. It aborts only the offending
// source; the ensemble drops that source with a warning.
type InterpolationError struct {
	Source string
	Reason string
}

func (e InterpolationError) Error() string {
	return fmt.Sprintf("eikonaltomo: interpolation failed for source %q: %s", e.Source, e.Reason)
}

// InsufficientDataError is returned when, after all quality-control gates
// are applied, even a period's best-covered cell has fewer than
// threshmeasure valid events.
// It aborts stacking for the period in question but not for others.
type InsufficientDataError struct {
	Period       float64
	MaxCellCount int
	Threshold    int
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("eikonaltomo: period %g s has insufficient coverage for stacking "+
		"(max per-cell event count %d is below threshmeasure %d)", e.Period, e.MaxCellCount, e.Threshold)
}

// NumericError reports a numerical failure, such as FitSinusoid's
// least-squares solve not succeeding. The stackers do not return it: where a
// Kish denominator vanishes they set the standard deviation to zero, and a
// cell's mask is set only when its weights sum to zero.
type NumericError struct {
	Cell   [2]int
	Reason string
}

func (e NumericError) Error() string {
	return fmt.Sprintf("eikonaltomo: numeric error at cell %v: %s", e.Cell, e.Reason)
}
