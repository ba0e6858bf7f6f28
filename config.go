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

	"github.com/lnashier/viper"
)

// Config holds every recognized option for one run: grid extent and
// spacing, QC thresholds, and stacking parameters. It loads from a toml
// file via viper, following the same ReadInConfig pattern the teacher's
// command-line configuration uses, minus the cobra flag wiring the Non-goal
// CLI surface would otherwise require.
type Config struct {
	v *viper.Viper

	MinLon, MaxLon, MinLat, MaxLat float64
	Dlon, Dlat                     float64
	OptimizeSpacing                bool

	NLatGrad, NLonGrad, NLatLplc, NLonLplc int

	Cdist            float64
	MinDataPoints    int
	CoverageThreshold float64
	ThreshMeasure    int
	LplcThreshold    float64

	MinAzi, MaxAzi float64
	NBin           int
	SpacingAni     float64
	NTotalThresh   int
	NThresh        int
	AziAmpThresh   float64
}

// defaultConfig returns a Config populated with every default named in the
// package's recognized-options table.
func defaultConfig() Config {
	return Config{
		NLatGrad: 1, NLonGrad: 1, NLatLplc: 2, NLonLplc: 2,
		MinDataPoints:     50,
		CoverageThreshold: DefaultCoverageThreshold,
		ThreshMeasure:     DefaultThreshMeasure,
		LplcThreshold:     DefaultLaplacianThreshold,
		MinAzi:            -180, MaxAzi: 180, NBin: DefaultNBin,
		SpacingAni:   DefaultSpacingAni,
		NTotalThresh: DefaultNTotalThresh,
		NThresh:      DefaultNThresh,
		AziAmpThresh: 0.1,
	}
}

// LoadConfig reads a toml configuration file at path, overlaying its values
// onto the package defaults. Any option absent from the file keeps its
// default. OptimizeSpacing, if true, recomputes Dlat from OptimizeDLat
// after loading.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.v = viper.New()
	cfg.v.SetConfigFile(path)
	cfg.v.SetConfigType("toml")
	if err := cfg.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("eikonaltomo: problem reading configuration file: %v", err)
	}

	cfg.bindFloat("min_lon", &cfg.MinLon)
	cfg.bindFloat("max_lon", &cfg.MaxLon)
	cfg.bindFloat("min_lat", &cfg.MinLat)
	cfg.bindFloat("max_lat", &cfg.MaxLat)
	cfg.bindFloat("dlon", &cfg.Dlon)
	cfg.bindFloat("dlat", &cfg.Dlat)
	if cfg.v.IsSet("optimize_spacing") {
		cfg.OptimizeSpacing = cfg.v.GetBool("optimize_spacing")
	}
	cfg.bindInt("n_lat_grad", &cfg.NLatGrad)
	cfg.bindInt("n_lon_grad", &cfg.NLonGrad)
	cfg.bindInt("n_lat_lplc", &cfg.NLatLplc)
	cfg.bindInt("n_lon_lplc", &cfg.NLonLplc)
	cfg.bindFloat("cdist", &cfg.Cdist)
	cfg.bindInt("min_data_points", &cfg.MinDataPoints)
	cfg.bindFloat("coverage_threshold", &cfg.CoverageThreshold)
	cfg.bindInt("threshmeasure", &cfg.ThreshMeasure)
	cfg.bindFloat("lplc_threshold", &cfg.LplcThreshold)
	cfg.bindFloat("minazi", &cfg.MinAzi)
	cfg.bindFloat("maxazi", &cfg.MaxAzi)
	cfg.bindInt("n_bin", &cfg.NBin)
	cfg.bindFloat("spacing_ani", &cfg.SpacingAni)
	cfg.bindInt("ntotal_thresh", &cfg.NTotalThresh)
	cfg.bindInt("n_thresh", &cfg.NThresh)
	cfg.bindFloat("azi_amp_tresh", &cfg.AziAmpThresh)

	if cfg.OptimizeSpacing {
		cfg.Dlat = OptimizeDLat(cfg.MinLat, cfg.MaxLat, cfg.Dlon)
	}
	return &cfg, nil
}

func (cfg *Config) bindFloat(key string, dst *float64) {
	if cfg.v.IsSet(key) {
		*dst = cfg.v.GetFloat64(key)
	}
}

func (cfg *Config) bindInt(key string, dst *int) {
	if cfg.v.IsSet(key) {
		*dst = cfg.v.GetInt(key)
	}
}

// NewGrid builds the GeodeticGrid this configuration describes.
func (cfg *Config) NewGrid() (*Grid, error) {
	return NewGrid(cfg.MinLon, cfg.MaxLon, cfg.MinLat, cfg.MaxLat, cfg.Dlon, cfg.Dlat)
}
