// Copyright 2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/sigmasight/correlation-engine/cluster"
	"github.com/sigmasight/correlation-engine/correlation"
	"github.com/sigmasight/correlation-engine/position"
	"gonum.org/v1/gonum/mat"
)

// DataQualitySufficient is reported once the per-symbol data floor has been
// enforced upstream; runs that fall below the floor fail before this stage
const DataQualitySufficient = "sufficient"

// PortfolioMetrics summarizes one correlation calculation at the portfolio
// level
type PortfolioMetrics struct {
	OverallCorrelation float64 `json:"overallCorrelation"`
	ConcentrationScore float64 `json:"concentrationScore"`
	EffectivePositions float64 `json:"effectivePositions"`
	DataQuality        string  `json:"dataQuality"`
}

// Compute derives the portfolio-level metrics from the correlation matrix,
// the filtered positions, and the detected clusters
func Compute(m *correlation.Matrix, positions []*position.Position, clusters []*cluster.Cluster) *PortfolioMetrics {
	return &PortfolioMetrics{
		OverallCorrelation: overallCorrelation(m),
		ConcentrationScore: concentrationScore(positions, clusters),
		EffectivePositions: effectivePositions(m),
		DataQuality:        DataQualitySufficient,
	}
}

// overallCorrelation is the mean absolute correlation over the strict upper
// triangle; 0 when no off-diagonal entries exist
func overallCorrelation(m *correlation.Matrix) float64 {
	n := m.Len()
	sum := 0.0
	cnt := 0
	for ii := 0; ii < n; ii++ {
		for jj := ii + 1; jj < n; jj++ {
			sum += math.Abs(m.At(ii, jj))
			cnt++
		}
	}

	if cnt == 0 {
		return 0
	}
	return sum / float64(cnt)
}

// concentrationScore is the fraction of filtered portfolio value held by
// positions that belong to any cluster; 0 when the filtered value is 0
func concentrationScore(positions []*position.Position, clusters []*cluster.Cluster) float64 {
	clustered := make(map[string]bool)
	for _, c := range clusters {
		for _, symbol := range c.Symbols {
			clustered[symbol] = true
		}
	}

	total := decimal.Zero
	inClusters := decimal.Zero
	for _, p := range positions {
		value := p.Value()
		total = total.Add(value)
		if clustered[p.Symbol] {
			inClusters = inClusters.Add(value)
		}
	}

	if total.Sign() <= 0 {
		return 0
	}

	score, _ := inClusters.Div(total).Float64()
	return score
}

// effectivePositions is the diversification ratio 1 / (wᵀ Σ w) with equal
// weights w_i = 1/N, diagonal terms included. A fully correlated portfolio
// behaves like 1 independent bet; a fully uncorrelated one like N. A
// non-positive denominator falls back to N.
func effectivePositions(m *correlation.Matrix) float64 {
	n := m.Len()
	if n == 0 {
		return 0
	}

	flat := make([]float64, 0, n*n)
	for _, row := range m.Vals {
		flat = append(flat, row...)
	}
	sigma := mat.NewSymDense(n, flat)

	w := mat.NewVecDense(n, nil)
	for ii := 0; ii < n; ii++ {
		w.SetVec(ii, 1.0/float64(n))
	}

	denom := mat.Inner(w, sigma, w)
	if denom <= 0 {
		return float64(n)
	}
	return 1.0 / denom
}
