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

package calculation

import (
	"time"

	"github.com/google/uuid"
	"github.com/sigmasight/correlation-engine/cluster"
)

// PairwiseCorrelation is one persisted cell of the correlation matrix. Both
// orderings of each pair are stored, as are the diagonal self-pairs, for
// query convenience.
type PairwiseCorrelation struct {
	Symbol1                 string   `json:"symbol1"`
	Symbol2                 string   `json:"symbol2"`
	Value                   float64  `json:"value"`
	DataPoints              int      `json:"dataPoints"`
	StatisticalSignificance *float64 `json:"statisticalSignificance"`
}

// CorrelationCalculation is the complete result of one run: the summary
// metrics, config echo, pairwise rows and cluster snapshots that persist as
// one atomic unit. The tuple (PortfolioID, DurationDays, CalculationDate)
// is the idempotency key.
type CorrelationCalculation struct {
	ID                 uuid.UUID              `json:"id"`
	PortfolioID        uuid.UUID              `json:"portfolioId"`
	CalculationDate    time.Time              `json:"calculationDate"`
	DurationDays       int                    `json:"durationDays"`
	OverallCorrelation float64                `json:"overallCorrelation"`
	ConcentrationScore float64                `json:"concentrationScore"`
	EffectivePositions float64                `json:"effectivePositions"`
	DataQuality        string                 `json:"dataQuality"`
	PositionsIncluded  int                    `json:"positionsIncluded"`
	PositionsExcluded  int                    `json:"positionsExcluded"`
	Config             *Config                `json:"config"`
	Fingerprint        string                 `json:"fingerprint"`
	Pairwise           []*PairwiseCorrelation `json:"pairwise"`
	Clusters           []*cluster.Cluster     `json:"clusters"`
}
