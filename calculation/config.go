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
	"github.com/shopspring/decimal"
	"github.com/sigmasight/correlation-engine/position"
)

// Config is the caller-supplied policy surface for one calculation run. It
// is echoed onto the persisted calculation so results can be reproduced.
type Config struct {
	// MinPositionValue excludes positions below an absolute market value;
	// nil leaves the threshold unset
	MinPositionValue *decimal.Decimal `json:"minPositionValue"`

	// MinPortfolioWeight excludes positions below a fraction of gross
	// portfolio value; nil leaves the threshold unset
	MinPortfolioWeight *decimal.Decimal `json:"minPortfolioWeight"`

	// FilterMode selects how the two thresholds combine
	FilterMode position.FilterMode `json:"filterMode"`

	// CorrelationThreshold is the minimum |ρ| for two positions to be
	// adjacent in the cluster graph
	CorrelationThreshold float64 `json:"correlationThreshold"`

	// DurationDays is the lookback window for price history
	DurationDays int `json:"durationDays"`

	// MinDataPoints is the per-symbol floor of valid return observations
	MinDataPoints int `json:"minDataPoints"`

	// ForceRecalculate bypasses the idempotency check
	ForceRecalculate bool `json:"forceRecalculate"`
}

// DefaultConfig returns the standard policy: $10k or 1% significance with
// both thresholds required, 0.7 clustering threshold over a 90-day window,
// and a 20 observation data floor
func DefaultConfig() *Config {
	minValue := decimal.NewFromInt(10_000)
	minWeight := decimal.NewFromFloat(0.01)

	return &Config{
		MinPositionValue:     &minValue,
		MinPortfolioWeight:   &minWeight,
		FilterMode:           position.FilterBoth,
		CorrelationThreshold: 0.7,
		DurationDays:         90,
		MinDataPoints:        20,
		ForceRecalculate:     false,
	}
}
