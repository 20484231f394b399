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

package position

import (
	"errors"

	"github.com/shopspring/decimal"
)

// FilterMode selects how the value and weight thresholds combine when
// deciding whether a position is significant enough to correlate
type FilterMode string

const (
	// FilterValueOnly keeps positions whose absolute value passes min value
	FilterValueOnly FilterMode = "value_only"
	// FilterWeightOnly keeps positions whose portfolio weight passes min weight
	FilterWeightOnly FilterMode = "weight_only"
	// FilterBoth requires every threshold that is set to pass; an unset
	// threshold is treated as automatically satisfied
	FilterBoth FilterMode = "both"
	// FilterEither keeps a position when at least one threshold is both set
	// and satisfied; an unset threshold never counts toward either
	FilterEither FilterMode = "either"
)

var ErrUnknownFilterMode = errors.New("unknown filter mode")

// ParseFilterMode converts a configuration string to a FilterMode
func ParseFilterMode(mode string) (FilterMode, error) {
	switch FilterMode(mode) {
	case FilterValueOnly, FilterWeightOnly, FilterBoth, FilterEither:
		return FilterMode(mode), nil
	}
	return "", ErrUnknownFilterMode
}

// Filter selects the positions that are significant enough to include in the
// correlation universe. minValue and minWeight may be nil to indicate the
// threshold is unset. Filter is a pure function; the input slice is not
// modified.
func Filter(positions []*Position, portfolioValue decimal.Decimal, minValue *decimal.Decimal, minWeight *decimal.Decimal, mode FilterMode) []*Position {
	kept := make([]*Position, 0, len(positions))
	for _, p := range positions {
		if passes(p, portfolioValue, minValue, minWeight, mode) {
			kept = append(kept, p)
		}
	}
	return kept
}

func passes(p *Position, portfolioValue decimal.Decimal, minValue *decimal.Decimal, minWeight *decimal.Decimal, mode FilterMode) bool {
	valueOk := minValue == nil || p.Value().GreaterThanOrEqual(*minValue)
	weightOk := minWeight == nil || p.Weight(portfolioValue).GreaterThanOrEqual(*minWeight)

	switch mode {
	case FilterValueOnly:
		return valueOk
	case FilterWeightOnly:
		return weightOk
	case FilterBoth:
		return valueOk && weightOk
	case FilterEither:
		// only a threshold that is explicitly set may satisfy this mode
		return (minValue != nil && valueOk) || (minWeight != nil && weightOk)
	}

	return false
}
