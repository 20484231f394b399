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

package returns

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sigmasight/correlation-engine/dataframe"
)

// Quote is a single daily closing price observation
type Quote struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// FromPrices derives daily log returns, ln(p_t / p_{t-1}), for each symbol
// and aligns them into a dataframe whose date index is the union of all
// return dates. Symbols do not need to share trading days; dates where a
// symbol has no observation are NaN. Non-positive prices cannot produce a
// log return and are skipped with a warning.
func FromPrices(prices map[string][]Quote) *dataframe.DataFrame {
	// per-symbol return series keyed by date
	series := make(map[string]map[time.Time]float64, len(prices))
	dateSet := make(map[time.Time]bool)

	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		quotes := make([]Quote, len(prices[symbol]))
		copy(quotes, prices[symbol])
		sort.Slice(quotes, func(i, j int) bool {
			return quotes[i].Date.Before(quotes[j].Date)
		})

		rets := make(map[time.Time]float64, len(quotes))
		for ii := 1; ii < len(quotes); ii++ {
			prev := quotes[ii-1].Close
			curr := quotes[ii].Close
			if prev <= 0 || curr <= 0 {
				log.Warn().Str("Symbol", symbol).Time("Date", quotes[ii].Date).Float64("Close", curr).Msg("skipping non-positive price")
				continue
			}
			rets[quotes[ii].Date] = math.Log(curr / prev)
			dateSet[quotes[ii].Date] = true
		}
		series[symbol] = rets
	}

	dates := make([]time.Time, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	df := dataframe.New(dates)
	for _, symbol := range symbols {
		col := make([]float64, len(dates))
		for idx, date := range dates {
			if ret, ok := series[symbol][date]; ok {
				col[idx] = ret
			} else {
				col[idx] = math.NaN()
			}
		}
		df.Insert(symbol, col)
	}

	return df
}

// ValidCounts reports the number of valid (non-NaN) return observations per
// symbol
func ValidCounts(df *dataframe.DataFrame) map[string]int {
	counts := make(map[string]int, df.ColCount())
	for _, symbol := range df.ColNames {
		counts[symbol] = df.ValidCount(symbol)
	}
	return counts
}

// DropInsufficient removes every symbol with fewer than minDataPoints valid
// observations from the dataframe. Symbols below the floor are excluded from
// the correlation universe entirely, not merely from pairs that touch them.
// Returns the surviving dataframe and the list of dropped symbols.
func DropInsufficient(df *dataframe.DataFrame, minDataPoints int) (*dataframe.DataFrame, []string) {
	dropped := make([]string, 0)
	for _, symbol := range df.ColNames {
		if df.ValidCount(symbol) < minDataPoints {
			dropped = append(dropped, symbol)
		}
	}

	if len(dropped) == 0 {
		return df, dropped
	}

	_, kept := df.Split(dropped...)
	return kept, dropped
}
