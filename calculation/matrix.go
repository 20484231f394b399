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
	"github.com/sigmasight/correlation-engine/correlation"
)

// Matrix reconstructs the correlation matrix from the pairwise rows. The
// rows store the full N² grid in both directions, so the matrix round-trips
// through persistence; symbols keep their first-seen (sorted) order.
func (c *CorrelationCalculation) Matrix() *correlation.Matrix {
	symbols := make([]string, 0)
	index := make(map[string]int)
	for _, pair := range c.Pairwise {
		if _, ok := index[pair.Symbol1]; !ok {
			index[pair.Symbol1] = len(symbols)
			symbols = append(symbols, pair.Symbol1)
		}
	}

	n := len(symbols)
	m := &correlation.Matrix{
		Symbols: symbols,
		Vals:    make([][]float64, n),
		Counts:  make([][]int, n),
	}
	for ii := 0; ii < n; ii++ {
		m.Vals[ii] = make([]float64, n)
		m.Counts[ii] = make([]int, n)
	}

	for _, pair := range c.Pairwise {
		ii := index[pair.Symbol1]
		jj, ok := index[pair.Symbol2]
		if !ok {
			continue
		}
		m.Vals[ii][jj] = pair.Value
		m.Counts[ii][jj] = pair.DataPoints
	}

	return m
}
