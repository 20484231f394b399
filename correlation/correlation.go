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

package correlation

import (
	"fmt"
	"math"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/sigmasight/correlation-engine/dataframe"
	"gonum.org/v1/gonum/stat"
)

// Matrix is a symmetric pearson correlation matrix over a set of symbols.
// The diagonal is 1.0 by construction. Counts records the number of paired
// observations each cell was computed over.
type Matrix struct {
	Symbols []string
	Vals    [][]float64
	Counts  [][]int
}

// FromDataFrame computes the pairwise-complete pearson correlation matrix of
// the aligned return table. Each pair is correlated over the rows where both
// columns have valid observations; a single common-date floor across all
// symbols is NOT applied. Degenerate pairs (fewer than 2 shared observations
// or zero variance) correlate to 0.
func FromDataFrame(df *dataframe.DataFrame) *Matrix {
	n := df.ColCount()
	m := &Matrix{
		Symbols: make([]string, n),
		Vals:    make([][]float64, n),
		Counts:  make([][]int, n),
	}
	copy(m.Symbols, df.ColNames)

	for ii := 0; ii < n; ii++ {
		m.Vals[ii] = make([]float64, n)
		m.Counts[ii] = make([]int, n)
		m.Vals[ii][ii] = 1.0
		m.Counts[ii][ii] = df.ValidCount(df.ColNames[ii])
	}

	for ii := 0; ii < n; ii++ {
		for jj := ii + 1; jj < n; jj++ {
			x, y := pairedRows(df.Vals[ii], df.Vals[jj])
			rho := 0.0
			if len(x) >= 2 {
				rho = stat.Correlation(x, y, nil)
				if math.IsNaN(rho) {
					// zero variance in one of the series
					rho = 0.0
				}
			}

			m.Vals[ii][jj] = rho
			m.Vals[jj][ii] = rho
			m.Counts[ii][jj] = len(x)
			m.Counts[jj][ii] = len(x)
		}
	}

	return m
}

// pairedRows extracts the rows where both columns have valid observations
func pairedRows(a, b []float64) ([]float64, []float64) {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(b))
	for idx := range a {
		if !math.IsNaN(a[idx]) && !math.IsNaN(b[idx]) {
			x = append(x, a[idx])
			y = append(y, b[idx])
		}
	}
	return x, y
}

// Len returns the number of symbols covered by the matrix
func (m *Matrix) Len() int {
	return len(m.Symbols)
}

// SymbolIndex returns the index of the given symbol; -1 if not present
func (m *Matrix) SymbolIndex(symbol string) int {
	for idx, s := range m.Symbols {
		if s == symbol {
			return idx
		}
	}
	return -1
}

// At returns the correlation between two symbol indices. Panics on
// out-of-range indices.
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= len(m.Symbols) || j >= len(m.Symbols) {
		log.Panic().Int("i", i).Int("j", j).Int("N", len(m.Symbols)).Msg("matrix index out of range")
	}
	return m.Vals[i][j]
}

// Table prints an ASCII formatted correlation matrix to a string
func (m *Matrix) Table() string {
	if len(m.Symbols) == 0 {
		return "<NO DATA>"
	}

	tableCols := append([]string{""}, m.Symbols...)

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(tableCols)
	table.SetBorder(false)

	for idx, symbol := range m.Symbols {
		row := make([]string, 0, len(m.Symbols)+1)
		row = append(row, symbol)
		for _, val := range m.Vals[idx] {
			row = append(row, fmt.Sprintf("%.3f", val))
		}
		table.Append(row)
	}

	table.Render()
	return s.String()
}
