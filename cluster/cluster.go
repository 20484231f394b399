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

package cluster

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sigmasight/correlation-engine/correlation"
	"github.com/sigmasight/correlation-engine/position"
)

// Cluster is a group of positions whose returns move together. Clusters are
// ephemeral; they are recomputed on every calculation run and persisted as a
// snapshot of that run.
type Cluster struct {
	Symbols             []string        `json:"symbols"`
	AvgCorrelation      float64         `json:"avgCorrelation"`
	Nickname            string          `json:"nickname"`
	TotalValue          decimal.Decimal `json:"totalValue"`
	PortfolioPercentage float64         `json:"portfolioPercentage"`
	Members             []*Membership   `json:"members"`
}

// Membership records one position's participation in a cluster
type Membership struct {
	PositionID           uuid.UUID       `json:"positionId"`
	Symbol               string          `json:"symbol"`
	Value                decimal.Decimal `json:"value"`
	PortfolioPercentage  float64         `json:"portfolioPercentage"`
	CorrelationToCluster float64         `json:"correlationToCluster"`
}

// ReferenceData carries the tag and sector lookups the namer needs. Both
// maps may be sparse; missing entries degrade the naming waterfall but never
// fail a run.
type ReferenceData struct {
	TagsByPosition map[uuid.UUID][]string
	SectorBySymbol map[string]string
}

// Detect extracts clusters of highly correlated positions from the
// correlation matrix. Symbols i != j are adjacent when |matrix[i][j]| >=
// threshold; each connected component of the adjacency graph with at least 2
// members is promoted to a Cluster. Components are found with an iterative
// depth-first search so large portfolios cannot exhaust the call stack.
//
// Clusters are returned sorted by descending member count; equal-size
// clusters sort by their smallest member symbol so results are deterministic
// regardless of discovery order.
func Detect(m *correlation.Matrix, positions []*position.Position, portfolioValue decimal.Decimal, threshold float64, ref *ReferenceData) []*Cluster {
	n := m.Len()
	visited := make([]bool, n)
	clusters := make([]*Cluster, 0)

	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}

		component := visit(m, threshold, visited, start)
		if len(component) < 2 {
			continue
		}

		clusters = append(clusters, build(m, component, positions, portfolioValue, ref))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Symbols) != len(clusters[j].Symbols) {
			return len(clusters[i].Symbols) > len(clusters[j].Symbols)
		}
		return clusters[i].Symbols[0] < clusters[j].Symbols[0]
	})

	return clusters
}

// visit runs a depth-first search from start with an explicit stack and
// returns the indices of the connected component
func visit(m *correlation.Matrix, threshold float64, visited []bool, start int) []int {
	component := []int{}
	stack := []int{start}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node] {
			continue
		}
		visited[node] = true
		component = append(component, node)

		for next := 0; next < m.Len(); next++ {
			if next == node || visited[next] {
				continue
			}
			if math.Abs(m.At(node, next)) >= threshold {
				stack = append(stack, next)
			}
		}
	}

	return component
}

func build(m *correlation.Matrix, component []int, positions []*position.Position, portfolioValue decimal.Decimal, ref *ReferenceData) *Cluster {
	symbols := make([]string, 0, len(component))
	for _, idx := range component {
		symbols = append(symbols, m.Symbols[idx])
	}
	sort.Strings(symbols)

	// average signed correlation over all unordered pairs in the component
	sum := 0.0
	pairs := 0
	for ii := 0; ii < len(component); ii++ {
		for jj := ii + 1; jj < len(component); jj++ {
			sum += m.At(component[ii], component[jj])
			pairs++
		}
	}
	avg := 0.0
	if pairs > 0 {
		avg = sum / float64(pairs)
	}

	bySymbol := position.BySymbol(positions)
	c := &Cluster{
		Symbols:        symbols,
		AvgCorrelation: avg,
		TotalValue:     decimal.Zero,
		Members:        make([]*Membership, 0, len(symbols)),
	}

	for _, symbol := range symbols {
		pos, ok := bySymbol[symbol]
		if !ok {
			continue
		}

		value := pos.Value()
		c.TotalValue = c.TotalValue.Add(value)

		weight := 0.0
		if portfolioValue.Sign() > 0 {
			weight, _ = value.Div(portfolioValue).Float64()
		}

		c.Members = append(c.Members, &Membership{
			PositionID:           pos.ID,
			Symbol:               symbol,
			Value:                value,
			PortfolioPercentage:  weight,
			CorrelationToCluster: memberCorrelation(m, symbol, symbols),
		})
	}

	if portfolioValue.Sign() > 0 {
		c.PortfolioPercentage, _ = c.TotalValue.Div(portfolioValue).Float64()
	}

	c.Nickname = Name(symbols, positions, ref)
	return c
}

// memberCorrelation is the mean correlation between one member and every
// other member of the cluster
func memberCorrelation(m *correlation.Matrix, symbol string, symbols []string) float64 {
	self := m.SymbolIndex(symbol)
	if self == -1 {
		return 0
	}

	sum := 0.0
	cnt := 0
	for _, other := range symbols {
		if other == symbol {
			continue
		}
		otherIdx := m.SymbolIndex(other)
		if otherIdx == -1 {
			continue
		}
		sum += m.At(self, otherIdx)
		cnt++
	}

	if cnt == 0 {
		return 0
	}
	return sum / float64(cnt)
}
