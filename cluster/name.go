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
	"fmt"
	"sort"

	"github.com/sigmasight/correlation-engine/position"
)

// sharedNameFloor is the fraction of members that must share a tag or
// sector before it names the cluster
const sharedNameFloor = 0.7

// Name assigns a descriptive label to a cluster via a priority waterfall:
//
//  1. a tag shared by at least 70% of members
//  2. a sector shared by at least 70% of members
//  3. "{largest member symbol} lookalikes"
//  4. "Cluster {first symbol}" when no member has position data at all
//
// Missing tag or sector data for individual members never blocks a rule;
// those members simply don't contribute to the count.
func Name(symbols []string, positions []*position.Position, ref *ReferenceData) string {
	if ref == nil {
		ref = &ReferenceData{}
	}

	bySymbol := position.BySymbol(positions)
	need := int(sharedNameFloor * float64(len(symbols)))

	// shared tag
	tagCounts := make(map[string]int)
	for _, symbol := range symbols {
		pos, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		for _, tag := range ref.TagsByPosition[pos.ID] {
			tagCounts[tag]++
		}
	}
	if name, ok := dominant(tagCounts, need); ok {
		return name
	}

	// shared sector
	sectorCounts := make(map[string]int)
	for _, symbol := range symbols {
		if sector, ok := ref.SectorBySymbol[symbol]; ok && sector != "" {
			sectorCounts[sector]++
		}
	}
	if name, ok := dominant(sectorCounts, need); ok {
		return name
	}

	// largest position by absolute value
	var largest *position.Position
	for _, symbol := range symbols {
		pos, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		if largest == nil || pos.Value().GreaterThan(largest.Value()) {
			largest = pos
		}
	}
	if largest != nil {
		return fmt.Sprintf("%s lookalikes", largest.Symbol)
	}

	// stale reference data: no member matched a position
	return fmt.Sprintf("Cluster %s", symbols[0])
}

// dominant picks the most common name whose count meets the floor; ties
// break lexicographically so naming is deterministic
func dominant(counts map[string]int, need int) (string, bool) {
	if need < 1 {
		need = 1
	}

	names := make([]string, 0, len(counts))
	for name, cnt := range counts {
		if cnt >= need {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}

	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	return names[0], true
}
