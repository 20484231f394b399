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

package position_test

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/sigmasight/correlation-engine/position"
)

func newPosition(symbol string, quantity, price float64) *position.Position {
	return &position.Position{
		ID:        uuid.New(),
		Symbol:    symbol,
		Quantity:  decimal.NewFromFloat(quantity),
		LastPrice: decimal.NewFromFloat(price),
	}
}

func symbols(positions []*position.Position) []string {
	res := make([]string, 0, len(positions))
	for _, p := range positions {
		res = append(res, p.Symbol)
	}
	return res
}

var _ = Describe("Position", func() {
	Context("with a mix of long and short holdings", func() {
		It("reports the absolute market value", func() {
			long := newPosition("AAPL", 100, 150)
			short := newPosition("TSLA", -50, 200)
			Expect(long.Value().InexactFloat64()).To(BeNumerically("==", 15000))
			Expect(short.Value().InexactFloat64()).To(BeNumerically("==", 10000))
		})

		It("sums gross value across positions", func() {
			positions := []*position.Position{
				newPosition("AAPL", 100, 150),
				newPosition("TSLA", -50, 200),
			}
			Expect(position.GrossValue(positions).InexactFloat64()).To(BeNumerically("==", 25000))
		})

		It("yields a zero weight for a non-positive portfolio value", func() {
			p := newPosition("AAPL", 100, 150)
			Expect(p.Weight(decimal.Zero).IsZero()).To(BeTrue())
			Expect(p.Weight(decimal.NewFromInt(-1)).IsZero()).To(BeTrue())
		})
	})
})

var _ = Describe("Filter", func() {
	var (
		positions      []*position.Position
		portfolioValue decimal.Decimal
		minValue       decimal.Decimal
		minWeight      decimal.Decimal
	)

	BeforeEach(func() {
		// A is worth 15,000 (~37%), B 10,000 (~24%), C 9,000 (~22%) of a
		// 41,000 portfolio that also holds smaller residual positions
		positions = []*position.Position{
			newPosition("A", 100, 150),
			newPosition("B", 100, 100),
			newPosition("C", 100, 90),
		}
		portfolioValue = decimal.NewFromInt(41000)
		minValue = decimal.NewFromInt(10000)
		minWeight = decimal.NewFromFloat(0.25)
	})

	DescribeTable("combining thresholds",
		func(mode position.FilterMode, expected []string) {
			kept := position.Filter(positions, portfolioValue, &minValue, &minWeight, mode)
			Expect(symbols(kept)).To(Equal(expected))
		},
		Entry("value only keeps A and B", position.FilterValueOnly, []string{"A", "B"}),
		Entry("weight only keeps A", position.FilterWeightOnly, []string{"A"}),
		Entry("both keeps only A", position.FilterBoth, []string{"A"}),
		Entry("either keeps A and B", position.FilterEither, []string{"A", "B"}),
	)

	Context("when a threshold is unset", func() {
		It("treats a nil threshold as satisfied in both mode", func() {
			kept := position.Filter(positions, portfolioValue, &minValue, nil, position.FilterBoth)
			Expect(symbols(kept)).To(Equal([]string{"A", "B"}))
		})

		It("never lets a nil threshold satisfy either mode", func() {
			kept := position.Filter(positions, portfolioValue, nil, &minWeight, position.FilterEither)
			Expect(symbols(kept)).To(Equal([]string{"A"}))
		})

		It("keeps everything when both thresholds are unset in both mode", func() {
			kept := position.Filter(positions, portfolioValue, nil, nil, position.FilterBoth)
			Expect(kept).To(HaveLen(3))
		})

		It("keeps nothing when both thresholds are unset in either mode", func() {
			kept := position.Filter(positions, portfolioValue, nil, nil, position.FilterEither)
			Expect(kept).To(BeEmpty())
		})
	})

	Context("boundary values", func() {
		It("keeps a position exactly at the value threshold", func() {
			exact := decimal.NewFromInt(10000)
			kept := position.Filter(positions, portfolioValue, &exact, nil, position.FilterValueOnly)
			Expect(symbols(kept)).To(ContainElement("B"))
		})

		It("filters short positions on absolute value", func() {
			shorts := []*position.Position{newPosition("SPXS", -100, 150)}
			kept := position.Filter(shorts, decimal.NewFromInt(15000), &minValue, nil, position.FilterValueOnly)
			Expect(symbols(kept)).To(Equal([]string{"SPXS"}))
		})
	})
})

var _ = Describe("ParseFilterMode", func() {
	It("accepts every recognized mode", func() {
		for _, mode := range []string{"value_only", "weight_only", "both", "either"} {
			parsed, err := position.ParseFilterMode(mode)
			Expect(err).To(BeNil())
			Expect(string(parsed)).To(Equal(mode))
		}
	})

	It("rejects unknown modes", func() {
		_, err := position.ParseFilterMode("sometimes")
		Expect(err).To(MatchError(position.ErrUnknownFilterMode))
	})
})
