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

package calculation_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/sigmasight/correlation-engine/calculation"
	"github.com/sigmasight/correlation-engine/position"
	"github.com/sigmasight/correlation-engine/returns"
)

type fakePortfolios struct {
	positions map[uuid.UUID][]*position.Position
}

func (f *fakePortfolios) Positions(_ context.Context, portfolioID uuid.UUID) ([]*position.Position, error) {
	positions, ok := f.positions[portfolioID]
	if !ok {
		return nil, calculation.ErrPortfolioNotFound
	}
	return positions, nil
}

type fakePrices struct {
	prices map[string][]returns.Quote
}

func (f *fakePrices) DailyCloses(_ context.Context, symbols []string, _ time.Time, _ time.Time) (map[string][]returns.Quote, error) {
	res := make(map[string][]returns.Quote, len(symbols))
	for _, symbol := range symbols {
		if quotes, ok := f.prices[symbol]; ok {
			res[symbol] = quotes
		}
	}
	return res, nil
}

type fakeReference struct {
	tags       map[uuid.UUID][]string
	sectors    map[string]string
	tagsErr    error
	sectorsErr error
}

func (f *fakeReference) Tags(_ context.Context, _ []uuid.UUID) (map[uuid.UUID][]string, error) {
	if f.tagsErr != nil {
		return nil, f.tagsErr
	}
	return f.tags, nil
}

func (f *fakeReference) Sectors(_ context.Context, _ []string, _ time.Time) (map[string]string, error) {
	if f.sectorsErr != nil {
		return nil, f.sectorsErr
	}
	return f.sectors, nil
}

type fakeStore struct {
	saved   []*calculation.CorrelationCalculation
	saveErr error
}

func storeKey(portfolioID uuid.UUID, durationDays int, calculationDate time.Time) string {
	return fmt.Sprintf("%s|%d|%s", portfolioID, durationDays, calculationDate.Format("2006-01-02"))
}

func (f *fakeStore) Lookup(_ context.Context, portfolioID uuid.UUID, durationDays int, calculationDate time.Time) (*calculation.CorrelationCalculation, error) {
	key := storeKey(portfolioID, durationDays, calculationDate)
	for _, calc := range f.saved {
		if storeKey(calc.PortfolioID, calc.DurationDays, calc.CalculationDate) == key {
			return calc, nil
		}
	}
	return nil, calculation.ErrCalculationNotFound
}

func (f *fakeStore) Save(_ context.Context, calc *calculation.CorrelationCalculation) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, calc)
	return nil
}

// quotes builds n consecutive daily closes ending at end, cycling the ratio
// pattern between successive days
func quotes(end time.Time, start float64, ratios []float64, n int) []returns.Quote {
	res := make([]returns.Quote, n)
	close := start
	for ii := 0; ii < n; ii++ {
		res[ii] = returns.Quote{Date: end.AddDate(0, 0, ii-n+1), Close: close}
		close *= ratios[ii%len(ratios)]
	}
	return res
}

func newHolding(symbol string, quantity, price int64) *position.Position {
	return &position.Position{
		ID:        uuid.New(),
		Symbol:    symbol,
		Quantity:  decimal.NewFromInt(quantity),
		LastPrice: decimal.NewFromInt(price),
	}
}

var _ = Describe("Coordinator", func() {
	var (
		ctx         context.Context
		portfolioID uuid.UUID
		calcDate    time.Time
		cfg         *calculation.Config
		portfolios  *fakePortfolios
		prices      *fakePrices
		reference   *fakeReference
		store       *fakeStore
		coordinator *calculation.Coordinator
	)

	BeforeEach(func() {
		ctx = context.Background()
		portfolioID = uuid.New()
		calcDate = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

		minValue := decimal.NewFromInt(1000)
		cfg = &calculation.Config{
			MinPositionValue:     &minValue,
			FilterMode:           position.FilterValueOnly,
			CorrelationThreshold: 0.7,
			DurationDays:         40,
			MinDataPoints:        20,
		}

		portfolios = &fakePortfolios{
			positions: map[uuid.UUID][]*position.Position{
				portfolioID: {
					newHolding("AAPL", 100, 150), // 15,000
					newHolding("MSFT", 100, 100), // 10,000
					newHolding("XOM", 100, 90),   // 9,000
					newHolding("PENNY", 100, 5),  // 500, below min value
				},
			},
		}

		// AAPL and MSFT share a return pattern so they correlate perfectly;
		// XOM's pattern is orthogonal over whole periods so it correlates to 0
		prices = &fakePrices{
			prices: map[string][]returns.Quote{
				"AAPL": quotes(calcDate, 100, []float64{1.02, 0.99}, 25),
				"MSFT": quotes(calcDate, 50, []float64{1.02, 0.99}, 25),
				"XOM":  quotes(calcDate, 80, []float64{1.02, 1.02, 0.99, 0.99}, 25),
			},
		}

		reference = &fakeReference{
			tags:    map[uuid.UUID][]string{},
			sectors: map[string]string{},
		}

		store = &fakeStore{}
		coordinator = calculation.NewCoordinator(portfolios, prices, reference, store)
	})

	Describe("a successful run", func() {
		It("clusters the correlated positions and persists the result", func() {
			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())

			Expect(calc.PortfolioID).To(Equal(portfolioID))
			Expect(calc.DurationDays).To(Equal(40))
			Expect(calc.PositionsIncluded).To(Equal(3))
			Expect(calc.PositionsExcluded).To(Equal(1))
			Expect(calc.DataQuality).To(Equal("sufficient"))
			Expect(calc.Fingerprint).To(HaveLen(32))

			Expect(calc.Clusters).To(HaveLen(1))
			Expect(calc.Clusters[0].Symbols).To(Equal([]string{"AAPL", "MSFT"}))
			Expect(calc.Clusters[0].AvgCorrelation).To(BeNumerically("~", 1.0, 1e-6))

			// full matrix flattened, diagonal included
			Expect(calc.Pairwise).To(HaveLen(9))
			Expect(calc.Matrix().Symbols).To(Equal([]string{"AAPL", "MSFT", "XOM"}))

			Expect(store.saved).To(HaveLen(1))
			Expect(store.saved[0].ID).To(Equal(calc.ID))
		})

		It("reports portfolio metrics", func() {
			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())

			Expect(calc.EffectivePositions).To(BeNumerically(">", 1.0))
			Expect(calc.EffectivePositions).To(BeNumerically("<", 3.0))
			// AAPL + MSFT hold 25,000 of the 34,000 filtered value
			Expect(calc.ConcentrationScore).To(BeNumerically("~", 25000.0/34000.0, 1e-6))
		})

		It("names clusters from sector reference data", func() {
			reference.sectors = map[string]string{
				"AAPL": "Information Technology",
				"MSFT": "Information Technology",
			}

			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(calc.Clusters[0].Nickname).To(Equal("Information Technology"))
		})

		It("degrades to the largest member when reference lookups fail", func() {
			reference.tagsErr = errors.New("tag service down")
			reference.sectorsErr = errors.New("sector service down")

			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(calc.Clusters[0].Nickname).To(Equal("AAPL lookalikes"))
		})
	})

	Describe("idempotency", func() {
		It("returns the stored calculation for a repeated key", func() {
			first, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())

			second, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(second.ID).To(Equal(first.ID))
			Expect(store.saved).To(HaveLen(1))
		})

		It("recomputes for a different duration", func() {
			first, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())

			cfg.DurationDays = 41
			second, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(second.ID).ToNot(Equal(first.ID))
			Expect(store.saved).To(HaveLen(2))
		})

		It("recomputes when forced", func() {
			first, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())

			cfg.ForceRecalculate = true
			second, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(second.ID).ToNot(Equal(first.ID))
			Expect(store.saved).To(HaveLen(2))
		})
	})

	Describe("fingerprinting", func() {
		It("is deterministic for identical inputs", func() {
			cfg.ForceRecalculate = true
			first, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			second, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(second.Fingerprint).To(Equal(first.Fingerprint))
		})

		It("changes when the config changes", func() {
			cfg.ForceRecalculate = true
			first, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())

			cfg.CorrelationThreshold = 0.8
			second, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(second.Fingerprint).ToNot(Equal(first.Fingerprint))
		})
	})

	Describe("failure paths", func() {
		It("propagates an unknown portfolio", func() {
			_, err := coordinator.Run(ctx, uuid.New(), calcDate, cfg)
			Expect(err).To(MatchError(calculation.ErrPortfolioNotFound))
			Expect(store.saved).To(BeEmpty())
		})

		It("fails when no position passes the significance filter", func() {
			huge := decimal.NewFromInt(1_000_000)
			cfg.MinPositionValue = &huge

			_, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(MatchError(calculation.ErrInsufficientData))
		})

		It("fails when every symbol is below the data floor", func() {
			cfg.MinDataPoints = 100

			_, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(MatchError(calculation.ErrInsufficientData))
			Expect(store.saved).To(BeEmpty())
		})

		It("counts symbols with no price history as excluded", func() {
			delete(prices.prices, "XOM")

			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(calc.PositionsIncluded).To(Equal(2))
			// PENNY fails the filter, XOM has no prices at all
			Expect(calc.PositionsExcluded).To(Equal(2))
		})

		It("counts an empty price series the same as a missing one", func() {
			prices.prices["XOM"] = []returns.Quote{}

			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(calc.PositionsIncluded).To(Equal(2))
			Expect(calc.PositionsExcluded).To(Equal(2))
		})

		It("fails when no symbol has any price history", func() {
			prices.prices = map[string][]returns.Quote{}

			_, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(MatchError(calculation.ErrInsufficientData))
		})

		It("counts symbols dropped at the data floor as excluded", func() {
			// XOM only has 10 quotes; it falls below the 20 observation floor
			prices.prices["XOM"] = quotes(calcDate, 80, []float64{1.02, 0.99}, 10)

			calc, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(BeNil())
			Expect(calc.PositionsIncluded).To(Equal(2))
			Expect(calc.PositionsExcluded).To(Equal(2))
		})

		It("propagates persistence failures", func() {
			store.saveErr = errors.New("serialization conflict")

			_, err := coordinator.Run(ctx, portfolioID, calcDate, cfg)
			Expect(err).To(MatchError(store.saveErr))
		})
	})
})
