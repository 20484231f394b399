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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sigmasight/correlation-engine/cluster"
	"github.com/sigmasight/correlation-engine/correlation"
	"github.com/sigmasight/correlation-engine/metrics"
	"github.com/sigmasight/correlation-engine/position"
	"github.com/sigmasight/correlation-engine/returns"
)

const opentelemetryName = "github.com/sigmasight/correlation-engine/calculation"

// Coordinator orchestrates one correlation calculation: filter positions,
// load returns, validate data sufficiency, correlate, cluster, compute
// metrics, and persist the result atomically. Coordinators hold no run
// state; one instance may serve many portfolios, and independent portfolios
// may run concurrently.
type Coordinator struct {
	Portfolios PortfolioRepository
	Prices     PriceRepository
	Reference  ReferenceRepository
	Store      Store
}

// NewCoordinator builds a coordinator over the given repository ports
func NewCoordinator(portfolios PortfolioRepository, prices PriceRepository, reference ReferenceRepository, store Store) *Coordinator {
	return &Coordinator{
		Portfolios: portfolios,
		Prices:     prices,
		Reference:  reference,
		Store:      store,
	}
}

// Run executes the full pipeline for one portfolio and calculation date.
// When a calculation already exists for the (portfolio, duration, date) key
// and the config does not force recalculation, the stored result is returned
// without recomputing.
func (c *Coordinator) Run(ctx context.Context, portfolioID uuid.UUID, calculationDate time.Time, cfg *Config) (*CorrelationCalculation, error) {
	ctx, span := otel.Tracer(opentelemetryName).Start(ctx, "calculation.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("portfolio_id", portfolioID.String()),
		attribute.Int("duration_days", cfg.DurationDays),
	)

	subLog := log.With().
		Str("PortfolioID", portfolioID.String()).
		Time("CalculationDate", calculationDate).
		Int("DurationDays", cfg.DurationDays).
		Logger()

	// idempotency check
	if !cfg.ForceRecalculate {
		existing, err := c.Store.Lookup(ctx, portfolioID, cfg.DurationDays, calculationDate)
		if err == nil {
			subLog.Info().Str("CalculationID", existing.ID.String()).Msg("returning existing calculation")
			return existing, nil
		}
		if !errors.Is(err, ErrCalculationNotFound) {
			subLog.Error().Stack().Err(err).Msg("idempotency lookup failed")
			return nil, err
		}
	}

	// load positions
	positions, err := c.Portfolios.Positions(ctx, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not load positions")
		return nil, err
	}
	portfolioValue := position.GrossValue(positions)

	// filter to significant positions
	filtered := position.Filter(positions, portfolioValue, cfg.MinPositionValue, cfg.MinPortfolioWeight, cfg.FilterMode)
	excluded := len(positions) - len(filtered)
	if len(filtered) == 0 {
		subLog.Warn().Int("NumPositions", len(positions)).Msg("no positions passed significance filter")
		return nil, fmt.Errorf("%w: no positions passed the significance filter", ErrInsufficientData)
	}

	// load returns over the lookback window
	symbols := make([]string, 0, len(filtered))
	for _, p := range filtered {
		symbols = append(symbols, p.Symbol)
	}
	begin := calculationDate.AddDate(0, 0, -cfg.DurationDays)

	prices, err := c.Prices.DailyCloses(ctx, symbols, begin, calculationDate)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not load price history")
		return nil, err
	}

	df := returns.FromPrices(prices)

	// symbols with no price history at all never become a column; they fail
	// the data floor the same as any other thin series so that included plus
	// excluded always covers the filtered universe
	dropped := make([]string, 0)
	for _, symbol := range symbols {
		if df.ColIndex(symbol) == -1 {
			dropped = append(dropped, symbol)
		}
	}
	if len(dropped) > 0 {
		subLog.Warn().Strs("Symbols", dropped).Msg("excluding symbols with no price history")
	}

	// enforce the per-symbol data floor
	df, floorDropped := returns.DropInsufficient(df, cfg.MinDataPoints)
	if len(floorDropped) > 0 {
		subLog.Warn().Strs("Symbols", floorDropped).Int("MinDataPoints", cfg.MinDataPoints).Msg("excluding symbols below data-point floor")
	}
	dropped = append(dropped, floorDropped...)
	if df.ColCount() == 0 || df.Len() == 0 {
		return nil, fmt.Errorf("%w: no symbols have %d valid return observations", ErrInsufficientData, cfg.MinDataPoints)
	}

	// correlate
	matrix := correlation.FromDataFrame(df)

	// reference data for naming; per-symbol gaps degrade gracefully
	ref := c.loadReference(ctx, filtered, calculationDate)

	// cluster
	clusters := cluster.Detect(matrix, filtered, portfolioValue, cfg.CorrelationThreshold, ref)

	// portfolio metrics
	pm := metrics.Compute(matrix, filtered, clusters)

	calc := &CorrelationCalculation{
		ID:                 uuid.New(),
		PortfolioID:        portfolioID,
		CalculationDate:    calculationDate,
		DurationDays:       cfg.DurationDays,
		OverallCorrelation: pm.OverallCorrelation,
		ConcentrationScore: pm.ConcentrationScore,
		EffectivePositions: pm.EffectivePositions,
		DataQuality:        pm.DataQuality,
		PositionsIncluded:  matrix.Len(),
		PositionsExcluded:  excluded + len(dropped),
		Config:             cfg,
		Fingerprint:        fingerprint(portfolioID, calculationDate, cfg),
		Pairwise:           pairwiseRows(matrix),
		Clusters:           clusters,
	}

	// persist everything as one atomic unit
	if err := c.Store.Save(ctx, calc); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not persist calculation")
		return nil, err
	}

	subLog.Info().
		Str("CalculationID", calc.ID.String()).
		Int("NumClusters", len(clusters)).
		Float64("OverallCorrelation", pm.OverallCorrelation).
		Float64("EffectivePositions", pm.EffectivePositions).
		Msg("calculation complete")

	return calc, nil
}

// loadReference fetches tag and sector lookups for the namer. Failures here
// are per-symbol quality issues, not run-fatal: log and continue with what
// loaded.
func (c *Coordinator) loadReference(ctx context.Context, positions []*position.Position, asOf time.Time) *cluster.ReferenceData {
	ref := &cluster.ReferenceData{
		TagsByPosition: map[uuid.UUID][]string{},
		SectorBySymbol: map[string]string{},
	}

	positionIDs := make([]uuid.UUID, 0, len(positions))
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		positionIDs = append(positionIDs, p.ID)
		symbols = append(symbols, p.Symbol)
	}

	tags, err := c.Reference.Tags(ctx, positionIDs)
	if err != nil {
		log.Warn().Err(err).Msg("could not load tags; naming will skip the tag rule")
	} else {
		ref.TagsByPosition = tags
	}

	sectors, err := c.Reference.Sectors(ctx, symbols, asOf)
	if err != nil {
		log.Warn().Err(err).Msg("could not load sectors; naming will skip the sector rule")
	} else {
		ref.SectorBySymbol = sectors
	}

	return ref
}

// pairwiseRows flattens the matrix into ordered pair rows, both directions
// plus the diagonal, each annotated with a two-sided significance value when
// enough paired observations exist
func pairwiseRows(m *correlation.Matrix) []*PairwiseCorrelation {
	n := m.Len()
	rows := make([]*PairwiseCorrelation, 0, n*n)
	for ii := 0; ii < n; ii++ {
		for jj := 0; jj < n; jj++ {
			rows = append(rows, &PairwiseCorrelation{
				Symbol1:                 m.Symbols[ii],
				Symbol2:                 m.Symbols[jj],
				Value:                   m.Vals[ii][jj],
				DataPoints:              m.Counts[ii][jj],
				StatisticalSignificance: correlation.Significance(m.Vals[ii][jj], m.Counts[ii][jj]),
			})
		}
	}
	return rows
}
