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

package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sigmasight/correlation-engine/calculation"
	"github.com/sigmasight/correlation-engine/cluster"
	"github.com/sigmasight/correlation-engine/database"
)

// CalculationStore persists correlation calculations and answers the
// idempotency probe. All writes for one calculation commit or roll back as
// a single transaction; a unique index on (portfolio_id, duration_days,
// calculation_date) makes the loser of a concurrent duplicate run fail at
// commit instead of double-inserting.
type CalculationStore struct{}

func NewCalculationStore() *CalculationStore {
	return &CalculationStore{}
}

// Lookup rehydrates the full calculation for the idempotency key, including
// pairwise rows and cluster snapshots. Returns ErrCalculationNotFound when
// no calculation exists.
func (s *CalculationStore) Lookup(ctx context.Context, portfolioID uuid.UUID, durationDays int, calculationDate time.Time) (*calculation.CorrelationCalculation, error) {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).Int("DurationDays", durationDays).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	calc := &calculation.CorrelationCalculation{
		PortfolioID:     portfolioID,
		DurationDays:    durationDays,
		CalculationDate: calculationDate,
	}

	var configRaw []byte
	sql := `SELECT id, overall_correlation, concentration_score, effective_positions, data_quality,
		positions_included, positions_excluded, config, fingerprint
		FROM correlation_calculations
		WHERE portfolio_id=$1 AND duration_days=$2 AND calculation_date=$3`
	err = trx.QueryRow(ctx, sql, portfolioID, durationDays, calculationDate).Scan(
		&calc.ID, &calc.OverallCorrelation, &calc.ConcentrationScore, &calc.EffectivePositions,
		&calc.DataQuality, &calc.PositionsIncluded, &calc.PositionsExcluded, &configRaw, &calc.Fingerprint)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, calculation.ErrCalculationNotFound
		}
		subLog.Error().Stack().Err(err).Str("Query", sql).Msg("calculation lookup failed")
		return nil, err
	}

	calc.Config = &calculation.Config{}
	if err := json.Unmarshal(configRaw, calc.Config); err != nil {
		subLog.Warn().Err(err).Msg("could not unmarshal stored config echo")
	}

	if err := s.loadPairwise(ctx, trx, calc); err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := s.loadClusters(ctx, trx, calc); err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return calc, nil
}

func (s *CalculationStore) loadPairwise(ctx context.Context, trx pgx.Tx, calc *calculation.CorrelationCalculation) error {
	sql := `SELECT symbol_1, symbol_2, value, data_points, statistical_significance
		FROM pairwise_correlations WHERE calculation_id=$1 ORDER BY symbol_1, symbol_2`
	rows, err := trx.Query(ctx, sql, calc.ID)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query pairwise correlations")
		return err
	}

	for rows.Next() {
		var pair calculation.PairwiseCorrelation
		if err := rows.Scan(&pair.Symbol1, &pair.Symbol2, &pair.Value, &pair.DataPoints, &pair.StatisticalSignificance); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan pairwise row")
			return err
		}
		calc.Pairwise = append(calc.Pairwise, &pair)
	}

	return rows.Err()
}

func (s *CalculationStore) loadClusters(ctx context.Context, trx pgx.Tx, calc *calculation.CorrelationCalculation) error {
	sql := `SELECT id, nickname, avg_correlation, total_value::text, portfolio_percentage
		FROM clusters WHERE calculation_id=$1 ORDER BY sort_order`
	rows, err := trx.Query(ctx, sql, calc.ID)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query clusters")
		return err
	}

	clusterIDs := make([]uuid.UUID, 0)
	byID := make(map[uuid.UUID]*cluster.Cluster)
	for rows.Next() {
		var (
			clusterID  uuid.UUID
			c          cluster.Cluster
			totalValue string
		)
		if err := rows.Scan(&clusterID, &c.Nickname, &c.AvgCorrelation, &totalValue, &c.PortfolioPercentage); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan cluster row")
			return err
		}
		if c.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
			log.Error().Stack().Err(err).Msg("could not parse cluster total value")
			return err
		}

		clusterIDs = append(clusterIDs, clusterID)
		byID[clusterID] = &c
		calc.Clusters = append(calc.Clusters, &c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(clusterIDs) == 0 {
		return nil
	}

	sql = `SELECT cluster_id, position_id, symbol, value::text, portfolio_percentage, correlation_to_cluster
		FROM cluster_memberships WHERE cluster_id = ANY($1) ORDER BY symbol`
	memberRows, err := trx.Query(ctx, sql, clusterIDs)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query cluster memberships")
		return err
	}

	for memberRows.Next() {
		var (
			clusterID uuid.UUID
			m         cluster.Membership
			value     string
		)
		if err := memberRows.Scan(&clusterID, &m.PositionID, &m.Symbol, &value, &m.PortfolioPercentage, &m.CorrelationToCluster); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan membership row")
			return err
		}
		if m.Value, err = decimal.NewFromString(value); err != nil {
			log.Error().Stack().Err(err).Msg("could not parse membership value")
			return err
		}

		if c, ok := byID[clusterID]; ok {
			c.Members = append(c.Members, &m)
			c.Symbols = append(c.Symbols, m.Symbol)
		}
	}

	return memberRows.Err()
}

// Save persists the calculation, all N² pairwise rows, and every
// cluster/membership row as one atomic unit. Any failure rolls the whole
// transaction back and returns the original error.
func (s *CalculationStore) Save(ctx context.Context, calc *calculation.CorrelationCalculation) error {
	subLog := log.With().Str("CalculationID", calc.ID.String()).Str("PortfolioID", calc.PortfolioID.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return err
	}

	configRaw, err := json.Marshal(calc.Config)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not marshal config echo")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return err
	}

	sql := `INSERT INTO correlation_calculations (
		"id", "portfolio_id", "calculation_date", "duration_days",
		"overall_correlation", "concentration_score", "effective_positions",
		"data_quality", "positions_included", "positions_excluded",
		"config", "fingerprint"
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = trx.Exec(ctx, sql, calc.ID, calc.PortfolioID, calc.CalculationDate, calc.DurationDays,
		calc.OverallCorrelation, calc.ConcentrationScore, calc.EffectivePositions,
		calc.DataQuality, calc.PositionsIncluded, calc.PositionsExcluded, configRaw, calc.Fingerprint)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", sql).Msg("failed to save calculation")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := s.savePairwise(ctx, trx, calc); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to save pairwise correlations")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := s.saveClusters(ctx, trx, calc); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to save clusters")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit calculation")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return err
	}

	return nil
}

func (s *CalculationStore) savePairwise(ctx context.Context, trx pgx.Tx, calc *calculation.CorrelationCalculation) error {
	rows := make([][]interface{}, 0, len(calc.Pairwise))
	for _, pair := range calc.Pairwise {
		var significance interface{}
		if pair.StatisticalSignificance != nil {
			significance = *pair.StatisticalSignificance
		}
		rows = append(rows, []interface{}{
			calc.ID, pair.Symbol1, pair.Symbol2, pair.Value, pair.DataPoints, significance,
		})
	}

	_, err := trx.CopyFrom(ctx,
		pgx.Identifier{"pairwise_correlations"},
		[]string{"calculation_id", "symbol_1", "symbol_2", "value", "data_points", "statistical_significance"},
		pgx.CopyFromRows(rows))
	return err
}

func (s *CalculationStore) saveClusters(ctx context.Context, trx pgx.Tx, calc *calculation.CorrelationCalculation) error {
	clusterSQL := `INSERT INTO clusters (
		"id", "calculation_id", "nickname", "avg_correlation", "total_value", "portfolio_percentage", "sort_order"
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	memberSQL := `INSERT INTO cluster_memberships (
		"cluster_id", "position_id", "symbol", "value", "portfolio_percentage", "correlation_to_cluster"
	) VALUES ($1, $2, $3, $4, $5, $6)`

	for sortOrder, c := range calc.Clusters {
		clusterID := uuid.New()
		_, err := trx.Exec(ctx, clusterSQL, clusterID, calc.ID, c.Nickname, c.AvgCorrelation,
			c.TotalValue.String(), c.PortfolioPercentage, sortOrder)
		if err != nil {
			return err
		}

		for _, m := range c.Members {
			_, err := trx.Exec(ctx, memberSQL, clusterID, m.PositionID, m.Symbol,
				m.Value.String(), m.PortfolioPercentage, m.CorrelationToCluster)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
