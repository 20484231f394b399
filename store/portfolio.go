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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sigmasight/correlation-engine/calculation"
	"github.com/sigmasight/correlation-engine/database"
	"github.com/sigmasight/correlation-engine/position"
)

// PortfolioStore loads portfolio holdings from postgres
type PortfolioStore struct{}

func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{}
}

// Positions returns all holdings of the portfolio; numeric columns are
// transported as text so no float rounding sneaks into the decimal values
func (s *PortfolioStore) Positions(ctx context.Context, portfolioID uuid.UUID) ([]*position.Position, error) {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	var exists uuid.UUID
	err = trx.QueryRow(ctx, "SELECT id FROM portfolios WHERE id=$1", portfolioID).Scan(&exists)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, calculation.ErrPortfolioNotFound
		}
		subLog.Error().Stack().Err(err).Msg("portfolio lookup failed")
		return nil, err
	}

	sql := `SELECT id, symbol, quantity::text, last_price::text FROM positions WHERE portfolio_id=$1 ORDER BY symbol`
	rows, err := trx.Query(ctx, sql, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", sql).Msg("could not query positions")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	positions := make([]*position.Position, 0, 64)
	for rows.Next() {
		var (
			p         position.Position
			quantity  string
			lastPrice string
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &quantity, &lastPrice); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan position row")
			if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
				subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
			}
			return nil, err
		}

		if p.Quantity, err = decimal.NewFromString(quantity); err != nil {
			subLog.Error().Stack().Err(err).Str("Symbol", p.Symbol).Msg("could not parse quantity")
			continue
		}
		if p.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
			subLog.Error().Stack().Err(err).Str("Symbol", p.Symbol).Msg("could not parse last price")
			continue
		}

		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("position query read failed")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			subLog.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return positions, nil
}
