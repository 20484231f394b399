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
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/sigmasight/correlation-engine/common"
	"github.com/sigmasight/correlation-engine/database"
	"github.com/sigmasight/correlation-engine/returns"
)

// PriceStore loads daily close prices from postgres with a two-tier cache
// in front; correlation runs for overlapping portfolios hit the same
// symbol+range keys constantly
type PriceStore struct{}

func NewPriceStore() *PriceStore {
	return &PriceStore{}
}

func cacheKey(symbol string, begin, end time.Time) string {
	return fmt.Sprintf("eod:%s:%s:%s", symbol, begin.Format("2006-01-02"), end.Format("2006-01-02"))
}

// DailyCloses returns the close series per symbol over [begin, end]
// inclusive. Cached symbols are served from the cache; the remainder load in
// one query.
func (s *PriceStore) DailyCloses(ctx context.Context, symbols []string, begin time.Time, end time.Time) (map[string][]returns.Quote, error) {
	quotes := make(map[string][]returns.Quote, len(symbols))

	misses := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		raw, err := common.CacheGet(cacheKey(symbol, begin, end))
		if err != nil {
			misses = append(misses, symbol)
			continue
		}

		var series []returns.Quote
		if err := json.Unmarshal(raw, &series); err != nil {
			log.Warn().Err(err).Str("Symbol", symbol).Msg("could not unmarshal cached quotes; reloading")
			misses = append(misses, symbol)
			continue
		}
		quotes[symbol] = series
	}

	if len(misses) == 0 {
		return quotes, nil
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	sql := `SELECT symbol, event_date, close FROM eod WHERE symbol = ANY($1) AND event_date BETWEEN $2 AND $3 ORDER BY symbol, event_date`
	rows, err := trx.Query(ctx, sql, misses, begin, end)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query eod prices")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	for rows.Next() {
		var (
			symbol    string
			eventDate time.Time
			closePx   float64
		)
		if err := rows.Scan(&symbol, &eventDate, &closePx); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan eod row")
			if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
				log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
			}
			return nil, err
		}

		quotes[symbol] = append(quotes[symbol], returns.Quote{Date: eventDate, Close: closePx})
	}

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("eod query read failed")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	for _, symbol := range misses {
		raw, err := json.Marshal(quotes[symbol])
		if err != nil {
			log.Warn().Err(err).Str("Symbol", symbol).Msg("could not marshal quotes for cache")
			continue
		}
		if err := common.CacheSet(cacheKey(symbol, begin, end), raw); err != nil {
			log.Warn().Err(err).Str("Symbol", symbol).Msg("could not cache quotes")
		}
	}

	return quotes, nil
}
