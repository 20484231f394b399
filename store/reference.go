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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sigmasight/correlation-engine/database"
)

// ReferenceStore loads tag memberships and sector classifications used by
// the cluster namer
type ReferenceStore struct{}

func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{}
}

// Tags returns the tags attached to each position
func (s *ReferenceStore) Tags(ctx context.Context, positionIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	sql := `SELECT position_id, tag FROM position_tags WHERE position_id = ANY($1)`
	rows, err := trx.Query(ctx, sql, positionIDs)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query position tags")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	tags := make(map[uuid.UUID][]string)
	for rows.Next() {
		var (
			positionID uuid.UUID
			tag        string
		)
		if err := rows.Scan(&positionID, &tag); err != nil {
			log.Warn().Stack().Err(err).Msg("could not scan tag row")
			continue
		}
		tags[positionID] = append(tags[positionID], tag)
	}

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("tag query read failed")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return tags, nil
}

// Sectors returns each symbol's most recent sector classification dated at
// or before asOf; symbols with no classification are simply absent
func (s *ReferenceStore) Sectors(ctx context.Context, symbols []string, asOf time.Time) (map[string]string, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	sql := `SELECT DISTINCT ON (symbol) symbol, sector FROM sector_classifications
		WHERE symbol = ANY($1) AND effective_date <= $2
		ORDER BY symbol, effective_date DESC`
	rows, err := trx.Query(ctx, sql, symbols, asOf)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query sector classifications")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	sectors := make(map[string]string, len(symbols))
	for rows.Next() {
		var symbol, sector string
		if err := rows.Scan(&symbol, &sector); err != nil {
			log.Warn().Stack().Err(err).Msg("could not scan sector row")
			continue
		}
		sectors[symbol] = sector
	}

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("sector query read failed")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return sectors, nil
}
