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

// Narrow repository ports for everything the coordinator touches outside of
// memory. The engine receives plain values through these interfaces and
// never sees a live database handle.

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sigmasight/correlation-engine/position"
	"github.com/sigmasight/correlation-engine/returns"
)

// PortfolioRepository supplies the holdings of a portfolio. Implementations
// return ErrPortfolioNotFound for unknown ids.
type PortfolioRepository interface {
	Positions(ctx context.Context, portfolioID uuid.UUID) ([]*position.Position, error)
}

// PriceRepository supplies historical daily closes per symbol over an
// inclusive date range
type PriceRepository interface {
	DailyCloses(ctx context.Context, symbols []string, begin time.Time, end time.Time) (map[string][]returns.Quote, error)
}

// ReferenceRepository supplies the tag and sector reference data the cluster
// namer consumes. Sectors reflect the most recent classification at or
// before asOf.
type ReferenceRepository interface {
	Tags(ctx context.Context, positionIDs []uuid.UUID) (map[uuid.UUID][]string, error)
	Sectors(ctx context.Context, symbols []string, asOf time.Time) (map[string]string, error)
}

// Store persists calculation results and answers the idempotency probe.
// Lookup returns ErrCalculationNotFound when no calculation exists for the
// key. Save writes the calculation, every pairwise row, and every
// cluster/membership row as one atomic unit.
type Store interface {
	Lookup(ctx context.Context, portfolioID uuid.UUID, durationDays int, calculationDate time.Time) (*CorrelationCalculation, error)
	Save(ctx context.Context, calc *CorrelationCalculation) error
}
