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

package store_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/sigmasight/correlation-engine/calculation"
	"github.com/sigmasight/correlation-engine/database"
	"github.com/sigmasight/correlation-engine/store"
)

var _ = Describe("PortfolioStore", func() {
	var (
		ctx         context.Context
		dbPool      pgxmock.PgxConnIface
		portfolioID uuid.UUID
		subject     *store.PortfolioStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		portfolioID = uuid.New()
		subject = store.NewPortfolioStore()

		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
	})

	Context("when the portfolio exists", func() {
		It("loads positions with exact decimal values", func() {
			appleID := uuid.New()
			teslaID := uuid.New()

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT id FROM portfolios").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(portfolioID))
			dbPool.ExpectQuery("SELECT id, symbol, quantity").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id", "symbol", "quantity", "last_price"}).
					AddRow(appleID, "AAPL", "100", "150.25").
					AddRow(teslaID, "TSLA", "-50", "200.1"))
			dbPool.ExpectCommit()

			positions, err := subject.Positions(ctx, portfolioID)
			Expect(err).To(BeNil())
			Expect(positions).To(HaveLen(2))

			Expect(positions[0].ID).To(Equal(appleID))
			Expect(positions[0].Symbol).To(Equal("AAPL"))
			Expect(positions[0].Quantity.String()).To(Equal("100"))
			Expect(positions[0].LastPrice.String()).To(Equal("150.25"))

			Expect(positions[1].Symbol).To(Equal("TSLA"))
			Expect(positions[1].Value().InexactFloat64()).To(BeNumerically("==", 10005))

			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("skips rows with unparseable numerics", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT id FROM portfolios").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(portfolioID))
			dbPool.ExpectQuery("SELECT id, symbol, quantity").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id", "symbol", "quantity", "last_price"}).
					AddRow(uuid.New(), "AAPL", "100", "150.25").
					AddRow(uuid.New(), "BROKE", "not-a-number", "1"))
			dbPool.ExpectCommit()

			positions, err := subject.Positions(ctx, portfolioID)
			Expect(err).To(BeNil())
			Expect(positions).To(HaveLen(1))
			Expect(positions[0].Symbol).To(Equal("AAPL"))
		})

		It("returns an empty slice for a portfolio with no positions", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT id FROM portfolios").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(portfolioID))
			dbPool.ExpectQuery("SELECT id, symbol, quantity").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id", "symbol", "quantity", "last_price"}))
			dbPool.ExpectCommit()

			positions, err := subject.Positions(ctx, portfolioID)
			Expect(err).To(BeNil())
			Expect(positions).To(BeEmpty())
		})
	})

	Context("when the portfolio does not exist", func() {
		It("returns ErrPortfolioNotFound and rolls back", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT id FROM portfolios").WithArgs(portfolioID).
				WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectRollback()

			_, err := subject.Positions(ctx, portfolioID)
			Expect(err).To(MatchError(calculation.ErrPortfolioNotFound))
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})
	})

	Context("when the position query fails", func() {
		It("rolls back and propagates the error", func() {
			queryErr := errors.New("connection reset")

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT id FROM portfolios").WithArgs(portfolioID).
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(portfolioID))
			dbPool.ExpectQuery("SELECT id, symbol, quantity").WithArgs(portfolioID).
				WillReturnError(queryErr)
			dbPool.ExpectRollback()

			_, err := subject.Positions(ctx, portfolioID)
			Expect(err).To(MatchError(queryErr))
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})
	})
})
