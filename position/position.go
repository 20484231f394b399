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

package position

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a single holding within a portfolio. Quantity may be negative
// for short positions; Value always reports the absolute market value.
type Position struct {
	ID        uuid.UUID       `json:"id"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	LastPrice decimal.Decimal `json:"lastPrice"`
}

// Value returns |quantity × last price|
func (p *Position) Value() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice).Abs()
}

// GrossValue sums the absolute market value of every position
func GrossValue(positions []*Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Value())
	}
	return total
}

// Weight returns the position's share of the portfolio's gross value.
// A non-positive portfolio value yields a weight of zero.
func (p *Position) Weight(portfolioValue decimal.Decimal) decimal.Decimal {
	if portfolioValue.Sign() <= 0 {
		return decimal.Zero
	}
	return p.Value().Div(portfolioValue)
}

// BySymbol indexes positions by their ticker symbol
func BySymbol(positions []*Position) map[string]*Position {
	bySymbol := make(map[string]*Position, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}
	return bySymbol
}
