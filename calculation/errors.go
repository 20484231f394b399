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

import "errors"

var (
	// ErrPortfolioNotFound aborts a run before any work when the portfolio
	// id is unknown
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrInsufficientData aborts a run when no positions pass the
	// significance filter, no symbols pass the data-point floor, or the
	// aligned returns table is empty. Nothing is persisted.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrCalculationNotFound is returned by the idempotency probe when no
	// prior calculation exists for the key
	ErrCalculationNotFound = errors.New("calculation not found")
)
