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
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// fingerprint calculates a 16-byte blake3 hash over the idempotency key and
// the config echo. Two runs with identical inputs produce the same
// fingerprint, which makes double-inserts easy to spot in the database.
func fingerprint(portfolioID uuid.UUID, calculationDate time.Time, cfg *Config) string {
	h := blake3.New()

	if _, err := h.Write(portfolioID[:]); err != nil {
		log.Error().Stack().Err(err).Msg("could not write portfolio id to blake3 hasher")
	}

	if _, err := h.Write([]byte(calculationDate.Format("2006-01-02"))); err != nil {
		log.Error().Stack().Err(err).Msg("could not write calculation date to blake3 hasher")
	}

	if _, err := h.Write([]byte(fmt.Sprintf("%d", cfg.DurationDays))); err != nil {
		log.Error().Stack().Err(err).Msg("could not write duration to blake3 hasher")
	}

	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not marshal config for fingerprint")
	} else if _, err := h.Write(cfgBytes); err != nil {
		log.Error().Stack().Err(err).Msg("could not write config to blake3 hasher")
	}

	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:16])
}
