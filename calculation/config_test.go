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

package calculation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigmasight/correlation-engine/calculation"
	"github.com/sigmasight/correlation-engine/position"
)

var _ = Describe("DefaultConfig", func() {
	It("matches the standard policy", func() {
		cfg := calculation.DefaultConfig()
		Expect(cfg.MinPositionValue.InexactFloat64()).To(BeNumerically("==", 10000))
		Expect(cfg.MinPortfolioWeight.InexactFloat64()).To(BeNumerically("==", 0.01))
		Expect(cfg.FilterMode).To(Equal(position.FilterBoth))
		Expect(cfg.CorrelationThreshold).To(BeNumerically("==", 0.7))
		Expect(cfg.DurationDays).To(Equal(90))
		Expect(cfg.MinDataPoints).To(Equal(20))
		Expect(cfg.ForceRecalculate).To(BeFalse())
	})
})
