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

package correlation

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Significance computes the two-sided p-value of the null hypothesis that
// the true correlation is zero, using the t statistic
//
//	t = r * sqrt((n-2) / (1-r²))
//
// with n-2 degrees of freedom. Returns nil when fewer than 3 paired
// observations exist, since the test is undefined below that.
func Significance(rho float64, n int) *float64 {
	if n < 3 {
		return nil
	}

	p := 0.0
	if math.Abs(rho) < 1.0 {
		t := rho * math.Sqrt(float64(n-2)/(1.0-rho*rho))
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
		p = 2.0 * dist.Survival(math.Abs(t))
	}

	return &p
}
