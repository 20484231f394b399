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

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigmasight/correlation-engine/calculation"
	"github.com/sigmasight/correlation-engine/cluster"
	"github.com/sigmasight/correlation-engine/common"
	"github.com/sigmasight/correlation-engine/database"
	"github.com/sigmasight/correlation-engine/observability/opentelemetry"
	"github.com/sigmasight/correlation-engine/position"
	"github.com/sigmasight/correlation-engine/store"
)

var (
	calcDate          string
	calcDuration      int
	calcThreshold     float64
	calcMinValue      float64
	calcMinWeight     float64
	calcFilterMode    string
	calcMinDataPoints int
	calcForce         bool
)

func init() {
	rootCmd.AddCommand(calculateCmd)

	calculateCmd.Flags().StringVar(&calcDate, "date", "", "calculation date (YYYY-MM-DD), defaults to today")
	calculateCmd.Flags().IntVar(&calcDuration, "duration", 90, "lookback window in days")
	calculateCmd.Flags().Float64Var(&calcThreshold, "threshold", 0.7, "minimum |correlation| for two positions to cluster")
	calculateCmd.Flags().Float64Var(&calcMinValue, "min-value", 10_000, "minimum position value; negative to unset")
	calculateCmd.Flags().Float64Var(&calcMinWeight, "min-weight", 0.01, "minimum portfolio weight; negative to unset")
	calculateCmd.Flags().StringVar(&calcFilterMode, "mode", "both", "filter mode: value_only, weight_only, both, either")
	calculateCmd.Flags().IntVar(&calcMinDataPoints, "min-data-points", 20, "per-symbol floor of valid return observations")
	calculateCmd.Flags().BoolVar(&calcForce, "force", false, "recalculate even when a result already exists")
}

var calculateCmd = &cobra.Command{
	Use:        "calculate [flags] PortfolioID...",
	Short:      "Run the correlation and clustering calculation for one or more portfolios",
	Args:       cobra.MinimumNArgs(1),
	ArgAliases: []string{"PortfolioID"},
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		if err := common.SetupCache(); err != nil {
			log.Fatal().Err(err).Msg("could not setup cache")
		}

		if viper.GetString("otlp.endpoint") != "" {
			shutdown, err := opentelemetry.Setup()
			if err != nil {
				log.Error().Err(err).Msg("could not setup tracing")
			} else {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Error().Err(err).Msg("could not shutdown tracing")
					}
				}()
			}
		}

		cfg, err := buildConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}

		calculationDate, err := parseCalcDate()
		if err != nil {
			log.Fatal().Err(err).Str("Date", calcDate).Msg("invalid calculation date")
		}

		coordinator := calculation.NewCoordinator(
			store.NewPortfolioStore(),
			store.NewPriceStore(),
			store.NewReferenceStore(),
			store.NewCalculationStore(),
		)

		failed := false
		for _, arg := range args {
			portfolioID, err := uuid.Parse(arg)
			if err != nil {
				log.Error().Err(err).Str("PortfolioID", arg).Msg("invalid portfolio id")
				failed = true
				continue
			}

			calc, err := coordinator.Run(ctx, portfolioID, calculationDate, cfg)
			if err != nil {
				log.Error().Stack().Err(err).Str("PortfolioID", arg).Msg("calculation failed")
				failed = true
				continue
			}

			printCalculation(calc)
		}

		database.LogOpenTransactions()

		if failed {
			os.Exit(1)
		}
	},
}

func buildConfig() (*calculation.Config, error) {
	mode, err := position.ParseFilterMode(calcFilterMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, calcFilterMode)
	}

	cfg := &calculation.Config{
		FilterMode:           mode,
		CorrelationThreshold: calcThreshold,
		DurationDays:         calcDuration,
		MinDataPoints:        calcMinDataPoints,
		ForceRecalculate:     calcForce,
	}

	if calcMinValue >= 0 {
		minValue := decimal.NewFromFloat(calcMinValue)
		cfg.MinPositionValue = &minValue
	}
	if calcMinWeight >= 0 {
		minWeight := decimal.NewFromFloat(calcMinWeight)
		cfg.MinPortfolioWeight = &minWeight
	}

	return cfg, nil
}

func parseCalcDate() (time.Time, error) {
	tz := common.GetTimezone()
	if calcDate == "" {
		now := time.Now().In(tz)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tz), nil
	}
	return time.ParseInLocation("2006-01-02", calcDate, tz)
}

func printCalculation(calc *calculation.CorrelationCalculation) {
	fmt.Printf("Portfolio: %s\n", calc.PortfolioID)
	fmt.Printf("Calculation: %s (%d day lookback)\n", calc.ID, calc.DurationDays)
	fmt.Printf("Positions: %d included, %d excluded\n", calc.PositionsIncluded, calc.PositionsExcluded)
	fmt.Printf("Overall Correlation: %.4f\n", calc.OverallCorrelation)
	fmt.Printf("Concentration Score: %.4f\n", calc.ConcentrationScore)
	fmt.Printf("Effective Positions: %.2f\n", calc.EffectivePositions)

	fmt.Printf("\n%s\n", calc.Matrix().Table())
	fmt.Println(clusterTable(calc.Clusters))

	raw, err := json.MarshalIndent(calc, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("could not marshal calculation")
		return
	}
	fmt.Printf("\n%s\n", string(raw))
}

// clusterTable prints an ASCII formatted cluster summary to a string
func clusterTable(clusters []*cluster.Cluster) string {
	if len(clusters) == 0 {
		return "<NO CLUSTERS>"
	}

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Nickname", "Symbol", "Value", "Pct of Portfolio", "Corr to Cluster"})
	table.SetBorder(false)

	for _, c := range clusters {
		table.Append([]string{
			c.Nickname,
			fmt.Sprintf("%d members", len(c.Symbols)),
			c.TotalValue.StringFixed(2),
			fmt.Sprintf("%.1f%%", c.PortfolioPercentage*100),
			fmt.Sprintf("%.3f", c.AvgCorrelation),
		})
		for _, m := range c.Members {
			table.Append([]string{
				"",
				m.Symbol,
				m.Value.StringFixed(2),
				fmt.Sprintf("%.1f%%", m.PortfolioPercentage*100),
				fmt.Sprintf("%.3f", m.CorrelationToCluster),
			})
		}
	}

	table.Render()
	return s.String()
}
