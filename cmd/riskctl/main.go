// riskctl is an offline report tool: it loads a portfolio from a YAML file,
// runs the risk calculators, and prints the results as tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/quantfolio/risk-engine/internal/liquidation"
	"github.com/quantfolio/risk-engine/internal/marketdata"
	"github.com/quantfolio/risk-engine/internal/model"
	"github.com/quantfolio/risk-engine/internal/risk"
	"github.com/quantfolio/risk-engine/internal/scenario"
)

type portfolioFile struct {
	TotalValue  float64 `yaml:"total_value"`
	CashBalance float64 `yaml:"cash_balance"`
	Positions   []struct {
		Symbol       string  `yaml:"symbol"`
		Quantity     float64 `yaml:"quantity"`
		CurrentPrice float64 `yaml:"current_price"`
		EntryPrice   float64 `yaml:"entry_price"`
	} `yaml:"positions"`
	Returns          []float64 `yaml:"returns"`
	BenchmarkReturns []float64 `yaml:"benchmark_returns"`
}

func main() {
	portfolioPath := flag.String("portfolio", "portfolio.yaml", "path to portfolio YAML file")
	oiPath := flag.String("oi", "", "optional open interest YAML file for heatmap symbols")
	scenarios := flag.Bool("scenarios", true, "run stress scenarios")
	sizing := flag.Bool("sizing", false, "print position size recommendation")
	winRate := flag.Float64("win-rate", 0.55, "historical win rate for sizing")
	avgWin := flag.Float64("avg-win", 0.04, "average winning trade fraction")
	avgLoss := flag.Float64("avg-loss", 0.02, "average losing trade fraction")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	snap, err := loadPortfolio(*portfolioPath)
	if err != nil {
		slog.Error("failed to load portfolio", "err", err, "path", *portfolioPath)
		os.Exit(1)
	}

	metrics := risk.NewCalculator().Calculate(snap)
	printMetrics(metrics)

	if *sizing {
		rec := risk.RecommendPositionSize(risk.SizingInput{
			WinRate:         *winRate,
			AvgWin:          *avgWin,
			AvgLoss:         *avgLoss,
			AssetVolatility: metrics.AnnualizedVolatility / 100 / 15.87, // back to daily
			PortfolioValue:  snap.TotalValue,
		})
		printSizing(rec)
	}

	if *scenarios {
		printScenarios(scenario.ApplyAll(snap, scenario.Builtin()))
	}

	if *oiPath != "" {
		provider, err := marketdata.LoadFile(*oiPath)
		if err != nil {
			slog.Error("failed to load open interest file", "err", err)
			os.Exit(1)
		}
		printHeatmaps(snap, provider)
	}
}

func loadPortfolio(path string) (model.PortfolioSnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.PortfolioSnapshot{}, err
	}
	var pf portfolioFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return model.PortfolioSnapshot{}, fmt.Errorf("parse %s: %w", path, err)
	}

	snap := model.PortfolioSnapshot{
		TotalValue:       decimal.NewFromFloat(pf.TotalValue),
		CashBalance:      decimal.NewFromFloat(pf.CashBalance),
		Returns:          pf.Returns,
		BenchmarkReturns: pf.BenchmarkReturns,
	}
	for _, p := range pf.Positions {
		qty := decimal.NewFromFloat(p.Quantity)
		price := decimal.NewFromFloat(p.CurrentPrice)
		value := qty.Mul(price)
		weight := 0.0
		if pf.TotalValue > 0 {
			weight, _ = value.Abs().Div(snap.TotalValue).Float64()
		}
		snap.Positions = append(snap.Positions, model.Position{
			Symbol:       p.Symbol,
			Quantity:     qty,
			CurrentPrice: price,
			EntryPrice:   decimal.NewFromFloat(p.EntryPrice),
			Value:        value,
			Weight:       weight,
		})
	}
	return snap, nil
}

func printMetrics(m model.RiskMetrics) {
	fmt.Printf("\nPortfolio risk (returns: %s)\n\n", m.Source)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Annualized return", pct(m.AnnualizedReturn))
	table.Append("Annualized volatility", pct(m.AnnualizedVolatility))
	table.Append("Downside volatility", pct(m.DownsideVolatility))
	table.Append("VaR 95 / 99", fmt.Sprintf("%s / %s", pct(m.VaR95), pct(m.VaR99)))
	table.Append("CVaR 95", pct(m.CVaR95))
	table.Append("Sharpe / Sortino / Calmar", fmt.Sprintf("%.2f / %.2f / %.2f", m.SharpeRatio, m.SortinoRatio, m.CalmarRatio))
	table.Append("Max drawdown", pct(m.MaxDrawdown))
	table.Append("Current drawdown", pct(m.CurrentDrawdown))
	table.Append("Gross exposure", "$"+m.GrossExposure.StringFixed(2))
	table.Append("Net exposure", "$"+m.NetExposure.StringFixed(2))
	table.Append("Leverage", fmt.Sprintf("%.2fx", m.Leverage))
	table.Append("Cash weight", pct(m.CashWeight))
	table.Append("Herfindahl index", fmt.Sprintf("%.3f", m.HerfindahlIndex))
	table.Append("Largest position", pct(m.LargestPosition))
	table.Append("Skew / excess kurtosis", fmt.Sprintf("%.2f / %.2f", m.Skewness, m.Kurtosis))
	if m.Beta != nil {
		table.Append("Beta", fmt.Sprintf("%.2f", *m.Beta))
	}
	table.Render()
}

func printSizing(rec model.PositionSizeRecommendation) {
	fmt.Printf("\nPosition sizing\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Estimator", "Size %")
	table.Append("Kelly (full)", pct(rec.KellyFraction))
	table.Append("Half-Kelly", pct(rec.HalfKelly))
	table.Append("Fixed-fractional", pct(rec.FixedFractional))
	table.Append("Volatility-adjusted", pct(rec.VolatilityAdjusted))
	table.Append("Risk parity", pct(rec.RiskParity))
	table.Append("Recommended", fmt.Sprintf("%s ($%s)", pct(rec.RecommendedPct), rec.RecommendedValue.StringFixed(2)))
	table.Render()

	fmt.Println()
	for _, line := range rec.Reasoning {
		fmt.Println("  - " + line)
	}
}

func printScenarios(analyses []model.ScenarioAnalysis) {
	fmt.Printf("\nStress scenarios\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Scenario", "Impact $", "Impact %", "Drawdown")
	for _, a := range analyses {
		table.Append(
			a.Name,
			a.TotalImpactUSD.StringFixed(2),
			pct(a.TotalImpactPct),
			pct(a.ProjectedDrawdown),
		)
	}
	table.Render()
}

func printHeatmaps(snap model.PortfolioSnapshot, provider marketdata.OpenInterestProvider) {
	fmt.Printf("\nLiquidation landscape\n\n")

	est := liquidation.NewEstimator(provider, nil, liquidation.Jitter(nil))
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Symbol", "Source", "Dominant", "L/S ratio", "Magnet", "Risk score")

	for _, p := range snap.Positions {
		hm := est.Heatmap(context.Background(), p.Symbol, p.CurrentPrice)
		table.Append(
			p.Symbol,
			hm.Source,
			hm.DominantSide,
			fmt.Sprintf("%.2f", hm.LongShortRatio),
			hm.MagnetPrice.StringFixed(2),
			fmt.Sprintf("%.0f", hm.RiskScore),
		)
	}
	table.Render()
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v) }
