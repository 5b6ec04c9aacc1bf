// Package risk computes portfolio risk metrics and position sizing
// recommendations from immutable snapshots.
//
// The calculator is pure: it never mutates its inputs and holds no state
// beyond configuration, so a single instance is safe for concurrent use.
// Internal math runs on float64 (decimal inputs are converted once at the
// boundary); monetary outputs go back out as rounded decimals.
package risk

import (
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/model"
	"github.com/quantfolio/risk-engine/internal/stats"
)

const (
	// tradingDays is the annualization base for daily return series.
	tradingDays = 252

	// riskFreeRate is the annual risk-free rate used by Sharpe/Sortino.
	riskFreeRate = 0.05

	// minReturnSamples is the threshold below which the synthetic fallback
	// series replaces the supplied history.
	minReturnSamples = 2
)

// Calculator derives RiskMetrics from portfolio snapshots.
type Calculator struct {
	rng *rand.Rand
}

// NewCalculator creates a calculator with a non-deterministic random source
// for the synthetic-series fallback.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// NewCalculatorWithRand creates a calculator with a fixed random source so
// the synthetic fallback is reproducible in tests.
func NewCalculatorWithRand(rng *rand.Rand) *Calculator {
	return &Calculator{rng: rng}
}

// Calculate computes the full RiskMetrics snapshot. A return series with
// fewer than 2 samples triggers the documented synthetic fallback; the
// result is then labeled Source="synthetic" so consumers can flag it.
func (c *Calculator) Calculate(snap model.PortfolioSnapshot) model.RiskMetrics {
	returns := snap.Returns
	source := model.SourceHistorical
	if len(returns) < minReturnSamples {
		returns = SyntheticReturns(30, c.rng)
		source = model.SourceSynthetic
	}

	m := model.RiskMetrics{Source: source}

	// Annualized return and volatility.
	meanDaily := stats.Mean(returns)
	annReturn := meanDaily * tradingDays
	annVol := stats.StandardDeviation(returns) * math.Sqrt(tradingDays)
	downVol := stats.DownsideDeviation(returns, 0) * math.Sqrt(tradingDays)

	m.AnnualizedReturn = round2(annReturn * 100)
	m.AnnualizedVolatility = round2(annVol * 100)
	m.DownsideVolatility = round2(downVol * 100)

	// Value at risk: loss magnitude at the 5th/1st percentile.
	m.VaR95 = round2(math.Abs(stats.Percentile(returns, 5)) * 100)
	m.VaR99 = round2(math.Abs(stats.Percentile(returns, 1)) * 100)
	m.CVaR95 = round2(cvar(returns, 0.05) * 100)

	// Drawdown profile from the compounded cumulative curve.
	dd := drawdownProfile(returns)
	m.CurrentDrawdown = round2(dd.current * 100)
	m.MaxDrawdown = round2(dd.max * 100)
	m.DrawdownDuration = dd.duration
	m.AverageDrawdown = round2(dd.average * 100)

	// Risk-adjusted ratios, guarded against zero denominators.
	if annVol > 0 {
		m.SharpeRatio = round2((annReturn - riskFreeRate) / annVol)
	}
	if downVol > 0 {
		m.SortinoRatio = round2((annReturn - riskFreeRate) / downVol)
	}
	if dd.max > 0 {
		m.CalmarRatio = round2(annReturn / dd.max)
	}

	c.exposure(&m, snap)
	c.concentration(&m, snap)

	// Tail statistics.
	m.Skewness = round2(stats.Skewness(returns))
	m.Kurtosis = round2(stats.Kurtosis(returns))
	m.TailRatio = round2(tailRatio(returns))

	// Beta only against a real, aligned benchmark series. Synthetic returns
	// have no relation to the benchmark, so the field stays nil rather than
	// carrying a fabricated value.
	if source == model.SourceHistorical && len(snap.BenchmarkReturns) == len(returns) && len(returns) >= 2 {
		if v := stats.Covariance(snap.BenchmarkReturns, snap.BenchmarkReturns); v > 0 {
			beta := round2(stats.Covariance(returns, snap.BenchmarkReturns) / v)
			m.Beta = &beta
		}
	}

	return m
}

// exposure fills gross/net exposure, leverage, and cash weight.
func (c *Calculator) exposure(m *model.RiskMetrics, snap model.PortfolioSnapshot) {
	gross := decimal.Zero
	net := decimal.Zero
	for _, p := range snap.Positions {
		gross = gross.Add(p.Value.Abs())
		net = net.Add(p.Value)
	}
	m.GrossExposure = gross.Round(2)
	m.NetExposure = net.Round(2)

	total := snap.TotalValue.InexactFloat64()
	if total > 0 {
		m.Leverage = round2(gross.InexactFloat64() / total)
		m.CashWeight = round2(snap.CashBalance.InexactFloat64() / total * 100)
	}
}

// concentration fills the Herfindahl index and the largest/top-5 weights.
// Weights are recomputed from position values so stale caller-supplied
// Weight fields cannot skew the result.
func (c *Calculator) concentration(m *model.RiskMetrics, snap model.PortfolioSnapshot) {
	total := snap.TotalValue.InexactFloat64()
	if total <= 0 || len(snap.Positions) == 0 {
		return
	}

	weights := make([]float64, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		weights = append(weights, math.Abs(p.Value.InexactFloat64())/total)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))

	var herfindahl float64
	for _, w := range weights {
		herfindahl += w * w
	}
	m.HerfindahlIndex = round3(herfindahl)
	m.LargestPosition = round2(weights[0] * 100)

	var top5 float64
	for i, w := range weights {
		if i >= 5 {
			break
		}
		top5 += w
	}
	m.Top5Concentration = round2(top5 * 100)
}

// cvar is the expected shortfall: the mean of the worst ⌈tail×n⌉ returns
// (at least one sample), as a positive loss magnitude.
func cvar(returns []float64, tail float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	n := int(math.Ceil(tail * float64(len(sorted))))
	if n < 1 {
		n = 1
	}
	var sum float64
	for _, r := range sorted[:n] {
		sum += r
	}
	return math.Abs(sum / float64(n))
}

type drawdown struct {
	current  float64
	max      float64
	average  float64
	duration int
}

// drawdownProfile compounds (1+r) across the series, tracks the running
// peak, and derives the current/max/average drawdown plus the number of
// samples since the last new peak.
func drawdownProfile(returns []float64) drawdown {
	var dd drawdown
	if len(returns) == 0 {
		return dd
	}

	value := 1.0
	peak := 1.0
	sincePeak := 0
	var positive []float64

	for _, r := range returns {
		value *= 1 + r
		if value > peak {
			peak = value
			sincePeak = 0
		} else {
			sincePeak++
		}

		d := (peak - value) / peak
		if d > dd.max {
			dd.max = d
		}
		if d > 0 {
			positive = append(positive, d)
		}
		dd.current = d
	}

	dd.duration = sincePeak
	dd.average = stats.Mean(positive)
	return dd
}

// tailRatio is mean(positive returns) / |mean(negative returns)|,
// defaulting to 1 when there are no negative returns.
func tailRatio(returns []float64) float64 {
	var pos, neg []float64
	for _, r := range returns {
		switch {
		case r > 0:
			pos = append(pos, r)
		case r < 0:
			neg = append(neg, r)
		}
	}
	if len(neg) == 0 {
		return 1
	}
	denom := math.Abs(stats.Mean(neg))
	if denom == 0 {
		return 1
	}
	return stats.Mean(pos) / denom
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
