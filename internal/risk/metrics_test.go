package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// dailySeries builds a deterministic 60-day return series with both
// positive and negative observations.
func dailySeries() []float64 {
	rng := rand.New(rand.NewSource(7))
	returns := make([]float64, 60)
	for i := range returns {
		returns[i] = (rng.Float64() - 0.5) * 0.06
	}
	return returns
}

func snapshotWith(returns []float64, positions ...model.Position) model.PortfolioSnapshot {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Value.Abs())
	}
	cash := d(1000)
	return model.PortfolioSnapshot{
		TotalValue:  total.Add(cash),
		CashBalance: cash,
		Positions:   positions,
		Returns:     returns,
	}
}

func position(symbol string, qty, price float64) model.Position {
	q := d(qty)
	p := d(price)
	return model.Position{
		Symbol:       symbol,
		Quantity:     q,
		CurrentPrice: p,
		EntryPrice:   p,
		Value:        q.Mul(p),
	}
}

// --- VaR / CVaR ordering ---

func TestCalculate_VaROrdering(t *testing.T) {
	c := NewCalculator()
	m := c.Calculate(snapshotWith(dailySeries()))

	if m.VaR99 < m.VaR95 {
		t.Errorf("VaR99 (%v) should never be smaller than VaR95 (%v)", m.VaR99, m.VaR95)
	}
	if m.CVaR95 < m.VaR95 {
		t.Errorf("CVaR95 (%v) should be at least VaR95 (%v)", m.CVaR95, m.VaR95)
	}
	if m.VaR95 < 0 || m.VaR99 < 0 || m.CVaR95 < 0 {
		t.Error("VaR values are loss magnitudes and must be non-negative")
	}
}

// --- Synthetic fallback ---

func TestCalculate_SyntheticFallbackLabeled(t *testing.T) {
	c := NewCalculatorWithRand(rand.New(rand.NewSource(1)))

	for _, returns := range [][]float64{nil, {}, {0.01}} {
		m := c.Calculate(snapshotWith(returns))
		if m.Source != model.SourceSynthetic {
			t.Errorf("series of length %d should trigger the synthetic fallback, got source %q",
				len(returns), m.Source)
		}
		if m.AnnualizedVolatility == 0 {
			t.Error("synthetic series should carry non-zero volatility")
		}
	}

	m := c.Calculate(snapshotWith([]float64{0.01, -0.02}))
	if m.Source != model.SourceHistorical {
		t.Errorf("a 2-sample series is real history, got source %q", m.Source)
	}
}

func TestSyntheticReturns_Reproducible(t *testing.T) {
	a := SyntheticReturns(30, rand.New(rand.NewSource(42)))
	b := SyntheticReturns(30, rand.New(rand.NewSource(42)))
	if len(a) != 30 {
		t.Fatalf("expected 30 samples, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed should reproduce the same series")
		}
	}
}

// --- Annualization ---

func TestCalculate_Annualization(t *testing.T) {
	// Constant +0.1%/day: annualized return = 0.001 × 252 = 25.2%.
	returns := make([]float64, 40)
	for i := range returns {
		returns[i] = 0.001
	}
	c := NewCalculator()
	m := c.Calculate(snapshotWith(returns))

	if m.AnnualizedReturn != 25.2 {
		t.Errorf("expected annualized return 25.2, got %v", m.AnnualizedReturn)
	}
	if m.AnnualizedVolatility != 0 {
		t.Errorf("constant series has zero volatility, got %v", m.AnnualizedVolatility)
	}
	if m.SharpeRatio != 0 {
		t.Errorf("Sharpe must be guarded to 0 on zero volatility, got %v", m.SharpeRatio)
	}
	if m.MaxDrawdown != 0 || m.CalmarRatio != 0 {
		t.Errorf("monotone growth has no drawdown; got max=%v calmar=%v", m.MaxDrawdown, m.CalmarRatio)
	}
}

// --- Drawdown ---

func TestCalculate_DrawdownProfile(t *testing.T) {
	// +10%, then -20%: peak 1.10, trough 0.88 → 20% drawdown, 1 sample deep.
	returns := []float64{0.10, -0.20}
	c := NewCalculator()
	m := c.Calculate(snapshotWith(returns))

	if m.MaxDrawdown != 20.0 {
		t.Errorf("expected max drawdown 20.00, got %v", m.MaxDrawdown)
	}
	if m.CurrentDrawdown != 20.0 {
		t.Errorf("expected current drawdown 20.00, got %v", m.CurrentDrawdown)
	}
	if m.DrawdownDuration != 1 {
		t.Errorf("expected duration 1, got %d", m.DrawdownDuration)
	}
}

func TestCalculate_DrawdownRecovery(t *testing.T) {
	// Dip then a fresh peak: current drawdown back to zero.
	returns := []float64{0.05, -0.10, 0.20}
	c := NewCalculator()
	m := c.Calculate(snapshotWith(returns))

	if m.CurrentDrawdown != 0 {
		t.Errorf("expected zero current drawdown after new peak, got %v", m.CurrentDrawdown)
	}
	if m.DrawdownDuration != 0 {
		t.Errorf("expected duration reset to 0, got %d", m.DrawdownDuration)
	}
	if m.MaxDrawdown != 10.0 {
		t.Errorf("expected max drawdown 10.00, got %v", m.MaxDrawdown)
	}
}

// --- Exposure ---

func TestCalculate_Exposure(t *testing.T) {
	long := position("BTC", 1, 50000)
	short := position("ETH", -10, 3000)
	snap := model.PortfolioSnapshot{
		TotalValue:  d(100000),
		CashBalance: d(20000),
		Positions:   []model.Position{long, short},
		Returns:     dailySeries(),
	}

	c := NewCalculator()
	m := c.Calculate(snap)

	if !m.GrossExposure.Equal(d(80000)) {
		t.Errorf("gross exposure = %s, want 80000", m.GrossExposure)
	}
	if !m.NetExposure.Equal(d(20000)) {
		t.Errorf("net exposure = %s, want 20000", m.NetExposure)
	}
	if m.Leverage != 0.8 {
		t.Errorf("leverage = %v, want 0.8", m.Leverage)
	}
	if m.CashWeight != 20.0 {
		t.Errorf("cash weight = %v, want 20.00", m.CashWeight)
	}
}

func TestCalculate_EmptyPortfolio(t *testing.T) {
	snap := model.PortfolioSnapshot{
		TotalValue:  decimal.Zero,
		CashBalance: decimal.Zero,
		Returns:     dailySeries(),
	}
	c := NewCalculator()
	m := c.Calculate(snap)

	if !m.GrossExposure.IsZero() {
		t.Errorf("gross exposure should be 0, got %s", m.GrossExposure)
	}
	if m.Leverage != 0 || m.LargestPosition != 0 {
		t.Errorf("zero portfolio should give leverage=0 largest=0, got %v/%v",
			m.Leverage, m.LargestPosition)
	}
}

// --- Concentration ---

func TestCalculate_HerfindahlBounds(t *testing.T) {
	// Single position → Herfindahl of the invested sleeve is 1.
	snap := model.PortfolioSnapshot{
		TotalValue: d(10000),
		Positions:  []model.Position{position("BTC", 0.2, 50000)},
		Returns:    dailySeries(),
	}
	c := NewCalculator()
	m := c.Calculate(snap)
	if m.HerfindahlIndex != 1.0 {
		t.Errorf("single fully-invested position should give Herfindahl 1, got %v", m.HerfindahlIndex)
	}
	if m.LargestPosition != 100.0 {
		t.Errorf("largest position should be 100%%, got %v", m.LargestPosition)
	}

	// Four equal-weighted positions → Herfindahl 1/4.
	positions := []model.Position{
		position("BTC", 1, 2500),
		position("ETH", 1, 2500),
		position("SOL", 1, 2500),
		position("XRP", 1250, 2),
	}
	snap = model.PortfolioSnapshot{
		TotalValue: d(10000),
		Positions:  positions,
		Returns:    dailySeries(),
	}
	m = c.Calculate(snap)
	if m.HerfindahlIndex != 0.25 {
		t.Errorf("4 equal weights should give Herfindahl 0.250, got %v", m.HerfindahlIndex)
	}
	if m.Top5Concentration != 100.0 {
		t.Errorf("top-5 of 4 positions should be 100%%, got %v", m.Top5Concentration)
	}
}

// --- Tail statistics ---

func TestCalculate_TailRatioDefault(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.03, 0.01}
	c := NewCalculator()
	m := c.Calculate(snapshotWith(returns))
	if m.TailRatio != 1.0 {
		t.Errorf("no negative returns should default tail ratio to 1, got %v", m.TailRatio)
	}
}

// --- Beta ---

func TestCalculate_BetaOnlyWithBenchmark(t *testing.T) {
	returns := dailySeries()
	c := NewCalculator()

	m := c.Calculate(snapshotWith(returns))
	if m.Beta != nil {
		t.Errorf("beta must be omitted without benchmark data, got %v", *m.Beta)
	}

	// Benchmark identical to the portfolio → beta 1.
	snap := snapshotWith(returns)
	snap.BenchmarkReturns = returns
	m = c.Calculate(snap)
	if m.Beta == nil {
		t.Fatal("beta should be computed when a benchmark is supplied")
	}
	if math.Abs(*m.Beta-1.0) > 0.01 {
		t.Errorf("beta vs itself should be 1.00, got %v", *m.Beta)
	}
}

func TestCalculate_NoBetaAgainstSyntheticReturns(t *testing.T) {
	c := NewCalculatorWithRand(rand.New(rand.NewSource(11)))

	// No portfolio history: the synthetic fallback produces a 30-sample
	// series, and a benchmark of matching length must not yield a beta
	// computed against fabricated data.
	snap := snapshotWith(nil)
	snap.BenchmarkReturns = SyntheticReturns(30, rand.New(rand.NewSource(12)))
	m := c.Calculate(snap)

	if m.Source != model.SourceSynthetic {
		t.Fatalf("source = %q, want synthetic", m.Source)
	}
	if m.Beta != nil {
		t.Errorf("beta must be omitted for synthetic returns, got %v", *m.Beta)
	}
}

// --- Finiteness ---

func TestCalculate_AllFieldsFinite(t *testing.T) {
	c := NewCalculatorWithRand(rand.New(rand.NewSource(3)))
	snaps := []model.PortfolioSnapshot{
		{},
		snapshotWith(nil),
		snapshotWith([]float64{0, 0, 0, 0}),
		snapshotWith(dailySeries(), position("BTC", 1, 50000)),
	}
	for i, snap := range snaps {
		m := c.Calculate(snap)
		for name, v := range map[string]float64{
			"annReturn": m.AnnualizedReturn, "annVol": m.AnnualizedVolatility,
			"var95": m.VaR95, "cvar95": m.CVaR95, "sharpe": m.SharpeRatio,
			"sortino": m.SortinoRatio, "calmar": m.CalmarRatio,
			"maxDD": m.MaxDrawdown, "herfindahl": m.HerfindahlIndex,
			"skew": m.Skewness, "kurtosis": m.Kurtosis, "tail": m.TailRatio,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("snapshot %d: field %s is non-finite (%v)", i, name, v)
			}
		}
	}
}
