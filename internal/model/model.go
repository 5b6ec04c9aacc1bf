// Package model defines the value objects exchanged between the risk engine
// and its consumers. Everything here is fully derived, identity-free data
// suitable for JSON transport to dashboards and order-entry surfaces.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Ratios, percentages, and returns are plain float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position sides.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Coarse risk levels shared by the heatmap, the standalone assessment, and
// the trade gate. The distance thresholds that map to these bands live in
// the gate package and must not drift between call sites.
const (
	RiskLow     = "low"
	RiskMedium  = "medium"
	RiskHigh    = "high"
	RiskExtreme = "extreme"
)

// Dominant liquidation sides.
const (
	DominantLong     = "long"
	DominantShort    = "short"
	DominantBalanced = "balanced"
)

// Provenance of a heatmap or return series.
const (
	SourceLive       = "live"
	SourceEstimated  = "estimated"
	SourceHistorical = "historical"
	SourceSynthetic  = "synthetic"
)

// Position is a read-only snapshot of one open position. Quantity is signed:
// positive = long, negative = short. Owned by the caller's portfolio store;
// the engine never mutates it.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Value        decimal.Decimal `json:"value"`  // quantity × current price
	Weight       float64         `json:"weight"` // |value| / portfolio total, fraction of 1
}

// PortfolioSnapshot is the immutable input to a risk calculation. Returns
// are ordered daily fractional returns (0.013 = +1.3%), oldest first.
// BenchmarkReturns is optional; when present and aligned with Returns, beta
// is computed against it.
type PortfolioSnapshot struct {
	TotalValue       decimal.Decimal `json:"total_value"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	Positions        []Position      `json:"positions"`
	Returns          []float64       `json:"returns"`
	BenchmarkReturns []float64       `json:"benchmark_returns,omitempty"`
}

// RiskMetrics is a pure function of a PortfolioSnapshot. Percentage fields
// are in percent units (12.34 = 12.34%) rounded to 2 decimal places at the
// output boundary; ratio fields are rounded to 2 decimals; the Herfindahl
// index to 3. Beta is nil unless benchmark returns were supplied.
type RiskMetrics struct {
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	DownsideVolatility   float64 `json:"downside_volatility"`

	VaR95  float64 `json:"var_95"`  // loss magnitude, percent
	VaR99  float64 `json:"var_99"`  // loss magnitude, percent
	CVaR95 float64 `json:"cvar_95"` // expected shortfall, percent

	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	CurrentDrawdown  float64 `json:"current_drawdown"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DrawdownDuration int     `json:"drawdown_duration"` // samples since the last peak
	AverageDrawdown  float64 `json:"average_drawdown"`

	GrossExposure decimal.Decimal `json:"gross_exposure"` // Σ|position value|, USD
	NetExposure   decimal.Decimal `json:"net_exposure"`   // longs − shorts, USD
	Leverage      float64         `json:"leverage"`       // gross / total value
	CashWeight    float64         `json:"cash_weight"`    // percent

	HerfindahlIndex   float64 `json:"herfindahl_index"` // [1/n, 1], 3 decimals
	LargestPosition   float64 `json:"largest_position"` // percent
	Top5Concentration float64 `json:"top5_concentration"`

	Skewness  float64  `json:"skewness"`
	Kurtosis  float64  `json:"kurtosis"`
	TailRatio float64  `json:"tail_ratio"`
	Beta      *float64 `json:"beta,omitempty"`

	// Source records whether the return series was real history or the
	// documented synthetic fallback.
	Source string `json:"source"`
}

// LiquidationLevel is one discretized price level of a heatmap.
type LiquidationLevel struct {
	Price             decimal.Decimal `json:"price"`
	LongLiquidations  decimal.Decimal `json:"long_liquidations"`  // USD
	ShortLiquidations decimal.Decimal `json:"short_liquidations"` // USD
	Total             decimal.Decimal `json:"total"`              // USD
	Intensity         float64         `json:"intensity"`          // [0, 100]
	PriceFromCurrent  float64         `json:"price_from_current"` // signed percent
}

// LiquidationHeatmapData is the full heatmap for one (symbol, price) pair:
// 61 levels spanning −30%..+30% of the current price plus aggregate
// descriptors. Source distinguishes real open-interest-backed estimates
// ("live") from pure fallback heuristics ("estimated").
type LiquidationHeatmapData struct {
	Symbol       string             `json:"symbol"`
	CurrentPrice decimal.Decimal    `json:"current_price"`
	Levels       []LiquidationLevel `json:"levels"`

	TotalLongLiquidations  decimal.Decimal `json:"total_long_liquidations"`
	TotalShortLiquidations decimal.Decimal `json:"total_short_liquidations"`
	LongShortRatio         float64         `json:"long_short_ratio"`
	DominantSide           string          `json:"dominant_side"` // long | short | balanced

	MajorLongZone  *LiquidationLevel `json:"major_long_zone,omitempty"`
	MajorShortZone *LiquidationLevel `json:"major_short_zone,omitempty"`
	MagnetPrice    decimal.Decimal   `json:"magnet_price"`
	RiskScore      float64           `json:"risk_score"` // [0, 100]

	Source      string    `json:"source"` // live | estimated
	GeneratedAt time.Time `json:"generated_at"`
}

// LiquidationZone is a nearby liquidation cluster with its distance from
// the current price.
type LiquidationZone struct {
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`    // USD at that level
	Distance float64         `json:"distance"` // absolute percent from current price
}

// LiquidationRiskAssessment is derived on demand from a heatmap plus an
// optional position side. Ephemeral; no stored identity.
type LiquidationRiskAssessment struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	RiskLevel    string          `json:"risk_level"`

	NearestLongZone  *LiquidationZone `json:"nearest_long_zone,omitempty"`
	NearestShortZone *LiquidationZone `json:"nearest_short_zone,omitempty"`

	SuggestedStopLoss   decimal.Decimal `json:"suggested_stop_loss"`
	SuggestedTakeProfit decimal.Decimal `json:"suggested_take_profit"`
	// StopSource is "liquidation zones" when levels were derived from the
	// heatmap, or "no liquidation data" when the fixed fallback applied.
	StopSource string `json:"stop_source"`

	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// PositionLiquidationAnalysis is the exit check for an open position.
// ShouldExit is true only when the distance to the nearest danger zone is
// inside the danger band.
type PositionLiquidationAnalysis struct {
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	RiskLevel        string          `json:"risk_level"`
	DistanceToDanger float64         `json:"distance_to_danger"` // percent
	ShouldExit       bool            `json:"should_exit"`

	SuggestedStopLoss   decimal.Decimal `json:"suggested_stop_loss"`
	SuggestedTakeProfit decimal.Decimal `json:"suggested_take_profit"`
	StopSource          string          `json:"stop_source"`

	Warnings []string `json:"warnings"`
}

// TradeIntent is a pending trade submitted to the gate for admission.
type TradeIntent struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"` // long | short
	Size   decimal.Decimal `json:"size"` // USD notional
	Price  decimal.Decimal `json:"price"`
}

// TradeGateDecision is a pure function of (assessment, requested trade).
// When Allowed is false, RiskAdjustedSize is zero and BlockReason explains.
type TradeGateDecision struct {
	Allowed          bool            `json:"allowed"`
	RequestedSize    decimal.Decimal `json:"requested_size"`
	RiskAdjustedSize decimal.Decimal `json:"risk_adjusted_size"`
	Warnings         []string        `json:"warnings"`
	BlockReason      string          `json:"block_reason,omitempty"`
}

// PositionSizeRecommendation blends four independent sizing estimators.
// All fields except RecommendedValue are percentages of portfolio value.
// Reasoning carries one line per estimator plus the final clamp; it is a
// required output, not cosmetic.
type PositionSizeRecommendation struct {
	KellyFraction      float64 `json:"kelly_fraction"` // full Kelly, for transparency
	HalfKelly          float64 `json:"half_kelly"`     // feeds the blend
	FixedFractional    float64 `json:"fixed_fractional"`
	VolatilityAdjusted float64 `json:"volatility_adjusted"`
	RiskParity         float64 `json:"risk_parity"`

	RecommendedPct   float64         `json:"recommended_pct"` // clamped [1, 25]
	RecommendedValue decimal.Decimal `json:"recommended_value"`

	Reasoning []string `json:"reasoning"`
}

// PositionImpact is the projected effect of a scenario on one position.
type PositionImpact struct {
	Symbol         string          `json:"symbol"`
	Shock          float64         `json:"shock"` // percent price move applied
	CurrentValue   decimal.Decimal `json:"current_value"`
	ProjectedValue decimal.Decimal `json:"projected_value"`
	ImpactUSD      decimal.Decimal `json:"impact_usd"`
	ImpactPct      float64         `json:"impact_pct"`
}

// ScenarioAnalysis is the aggregate result of applying one named price-shock
// scenario to a portfolio snapshot.
type ScenarioAnalysis struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Impacts           []PositionImpact `json:"impacts"`
	TotalImpactUSD    decimal.Decimal  `json:"total_impact_usd"`
	TotalImpactPct    float64          `json:"total_impact_pct"`
	ProjectedDrawdown float64          `json:"projected_drawdown"` // percent, >= 0
}

// RiskSnapshot is a persisted record of a computed RiskMetrics, kept so
// dashboards can chart risk history. The engine itself never reads these
// back into a calculation.
type RiskSnapshot struct {
	ID          string      `json:"id" db:"id"`
	PortfolioID string      `json:"portfolio_id" db:"portfolio_id"`
	Metrics     RiskMetrics `json:"metrics" db:"metrics"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
