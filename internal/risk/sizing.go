package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/model"
)

// Sizing policy constants. Half-Kelly is a deliberate conservatism policy:
// full Kelly is reported for transparency but never feeds the blend.
const (
	defaultTargetRisk = 0.02 // portfolio risk per trade
	defaultStopDist   = 0.05 // assumed stop-loss distance for fixed-fractional
	targetDailyVol    = 0.02 // volatility-adjusted sizing target
	fallbackVol       = 0.10 // used when asset volatility is unknown/zero

	minSizePct = 0.01 // floor on the blended recommendation
	maxSizePct = 0.25 // hard single-position ceiling
)

// SizingInput carries the trade statistics feeding the position sizer.
// Rates and magnitudes are fractions (0.55 = 55% win rate, 0.04 = 4%).
type SizingInput struct {
	WinRate         float64 `json:"win_rate"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	AssetVolatility float64 `json:"asset_volatility"`
	// TargetRisk is the portfolio risk budget per trade; 0 means the 2%
	// default.
	TargetRisk     float64         `json:"target_risk,omitempty"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// RecommendPositionSize blends four independent estimators — half-Kelly,
// fixed-fractional, volatility-adjusted, and simplified risk parity — into
// a single recommendation clamped to [1%, 25%] of portfolio value. The
// reasoning trail explains each contribution and the final clamp.
func RecommendPositionSize(in SizingInput) model.PositionSizeRecommendation {
	targetRisk := in.TargetRisk
	if targetRisk <= 0 {
		targetRisk = defaultTargetRisk
	}

	kelly := kellyFraction(in.WinRate, in.AvgWin, in.AvgLoss)
	halfKelly := kelly / 2

	fixedFrac := targetRisk / defaultStopDist

	vol := in.AssetVolatility
	volNote := ""
	if vol <= 0 {
		vol = fallbackVol
		volNote = " (volatility unknown, assumed 10%)"
	}
	volAdjusted := targetDailyVol / vol

	riskParity := 1 / (vol*10 + 1)

	blended := (halfKelly + fixedFrac + volAdjusted + riskParity) / 4
	final := clamp(blended, minSizePct, maxSizePct)

	rec := model.PositionSizeRecommendation{
		KellyFraction:      round2(kelly * 100),
		HalfKelly:          round2(halfKelly * 100),
		FixedFractional:    round2(fixedFrac * 100),
		VolatilityAdjusted: round2(volAdjusted * 100),
		RiskParity:         round2(riskParity * 100),
		RecommendedPct:     round2(final * 100),
		RecommendedValue:   in.PortfolioValue.Mul(decimal.NewFromFloat(final)).Round(2),
	}

	rec.Reasoning = []string{
		fmt.Sprintf("Kelly criterion: %.1f%% win rate with %.2f payoff ratio gives %.1f%%; using half-Kelly %.1f%% for safety",
			in.WinRate*100, payoffRatio(in.AvgWin, in.AvgLoss), kelly*100, halfKelly*100),
		fmt.Sprintf("Fixed-fractional: %.1f%% risk budget over a %.0f%% stop distance gives %.1f%%",
			targetRisk*100, defaultStopDist*100, fixedFrac*100),
		fmt.Sprintf("Volatility-adjusted: %.0f%% daily volatility target over %.1f%% asset volatility gives %.1f%%%s",
			targetDailyVol*100, vol*100, volAdjusted*100, volNote),
		fmt.Sprintf("Risk parity (simplified): %.1f%%", riskParity*100),
		fmt.Sprintf("Blended average %.1f%% clamped to [%.0f%%, %.0f%%]: recommending %.1f%%",
			blended*100, minSizePct*100, maxSizePct*100, final*100),
	}

	return rec
}

// kellyFraction computes f* = (p·b − q)/b with b = avgWin/avgLoss, clamped
// to [0, 1]. A non-positive payoff ratio yields 0 (no edge measurable).
func kellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss <= 0 || avgWin <= 0 {
		return 0
	}
	b := avgWin / avgLoss
	q := 1 - winRate
	f := (winRate*b - q) / b
	return clamp(f, 0, 1)
}

func payoffRatio(avgWin, avgLoss float64) float64 {
	if avgLoss <= 0 {
		return 0
	}
	return avgWin / avgLoss
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
