// Package gate is the integration layer between liquidation heatmaps and
// order entry: it assesses liquidation risk, admits or blocks pending
// trades, flags positions for exit, and derives dynamic stop-loss /
// take-profit prices from liquidation zones.
//
// Everything here is a stateless pure function over (heatmap, trade or
// position); the package holds the single source of truth for the distance
// bands so the standalone assessment and the position-exit check can never
// drift apart.
package gate

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/model"
)

// ErrInvalidSide is returned for a trade or position side other than
// "long" or "short". Malformed input is a programmer error and fails fast
// rather than degrading.
var ErrInvalidSide = errors.New("gate: side must be \"long\" or \"short\"")

// Distance bands (percent from current price to the nearest relevant
// liquidation zone). Shared by Assess, CheckTrade, and CheckPosition.
const (
	safeDistance    = 10 // beyond this: low risk
	cautionDistance = 5  // 5–10: medium
	dangerDistance  = 3  // below this: extreme
)

// Size adjustment factors by risk level.
const (
	highRiskCut     = 0.5  // high risk halves the requested size
	mediumRiskCut   = 0.75 // medium risk cuts 25%
	opposingZoneCap = 0.5  // hard cap when heading into a major opposing zone
)

// Stop/target derivation constants.
const (
	stopBuffer = 1.02 // stop sits 2% beyond the forced-liquidation price
	targetTrim = 0.98 // target sits 2% short of the opposing zone

	fallbackStopPct   = 0.05 // ±5% when no zone data exists
	fallbackTargetPct = 0.10 // ±10%

	// significantZoneShare marks a level as a zone worth reacting to when
	// its value reaches this share of the side's major zone.
	significantZoneShare = 0.5
)

// StopSource values surfaced on assessments and analyses.
const (
	StopSourceZones  = "liquidation zones"
	StopSourceNoData = "no liquidation data"
)

// riskBand maps a distance (percent) to the shared risk levels.
func riskBand(distance float64) string {
	switch {
	case distance > safeDistance:
		return model.RiskLow
	case distance > cautionDistance:
		return model.RiskMedium
	case distance >= dangerDistance:
		return model.RiskHigh
	default:
		return model.RiskExtreme
	}
}

// Assess derives a risk assessment from a heatmap for an optional position
// side ("" means no directional exposure yet). Never returns an error for
// missing data: an empty heatmap yields a low-risk assessment with fallback
// stops labeled "no liquidation data".
func Assess(hm *model.LiquidationHeatmapData, side string) model.LiquidationRiskAssessment {
	a := model.LiquidationRiskAssessment{
		Symbol:       hm.Symbol,
		CurrentPrice: hm.CurrentPrice,
		RiskLevel:    model.RiskLow,
	}

	a.NearestLongZone = nearestZone(hm, model.SideLong)
	a.NearestShortZone = nearestZone(hm, model.SideShort)

	if d, ok := relevantDistance(&a, side); ok {
		a.RiskLevel = riskBand(d)
	}

	stop, target, source := deriveStops(hm, side)
	a.SuggestedStopLoss = stop
	a.SuggestedTakeProfit = target
	a.StopSource = source

	a.Warnings = assessWarnings(&a, side)
	a.Recommendations = assessRecommendations(hm, &a)
	return a
}

// CheckTrade decides whether a pending trade is admitted, shrunk, or
// blocked. Extreme risk is a hard block; high and medium risk reduce size;
// a major opposing liquidation zone within 5% caps size at 50% regardless.
func CheckTrade(hm *model.LiquidationHeatmapData, trade model.TradeIntent) (model.TradeGateDecision, error) {
	if trade.Side != model.SideLong && trade.Side != model.SideShort {
		return model.TradeGateDecision{}, fmt.Errorf("%w: %q", ErrInvalidSide, trade.Side)
	}

	decision := model.TradeGateDecision{
		RequestedSize: trade.Size,
	}

	assessment := Assess(hm, trade.Side)

	switch assessment.RiskLevel {
	case model.RiskExtreme:
		decision.Allowed = false
		decision.RiskAdjustedSize = decimal.Zero
		decision.BlockReason = fmt.Sprintf(
			"liquidation risk is extreme: a %s liquidation cluster sits within %d%% of price",
			trade.Side, dangerDistance)
		return decision, nil
	case model.RiskHigh:
		decision.RiskAdjustedSize = trade.Size.Mul(decimal.NewFromFloat(highRiskCut))
		decision.Warnings = append(decision.Warnings,
			"high liquidation risk: position size reduced 50%")
	case model.RiskMedium:
		decision.RiskAdjustedSize = trade.Size.Mul(decimal.NewFromFloat(mediumRiskCut))
		decision.Warnings = append(decision.Warnings,
			"elevated liquidation risk: position size reduced 25%")
	default:
		decision.RiskAdjustedSize = trade.Size
	}

	// A trade pointed at a major opposing liquidation cluster within 5%
	// is capped at half size no matter what the bands said.
	if zone, d, ok := opposingZone(hm, trade.Side); ok && d <= cautionDistance {
		capSize := trade.Size.Mul(decimal.NewFromFloat(opposingZoneCap))
		if decision.RiskAdjustedSize.GreaterThan(capSize) {
			decision.RiskAdjustedSize = capSize
		}
		decision.Warnings = append(decision.Warnings, fmt.Sprintf(
			"major opposing liquidation zone at %s (%.1f%% away): size capped at 50%%",
			zone.Price, d))
	}

	decision.Allowed = true
	decision.RiskAdjustedSize = decision.RiskAdjustedSize.Round(2)
	return decision, nil
}

// CheckPosition evaluates an open position against the heatmap. ShouldExit
// is true only inside the danger band; every other band just warns.
func CheckPosition(hm *model.LiquidationHeatmapData, side string) (model.PositionLiquidationAnalysis, error) {
	if side != model.SideLong && side != model.SideShort {
		return model.PositionLiquidationAnalysis{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	analysis := model.PositionLiquidationAnalysis{
		Symbol:       hm.Symbol,
		Side:         side,
		CurrentPrice: hm.CurrentPrice,
		RiskLevel:    model.RiskLow,
	}

	zone := nearestZone(hm, side)
	if zone != nil {
		analysis.DistanceToDanger = zone.Distance
		analysis.RiskLevel = riskBand(zone.Distance)
	}

	stop, target, source := deriveStops(hm, side)
	analysis.SuggestedStopLoss = stop
	analysis.SuggestedTakeProfit = target
	analysis.StopSource = source

	switch analysis.RiskLevel {
	case model.RiskExtreme:
		analysis.ShouldExit = true
		analysis.Warnings = append(analysis.Warnings, fmt.Sprintf(
			"%s liquidation cluster %.1f%% away: exit or aggressively reduce", side, analysis.DistanceToDanger))
	case model.RiskHigh:
		analysis.Warnings = append(analysis.Warnings, fmt.Sprintf(
			"%s liquidation cluster %.1f%% away: tighten stops", side, analysis.DistanceToDanger))
	case model.RiskMedium:
		analysis.Warnings = append(analysis.Warnings, fmt.Sprintf(
			"%s liquidation cluster %.1f%% away: monitor closely", side, analysis.DistanceToDanger))
	}

	return analysis, nil
}

// nearestZone finds the closest significant liquidation cluster on one side
// of the book: any level holding at least half of that side's major zone
// value qualifies.
func nearestZone(hm *model.LiquidationHeatmapData, side string) *model.LiquidationZone {
	var major *model.LiquidationLevel
	if side == model.SideLong {
		major = hm.MajorLongZone
	} else {
		major = hm.MajorShortZone
	}
	if major == nil {
		return nil
	}

	sideValue := func(l model.LiquidationLevel) decimal.Decimal {
		if side == model.SideLong {
			return l.LongLiquidations
		}
		return l.ShortLiquidations
	}

	threshold := sideValue(*major).Mul(decimal.NewFromFloat(significantZoneShare))

	var best *model.LiquidationZone
	for _, l := range hm.Levels {
		v := sideValue(l)
		if v.IsZero() || v.LessThan(threshold) {
			continue
		}
		d := math.Abs(l.PriceFromCurrent)
		if best == nil || d < best.Distance {
			best = &model.LiquidationZone{Price: l.Price, Value: v, Distance: d}
		}
	}
	return best
}

// relevantDistance picks the distance that matters for the given side: the
// zone on the position's liquidation side, or the nearer of both when no
// side is specified.
func relevantDistance(a *model.LiquidationRiskAssessment, side string) (float64, bool) {
	switch side {
	case model.SideLong:
		if a.NearestLongZone != nil {
			return a.NearestLongZone.Distance, true
		}
	case model.SideShort:
		if a.NearestShortZone != nil {
			return a.NearestShortZone.Distance, true
		}
	default:
		switch {
		case a.NearestLongZone != nil && a.NearestShortZone != nil:
			return math.Min(a.NearestLongZone.Distance, a.NearestShortZone.Distance), true
		case a.NearestLongZone != nil:
			return a.NearestLongZone.Distance, true
		case a.NearestShortZone != nil:
			return a.NearestShortZone.Distance, true
		}
	}
	return 0, false
}

// opposingZone returns the major liquidation zone the trade direction points
// toward: short clusters above for a long, long clusters below for a short.
func opposingZone(hm *model.LiquidationHeatmapData, side string) (*model.LiquidationLevel, float64, bool) {
	var zone *model.LiquidationLevel
	if side == model.SideLong {
		zone = hm.MajorShortZone
	} else {
		zone = hm.MajorLongZone
	}
	if zone == nil {
		return nil, 0, false
	}
	return zone, math.Abs(zone.PriceFromCurrent), true
}

// deriveStops derives stop-loss and take-profit prices from the major
// liquidation zones. For a long the stop sits just above the long
// liquidation cluster (exit before the cascade) and the target just under
// the short cluster (take profit before the squeeze resolves). Shorts
// mirror. Without zone data the fixed ±5%/±10% fallback applies and the
// source label says so, so callers never mistake defaults for
// liquidation-derived prices.
func deriveStops(hm *model.LiquidationHeatmapData, side string) (stop, target decimal.Decimal, source string) {
	price := hm.CurrentPrice
	buffer := decimal.NewFromFloat(stopBuffer)
	trim := decimal.NewFromFloat(targetTrim)

	if side == model.SideShort {
		if hm.MajorShortZone != nil && hm.MajorLongZone != nil {
			stop = hm.MajorShortZone.Price.Mul(trim).Round(2)
			target = hm.MajorLongZone.Price.Mul(buffer).Round(2)
			return stop, target, StopSourceZones
		}
		stop = price.Mul(decimal.NewFromFloat(1 + fallbackStopPct)).Round(2)
		target = price.Mul(decimal.NewFromFloat(1 - fallbackTargetPct)).Round(2)
		return stop, target, StopSourceNoData
	}

	// Long, or no side yet: quote the long-side levels.
	if hm.MajorLongZone != nil && hm.MajorShortZone != nil {
		stop = hm.MajorLongZone.Price.Mul(buffer).Round(2)
		target = hm.MajorShortZone.Price.Mul(trim).Round(2)
		return stop, target, StopSourceZones
	}
	stop = price.Mul(decimal.NewFromFloat(1 - fallbackStopPct)).Round(2)
	target = price.Mul(decimal.NewFromFloat(1 + fallbackTargetPct)).Round(2)
	return stop, target, StopSourceNoData
}

func assessWarnings(a *model.LiquidationRiskAssessment, side string) []string {
	var warnings []string
	switch a.RiskLevel {
	case model.RiskExtreme:
		warnings = append(warnings,
			"liquidation cluster inside the danger band: forced selling can cascade through this range")
	case model.RiskHigh:
		warnings = append(warnings,
			"liquidation cluster within 5%: expect sharp wicks into that zone")
	case model.RiskMedium:
		warnings = append(warnings,
			"liquidation cluster within 10%: volatility is likely to pick up as price approaches")
	}
	if side == "" && a.NearestLongZone != nil && a.NearestShortZone != nil &&
		a.NearestLongZone.Distance <= cautionDistance && a.NearestShortZone.Distance <= cautionDistance {
		warnings = append(warnings,
			"liquidation clusters on both sides within 5%: two-sided stop hunt conditions")
	}
	return warnings
}

func assessRecommendations(hm *model.LiquidationHeatmapData, a *model.LiquidationRiskAssessment) []string {
	var recs []string
	switch hm.DominantSide {
	case model.DominantLong:
		recs = append(recs,
			"long liquidations dominate: downside moves can accelerate, favor wider stops below")
	case model.DominantShort:
		recs = append(recs,
			"short liquidations dominate: upside squeezes are the larger risk")
	}
	if !hm.MagnetPrice.Equal(hm.CurrentPrice) {
		recs = append(recs, fmt.Sprintf(
			"largest combined cluster at %s may act as a price magnet", hm.MagnetPrice))
	}
	if a.RiskLevel == model.RiskExtreme || a.RiskLevel == model.RiskHigh {
		recs = append(recs, "reduce leverage until price clears the nearby cluster")
	}
	return recs
}
