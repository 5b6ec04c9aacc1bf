// Package liquidation estimates where leveraged market participants would be
// forcibly liquidated around the current price.
//
// The estimator discretizes −30%..+30% of the current price into 61 levels.
// Long liquidations accumulate below price, short liquidations above, scaled
// by a leverage-cluster factor that reflects how tightly high-leverage
// positions sit around the mark. Real open-interest data sharpens the
// estimate when a provider has it; otherwise documented per-tier fallback
// constants apply and the heatmap is labeled "estimated".
//
// The whole computation runs on float64 and converts to decimal at the level
// boundary, the same convention the rest of the engine uses for USD values.
package liquidation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/risk-engine/internal/marketdata"
	"github.com/quantfolio/risk-engine/internal/model"
)

const (
	// rangePct and levelCount fix the heatmap grid: 1% steps over ±30%.
	rangePct   = 30
	levelCount = 2*rangePct + 1

	// oiSpread divides open interest across the grid; paired with the
	// maxFactor calibration constant it normalizes intensity to [0, 100].
	oiSpread  = 30
	maxFactor = 0.15

	// roundNumberBoost models liquidation clustering at round-number
	// percent distances (5, 10, 20).
	roundNumberBoost = 1.8

	// fallbackLongRatio applies when no provider data exists. Retail
	// perpetual markets skew slightly long.
	fallbackLongRatio = 0.52
)

// Fallback open interest (USD) by symbol tier, used when no live reading is
// available.
var fallbackOpenInterest = map[string]float64{
	"BTC": 20e9,
	"ETH": 10e9,
	"SOL": 2e9,
	"XRP": 2e9,
	"BNB": 2e9,
}

// fallbackDefaultOI covers symbols outside the tier table.
const fallbackDefaultOI = 500e6

// Estimator builds liquidation heatmaps. Safe for concurrent use; the only
// shared state is the injected cache, which synchronizes internally.
type Estimator struct {
	provider marketdata.OpenInterestProvider
	cache    Cache
	noise    NoiseSource
	now      func() time.Time
}

// NewEstimator creates an estimator. provider may be nil (fallback constants
// only), cache may be nil (no caching), noise may be nil (±15% jitter).
func NewEstimator(provider marketdata.OpenInterestProvider, cache Cache, noise NoiseSource) *Estimator {
	if noise == nil {
		noise = Jitter(nil)
	}
	return &Estimator{
		provider: provider,
		cache:    cache,
		noise:    noise,
		now:      time.Now,
	}
}

// Heatmap returns the liquidation heatmap for (symbol, currentPrice). A
// cache hit within the TTL reuses the stored levels but always carries the
// caller-supplied current price, so consumers see a fresh mark against
// slightly stale level estimates.
func (e *Estimator) Heatmap(ctx context.Context, symbol string, currentPrice decimal.Decimal) *model.LiquidationHeatmapData {
	if e.cache != nil {
		if hm, ok := e.cache.Get(ctx, symbol); ok {
			hm.CurrentPrice = currentPrice
			return hm
		}
	}

	hm := e.generate(ctx, symbol, currentPrice)
	if e.cache != nil {
		e.cache.Put(ctx, symbol, hm)
	}
	return hm
}

func (e *Estimator) generate(ctx context.Context, symbol string, currentPrice decimal.Decimal) *model.LiquidationHeatmapData {
	baseOI, longRatio, source := e.openInterest(ctx, symbol)
	price := currentPrice.InexactFloat64()

	hm := &model.LiquidationHeatmapData{
		Symbol:       symbol,
		CurrentPrice: currentPrice,
		Levels:       make([]model.LiquidationLevel, 0, levelCount),
		Source:       source,
		GeneratedAt:  e.now().UTC(),
	}

	maxPossible := baseOI * maxFactor / oiSpread

	var totalLong, totalShort float64
	var nearTotal, grandTotal float64
	var majorLong, majorShort, magnet *model.LiquidationLevel

	for i := -rangePct; i <= rangePct; i++ {
		pct := float64(i)
		levelPrice := price * (1 + pct/100)
		factor := leverageClusterFactor(math.Abs(pct))

		var long, short float64
		if i < 0 {
			long = baseOI * longRatio * factor * e.noise() / oiSpread
		} else if i > 0 {
			short = baseOI * (1 - longRatio) * factor * e.noise() / oiSpread
		}

		// Round-number clustering: stops and liquidations pile up at the
		// 5/10/20 percent marks.
		switch math.Abs(pct) {
		case 5, 10, 20:
			long *= roundNumberBoost
			short *= roundNumberBoost
		}

		total := long + short
		intensity := 0.0
		if maxPossible > 0 {
			intensity = math.Min(100, total/maxPossible*100)
		}

		level := model.LiquidationLevel{
			Price:             decimal.NewFromFloat(levelPrice).Round(2),
			LongLiquidations:  decimal.NewFromFloat(long).Round(2),
			ShortLiquidations: decimal.NewFromFloat(short).Round(2),
			Total:             decimal.NewFromFloat(total).Round(2),
			Intensity:         math.Round(intensity*100) / 100,
			PriceFromCurrent:  pct,
		}
		hm.Levels = append(hm.Levels, level)
		idx := len(hm.Levels) - 1

		totalLong += long
		totalShort += short
		grandTotal += total
		if math.Abs(pct) <= 5 {
			nearTotal += total
		}

		if long > 0 && (majorLong == nil || long > majorLong.LongLiquidations.InexactFloat64()) {
			majorLong = &hm.Levels[idx]
		}
		if short > 0 && (majorShort == nil || short > majorShort.ShortLiquidations.InexactFloat64()) {
			majorShort = &hm.Levels[idx]
		}
		if total > 0 && (magnet == nil || total > magnet.Total.InexactFloat64()) {
			magnet = &hm.Levels[idx]
		}
	}

	hm.TotalLongLiquidations = decimal.NewFromFloat(totalLong).Round(2)
	hm.TotalShortLiquidations = decimal.NewFromFloat(totalShort).Round(2)

	ratio := 1.0
	if totalShort > 0 {
		ratio = totalLong / totalShort
	}
	hm.LongShortRatio = math.Round(ratio*100) / 100

	switch {
	case ratio > 1.2:
		hm.DominantSide = model.DominantLong
	case ratio < 0.8:
		hm.DominantSide = model.DominantShort
	default:
		hm.DominantSide = model.DominantBalanced
	}

	hm.MajorLongZone = majorLong
	hm.MajorShortZone = majorShort
	hm.MagnetPrice = currentPrice
	if magnet != nil {
		hm.MagnetPrice = magnet.Price
	}

	if grandTotal > 0 {
		hm.RiskScore = math.Round(math.Min(100, nearTotal/grandTotal*200)*100) / 100
	}

	return hm
}

// openInterest resolves (baseOI, longRatio, source), preferring live provider
// data and degrading to the per-tier fallback constants. Provider errors are
// logged and treated the same as absent data.
func (e *Estimator) openInterest(ctx context.Context, symbol string) (float64, float64, string) {
	if e.provider != nil {
		oi, ok, err := e.provider.OpenInterest(ctx, symbol)
		if err != nil {
			slog.Warn("open interest lookup failed, using fallback",
				"symbol", symbol, "err", err)
		} else if ok && oi.Value > 0 && oi.LongRatio > 0 && oi.LongRatio < 1 {
			return oi.Value, oi.LongRatio, model.SourceLive
		}
	}

	base, ok := fallbackOpenInterest[symbol]
	if !ok {
		base = fallbackDefaultOI
	}
	return base, fallbackLongRatio, model.SourceEstimated
}

// leverageClusterFactor maps absolute percent distance from the current
// price to the share of open interest liquidating there. The banding is
// deliberate: very-high-leverage positions (50x+) cluster within 2%, the
// bulk of 10-25x sits inside 10%, and low-leverage stragglers thin out past
// 20%. Do not replace with a smooth curve.
func leverageClusterFactor(absPct float64) float64 {
	switch {
	case absPct <= 2:
		return 0.15
	case absPct <= 4:
		return 0.25
	case absPct <= 10:
		return 0.35
	case absPct <= 20:
		return 0.20
	default:
		return 0.05
	}
}
