// Package marketdata defines the engine's edge to futures market data
// providers. The engine only needs two optional numbers per symbol: total
// open interest (USD) and the long/short account ratio. A provider that has
// no data returns ok=false — never an error for mere absence — and the
// liquidation estimator falls back to its documented constants.
package marketdata

import "context"

// OpenInterest is a point-in-time reading from a futures data provider.
type OpenInterest struct {
	// Value is total open interest in USD notional.
	Value float64
	// LongRatio is the fraction of accounts positioned long, in (0, 1).
	LongRatio float64
}

// OpenInterestProvider supplies optional open-interest readings. Blocking
// network providers should honor ctx; implementations must treat missing
// data as (zero, false, nil), not an error.
type OpenInterestProvider interface {
	OpenInterest(ctx context.Context, symbol string) (OpenInterest, bool, error)
}

// StaticProvider serves fixed readings from a map. Useful for tests and for
// offline replay of captured provider output.
type StaticProvider struct {
	Data map[string]OpenInterest
}

// NewStaticProvider creates a provider backed by the given readings.
func NewStaticProvider(data map[string]OpenInterest) *StaticProvider {
	return &StaticProvider{Data: data}
}

// OpenInterest returns the fixed reading for symbol, if any.
func (p *StaticProvider) OpenInterest(_ context.Context, symbol string) (OpenInterest, bool, error) {
	if p == nil || p.Data == nil {
		return OpenInterest{}, false, nil
	}
	oi, ok := p.Data[symbol]
	return oi, ok, nil
}

// NoData is a provider that never has readings; every estimate built from
// it is labeled "estimated".
type NoData struct{}

// OpenInterest always reports absence.
func (NoData) OpenInterest(context.Context, string) (OpenInterest, bool, error) {
	return OpenInterest{}, false, nil
}
