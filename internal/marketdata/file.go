package marketdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	OpenInterest float64 `yaml:"open_interest"`
	LongRatio    float64 `yaml:"long_ratio"`
}

// LoadFile reads per-symbol open-interest readings from a YAML file of the
// form:
//
//	BTC:
//	  open_interest: 20000000000
//	  long_ratio: 0.55
//
// Used to feed captured exchange data into the estimator without a live
// provider connection.
func LoadFile(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read open interest file: %w", err)
	}

	var entries map[string]fileEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse open interest file %s: %w", path, err)
	}

	data := make(map[string]OpenInterest, len(entries))
	for symbol, e := range entries {
		if e.OpenInterest <= 0 || e.LongRatio <= 0 || e.LongRatio >= 1 {
			return nil, fmt.Errorf("open interest file %s: invalid entry for %s", path, symbol)
		}
		data[symbol] = OpenInterest{Value: e.OpenInterest, LongRatio: e.LongRatio}
	}
	return NewStaticProvider(data), nil
}
