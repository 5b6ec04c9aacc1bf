// Package scenario projects portfolio snapshots through named price-shock
// tables. The canonical scenarios ship as an embedded YAML fixture so every
// build reproduces the same shock tables byte for byte.
package scenario

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/quantfolio/risk-engine/internal/model"
)

//go:embed scenarios.yaml
var fixtureYAML []byte

// Scenario is a named mapping from asset symbol to a percentage price shock.
// Symbols absent from Shocks receive DefaultShock.
type Scenario struct {
	Name         string             `yaml:"name"`
	Description  string             `yaml:"description"`
	DefaultShock float64            `yaml:"default_shock"`
	Shocks       map[string]float64 `yaml:"shocks"`
}

type fixtureFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

var builtin []Scenario

func init() {
	var f fixtureFile
	if err := yaml.Unmarshal(fixtureYAML, &f); err != nil {
		// Malformed embedded fixture is a build defect, not runtime data.
		panic(fmt.Sprintf("scenario: embedded fixture is invalid: %v", err))
	}
	builtin = f.Scenarios
}

// Builtin returns a copy of the canonical scenario set.
func Builtin() []Scenario {
	out := make([]Scenario, len(builtin))
	copy(out, builtin)
	return out
}

// Shock returns the percentage move the scenario applies to symbol.
func (s Scenario) Shock(symbol string) float64 {
	if shock, ok := s.Shocks[symbol]; ok {
		return shock
	}
	return s.DefaultShock
}

// Apply projects the snapshot through one scenario: each position's value
// becomes quantity × price × (1 + shock/100), aggregated into dollar and
// percent portfolio impact. Projected drawdown is the loss magnitude when
// the impact is negative, 0 otherwise.
func Apply(snap model.PortfolioSnapshot, s Scenario) model.ScenarioAnalysis {
	analysis := model.ScenarioAnalysis{
		Name:           s.Name,
		Description:    s.Description,
		TotalImpactUSD: decimal.Zero,
	}

	totalImpact := decimal.Zero
	for _, p := range snap.Positions {
		shock := s.Shock(p.Symbol)
		factor := decimal.NewFromFloat(1 + shock/100)

		current := p.Quantity.Mul(p.CurrentPrice)
		projected := current.Mul(factor)
		impact := projected.Sub(current)

		impactPct := 0.0
		if !current.IsZero() {
			impactPct = round2(impact.InexactFloat64() / current.Abs().InexactFloat64() * 100)
		}

		analysis.Impacts = append(analysis.Impacts, model.PositionImpact{
			Symbol:         p.Symbol,
			Shock:          shock,
			CurrentValue:   current.Round(2),
			ProjectedValue: projected.Round(2),
			ImpactUSD:      impact.Round(2),
			ImpactPct:      impactPct,
		})
		totalImpact = totalImpact.Add(impact)
	}

	analysis.TotalImpactUSD = totalImpact.Round(2)

	total := snap.TotalValue.InexactFloat64()
	if total > 0 {
		analysis.TotalImpactPct = round2(totalImpact.InexactFloat64() / total * 100)
	}
	if analysis.TotalImpactPct < 0 {
		analysis.ProjectedDrawdown = -analysis.TotalImpactPct
	}

	return analysis
}

// ApplyAll runs every scenario against the snapshot, in fixture order.
func ApplyAll(snap model.PortfolioSnapshot, scenarios []Scenario) []model.ScenarioAnalysis {
	out := make([]model.ScenarioAnalysis, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, Apply(snap, s))
	}
	return out
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
