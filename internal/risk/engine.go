package risk

import (
	"math"

	"quantbrains/internal/schema"
)

const (
	DefaultEpsilon           = 1e-4
	DefaultBaseFraction      = 0.01
	DefaultDrawdownPenalty   = 2.0
	DefaultMinRiskFactor     = 0.1
	DefaultMomentumThreshold = 50.0
)

// Config defines the allocation parameters.
type Config struct {
	// Epsilon floors each drawdown and bounds the "no risk" total.
	Epsilon float64 `json:"epsilon"`
	// BaseFraction of equity is the unadjusted position size.
	BaseFraction float64 `json:"baseFraction"`
	// DrawdownPenalty scales the linear drawdown haircut.
	DrawdownPenalty float64 `json:"drawdownPenalty"`
	// MinRiskFactor floors the haircut as a fraction of the base size.
	MinRiskFactor float64 `json:"minRiskFactor"`
	// MomentumThreshold marks a strategy as eligible in Allocate.
	MomentumThreshold float64 `json:"momentumThreshold"`
}

// DefaultConfig returns the standard allocation parameters.
func DefaultConfig() Config {
	return Config{
		Epsilon:           DefaultEpsilon,
		BaseFraction:      DefaultBaseFraction,
		DrawdownPenalty:   DefaultDrawdownPenalty,
		MinRiskFactor:     DefaultMinRiskFactor,
		MomentumThreshold: DefaultMomentumThreshold,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.BaseFraction <= 0 {
		c.BaseFraction = d.BaseFraction
	}
	if c.DrawdownPenalty <= 0 {
		c.DrawdownPenalty = d.DrawdownPenalty
	}
	if c.MinRiskFactor <= 0 {
		c.MinRiskFactor = d.MinRiskFactor
	}
	if c.MomentumThreshold < 0 {
		c.MomentumThreshold = d.MomentumThreshold
	}
	return c
}

// Weights maps strategy id to allocation weight.
type Weights map[int]float64

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

// Engine computes allocation weights and portfolio risk. It holds no state
// besides its configuration and never mutates its inputs.
type Engine struct {
	cfg Config
}

// NewEngine creates a risk engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// RiskParityWeights weights each strategy by the inverse of its drawdown,
// normalized to sum to 1. When the total drawdown is within epsilon of zero
// every strategy gets the same weight. The first record of a repeated id wins.
func (e *Engine) RiskParityWeights(strategies []schema.Strategy) Weights {
	weights := make(Weights, len(strategies))
	unique := dedupe(strategies)
	if len(unique) == 0 {
		return weights
	}

	var totalRisk float64
	for _, s := range unique {
		totalRisk += s.Drawdown
	}

	if math.Abs(totalRisk) < e.cfg.Epsilon {
		equal := 1.0 / float64(len(unique))
		for _, s := range unique {
			weights[s.ID] = equal
		}
		return weights
	}

	var inverseSum float64
	for _, s := range unique {
		inverse := 1.0 / math.Max(s.Drawdown, e.cfg.Epsilon)
		weights[s.ID] = inverse
		inverseSum += inverse
	}
	for id := range weights {
		weights[id] /= inverseSum
	}
	return weights
}

// StandardizedPosition sizes a position as BaseFraction of equity, reduced
// linearly by drawdown (never below MinRiskFactor of the base) and scaled by
// momentum/100.
func (e *Engine) StandardizedPosition(s *schema.Strategy, equity float64) float64 {
	if s == nil || equity <= 0 {
		return 0
	}
	base := equity * e.cfg.BaseFraction
	riskFactor := math.Max(1-s.Drawdown*e.cfg.DrawdownPenalty, e.cfg.MinRiskFactor)
	return base * riskFactor * momentumFactor(s.Momentum)
}

// MomentumThreshold reports whether the strategy momentum reaches threshold.
func (e *Engine) MomentumThreshold(s *schema.Strategy, threshold float64) bool {
	if s == nil {
		return false
	}
	return s.Momentum >= threshold
}

// PortfolioRisk is the drawdown averaged with max(profit, 0) weights, or the
// plain average when no strategy is profitable.
func (e *Engine) PortfolioRisk(strategies []schema.Strategy) float64 {
	if len(strategies) == 0 {
		return 0
	}

	var totalWeight, drawdownSum float64
	for _, s := range strategies {
		totalWeight += math.Max(s.Profit, 0)
		drawdownSum += s.Drawdown
	}

	if totalWeight <= 0 {
		return drawdownSum / float64(len(strategies))
	}

	var risk float64
	for _, s := range strategies {
		risk += s.Drawdown * math.Max(s.Profit, 0) / totalWeight
	}
	return risk
}

// AdjustWeights scales the risk parity weights by momentum/100 and
// renormalizes. When every adjusted weight is zero the scaled weights are
// returned as is.
func (e *Engine) AdjustWeights(strategies []schema.Strategy) Weights {
	weights := e.RiskParityWeights(strategies)
	if len(weights) == 0 {
		return weights
	}

	for _, s := range dedupe(strategies) {
		weights[s.ID] *= momentumFactor(s.Momentum)
	}

	total := weights.Sum()
	if total <= 0 {
		return weights
	}
	for id := range weights {
		weights[id] /= total
	}
	return weights
}

// Allocation is the engine output for one strategy set.
type Allocation struct {
	Weights         Weights
	AdjustedWeights Weights
	Positions       map[int]float64
	Eligible        map[int]bool
	PortfolioRisk   float64
}

// Allocate runs every engine computation over one strategy set.
func (e *Engine) Allocate(strategies []schema.Strategy, equity float64) Allocation {
	unique := dedupe(strategies)
	out := Allocation{
		Weights:         e.RiskParityWeights(unique),
		AdjustedWeights: e.AdjustWeights(unique),
		Positions:       make(map[int]float64, len(unique)),
		Eligible:        make(map[int]bool, len(unique)),
		PortfolioRisk:   e.PortfolioRisk(unique),
	}
	for i := range unique {
		s := &unique[i]
		out.Positions[s.ID] = e.StandardizedPosition(s, equity)
		out.Eligible[s.ID] = e.MomentumThreshold(s, e.cfg.MomentumThreshold)
	}
	return out
}

func momentumFactor(momentum float64) float64 {
	return math.Max(0, momentum) / 100
}

func dedupe(strategies []schema.Strategy) []schema.Strategy {
	if len(strategies) < 2 {
		return strategies
	}
	seen := make(map[int]struct{}, len(strategies))
	out := make([]schema.Strategy, 0, len(strategies))
	for _, s := range strategies {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
