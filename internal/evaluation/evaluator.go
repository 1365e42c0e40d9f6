package evaluation

import (
	"math"

	"quantbrains/internal/schema"
)

const (
	DefaultNotionalAccount = 10000.0
	DefaultRiskFreeRate    = 0.02
	DefaultWinLossRatio    = 1.5
	DefaultRobustFactor    = 0.5
	DefaultMinVolatility   = 0.01

	profitFloor       = 1000.0
	drawdownScale     = 5.0
	profitBlend       = 0.4
	winRateBlend      = 0.3
	drawdownBlend     = 0.3
	optimalFractionLo = 0.0
	optimalFractionHi = 1.0
)

// Config holds the assumptions behind the scalar metrics.
type Config struct {
	// NotionalAccount converts profit into a return fraction.
	NotionalAccount float64 `json:"notionalAccount"`
	RiskFreeRate    float64 `json:"riskFreeRate"`
	// WinLossRatio is the assumed average win over average loss for OptimalF.
	WinLossRatio float64 `json:"winLossRatio"`
	// RobustFactor scales OptimalF in robust mode.
	RobustFactor float64 `json:"robustFactor"`
	// MinVolatility floors drawdown when it stands in for volatility.
	MinVolatility float64 `json:"minVolatility"`
}

// DefaultConfig returns the standard evaluation assumptions.
func DefaultConfig() Config {
	return Config{
		NotionalAccount: DefaultNotionalAccount,
		RiskFreeRate:    DefaultRiskFreeRate,
		WinLossRatio:    DefaultWinLossRatio,
		RobustFactor:    DefaultRobustFactor,
		MinVolatility:   DefaultMinVolatility,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NotionalAccount <= 0 {
		c.NotionalAccount = d.NotionalAccount
	}
	if c.WinLossRatio <= 0 {
		c.WinLossRatio = d.WinLossRatio
	}
	if c.RobustFactor <= 0 || c.RobustFactor > 1 {
		c.RobustFactor = d.RobustFactor
	}
	if c.MinVolatility <= 0 {
		c.MinVolatility = d.MinVolatility
	}
	return c
}

// Result aggregates every metric for one strategy.
type Result struct {
	StrategyID         int     `json:"strategyId"`
	Momentum           float64 `json:"momentum"`
	SharpeRatio        float64 `json:"sharpeRatio"`
	SortinoRatio       float64 `json:"sortinoRatio"`
	OptimalF           float64 `json:"optimalF"`
	RobustOptimalF     float64 `json:"robustOptimalF"`
	ExpectedReturn     float64 `json:"expectedReturn"`
	RiskAdjustedReturn float64 `json:"riskAdjustedReturn"`
}

// Evaluator computes per-strategy performance metrics. All methods are pure
// and return 0 for a nil strategy.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator. A zero RiskFreeRate is kept as is.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg.withDefaults()}
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Momentum blends profit factor, win rate and drawdown into a 0..100 score.
func (e *Evaluator) Momentum(s *schema.Strategy) float64 {
	if s == nil {
		return 0
	}
	profitFactor := math.Max(0, s.Profit) / math.Max(profitFloor, math.Abs(s.Profit)) * 100
	winFactor := s.WinRate * 100
	drawdownFactor := math.Max(0, 1-s.Drawdown*drawdownScale) * 100

	momentum := profitFactor*profitBlend + winFactor*winRateBlend + drawdownFactor*drawdownBlend
	if math.IsNaN(momentum) {
		return schema.MomentumMin
	}
	return schema.ClampMomentum(momentum)
}

// Sharpe uses the configured risk free rate.
func (e *Evaluator) Sharpe(s *schema.Strategy) float64 {
	return e.SharpeWithRate(s, e.cfg.RiskFreeRate)
}

// SharpeWithRate is (return - rate) / volatility where drawdown stands in
// for volatility.
func (e *Evaluator) SharpeWithRate(s *schema.Strategy, riskFreeRate float64) float64 {
	if s == nil {
		return 0
	}
	return (e.annualReturn(s) - riskFreeRate) / e.volatility(s)
}

// Sortino uses the configured risk free rate.
func (e *Evaluator) Sortino(s *schema.Strategy) float64 {
	return e.SortinoWithRate(s, e.cfg.RiskFreeRate)
}

// SortinoWithRate has the Sharpe shape; drawdown also stands in for
// downside risk.
func (e *Evaluator) SortinoWithRate(s *schema.Strategy, riskFreeRate float64) float64 {
	if s == nil {
		return 0
	}
	downside := e.volatility(s)
	return (e.annualReturn(s) - riskFreeRate) / downside
}

// OptimalF is winRate - (1-winRate)/WinLossRatio, scaled by RobustFactor
// when robust, clamped to [0, 1].
func (e *Evaluator) OptimalF(s *schema.Strategy, robust bool) float64 {
	if s == nil {
		return 0
	}
	f := s.WinRate - (1-s.WinRate)/e.cfg.WinLossRatio
	if robust {
		f *= e.cfg.RobustFactor
	}
	if math.IsNaN(f) {
		return optimalFractionLo
	}
	return math.Max(optimalFractionLo, math.Min(optimalFractionHi, f))
}

// ExpectedReturn is the profit as a percentage of the notional account.
func (e *Evaluator) ExpectedReturn(s *schema.Strategy) float64 {
	if s == nil {
		return 0
	}
	return e.annualReturn(s) * 100
}

// RiskAdjustedReturn is the return over volatility, in percent.
func (e *Evaluator) RiskAdjustedReturn(s *schema.Strategy) float64 {
	if s == nil {
		return 0
	}
	return e.annualReturn(s) / e.volatility(s) * 100
}

// Evaluate computes every metric for s.
func (e *Evaluator) Evaluate(s *schema.Strategy) Result {
	if s == nil {
		return Result{}
	}
	return Result{
		StrategyID:         s.ID,
		Momentum:           e.Momentum(s),
		SharpeRatio:        e.Sharpe(s),
		SortinoRatio:       e.Sortino(s),
		OptimalF:           e.OptimalF(s, false),
		RobustOptimalF:     e.OptimalF(s, true),
		ExpectedReturn:     e.ExpectedReturn(s),
		RiskAdjustedReturn: e.RiskAdjustedReturn(s),
	}
}

// EvaluateAll evaluates each strategy in order.
func (e *Evaluator) EvaluateAll(strategies []schema.Strategy) []Result {
	out := make([]Result, 0, len(strategies))
	for i := range strategies {
		out = append(out, e.Evaluate(&strategies[i]))
	}
	return out
}

func (e *Evaluator) annualReturn(s *schema.Strategy) float64 {
	return s.Profit / e.cfg.NotionalAccount
}

func (e *Evaluator) volatility(s *schema.Strategy) float64 {
	return math.Max(e.cfg.MinVolatility, s.Drawdown)
}
