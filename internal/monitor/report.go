package monitor

import (
	"time"

	"quantbrains/internal/evaluation"
	"quantbrains/internal/schema"
)

// StrategyReport is one strategy with its computed figures.
type StrategyReport struct {
	Strategy       schema.Strategy   `json:"strategy"`
	Evaluation     evaluation.Result `json:"evaluation"`
	Weight         float64           `json:"weight"`
	AdjustedWeight float64           `json:"adjustedWeight"`
	Position       float64           `json:"position"`
	Eligible       bool              `json:"eligible"`
}

// Report is the operator view of one book revision.
type Report struct {
	Version       uint64                `json:"version"`
	GeneratedAt   time.Time             `json:"generatedAt"`
	Strategies    []StrategyReport      `json:"strategies"`
	Counts        map[schema.Status]int `json:"counts"`
	ActiveCount   int                   `json:"activeCount"`
	PortfolioRisk float64               `json:"portfolioRisk"`
	Equity        float64               `json:"equity"`
	EquitySource  string                `json:"equitySource"`
	Account       *schema.Account       `json:"account,omitempty"`
}

// Report computes allocation and evaluation figures for the current book.
func (s *Service) Report() Report {
	e := s.engines.Load()
	strategies := s.book.Strategies()

	report := Report{
		Version:      s.book.Version(),
		GeneratedAt:  time.Now(),
		Counts:       s.book.CountByStatus(),
		Equity:       e.cfg.AccountEquity,
		EquitySource: EquitySourceConfig,
	}
	report.ActiveCount = report.Counts[schema.StatusRunning]

	if account, ok := s.book.Account(); ok {
		a := account
		report.Account = &a
		if account.Equity.IsPositive() {
			report.Equity = account.Equity.InexactFloat64()
			report.EquitySource = EquitySourceAccount
		}
	}

	alloc := e.risk.Allocate(strategies, report.Equity)
	report.PortfolioRisk = alloc.PortfolioRisk
	report.Strategies = make([]StrategyReport, 0, len(strategies))
	for i := range strategies {
		st := &strategies[i]
		report.Strategies = append(report.Strategies, StrategyReport{
			Strategy:       *st,
			Evaluation:     e.evaluator.Evaluate(st),
			Weight:         alloc.Weights[st.ID],
			AdjustedWeight: alloc.AdjustedWeights[st.ID],
			Position:       alloc.Positions[st.ID],
			Eligible:       alloc.Eligible[st.ID],
		})
	}
	return report
}
