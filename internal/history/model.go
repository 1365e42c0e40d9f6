package history

import (
	"time"

	"github.com/shopspring/decimal"

	"quantbrains/internal/evaluation"
	"quantbrains/internal/schema"
)

// StrategyRecord is one strategy row of one refresh.
type StrategyRecord struct {
	ID             uint64 `gorm:"primaryKey"`
	RefreshVersion uint64 `gorm:"index"`
	StrategyID     int    `gorm:"index"`
	Name           string
	Symbol         string
	Timeframe      string
	MagicNumber    int64
	Status         schema.Status
	Profit         float64
	Drawdown       float64
	WinRate        float64
	Momentum       float64
	TotalTrades    int
	Weight         float64
	AdjustedWeight float64
	Position       float64
	Eligible       bool
	SharpeRatio    float64
	SortinoRatio   float64
	OptimalF       float64
	ReportedAt     time.Time
	CreatedAt      time.Time `gorm:"index"`
}

func (StrategyRecord) TableName() string {
	return "strategy_history"
}

// CommandRecord is one command exchange with the terminal.
type CommandRecord struct {
	ID         uint64 `gorm:"primaryKey"`
	Command    string `gorm:"index"`
	Success    bool
	Message    string
	Error      string
	DurationMs int64
	CreatedAt  time.Time `gorm:"index"`
}

func (CommandRecord) TableName() string {
	return "command_history"
}

// AccountRecord is one account status sample.
type AccountRecord struct {
	ID         uint64          `gorm:"primaryKey"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,8)"`
	Equity     decimal.Decimal `gorm:"type:decimal(20,8)"`
	FreeMargin decimal.Decimal `gorm:"type:decimal(20,8)"`
	Currency   string
	CreatedAt  time.Time `gorm:"index"`
}

func (AccountRecord) TableName() string {
	return "account_history"
}

// Sample is a strategy together with the figures computed for it.
type Sample struct {
	Strategy       schema.Strategy
	Evaluation     evaluation.Result
	Weight         float64
	AdjustedWeight float64
	Position       float64
	Eligible       bool
}

func (s Sample) record(version uint64, at time.Time) StrategyRecord {
	return StrategyRecord{
		RefreshVersion: version,
		StrategyID:     s.Strategy.ID,
		Name:           s.Strategy.Name,
		Symbol:         s.Strategy.Symbol,
		Timeframe:      s.Strategy.Timeframe,
		MagicNumber:    s.Strategy.MagicNumber,
		Status:         s.Strategy.Status,
		Profit:         s.Strategy.Profit,
		Drawdown:       s.Strategy.Drawdown,
		WinRate:        s.Strategy.WinRate,
		Momentum:       s.Strategy.Momentum,
		TotalTrades:    s.Strategy.TotalTrades,
		Weight:         s.Weight,
		AdjustedWeight: s.AdjustedWeight,
		Position:       s.Position,
		Eligible:       s.Eligible,
		SharpeRatio:    s.Evaluation.SharpeRatio,
		SortinoRatio:   s.Evaluation.SortinoRatio,
		OptimalF:       s.Evaluation.OptimalF,
		ReportedAt:     s.Strategy.LastUpdate,
		CreatedAt:      at,
	}
}
