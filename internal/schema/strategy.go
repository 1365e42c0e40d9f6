package schema

import "time"

// Status is the lifecycle state reported by the terminal for a strategy.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
	StatusPaused
	StatusError
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s >= StatusStopped && s <= StatusError
}

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Strategy is one strategy record as reported by the terminal.
// ID is assigned remotely and is the key for every control command.
type Strategy struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	MagicNumber int64     `json:"magicNumber"`
	Status      Status    `json:"status"`
	Profit      float64   `json:"profit"`
	Drawdown    float64   `json:"drawdown"`
	WinRate     float64   `json:"winRate"`
	Momentum    float64   `json:"momentum"`
	TotalTrades int       `json:"totalTrades"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

const (
	MomentumMin = 0.0
	MomentumMax = 100.0
)

// ClampMomentum bounds a momentum score to [MomentumMin, MomentumMax].
func ClampMomentum(v float64) float64 {
	if v < MomentumMin {
		return MomentumMin
	}
	if v > MomentumMax {
		return MomentumMax
	}
	return v
}
