package terminalsim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"quantbrains/internal/codec"
	"quantbrains/internal/evaluation"
	"quantbrains/internal/mailbox"
	"quantbrains/internal/schema"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	defaultStrategies   = 4
	defaultBalance      = 10000
)

var (
	strategyNames = []string{"Trend", "MeanRevert", "Breakout", "Grid", "Scalper", "Carry"}
	symbols       = []string{"EURUSD", "XAUUSD", "USDJPY", "GBPUSD", "US30", "BTCUSD"}
	timeframes    = []string{"M15", "H1", "H4", "D1"}
)

// Config controls the simulated terminal.
type Config struct {
	// Dir is the Files folder the terminal reads commands from.
	Dir          string
	CommandFile  string
	ResponseFile string
	PollInterval time.Duration
	// PushInterval emits an unsolicited strategy list (0=disable).
	PushInterval time.Duration
	Strategies   int
	Seed         uint64
	Balance      decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.CommandFile == "" {
		c.CommandFile = mailbox.DefaultCommandFile
	}
	if c.ResponseFile == "" {
		c.ResponseFile = mailbox.DefaultResponseFile
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Strategies <= 0 {
		c.Strategies = defaultStrategies
	}
	if c.Balance.IsZero() {
		c.Balance = decimal.NewFromInt(defaultBalance)
	}
	return c
}

// Terminal answers mailbox commands the way the trading terminal's expert
// does: read the command file, delete it, write one response file.
type Terminal struct {
	cfg       Config
	evaluator *evaluation.Evaluator

	mu         sync.Mutex
	rng        *rand.Rand
	strategies []schema.Strategy
	balance    decimal.Decimal
}

// New creates a terminal holding cfg.Strategies generated strategies.
func New(cfg Config) *Terminal {
	cfg = cfg.withDefaults()
	t := &Terminal{
		cfg:       cfg,
		evaluator: evaluation.NewEvaluator(evaluation.DefaultConfig()),
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		balance:   cfg.Balance,
	}
	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < cfg.Strategies; i++ {
		s := schema.Strategy{
			ID:          i + 1,
			Name:        strategyNames[i%len(strategyNames)],
			Symbol:      symbols[i%len(symbols)],
			Timeframe:   timeframes[i%len(timeframes)],
			MagicNumber: int64(100000 + i + 1),
			Status:      schema.StatusStopped,
			Profit:      float64(t.rng.IntN(3000) - 500),
			Drawdown:    0.01 + t.rng.Float64()*0.25,
			WinRate:     0.35 + t.rng.Float64()*0.4,
			TotalTrades: t.rng.IntN(200),
			LastUpdate:  now,
		}
		s.Momentum = t.evaluator.Momentum(&s)
		t.strategies = append(t.strategies, s)
	}
	return t
}

// Strategies returns a copy of the simulated strategies.
func (t *Terminal) Strategies() []schema.Strategy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]schema.Strategy(nil), t.strategies...)
}

// Run serves commands until ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	if err := os.MkdirAll(t.cfg.Dir, 0o755); err != nil {
		return err
	}
	poll := time.NewTicker(t.cfg.PollInterval)
	defer poll.Stop()

	var push <-chan time.Time
	if t.cfg.PushInterval > 0 {
		ticker := time.NewTicker(t.cfg.PushInterval)
		defer ticker.Stop()
		push = ticker.C
	}

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return nil
		case <-poll.C:
			if _, err := t.HandleOnce(); err != nil {
				logs.Errorf("handle command, err: %+v", err)
			}
		case <-push:
			t.drift()
			if err := t.Push(); err != nil {
				logs.Errorf("push strategies, err: %+v", err)
			}
		}
	}
}

// HandleOnce answers the pending command, if any.
func (t *Terminal) HandleOnce() (bool, error) {
	cmdPath := filepath.Join(t.cfg.Dir, t.cfg.CommandFile)
	raw, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(cmdPath); err != nil && !os.IsNotExist(err) {
		return false, err
	}

	body, err := t.respond(string(raw))
	if err != nil {
		return true, err
	}
	return true, t.write(body)
}

// Push writes the strategy list as an unsolicited response unless a
// response is still waiting to be read.
func (t *Terminal) Push() error {
	if _, err := os.Stat(filepath.Join(t.cfg.Dir, t.cfg.ResponseFile)); err == nil {
		return nil
	}
	body, err := codec.EncodeResponse(true, "push", t.Strategies())
	if err != nil {
		return err
	}
	return t.write(body)
}

func (t *Terminal) respond(raw string) ([]byte, error) {
	cmd, arg, err := codec.DecodeCommand(raw)
	if err != nil {
		return codec.EncodeResponse(false, err.Error(), nil)
	}
	logs.Infof("terminal received %s %s", cmd, arg)

	switch cmd {
	case schema.CommandGetStrategies:
		return codec.EncodeResponse(true, "ok", t.Strategies())
	case schema.CommandGetStatus:
		return codec.EncodeResponse(true, "ok", t.status())
	case schema.CommandStartStrategy, schema.CommandStopStrategy, schema.CommandPauseStrategy:
		id, _ := strconv.Atoi(arg)
		if !t.setStatus(id, targetStatus(cmd)) {
			return codec.EncodeResponse(false, fmt.Sprintf("strategy %d not found", id), nil)
		}
		return codec.EncodeResponse(true, fmt.Sprintf("%s %d", cmd, id), nil)
	case schema.CommandStartAll, schema.CommandStopAll, schema.CommandPauseAll:
		t.setAll(targetStatus(cmd))
		return codec.EncodeResponse(true, string(cmd), nil)
	default:
		return codec.EncodeResponse(false, fmt.Sprintf("unknown command %q", cmd), nil)
	}
}

func targetStatus(cmd schema.Command) schema.Status {
	switch cmd {
	case schema.CommandStartStrategy, schema.CommandStartAll:
		return schema.StatusRunning
	case schema.CommandPauseStrategy, schema.CommandPauseAll:
		return schema.StatusPaused
	default:
		return schema.StatusStopped
	}
}

func (t *Terminal) setStatus(id int, status schema.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.strategies {
		if t.strategies[i].ID == id {
			t.strategies[i].Status = status
			t.strategies[i].LastUpdate = time.Now().UTC().Truncate(time.Second)
			return true
		}
	}
	return false
}

func (t *Terminal) setAll(status schema.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	for i := range t.strategies {
		t.strategies[i].Status = status
		t.strategies[i].LastUpdate = now
	}
}

func (t *Terminal) status() schema.StatusData {
	t.mu.Lock()
	defer t.mu.Unlock()

	var profit float64
	active := 0
	for _, s := range t.strategies {
		profit += s.Profit
		if s.Status == schema.StatusRunning {
			active++
		}
	}
	equity := t.balance.Add(decimal.NewFromFloat(profit).Round(2))
	total := len(t.strategies)
	return schema.StatusData{
		Account: &schema.Account{
			Balance:    t.balance,
			Equity:     equity,
			FreeMargin: equity.Mul(decimal.RequireFromString("0.8")).Round(2),
			Currency:   "USD",
		},
		StrategyCount: &total,
		ActiveCount:   &active,
	}
}

// drift moves running strategies as if trades had closed.
func (t *Terminal) drift() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	for i := range t.strategies {
		s := &t.strategies[i]
		if s.Status != schema.StatusRunning {
			continue
		}
		s.Profit += t.rng.NormFloat64() * 25
		s.Drawdown = min(0.95, max(0, s.Drawdown+t.rng.NormFloat64()*0.005))
		s.TotalTrades++
		s.Momentum = t.evaluator.Momentum(s)
		s.LastUpdate = now
	}
}

func (t *Terminal) write(body []byte) error {
	path := filepath.Join(t.cfg.Dir, t.cfg.ResponseFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
