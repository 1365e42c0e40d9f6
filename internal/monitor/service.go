package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"quantbrains/internal/bus"
	"quantbrains/internal/codec"
	"quantbrains/internal/errors"
	"quantbrains/internal/evaluation"
	"quantbrains/internal/history"
	"quantbrains/internal/obs"
	"quantbrains/internal/risk"
	"quantbrains/internal/schema"
	"quantbrains/internal/state"
	"quantbrains/pkg/exception"
)

const (
	EquitySourceAccount = "account"
	EquitySourceConfig  = "config"
)

// Mailbox is the command channel the service drives.
type Mailbox interface {
	IsConnected() bool
	Send(ctx context.Context, command string) (string, error)
}

// Config controls the refresh loop.
type Config struct {
	RefreshInterval time.Duration
	// AccountEquity sizes positions until the terminal reports an account.
	AccountEquity    float64
	SnapshotPath     string
	EnableSnapshot   bool
	HistoryRetention time.Duration
}

type engines struct {
	cfg       Config
	risk      *risk.Engine
	evaluator *evaluation.Evaluator
}

// Service keeps the strategy book in sync with the terminal and turns it
// into reports.
type Service struct {
	mailbox Mailbox
	book    *state.Book
	history *history.Store
	metrics *obs.Metrics

	engines atomic.Pointer[engines]

	// reqMu serializes requests so at most one waiter is pending.
	reqMu     sync.Mutex
	pendingMu sync.Mutex
	pending   *waiter

	mu         sync.Mutex
	lastReport Report
	lastErr    error
}

// waiter receives a response the background poller claimed while a
// request was waiting for it.
type waiter struct {
	since int64
	ch    chan []byte
}

// Option customizes a Service.
type Option func(*Service)

// WithHistory persists refreshes and commands into store.
func WithHistory(store *history.Store) Option {
	return func(s *Service) {
		s.history = store
	}
}

// WithMetrics publishes strategy gauges into m.
func WithMetrics(m *obs.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBook uses an existing book, e.g. one restored from a snapshot.
func WithBook(book *state.Book) Option {
	return func(s *Service) {
		if book != nil {
			s.book = book
		}
	}
}

// NewService creates a monitor service.
func NewService(mb Mailbox, cfg Config, riskCfg risk.Config, evalCfg evaluation.Config, opts ...Option) *Service {
	s := &Service{
		mailbox: mb,
		book:    state.NewBook(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.Reconfigure(cfg, riskCfg, evalCfg)
	return s
}

// Reconfigure swaps the engines and refresh settings. Running loops pick
// the new values up on their next iteration.
func (s *Service) Reconfigure(cfg Config, riskCfg risk.Config, evalCfg evaluation.Config) {
	s.engines.Store(&engines{
		cfg:       cfg,
		risk:      risk.NewEngine(riskCfg),
		evaluator: evaluation.NewEvaluator(evalCfg),
	})
}

// Book returns the strategy book.
func (s *Service) Book() *state.Book {
	return s.book
}

// Refresh pulls the strategy list and the account status from the terminal.
// A failed status request does not fail the refresh.
func (s *Service) Refresh(ctx context.Context) (Report, error) {
	if !s.mailbox.IsConnected() {
		return Report{}, exception.ErrNotConnected
	}

	resp, err := s.request(ctx, codec.EncodeCommand(schema.CommandGetStrategies))
	if err != nil {
		s.setLastErr(err)
		return Report{}, err
	}
	if resp.Kind != schema.DataStrategies {
		err := errors.Wrapf(exception.ErrUnexpectedData, "%s returned kind %d", schema.CommandGetStrategies, resp.Kind)
		s.setLastErr(err)
		return Report{}, err
	}

	if status, err := s.request(ctx, codec.EncodeCommand(schema.CommandGetStatus)); err != nil {
		logs.Errorf("status refresh failed, err: %+v", err)
	} else if status.Kind != schema.DataStatus {
		logs.Errorf("status refresh returned kind %d", status.Kind)
	}

	report := s.publish(ctx)
	s.setLastErr(nil)
	return report, nil
}

// Control sends a control command and refreshes the book when the terminal
// accepts it.
func (s *Service) Control(ctx context.Context, cmd schema.Command, id int) (schema.Response, error) {
	if !cmd.Known() {
		return schema.Response{}, errors.Wrapf(exception.ErrUnknownCommand, "%q", cmd)
	}
	if !s.mailbox.IsConnected() {
		return schema.Response{}, exception.ErrNotConnected
	}

	command := codec.EncodeCommand(cmd)
	if cmd.TakesStrategyID() {
		command = codec.EncodeStrategyCommand(cmd, id)
	}
	resp, err := s.request(ctx, command)
	if err != nil {
		return resp, err
	}
	logs.Infof("command %s accepted: %s", command, resp.Message)

	if cmd == schema.CommandGetStrategies || cmd == schema.CommandGetStatus {
		s.publish(ctx)
		return resp, nil
	}
	if _, err := s.Refresh(ctx); err != nil {
		logs.Errorf("refresh after %s failed, err: %+v", command, err)
	}
	return resp, nil
}

// request sends one command, records it and applies the decoded response.
func (s *Service) request(ctx context.Context, command string) (schema.Response, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	start := time.Now()
	body, err := s.exchange(ctx, command, start)
	var resp schema.Response
	if err == nil {
		resp, err = s.apply(ctx, body)
	}
	s.recordCommand(ctx, command, resp, err, time.Since(start), start)
	return resp, err
}

// exchange sends command and returns whichever arrives first: the response
// claimed by Send, or one the poller claimed after the request started and
// HandleEvent handed over.
func (s *Service) exchange(ctx context.Context, command string, start time.Time) (string, error) {
	w := &waiter{since: start.UnixNano(), ch: make(chan []byte, 1)}
	s.pendingMu.Lock()
	s.pending = w
	s.pendingMu.Unlock()
	defer s.release(ctx, w)

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := s.mailbox.Send(sendCtx, command)
		done <- result{body: body, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			select {
			case payload := <-w.ch:
				return string(payload), nil
			default:
			}
		}
		return r.body, r.err
	case payload := <-w.ch:
		cancel()
		<-done
		logs.Infof("response to %s claimed by poller", command)
		return string(payload), nil
	}
}

// release clears w and applies anything handed over that the request did
// not use.
func (s *Service) release(ctx context.Context, w *waiter) {
	s.pendingMu.Lock()
	if s.pending == w {
		s.pending = nil
	}
	s.pendingMu.Unlock()

	select {
	case payload := <-w.ch:
		s.applyPushed(ctx, payload, "")
	default:
	}
}

// handOff gives a poller claim to the pending request, if any.
func (s *Service) handOff(e bus.Event) bool {
	if e.Header.Source != schema.SourcePoller {
		return false
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	w := s.pending
	if w == nil || e.Header.TsEvent < w.since {
		return false
	}
	select {
	case w.ch <- e.Payload:
		return true
	default:
		return false
	}
}

// Apply decodes a response payload and applies its data to the book.
func (s *Service) Apply(ctx context.Context, payload []byte) (schema.Response, error) {
	return s.apply(ctx, string(payload))
}

func (s *Service) apply(ctx context.Context, body string) (schema.Response, error) {
	resp, err := codec.DecodeResponse(body)
	if err != nil {
		s.metrics.IncDecodeError()
		return resp, err
	}
	if !resp.Success {
		return resp, errors.Wrap(exception.ErrRejected, resp.Message)
	}

	switch resp.Kind {
	case schema.DataStrategies:
		version := s.book.Replace(resp.Strategies)
		logs.Infof("strategy book refreshed, version: %d, strategies: %d", version, len(resp.Strategies))
	case schema.DataStatus:
		s.book.SetStatus(*resp.Status)
		if resp.Status.Account != nil {
			s.saveAccount(ctx, *resp.Status.Account)
		}
	}
	return resp, nil
}

// HandleEvent consumes a mailbox notification.
func (s *Service) HandleEvent(ctx context.Context, e bus.Event) {
	switch e.Header.Type {
	case schema.EventConnectionChanged:
		logs.Infof("mailbox connection changed, connected: %t", e.Connected)
	case schema.EventDataReceived:
		if s.handOff(e) {
			return
		}
		s.applyPushed(ctx, e.Payload, e.Path)
	case schema.EventError:
		logs.Errorf("mailbox %s error, path: %s, err: %+v", e.Header.Source, e.Path, e.Err)
	}
}

func (s *Service) applyPushed(ctx context.Context, payload []byte, path string) {
	resp, err := s.Apply(ctx, payload)
	if err != nil {
		logs.Errorf("apply pushed response %s, err: %+v", path, err)
		return
	}
	if resp.Kind == schema.DataStrategies {
		s.publish(ctx)
	}
}

// Run consumes notifications from q and refreshes on the configured
// interval until ctx is done.
func (s *Service) Run(ctx context.Context, q *bus.Queue) {
	var wg sync.WaitGroup
	if q != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Run(ctx, func(e bus.Event) {
				s.HandleEvent(ctx, e)
			})
		}()
	}
	defer wg.Wait()

	interval := s.engines.Load().cfg.RefreshInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			if s.mailbox.IsConnected() {
				if _, err := s.Refresh(ctx); err != nil {
					logs.Errorf("refresh failed, err: %+v", err)
				}
			}
			s.prune(ctx)
			if next := s.engines.Load().cfg.RefreshInterval; next > 0 {
				interval = next
			}
			timer.Reset(interval)
		}
	}
}

// LastReport returns the latest report and the error of the latest refresh.
func (s *Service) LastReport() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport, s.lastErr
}

// publish builds a report from the book, then stores, persists and exports it.
func (s *Service) publish(ctx context.Context) Report {
	report := s.Report()

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.metrics.SetStrategies(s.book.Strategies())
	s.metrics.SetPortfolioRisk(report.PortfolioRisk)
	s.saveRefresh(ctx, report)
	s.writeSnapshot()
	return report
}

func (s *Service) setLastErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Service) recordCommand(ctx context.Context, command string, resp schema.Response, err error, d time.Duration, at time.Time) {
	if s.history == nil {
		return
	}
	if saveErr := s.history.SaveCommand(ctx, command, resp.Success, resp.Message, err, d, at); saveErr != nil {
		logs.Errorf("save command history, err: %+v", saveErr)
	}
}

func (s *Service) saveAccount(ctx context.Context, account schema.Account) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveAccount(ctx, account, time.Now()); err != nil {
		logs.Errorf("save account history, err: %+v", err)
	}
}

func (s *Service) saveRefresh(ctx context.Context, report Report) {
	if s.history == nil {
		return
	}
	samples := make([]history.Sample, 0, len(report.Strategies))
	for _, r := range report.Strategies {
		samples = append(samples, history.Sample(r))
	}
	if err := s.history.SaveRefresh(ctx, report.Version, report.GeneratedAt, samples); err != nil {
		logs.Errorf("save refresh history, err: %+v", err)
	}
}

func (s *Service) writeSnapshot() {
	cfg := s.engines.Load().cfg
	if !cfg.EnableSnapshot || cfg.SnapshotPath == "" {
		return
	}
	if err := state.WriteSnapshot(cfg.SnapshotPath, s.book.Snapshot()); err != nil {
		logs.Errorf("write snapshot %s, err: %+v", cfg.SnapshotPath, err)
	}
}

func (s *Service) prune(ctx context.Context) {
	retention := s.engines.Load().cfg.HistoryRetention
	if s.history == nil || retention <= 0 {
		return
	}
	n, err := s.history.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logs.Errorf("prune history, err: %+v", err)
		return
	}
	if n > 0 {
		logs.Infof("pruned %d history rows", n)
	}
}
