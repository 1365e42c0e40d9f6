package obs

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quantbrains/internal/schema"
	"quantbrains/pkg/exception"
)

const (
	maxSource = int(schema.SourceProbe)
	maxStatus = int(schema.StatusError)
)

// Result classifies the outcome of one mailbox exchange.
type Result string

const (
	ResultOK           Result = "ok"
	ResultTimeout      Result = "timeout"
	ResultNotConnected Result = "not_connected"
	ResultIO           Result = "io"
	ResultCanceled     Result = "canceled"
	ResultError        Result = "error"
)

// Classify maps a mailbox error to its result label.
func Classify(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, exception.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, exception.ErrNotConnected):
		return ResultNotConnected
	case errors.Is(err, exception.ErrIO):
		return ResultIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}

// Metrics collects mailbox and monitor counters. Every observation is
// mirrored into prometheus collectors registered on a private registry.
type Metrics struct {
	sendOK       uint64
	sendFailed   uint64
	sendTimeouts uint64
	responses    [maxSource + 1]uint64
	pollerErrors uint64
	notifyDrops  uint64
	decodeErrors uint64
	connected    uint32

	sendLatency LatencyStats

	registry       *prometheus.Registry
	commandsTotal  *prometheus.CounterVec
	responsesTotal *prometheus.CounterVec
	sendDuration   *prometheus.HistogramVec
	pollerErrTotal prometheus.Counter
	dropsTotal     prometheus.Counter
	decodeErrTotal prometheus.Counter
	connectedGauge prometheus.Gauge
	strategyGauge  *prometheus.GaugeVec
	riskGauge      prometheus.Gauge
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	SendOK       uint64
	SendFailed   uint64
	SendTimeouts uint64
	Responses    map[schema.Source]uint64
	PollerErrors uint64
	NotifyDrops  uint64
	DecodeErrors uint64
	Connected    bool
	SendLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container with its own prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantbrains_mailbox_commands_total",
				Help: "Commands sent through the file mailbox by result",
			},
			[]string{"command", "result"},
		),
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantbrains_mailbox_responses_total",
				Help: "Response files consumed, by the side that claimed them",
			},
			[]string{"source"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantbrains_mailbox_send_duration_seconds",
				Help:    "Time from command write to response read",
				Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"command"},
		),
		pollerErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantbrains_mailbox_poller_errors_total",
			Help: "Response files the background poller failed to read",
		}),
		dropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantbrains_mailbox_notifications_dropped_total",
			Help: "Notifications dropped because the consumer queue was full",
		}),
		decodeErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantbrains_monitor_decode_errors_total",
			Help: "Response payloads that failed to decode",
		}),
		connectedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantbrains_mailbox_connected",
			Help: "1 while the mailbox channel is connected",
		}),
		strategyGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantbrains_strategies",
				Help: "Strategies in the latest refresh by status",
			},
			[]string{"status"},
		),
		riskGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantbrains_portfolio_risk",
			Help: "Profit weighted average drawdown of the latest refresh",
		}),
	}
	m.registry.MustRegister(
		m.commandsTotal,
		m.responsesTotal,
		m.sendDuration,
		m.pollerErrTotal,
		m.dropsTotal,
		m.decodeErrTotal,
		m.connectedGauge,
		m.strategyGauge,
		m.riskGauge,
	)
	return m
}

// Registry exposes the prometheus registry for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSend records one command exchange.
func (m *Metrics) ObserveSend(command string, err error, d time.Duration) {
	if m == nil {
		return
	}
	token := commandLabel(command)
	result := Classify(err)
	switch result {
	case ResultOK:
		atomic.AddUint64(&m.sendOK, 1)
		m.sendLatency.Observe(d)
		m.sendDuration.WithLabelValues(token).Observe(d.Seconds())
	case ResultTimeout:
		atomic.AddUint64(&m.sendTimeouts, 1)
	default:
		atomic.AddUint64(&m.sendFailed, 1)
	}
	m.commandsTotal.WithLabelValues(token, string(result)).Inc()
}

// IncResponse records a consumed response file.
func (m *Metrics) IncResponse(source schema.Source) {
	if m == nil {
		return
	}
	idx := int(source)
	if idx >= 0 && idx < len(m.responses) {
		atomic.AddUint64(&m.responses[idx], 1)
	}
	m.responsesTotal.WithLabelValues(source.String()).Inc()
}

// IncPollerError records a poller read failure.
func (m *Metrics) IncPollerError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.pollerErrors, 1)
	m.pollerErrTotal.Inc()
}

// IncNotifyDrop records a dropped notification.
func (m *Metrics) IncNotifyDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.notifyDrops, 1)
	m.dropsTotal.Inc()
}

// IncDecodeError records a payload that failed to decode.
func (m *Metrics) IncDecodeError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decodeErrors, 1)
	m.decodeErrTotal.Inc()
}

// SetConnected tracks the channel state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		atomic.StoreUint32(&m.connected, 1)
		m.connectedGauge.Set(1)
		return
	}
	atomic.StoreUint32(&m.connected, 0)
	m.connectedGauge.Set(0)
}

// SetStrategies publishes the strategy count per status.
func (m *Metrics) SetStrategies(strategies []schema.Strategy) {
	if m == nil {
		return
	}
	var counts [maxStatus + 1]int
	for _, s := range strategies {
		if s.Status.Valid() {
			counts[int(s.Status)]++
		}
	}
	for i, n := range counts {
		m.strategyGauge.WithLabelValues(schema.Status(i).String()).Set(float64(n))
	}
}

// SetPortfolioRisk publishes the latest portfolio risk.
func (m *Metrics) SetPortfolioRisk(v float64) {
	if m == nil {
		return
	}
	m.riskGauge.Set(v)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	responses := make(map[schema.Source]uint64)
	for i := range m.responses {
		if v := atomic.LoadUint64(&m.responses[i]); v > 0 {
			responses[schema.Source(i)] = v
		}
	}
	return Snapshot{
		SendOK:       atomic.LoadUint64(&m.sendOK),
		SendFailed:   atomic.LoadUint64(&m.sendFailed),
		SendTimeouts: atomic.LoadUint64(&m.sendTimeouts),
		Responses:    responses,
		PollerErrors: atomic.LoadUint64(&m.pollerErrors),
		NotifyDrops:  atomic.LoadUint64(&m.notifyDrops),
		DecodeErrors: atomic.LoadUint64(&m.decodeErrors),
		Connected:    atomic.LoadUint32(&m.connected) == 1,
		SendLatency:  m.sendLatency.Snapshot(),
	}
}

func commandLabel(command string) string {
	token, _, _ := strings.Cut(command, schema.CommandSeparator)
	token = strings.TrimSpace(token)
	if !schema.Command(token).Known() {
		return "other"
	}
	return token
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
