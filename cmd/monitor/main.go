package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantbrains/internal/bus"
	"quantbrains/internal/codec"
	"quantbrains/internal/history"
	"quantbrains/internal/mailbox"
	"quantbrains/internal/monitor"
	"quantbrains/internal/obs"
	"quantbrains/internal/ops"
	"quantbrains/internal/state"
	"quantbrains/pkg/conn"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload fallback interval (0=disable)")
	command := flag.String("command", "", "Send one control command (e.g. START_STRATEGY|42, STOP_ALL) and exit")
	once := flag.Bool("once", false, "Refresh once, print the report and exit")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (overrides monitor.metricsAddr)")
	pyroscopeAddr := flag.String("pyroscope-addr", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	runtime := newRuntimeConfig(loaded)

	if *pyroscopeAddr != "" {
		profiler, err := startProfiler(*pyroscopeAddr)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics()
	queue := bus.NewQueue(loaded.Monitor.NotifyCapacity)
	defer queue.Close()

	oneShot := *command != "" || *once
	channel, err := mailbox.NewChannel(mailboxConfig(loaded, oneShot), mailbox.WithNotifier(queue), mailbox.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("mailbox init failed: %v", err)
	}

	opts := []monitor.Option{monitor.WithMetrics(metrics)}
	if loaded.Features.EnableHistory {
		store, closeStore, err := openHistory(loaded.History.Conn)
		if err != nil {
			log.Fatalf("history open failed: %v", err)
		}
		defer closeStore()
		opts = append(opts, monitor.WithHistory(store))
	}
	if book := restoreBook(loaded); book != nil {
		opts = append(opts, monitor.WithBook(book))
	}

	svc := monitor.NewService(channel, monitorConfig(loaded), loaded.Risk, loaded.Evaluation, opts...)

	if *configPath != "" && *configReload > 0 {
		w, err := ops.NewWatcher(*configPath, *configReload, func(l ops.Loaded) {
			runtime.Update(l)
			svc.Reconfigure(monitorConfig(l), l.Risk, l.Evaluation)
		})
		if err != nil {
			log.Fatalf("config watcher failed: %v", err)
		}
		go w.Run(ctx)
	}

	addr := loaded.Monitor.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		go serveMetrics(ctx, addr, metrics)
	}

	ok, err := channel.Connect(ctx)
	if !ok {
		log.Fatalf("mailbox connect failed: %v", err)
	}
	defer channel.Disconnect()
	log.Printf("connected to terminal, primary: %s", channel.Primary())

	switch {
	case *command != "":
		if err := runCommand(ctx, svc, *command); err != nil {
			log.Fatalf("command failed: %v", err)
		}
	case *once:
		report, err := svc.Refresh(ctx)
		if err != nil {
			log.Fatalf("refresh failed: %v", err)
		}
		printJSON(report)
	default:
		log.Printf("monitor running, refresh interval: %s", runtime.Load().Monitor.RefreshInterval)
		svc.Run(ctx, queue)
		report, _ := svc.LastReport()
		log.Printf("monitor stopped, book version: %d, portfolio risk: %.4f", report.Version, report.PortfolioRisk)
	}
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Default(), nil
	}
	return ops.Load(path)
}

// mailboxConfig turns the poller off for -command and -once: nothing drains
// the notification queue in those modes, so a response the poller claimed
// would be lost and the request would time out.
func mailboxConfig(loaded ops.Loaded, oneShot bool) mailbox.Config {
	cfg := loaded.Mailbox
	if oneShot {
		cfg.DisablePoller = true
	}
	return cfg
}

func monitorConfig(loaded ops.Loaded) monitor.Config {
	return monitor.Config{
		RefreshInterval:  loaded.Monitor.RefreshInterval,
		AccountEquity:    loaded.Monitor.AccountEquity,
		SnapshotPath:     loaded.Monitor.SnapshotPath,
		EnableSnapshot:   loaded.Features.EnableSnapshot,
		HistoryRetention: loaded.History.Retention,
	}
}

func runCommand(ctx context.Context, svc *monitor.Service, raw string) error {
	cmd, arg, err := codec.DecodeCommand(raw)
	if err != nil {
		return err
	}
	var id int
	if cmd.TakesStrategyID() {
		id, err = strconv.Atoi(arg)
		if err != nil {
			return err
		}
	}
	resp, err := svc.Control(ctx, cmd, id)
	if err != nil {
		return err
	}
	printJSON(map[string]any{
		"command": raw,
		"success": resp.Success,
		"message": resp.Message,
	})
	return nil
}

func openHistory(option conn.Option) (*history.Store, func(), error) {
	client, err := conn.New(option)
	if err != nil {
		return nil, nil, err
	}
	store, err := history.NewStore(client.DB())
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

func restoreBook(loaded ops.Loaded) *state.Book {
	if !loaded.Features.EnableSnapshot {
		return nil
	}
	snap, err := state.ReadSnapshot(loaded.Monitor.SnapshotPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("snapshot restore skipped: %v", err)
		}
		return nil
	}
	book := state.NewBook()
	book.ApplySnapshot(snap)
	log.Printf("restored %d strategies from %s", book.Count(), loaded.Monitor.SnapshotPath)
	return book
}

func serveMetrics(ctx context.Context, addr string, metrics *obs.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server failed: %v", err)
	}
}

func startProfiler(addr string) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: "quantbrains/monitor",
		ServerAddress:   addr,
		Tags: map[string]string{
			"env": "local",
		},
		Logger: emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encode output failed: %v", err)
		return
	}
	_, _ = os.Stdout.Write(append(data, '\n'))
}
