package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"quantbrains/internal/evaluation"
	"quantbrains/internal/mailbox"
	"quantbrains/internal/risk"
	"quantbrains/pkg/conn"
)

const (
	defaultRefreshInterval = 5 * time.Second
	defaultNotifyCapacity  = 64
	defaultHistoryDriver   = conn.DriverSQLite
)

// Duration accepts a Go duration string ("100ms") or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %s", raw)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Mailbox    MailboxConfig      `json:"mailbox"`
	Risk       risk.Config        `json:"risk"`
	Evaluation evaluation.Config  `json:"evaluation"`
	Monitor    MonitorConfig      `json:"monitor"`
	History    HistoryConfig      `json:"history"`
	Features   FeatureFlagsConfig `json:"features"`
}

// MailboxConfig overrides the mailbox defaults. Empty fields keep them.
type MailboxConfig struct {
	UserRoot        string   `json:"userRoot"`
	CommonRoot      string   `json:"commonRoot"`
	InstallationIDs []string `json:"installationIds"`
	Marker          string   `json:"marker"`
	CommandFile     string   `json:"commandFile"`
	ResponseFile    string   `json:"responseFile"`
	WaitInterval    Duration `json:"waitInterval"`
	PollerInterval  Duration `json:"pollerInterval"`
	SendTimeout     Duration `json:"sendTimeout"`
	ProbeTimeout    Duration `json:"probeTimeout"`
}

// MonitorConfig controls the refresh loop.
type MonitorConfig struct {
	RefreshInterval Duration `json:"refreshInterval"`
	// AccountEquity sizes positions until the terminal reports an account.
	AccountEquity  float64 `json:"accountEquity"`
	SnapshotPath   string  `json:"snapshotPath"`
	NotifyCapacity int     `json:"notifyCapacity"`
	MetricsAddr    string  `json:"metricsAddr"`
}

// HistoryConfig selects the history database.
type HistoryConfig struct {
	Driver    string   `json:"driver"`
	DSN       string   `json:"dsn"`
	Retention Duration `json:"retention"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableHistory  *bool `json:"enableHistory"`
	EnablePoller   *bool `json:"enablePoller"`
	EnableSnapshot *bool `json:"enableSnapshot"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableHistory  bool
	EnablePoller   bool
	EnableSnapshot bool
}

// MonitorSpec is the resolved monitor section.
type MonitorSpec struct {
	RefreshInterval time.Duration
	AccountEquity   float64
	SnapshotPath    string
	NotifyCapacity  int
	MetricsAddr     string
}

// HistorySpec is the resolved history section.
type HistorySpec struct {
	Conn      conn.Option
	Retention time.Duration
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mailbox    mailbox.Config
	Risk       risk.Config
	Evaluation evaluation.Config
	Monitor    MonitorSpec
	History    HistorySpec
	Features   FeatureFlags
}

// Default returns the configuration used when no file is given.
func Default() Loaded {
	loaded, _ := resolve(defaultFileConfig())
	return loaded
}

// Load reads a JSON config file and resolves it against the defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Parse(data)
}

// Parse resolves a JSON config document against the defaults.
func Parse(data []byte) (Loaded, error) {
	cfg := defaultFileConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Risk:       risk.DefaultConfig(),
		Evaluation: evaluation.DefaultConfig(),
	}
}

func resolve(cfg FileConfig) (Loaded, error) {
	mb, err := resolveMailbox(cfg.Mailbox)
	if err != nil {
		return Loaded{}, err
	}
	monitor, err := resolveMonitor(cfg.Monitor)
	if err != nil {
		return Loaded{}, err
	}
	history, err := resolveHistory(cfg.History)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Risk.MomentumThreshold < 0 || cfg.Risk.MomentumThreshold > 100 {
		return Loaded{}, fmt.Errorf("risk momentumThreshold must be within [0, 100]")
	}
	if cfg.Evaluation.RobustFactor < 0 || cfg.Evaluation.RobustFactor > 1 {
		return Loaded{}, fmt.Errorf("evaluation robustFactor must be within [0, 1]")
	}

	features := resolveFeatures(cfg.Features)
	mb.DisablePoller = !features.EnablePoller
	if features.EnableSnapshot && monitor.SnapshotPath == "" {
		return Loaded{}, fmt.Errorf("monitor snapshotPath is empty")
	}

	return Loaded{
		Mailbox:    mb,
		Risk:       cfg.Risk,
		Evaluation: cfg.Evaluation,
		Monitor:    monitor,
		History:    history,
		Features:   features,
	}, nil
}

func resolveMailbox(cfg MailboxConfig) (mailbox.Config, error) {
	out := mailbox.DefaultConfig()
	if cfg.UserRoot != "" {
		out.Resolver.UserRoot = cfg.UserRoot
	}
	if cfg.CommonRoot != "" {
		out.Resolver.CommonRoot = cfg.CommonRoot
	}
	if cfg.InstallationIDs != nil {
		out.Resolver.InstallationIDs = append([]string(nil), cfg.InstallationIDs...)
	}
	if cfg.Marker != "" {
		out.Resolver.Marker = cfg.Marker
	}
	if cfg.CommandFile != "" {
		out.CommandFile = cfg.CommandFile
	}
	if cfg.ResponseFile != "" {
		out.ResponseFile = cfg.ResponseFile
	}
	for _, d := range []struct {
		name string
		src  Duration
		dst  *time.Duration
	}{
		{"waitInterval", cfg.WaitInterval, &out.WaitInterval},
		{"pollerInterval", cfg.PollerInterval, &out.PollerInterval},
		{"sendTimeout", cfg.SendTimeout, &out.SendTimeout},
		{"probeTimeout", cfg.ProbeTimeout, &out.ProbeTimeout},
	} {
		if d.src < 0 {
			return mailbox.Config{}, fmt.Errorf("mailbox %s must be >= 0", d.name)
		}
		if d.src > 0 {
			*d.dst = d.src.Std()
		}
	}
	if err := out.Validate(); err != nil {
		return mailbox.Config{}, err
	}
	return out, nil
}

func resolveMonitor(cfg MonitorConfig) (MonitorSpec, error) {
	if cfg.RefreshInterval < 0 {
		return MonitorSpec{}, fmt.Errorf("monitor refreshInterval must be >= 0")
	}
	if cfg.AccountEquity < 0 {
		return MonitorSpec{}, fmt.Errorf("monitor accountEquity must be >= 0")
	}
	spec := MonitorSpec{
		RefreshInterval: cfg.RefreshInterval.Std(),
		AccountEquity:   cfg.AccountEquity,
		SnapshotPath:    cfg.SnapshotPath,
		NotifyCapacity:  cfg.NotifyCapacity,
		MetricsAddr:     cfg.MetricsAddr,
	}
	if spec.RefreshInterval == 0 {
		spec.RefreshInterval = defaultRefreshInterval
	}
	if spec.NotifyCapacity <= 0 {
		spec.NotifyCapacity = defaultNotifyCapacity
	}
	return spec, nil
}

func resolveHistory(cfg HistoryConfig) (HistorySpec, error) {
	driver := conn.Driver(strings.ToLower(cfg.Driver))
	if driver == "" {
		driver = defaultHistoryDriver
	}
	if cfg.Retention < 0 {
		return HistorySpec{}, fmt.Errorf("history retention must be >= 0")
	}
	spec := HistorySpec{Retention: cfg.Retention.Std()}
	switch driver {
	case conn.DriverSQLite:
		spec.Conn = conn.Option{Driver: driver, Path: cfg.DSN}
	case conn.DriverPostgres:
		spec.Conn = conn.Option{Driver: driver, ConnString: cfg.DSN}
	default:
		return HistorySpec{}, fmt.Errorf("history driver not supported: %s", cfg.Driver)
	}
	return spec, nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableHistory:  false,
		EnablePoller:   true,
		EnableSnapshot: false,
	}
	if cfg.EnableHistory != nil {
		flags.EnableHistory = *cfg.EnableHistory
	}
	if cfg.EnablePoller != nil {
		flags.EnablePoller = *cfg.EnablePoller
	}
	if cfg.EnableSnapshot != nil {
		flags.EnableSnapshot = *cfg.EnableSnapshot
	}
	return flags
}
