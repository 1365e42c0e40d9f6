package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"quantbrains/internal/bus"
	"quantbrains/internal/errors"
	"quantbrains/internal/obs"
	"quantbrains/internal/schema"
	"quantbrains/pkg/exception"
)

const (
	DefaultCommandFile    = "QuantBrains_Command.txt"
	DefaultResponseFile   = "QuantBrains_Response.txt"
	DefaultWaitInterval   = 100 * time.Millisecond
	DefaultPollerInterval = 100 * time.Millisecond
	DefaultSendTimeout    = 10 * time.Second
	DefaultProbeTimeout   = 10 * time.Second

	tempSuffix = ".tmp"
	dirPerm    = 0o755
	filePerm   = 0o644
)

// Config controls the file mailbox.
type Config struct {
	Resolver       ResolverConfig
	CommandFile    string
	ResponseFile   string
	WaitInterval   time.Duration
	PollerInterval time.Duration
	SendTimeout    time.Duration
	ProbeTimeout   time.Duration
	// DisablePoller keeps Connect from starting the background poller.
	DisablePoller bool
}

// DefaultConfig returns the mailbox defaults for the local machine.
func DefaultConfig() Config {
	return Config{
		Resolver:       DefaultResolverConfig(),
		CommandFile:    DefaultCommandFile,
		ResponseFile:   DefaultResponseFile,
		WaitInterval:   DefaultWaitInterval,
		PollerInterval: DefaultPollerInterval,
		SendTimeout:    DefaultSendTimeout,
		ProbeTimeout:   DefaultProbeTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.CommandFile == "" {
		c.CommandFile = DefaultCommandFile
	}
	if c.ResponseFile == "" {
		c.ResponseFile = DefaultResponseFile
	}
	if c.WaitInterval <= 0 {
		c.WaitInterval = DefaultWaitInterval
	}
	if c.PollerInterval <= 0 {
		c.PollerInterval = DefaultPollerInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	c.Resolver = c.Resolver.withDefaults()
	return c
}

// Validate checks that file names are plain names.
func (c Config) Validate() error {
	for _, name := range []string{c.CommandFile, c.ResponseFile} {
		if name == "" {
			continue
		}
		if filepath.Base(name) != name {
			return errors.Wrapf(exception.ErrInvalidFileName, "%q contains a directory", name)
		}
	}
	if c.CommandFile != "" && c.CommandFile == c.ResponseFile {
		return errors.Wrapf(exception.ErrInvalidFileName, "command and response file share the name %q", c.CommandFile)
	}
	return nil
}

type layout struct {
	primary string
	// dirs are the Files folders in lookup order; dirs[0] receives commands.
	dirs []string
	// probe are the folders the connect probe was written to.
	probe []string
}

// Channel is the command/response mailbox shared with the terminal.
// Send calls are serialized internally; the background poller is not
// and may claim a response before Send sees it.
type Channel struct {
	cfg      Config
	resolver *Resolver
	notifier *bus.Queue
	metrics  *obs.Metrics

	lifecycleMu sync.Mutex
	sendMu      sync.Mutex

	connected atomic.Bool
	layout    atomic.Pointer[layout]
	seq       atomic.Uint64

	pollerCancel context.CancelFunc
	pollerDone   chan struct{}

	remove func(path string) error
}

// Option customizes a Channel.
type Option func(*Channel)

// WithNotifier routes connection, data and error notifications to q.
func WithNotifier(q *bus.Queue) Option {
	return func(c *Channel) {
		c.notifier = q
	}
}

// WithMetrics records mailbox activity into m.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// NewChannel creates a disconnected channel.
func NewChannel(cfg Config, opts ...Option) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	c := &Channel{
		cfg:      cfg,
		resolver: NewResolver(cfg.Resolver),
		remove:   os.Remove,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Config returns the resolved channel configuration.
func (c *Channel) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// IsConnected reports the connection state.
func (c *Channel) IsConnected() bool {
	return c != nil && c.connected.Load()
}

// Primary returns the data directory chosen at connect time.
func (c *Channel) Primary() string {
	if c == nil {
		return ""
	}
	if l := c.layout.Load(); l != nil {
		return l.primary
	}
	return ""
}

// Dirs returns the Files folders searched for responses, in order.
func (c *Channel) Dirs() []string {
	if c == nil {
		return nil
	}
	if l := c.layout.Load(); l != nil {
		return append([]string(nil), l.dirs...)
	}
	return nil
}

// Connect resolves the mailbox folders, clears stale files and probes the
// terminal with GET_STATUS. It is a no-op when already connected.
func (c *Channel) Connect(ctx context.Context) (bool, error) {
	if c == nil {
		return false, exception.ErrNilChannel
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.connected.Load() {
		return true, nil
	}

	discovered := c.resolver.Discover()
	primary := discovered[0]
	dirs := c.resolver.MailboxDirs(primary)
	if len(dirs) == 0 {
		return false, errors.Annotate(exception.ErrDirectoryNotFound, "resolve", primary, nil)
	}

	probe := c.probeTargets(discovered)
	l := &layout{primary: primary, dirs: dirs, probe: probe}
	c.layout.Store(l)

	c.clear(dirs)

	if err := c.writeProbe(dirs[0], probe); err != nil {
		return false, err
	}

	start := time.Now()
	if _, err := c.await(ctx, dirs, c.cfg.ProbeTimeout, schema.SourceProbe); err != nil {
		logs.Errorf("mailbox probe failed after %s, primary: %s, err: %+v", time.Since(start), primary, err)
		c.metrics.ObserveSend(string(schema.CommandGetStatus), err, time.Since(start))
		return false, err
	}
	c.metrics.ObserveSend(string(schema.CommandGetStatus), nil, time.Since(start))

	c.connected.Store(true)
	c.metrics.SetConnected(true)
	if !c.cfg.DisablePoller {
		c.startPoller()
	}
	logs.Infof("mailbox connected, primary: %s, folders: %d", primary, len(dirs))
	c.publish(bus.Event{
		Header:    c.header(schema.EventConnectionChanged, schema.SourceProbe),
		Connected: true,
	})
	return true, nil
}

// Disconnect stops the poller and marks the channel disconnected.
func (c *Channel) Disconnect() {
	if c == nil {
		return
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.disconnectLocked()
}

func (c *Channel) disconnectLocked() {
	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	c.stopPoller()
	c.metrics.SetConnected(false)
	logs.Infof("mailbox disconnected, primary: %s", c.Primary())
	c.publish(bus.Event{
		Header:    c.header(schema.EventConnectionChanged, schema.SourceUnknown),
		Connected: false,
	})
}

// Send writes command to the primary folder and waits for the response body.
func (c *Channel) Send(ctx context.Context, command string) (string, error) {
	if c == nil {
		return "", exception.ErrNilChannel
	}
	if !c.connected.Load() {
		return "", exception.ErrNotConnected
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return "", exception.ErrEmptyCommand
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	l := c.layout.Load()
	if l == nil || !c.connected.Load() {
		return "", exception.ErrNotConnected
	}

	start := time.Now()
	body, err := c.exchange(ctx, l, command)
	c.metrics.ObserveSend(command, err, time.Since(start))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Channel) exchange(ctx context.Context, l *layout, command string) ([]byte, error) {
	c.removeAll(l.dirs, c.cfg.ResponseFile)

	if err := c.writeCommand(l.dirs[0], command); err != nil {
		c.lifecycleMu.Lock()
		c.disconnectLocked()
		c.lifecycleMu.Unlock()
		return nil, err
	}

	return c.await(ctx, l.dirs, c.cfg.SendTimeout, schema.SourceWait)
}

// await polls dirs every WaitInterval until a response is claimed or
// timeout elapses. A wait started by Send gives up at the next interval
// boundary once the channel is disconnected.
func (c *Channel) await(ctx context.Context, dirs []string, timeout time.Duration, src schema.Source) ([]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.WaitInterval)
	defer ticker.Stop()

	for {
		if src == schema.SourceWait && !c.connected.Load() {
			return nil, exception.ErrNotConnected
		}
		if body, _, ok := c.claim(dirs, src, nil); ok {
			return body, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, errors.Wrapf(exception.ErrTimeout, "no response after %s", timeout)
		case <-ticker.C:
		}
	}
}

// claim reads and deletes the first response file found in dirs. A file
// deleted by another reader between the read and the delete is not claimed,
// and neither is one that cannot be deleted, so it is never delivered twice.
func (c *Channel) claim(dirs []string, src schema.Source, onErr func(op, path string, err error)) ([]byte, string, bool) {
	for _, dir := range dirs {
		path := filepath.Join(dir, c.cfg.ResponseFile)
		body, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logs.Errorf("read response %s, err: %+v", path, err)
				if onErr != nil {
					onErr("read", path, err)
				}
			}
			continue
		}
		// The terminal creates the file before writing it.
		if len(body) == 0 {
			continue
		}
		if err := c.remove(path); err != nil {
			if !os.IsNotExist(err) {
				logs.Errorf("delete response %s, err: %+v", path, err)
				if onErr != nil {
					onErr("delete", path, err)
				}
			}
			continue
		}
		c.metrics.IncResponse(src)
		return body, path, true
	}
	return nil, "", false
}

func (c *Channel) writeCommand(dir, command string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errors.Annotate(exception.ErrIO, "mkdir", dir, err)
	}
	path := filepath.Join(dir, c.cfg.CommandFile)
	if err := writeFileAtomic(path, command); err != nil {
		return errors.Annotate(exception.ErrIO, "write", path, err)
	}
	return nil
}

func (c *Channel) writeProbe(primaryDir string, targets []string) error {
	if err := os.MkdirAll(primaryDir, dirPerm); err != nil {
		logs.Errorf("create primary folder %s, err: %+v", primaryDir, err)
	}

	written := 0
	var lastErr error
	for _, dir := range targets {
		if !isDir(dir) {
			continue
		}
		path := filepath.Join(dir, c.cfg.CommandFile)
		if err := writeFileAtomic(path, string(schema.CommandGetStatus)); err != nil {
			logs.Errorf("write probe %s, err: %+v", path, err)
			lastErr = err
			continue
		}
		written++
	}
	if written == 0 {
		return errors.Annotate(exception.ErrIO, "probe", primaryDir, lastErr)
	}
	return nil
}

// probeTargets lists the Files folders of every discovered installation
// plus the common folder.
func (c *Channel) probeTargets(discovered []string) []string {
	var targets []string
	seen := make(map[string]struct{})
	add := func(dir string) {
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		targets = append(targets, dir)
	}
	for _, d := range discovered {
		add(c.resolver.FilesDir(d))
	}
	add(c.resolver.FilesDir(CommonSentinel))
	return targets
}

func (c *Channel) clear(dirs []string) {
	c.removeAll(dirs, c.cfg.CommandFile)
	c.removeAll(dirs, c.cfg.ResponseFile)
}

func (c *Channel) removeAll(dirs []string, name string) {
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logs.Errorf("remove %s, err: %+v", path, err)
		}
	}
}

func (c *Channel) header(t schema.EventType, src schema.Source) schema.EventHeader {
	return schema.NewHeader(t, src, c.seq.Add(1), time.Now().UnixNano())
}

func (c *Channel) publish(e bus.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.TryPublish(e); err != nil {
		c.metrics.IncNotifyDrop()
		logs.Errorf("drop %s notification, err: %+v", e.Header.Type, err)
	}
}

// writeFileAtomic writes content next to path and renames it into place so
// the terminal never reads a partial command.
func writeFileAtomic(path, content string) error {
	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, []byte(content), filePerm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
