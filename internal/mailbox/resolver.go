package mailbox

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/yanun0323/logs"
)

// CommonSentinel stands for the terminal's shared "common" data folder.
// The resolver returns it when no installation directory is found.
const CommonSentinel = "Common"

const (
	defaultMarker      = "MQL5"
	filesDirName       = "Files"
	terminalVendorName = "MetaQuotes"
	terminalDirName    = "Terminal"
)

// DefaultInstallationIDs are installation directories observed on operator machines.
var DefaultInstallationIDs = []string{
	"D37B5D99C267D068A345C349C0EC90C5",
	"D0E8209F77C8CF37AD8BF550E51FF075",
}

// ResolverConfig describes where the terminal keeps its data folders.
type ResolverConfig struct {
	// UserRoot holds one subdirectory per terminal installation.
	UserRoot string
	// CommonRoot is the shared data folder; its Files subfolder is visible to every installation.
	CommonRoot string
	// InstallationIDs are checked in order under UserRoot.
	InstallationIDs []string
	// Marker must exist inside an installation directory for it to count.
	Marker string
}

// DefaultResolverConfig derives the roots from the process environment.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		UserRoot:        defaultUserRoot(),
		CommonRoot:      defaultCommonRoot(),
		InstallationIDs: append([]string(nil), DefaultInstallationIDs...),
		Marker:          defaultMarker,
	}
}

func (c ResolverConfig) withDefaults() ResolverConfig {
	if c.Marker == "" {
		c.Marker = defaultMarker
	}
	return c
}

func defaultUserRoot() string {
	base := os.Getenv("APPDATA")
	if base == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			base = dir
		}
	}
	if base == "" {
		return ""
	}
	return filepath.Join(base, terminalVendorName, terminalDirName)
}

func defaultCommonRoot() string {
	var base string
	if runtime.GOOS == "windows" {
		base = os.Getenv("ProgramData")
	}
	if base == "" {
		base = os.Getenv("PROGRAMDATA")
	}
	if base == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			base = dir
		}
	}
	if base == "" {
		return ""
	}
	return filepath.Join(base, terminalVendorName, terminalDirName, CommonSentinel)
}

// Resolver discovers the terminal data directories. It only reads the filesystem.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver creates a resolver for the provided configuration.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{cfg: cfg.withDefaults()}
}

// Config returns the resolver configuration.
func (r *Resolver) Config() ResolverConfig {
	if r == nil {
		return ResolverConfig{}
	}
	return r.cfg
}

// Discover returns the installation directories that exist and contain the
// marker, in configured order. It never fails: when nothing matches the
// result is []string{CommonSentinel}.
func (r *Resolver) Discover() []string {
	if r == nil {
		return []string{CommonSentinel}
	}

	var found []string
	if r.cfg.UserRoot != "" {
		for _, id := range r.cfg.InstallationIDs {
			if id == "" {
				continue
			}
			dir := filepath.Join(r.cfg.UserRoot, id)
			if isDir(dir) && isDir(filepath.Join(dir, r.cfg.Marker)) {
				found = append(found, dir)
			}
		}
	}

	if len(found) == 0 {
		logs.Infof("no terminal installation found under %q, using common folder", r.cfg.UserRoot)
		return []string{CommonSentinel}
	}
	return found
}

// FilesDir maps a discovered data directory to the folder the terminal's
// file functions read and write.
func (r *Resolver) FilesDir(dataDir string) string {
	if r == nil {
		return ""
	}
	if dataDir == CommonSentinel {
		if r.cfg.CommonRoot == "" {
			return ""
		}
		return filepath.Join(r.cfg.CommonRoot, filesDirName)
	}
	return filepath.Join(dataDir, r.cfg.Marker, filesDirName)
}

// MailboxDirs builds the ordered folder list used for every file operation:
// the primary installation (unless it is the common sentinel), the common
// folder, then every installation directory present under UserRoot.
// Duplicates are dropped keeping the first position.
func (r *Resolver) MailboxDirs(primary string) []string {
	if r == nil {
		return nil
	}

	var dirs []string
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
		dirs = append(dirs, dir)
	}

	if primary != CommonSentinel {
		add(r.FilesDir(primary))
	}
	add(r.FilesDir(CommonSentinel))

	if r.cfg.UserRoot != "" {
		entries, err := os.ReadDir(r.cfg.UserRoot)
		if err != nil && !os.IsNotExist(err) {
			logs.Errorf("read terminal root %s, err: %+v", r.cfg.UserRoot, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			add(r.FilesDir(filepath.Join(r.cfg.UserRoot, entry.Name())))
		}
	}
	return dirs
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
