package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "hwbot/pkg/logx"
)

const (
	reloadDebounce   = 250 * time.Millisecond
	watchBackoffBase = 250 * time.Millisecond
	watchBackoffMax  = 5 * time.Second
)

// ConfigManager owns the committed Config and republishes it when the file
// changes on disk.
type ConfigManager struct {
	path      string
	lookup    func(string) (string, bool)
	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	mu       sync.RWMutex
	cfg      *Config
	fromFile bool
	// sum is the content hash of cfg; reloads with the same hash are dropped.
	sum uint64

	subsMu sync.Mutex
	subs   []chan *Config
}

// NewConfigManager creates a manager for path. An empty path, or a path that
// does not exist, yields Default() overlaid with the environment.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path:   strings.TrimSpace(path),
		lookup: os.LookupEnv,
		log:    logx.Nop(),
	}
}

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetLookupEnv replaces os.LookupEnv (tests).
func (m *ConfigManager) SetLookupEnv(fn func(string) (string, bool)) { m.lookup = fn }

// SetValidator installs the check a reloaded config must pass before it is
// committed and published.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

func (m *ConfigManager) Path() string { return m.path }

// FromFile reports whether the committed config was read from disk.
func (m *ConfigManager) FromFile() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fromFile
}

// Parse reads the file (if any) over Default() and applies the environment.
// It reports whether the file was found.
func (m *ConfigManager) Parse() (*Config, bool, error) {
	cfg := Default()
	found := false

	if m.path != "" {
		b, err := os.ReadFile(m.path)
		switch {
		case err == nil:
			found = true
			if err := decodeFile(m.path, b, cfg); err != nil {
				return nil, true, fmt.Errorf("config %s: %w", m.path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, false, err
		}
	}

	if err := ApplyEnv(cfg, m.lookup); err != nil {
		return nil, found, err
	}
	return cfg, found, nil
}

// Load parses and commits the config without validating it.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, found, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg, m.sum, m.fromFile = cfg, contentSum(cfg), found
	m.mu.Unlock()
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func contentSum(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Subscribe returns a channel that receives every published config. A slow
// subscriber only ever sees the latest one.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				// Full: drop the oldest pending config and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload re-reads the file and publishes it if it changed and validates.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, found, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed; keeping previous", logx.String("path", m.path), logx.Err(err))
		return
	}
	sum := contentSum(cfg)

	m.mu.RLock()
	same := sum != 0 && sum == m.sum
	m.mu.RUnlock()
	if same {
		m.log.Debug("config file touched without changes", logx.String("path", m.path))
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.mu.Lock()
	m.cfg, m.sum, m.fromFile = cfg, sum, found
	m.mu.Unlock()
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("sum", fmt.Sprintf("%x", sum)))
}

// Watch reloads the config file on change until ctx is canceled. The parent
// directory is watched so atomic-rename saves are seen; a broken watcher is
// recreated with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	backoff := watchBackoffBase
	for {
		healthy, err := m.watchOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if healthy {
			backoff = watchBackoffBase
		}
		wait := backoff + rand.N(backoff/2+1)
		m.log.Warn("config watcher restarting",
			logx.String("dir", filepath.Dir(m.path)), logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		backoff = min(backoff*2, watchBackoffMax)
	}
}

// watchOnce runs one fsnotify watcher until it breaks or ctx ends. healthy
// reports whether the watcher got as far as receiving events.
func (m *ConfigManager) watchOnce(ctx context.Context) (healthy bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()

	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return false, err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	// Reloads run on this goroutine; the timer only coalesces bursts.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-debounce.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("event channel closed")
			}
			const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&relevant != 0 {
				debounce.Reset(reloadDebounce)
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errors.New("error channel closed")
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				// Events may have been lost; reread once.
				debounce.Reset(reloadDebounce)
				continue
			}
			m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(werr))
		}
	}
}
