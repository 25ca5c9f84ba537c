package config

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "mtbot/pkg/logx"
)

// Manager owns the active configuration: initial load, atomic access, and
// optional hot reload from disk. A reload that fails to parse or validate is
// logged and dropped; the previous config stays active.
type Manager struct {
	path string
	log  logx.Logger

	mu   sync.RWMutex
	cur  *Config
	hash uint64

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}

	debounce time.Duration
}

func NewManager(path string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		path:     path,
		log:      log,
		subs:     map[chan *Config]struct{}{},
		debounce: 250 * time.Millisecond,
	}
}

// Parse turns raw YAML/JSON into a validated Config with the environment
// overlay applied. It does not touch the manager's active config.
func (m *Manager) Parse(raw []byte) (*Config, error) {
	jb, err := coerceToJSONBytes(raw)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := decodeStrict(jb, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Load reads the config file and makes it the active config.
func (m *Manager) Load() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", m.path, err)
	}
	cfg, err := m.Parse(raw)
	if err != nil {
		return nil, err
	}
	m.commit(cfg, hashBytes(raw))
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

func (m *Manager) commit(cfg *Config, h uint64) {
	m.mu.Lock()
	m.cur = cfg
	m.hash = h
	m.mu.Unlock()
	m.publish(cfg)
}

// Subscribe returns a buffered channel receiving each newly committed config.
func (m *Manager) Subscribe() (<-chan *Config, func()) {
	ch := make(chan *Config, 2)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			m.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		// Drop the oldest pending config so subscribers always converge on
		// the latest one.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}
}

// Watch reloads the config whenever the file changes on disk. Editors often
// write via rename, so the parent directory is watched and events are
// debounced before reloading. Blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target, _ := filepath.Abs(m.path)
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	reload := func() {
		raw, err := os.ReadFile(m.path)
		if err != nil {
			m.log.Warn("config reload: read failed", logx.Err(err))
			return
		}
		h := hashBytes(raw)
		m.mu.RLock()
		same := h == m.hash
		m.mu.RUnlock()
		if same {
			return
		}
		cfg, err := m.Parse(raw)
		if err != nil {
			m.log.Warn("config reload rejected, keeping previous", logx.Err(err))
			return
		}
		m.commit(cfg, h)
		m.log.Info("config reloaded", logx.String("path", m.path))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("config watcher closed")
			}
			abs, _ := filepath.Abs(ev.Name)
			if abs != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(m.debounce, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("config watcher closed")
			}
			m.log.Warn("config watcher error", logx.Err(err))
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
