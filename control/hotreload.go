// File: control/hotreload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe configuration store with hot-reload propagation.

package control

import "sync"

// ReloadFunc receives the previous and the new configuration.
type ReloadFunc func(old, cur *Config)

// ConfigStore holds the active configuration snapshot.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []ReloadFunc
}

// NewConfigStore initializes a store with cfg (DefaultConfig if nil).
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg.Clone()}
}

// Snapshot returns a copy of the active configuration.
func (cs *ConfigStore) Snapshot() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config.Clone()
}

// OnReload registers a listener called after every successful update.
func (cs *ConfigStore) OnReload(fn ReloadFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// Update validates cfg, swaps it in and runs listeners asynchronously.
func (cs *ConfigStore) Update(cfg *Config) error {
	old, listeners, err := cs.swap(cfg)
	if err != nil {
		return err
	}
	for _, fn := range listeners {
		go fn(old, cfg.Clone())
	}
	return nil
}

// UpdateSync behaves like Update but runs listeners on the caller.
func (cs *ConfigStore) UpdateSync(cfg *Config) error {
	old, listeners, err := cs.swap(cfg)
	if err != nil {
		return err
	}
	for _, fn := range listeners {
		fn(old, cfg.Clone())
	}
	return nil
}

// Reload loads path and applies it synchronously.
func (cs *ConfigStore) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return cs.UpdateSync(cfg)
}

func (cs *ConfigStore) swap(cfg *Config) (*Config, []ReloadFunc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	old := cs.config
	cs.config = cfg.Clone()
	return old, append([]ReloadFunc(nil), cs.listeners...), nil
}
