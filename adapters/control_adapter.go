// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control over the typed config store
// and the probe registry.

package adapters

import (
	"fmt"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/control"
	"gopkg.in/yaml.v3"
)

type ControlAdapter struct {
	config *control.ConfigStore
	debug  *control.Probes
}

// NewControlAdapter exposes store and probes as api.Control. Nil arguments
// get fresh instances.
func NewControlAdapter(store *control.ConfigStore, probes *control.Probes) *ControlAdapter {
	if store == nil {
		store = control.NewConfigStore(nil)
	}
	if probes == nil {
		probes = control.NewProbes()
		control.RegisterPlatformProbes(probes)
	}
	return &ControlAdapter{config: store, debug: probes}
}

// GetConfig returns the active config as nested maps keyed like the YAML
// document.
func (c *ControlAdapter) GetConfig() map[string]any {
	out := make(map[string]any)
	data, err := yaml.Marshal(c.config.Snapshot())
	if err != nil {
		return out
	}
	_ = yaml.Unmarshal(data, &out)
	return out
}

// SetConfig overlays cfg onto the active config, validates and applies it.
// Reload listeners run before SetConfig returns.
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config overlay: %w", err)
	}
	next := c.config.Snapshot()
	if err := yaml.Unmarshal(data, next); err != nil {
		return fmt.Errorf("applying config overlay: %w", err)
	}
	return c.config.UpdateSync(next)
}

func (c *ControlAdapter) Stats() map[string]any {
	return c.debug.DumpState()
}

func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(func(_, _ *control.Config) { fn() })
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

var _ api.Control = (*ControlAdapter)(nil)
