// File: control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime probe registry for internal inspection.

package control

import (
	"runtime"
	"sort"

	"github.com/momentics/hioload-jobs/affinity"
	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/core/concurrency"
	"gopkg.in/yaml.v3"
)

// Probes holds named state reporters.
type Probes struct {
	mu     concurrency.SharedMutex
	probes map[string]func() any
}

// NewProbes creates an empty registry.
func NewProbes() *Probes {
	return &Probes{probes: make(map[string]func() any)}
}

// RegisterProbe inserts or replaces a named probe.
func (p *Probes) RegisterProbe(name string, fn func() any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[name] = fn
}

// Unregister removes a probe.
func (p *Probes) Unregister(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.probes, name)
}

// Names returns the registered probe names in order.
func (p *Probes) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.probes))
	for k := range p.probes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DumpState evaluates every probe.
func (p *Probes) DumpState() map[string]any {
	p.mu.RLock()
	fns := make(map[string]func() any, len(p.probes))
	for k, fn := range p.probes {
		fns[k] = fn
	}
	p.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}

// DumpYAML renders DumpState as YAML.
func (p *Probes) DumpYAML() ([]byte, error) {
	return yaml.Marshal(p.DumpState())
}

// RegisterPlatformProbes adds CPU and OS facts.
func RegisterPlatformProbes(p *Probes) {
	p.RegisterProbe("platform.os", func() any { return runtime.GOOS })
	p.RegisterProbe("platform.cpus", func() any { return affinity.NumCPUs() })
	p.RegisterProbe("platform.affinity", func() any { return affinity.Supported() })
	p.RegisterProbe("platform.goroutines", func() any { return runtime.NumGoroutine() })
}

var _ api.Debug = (*Probes)(nil)
