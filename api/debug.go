// File: api/debug.go
// Author: momentics <momentics@gmail.com>
//
// Live introspection contract for running schedulers and resources.

package api

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState emits a snapshot of component state for diagnostics.
	DumpState() map[string]any

	// RegisterProbe registers a named state reporter.
	RegisterProbe(name string, fn func() any)
}
