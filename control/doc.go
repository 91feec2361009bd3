// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot reload, metrics and debug introspection for the job
// runtime.
//
// Provides:
//   - YAML Config with validation and a ConfigStore propagating reloads
//   - a prometheus Collector implementing api.Metrics
//   - LevelLogger backends: DefaultLogger over stdlib log, KlogLogger over klog
//   - a Probes registry exporting component state
package control
