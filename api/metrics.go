// File: api/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Telemetry hooks called from scheduler and memory hot paths.

package api

import "time"

// Metrics receives scheduler and memory events. Implementations must be
// safe for concurrent use and cheap; they are called on every task.
type Metrics interface {
	TaskExecuted(queueIndex int, stolen bool, d time.Duration)
	TaskPanicked(queueIndex int)
	CompanionWorkers(n int)
	TimedJobFired(late bool)
	TimedJobReset()
	MemoryGrown(resource string, bytes int)
	MemoryExhausted(resource string)
	MemoryReserved(resource string, bytes int64)
}

// NopMetrics ignores all events.
type NopMetrics struct{}

func (NopMetrics) TaskExecuted(int, bool, time.Duration) {}
func (NopMetrics) TaskPanicked(int)                      {}
func (NopMetrics) CompanionWorkers(int)                  {}
func (NopMetrics) TimedJobFired(bool)                    {}
func (NopMetrics) TimedJobReset()                        {}
func (NopMetrics) MemoryGrown(string, int)               {}
func (NopMetrics) MemoryExhausted(string)                {}
func (NopMetrics) MemoryReserved(string, int64)          {}
