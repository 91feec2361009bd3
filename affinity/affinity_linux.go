//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux implementation via sched_setaffinity on the calling thread.

package affinity

import "golang.org/x/sys/unix"

const supported = true

func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	// pid 0 addresses the calling thread
	return unix.SchedSetaffinity(0, &set)
}
