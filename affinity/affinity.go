// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API for CPU affinity of pool worker threads. Platform-specific
// implementations live in affinity_linux.go, affinity_windows.go and affinity_other.go.

package affinity

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-jobs/api"
)

// NumCPUs returns the number of logical CPUs usable by the process.
func NumCPUs() int {
	return runtime.NumCPU()
}

// SetAffinity restricts the calling OS thread to a given logical CPU.
// The caller must have locked its goroutine to the thread beforehand.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= NumCPUs() {
		return api.NewError(api.ErrCodeInvalidArgument, "cpu id out of range").
			WithContext("cpu", cpuID)
	}
	if err := setAffinityPlatform(cpuID); err != nil {
		return fmt.Errorf("affinity: pin to cpu %d: %w", cpuID, err)
	}
	return nil
}

// PinCurrentThread locks the calling goroutine to its OS thread and pins the
// thread to cpuID modulo the CPU count. The lock is held for the life of the
// goroutine; worker loops call this once at start.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	return SetAffinity(cpuID % NumCPUs())
}

// Supported reports whether thread pinning is implemented on this platform.
func Supported() bool {
	return supported
}
