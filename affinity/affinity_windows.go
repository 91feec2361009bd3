//go:build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows implementation via SetThreadAffinityMask.

package affinity

import "golang.org/x/sys/windows"

const supported = true

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
)

func setAffinityPlatform(cpuID int) error {
	mask := uintptr(1) << uint(cpuID)
	ret, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if ret == 0 {
		return err
	}
	return nil
}
