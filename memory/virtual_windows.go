//go:build windows

// File: memory/virtual_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reserved and committed regions via VirtualAlloc.

package memory

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

const sysSupported = true

func sysPageSize() int { return os.Getpagesize() }

func sysAlloc(n int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}

func sysFree(b []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(b))), 0, windows.MEM_RELEASE)
}
