//go:build linux

// File: memory/virtual_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Anonymous private mappings via mmap.

package memory

import "golang.org/x/sys/unix"

const sysSupported = true

func sysPageSize() int { return unix.Getpagesize() }

func sysAlloc(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func sysFree(b []byte) error {
	return unix.Munmap(b[:cap(b)])
}
