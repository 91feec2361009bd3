//go:build !linux && !windows

// File: memory/virtual_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package memory

import (
	"os"

	"github.com/momentics/hioload-jobs/api"
)

const sysSupported = false

func sysPageSize() int { return os.Getpagesize() }

func sysAlloc(int) ([]byte, error) { return nil, api.ErrNotSupported }

func sysFree([]byte) error { return api.ErrNotSupported }
