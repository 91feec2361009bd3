//go:build !linux && !windows

// File: affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import "github.com/momentics/hioload-jobs/api"

const supported = false

func setAffinityPlatform(cpuID int) error {
	return api.ErrNotSupported
}
