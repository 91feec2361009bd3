package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-jobs/api"
)

func TestSetAffinity_OutOfRange(t *testing.T) {
	err := SetAffinity(-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.NewError(api.ErrCodeInvalidArgument, ""))

	assert.Error(t, SetAffinity(NumCPUs()))
}

func TestPinCurrentThread(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		defer runtime.UnlockOSThread()
		done <- PinCurrentThread(0)
	}()
	err := <-done
	if !Supported() {
		assert.ErrorIs(t, err, api.ErrNotSupported)
		return
	}
	// containers may restrict the allowed CPU set
	if err != nil {
		t.Skipf("pinning rejected by environment: %v", err)
	}
}
