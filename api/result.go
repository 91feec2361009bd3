// Package api
// Author: momentics@gmail.com
//
// Cancellation contract for scheduled work.

package api

// Cancelable is any operation that may be canceled.
type Cancelable interface {
	// Cancel attempts to abort the operation. Work that already started
	// runs to completion.
	Cancel() error
	// Done is closed once the operation can no longer run.
	Done() <-chan struct{}
	// Err returns cancellation reason.
	Err() error
}
