// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sentinel errors and the structured Error carried across package
// boundaries.

package api

import (
	"fmt"
	"sort"
	"strings"
)

var (
	ErrSchedulerClosed  = fmt.Errorf("scheduler is closed")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrOutOfMemory      = fmt.Errorf("out of memory")
	ErrNotSupported     = fmt.Errorf("operation not supported")
	ErrAlreadyScheduled = fmt.Errorf("job already scheduled")
)

// ErrorCode classifies a structured Error.
type ErrorCode int

const (
	ErrCodeInvalidArgument ErrorCode = iota + 1
	ErrCodeInvalidConfig
	ErrCodeNotSupported
	ErrCodeOutOfMemory
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeInvalidConfig:
		return "invalid_config"
	case ErrCodeNotSupported:
		return "not_supported"
	case ErrCodeOutOfMemory:
		return "out_of_memory"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is a coded error with key/value context. It matches other *Error
// values of the same code under errors.Is and unwraps to the sentinel of its
// code, so errors.Is(err, ErrInvalidArgument) holds for config errors too.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// NewError creates a structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithContext records key=value and returns e.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
	}
	b.WriteByte(')')
	return b.String()
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeInvalidArgument, ErrCodeInvalidConfig:
		return ErrInvalidArgument
	case ErrCodeNotSupported:
		return ErrNotSupported
	case ErrCodeOutOfMemory:
		return ErrOutOfMemory
	}
	return nil
}
