package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("loading: %w", NewError(ErrCodeInvalidConfig, "bad queue").WithContext("field", "q"))

	assert.ErrorIs(t, err, &Error{Code: ErrCodeInvalidConfig})
	assert.NotErrorIs(t, err, &Error{Code: ErrCodeNotSupported})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var apiErr *Error
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "q", apiErr.Context["field"])
}

func TestError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, NewError(ErrCodeOutOfMemory, "arena"), ErrOutOfMemory)
	assert.ErrorIs(t, NewError(ErrCodeNotSupported, "pin"), ErrNotSupported)
	assert.Nil(t, NewError(ErrorCode(99), "x").Unwrap())
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "plain", NewError(ErrCodeInvalidArgument, "plain").Error())
	e := NewError(ErrCodeInvalidArgument, "cpu out of range").WithContext("max", 8).WithContext("cpu", 9)
	assert.Equal(t, "cpu out of range (cpu=9, max=8)", e.Error())
	assert.Equal(t, "invalid_config", ErrCodeInvalidConfig.String())
}
