package core

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "NOT_READY", NotReady.String())
	assert.Equal(t, "UNREQUESTED", Unrequested.String())
	assert.Equal(t, "COMMAND_UNKNOWN", CommandUnknown.String())
	assert.Equal(t, "ErrorCode(42)", ErrorCode(42).String())
}

func TestErrorCode_Numbering(t *testing.T) {
	assert.Equalf(t, 0, int(Unknown), "expect canonical numbering")
	assert.Equalf(t, 3, int(Unrequested), "expect canonical numbering")
	assert.Equalf(t, 4, int(AuthenticationFailed), "expect canonical numbering")
	assert.Equalf(t, 9, int(CommandUnknown), "expect canonical numbering")
}

func TestErrorCode_Recoverable(t *testing.T) {
	for _, c := range []ErrorCode{Unknown, NotReady, Closed, Unrequested, AuthenticationFailed} {
		assert.Falsef(t, c.Recoverable(), "expect %v to be terminal", c)
	}
	for _, c := range []ErrorCode{NotAuthenticated, CommandRestricted, CommandFailed,
		CommandUnauthorized, CommandUnknown} {
		assert.Truef(t, c.Recoverable(), "expect %v to be recoverable", c)
	}
}

func TestError_Is(t *testing.T) {
	err := NewError(Closed, "connection closed before response", nil)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, errors.Is(err, ErrNotReady))

	wrapped := fmt.Errorf("send: %w", err)
	assert.True(t, errors.Is(wrapped, ErrClosed))
	assert.Equal(t, Closed, CodeOf(wrapped))

	assert.True(t, errors.Is(err, NewError(Closed, "connection closed before response", nil)))
	assert.False(t, errors.Is(err, NewError(Closed, "other", nil)))
}

func TestError_Unwrap(t *testing.T) {
	err := NewError(Unknown, "read failed", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "UNKNOWN: read failed: unexpected EOF", err.Error())
}

func TestError_Error(t *testing.T) {
	assert.Equal(t, "CLOSED", ErrClosed.Error())
	assert.Equal(t, "COMMAND_RESTRICTED: Restricted: no", NewError(CommandRestricted, "Restricted: no", nil).Error())
	assert.Equal(t, "UNKNOWN: EOF", NewError(Unknown, "", io.EOF).Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Unknown, CodeOf(nil))
	assert.Equal(t, Unknown, CodeOf(io.EOF))
	assert.Equal(t, CommandFailed, CodeOf(ErrCommandFailed))
}
