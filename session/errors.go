package session

import (
	"errors"
	"fmt"
)

// Code classifies why a session ended without a result.
type Code int

const (
	CodeUnsupported Code = iota + 1
	CodeTimeout
	CodeUserCanceled
	CodeReadFailed
	CodeMultipleTags
	CodeFirstTagRead
	CodeSystemBusy
	CodeDeviceLost
)

func (c Code) String() string {
	switch c {
	case CodeUnsupported:
		return "unsupported"
	case CodeTimeout:
		return "timeout"
	case CodeUserCanceled:
		return "userCanceled"
	case CodeReadFailed:
		return "readFailed"
	case CodeMultipleTags:
		return "multipleTags"
	case CodeFirstTagRead:
		return "firstTagRead"
	case CodeSystemBusy:
		return "systemBusy"
	case CodeDeviceLost:
		return "deviceLost"
	default:
		return "unknown"
	}
}

// Error is a session error reported by a driver. The controller forwards
// it untouched; only formatters and UI surfaces look at the code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrUnsupported  = &Error{Code: CodeUnsupported, Message: "Unsupported device"}
	ErrTimeout      = &Error{Code: CodeTimeout, Message: "Session timeout"}
	ErrUserCanceled = &Error{Code: CodeUserCanceled, Message: "Session invalidated by user"}
	ErrFirstTagRead = &Error{Code: CodeFirstTagRead, Message: "First NDEF tag read"}
	ErrSystemBusy   = &Error{Code: CodeSystemBusy, Message: "System resource unavailable"}
)

// NewReadError reports a tag that was found but could not be read or decoded.
func NewReadError(cause error) *Error {
	return &Error{Code: CodeReadFailed, Message: "Tag read failed", Cause: cause}
}

// NewMultipleTagsError reports n tags in the field when one was expected.
func NewMultipleTagsError(n int) *Error {
	return &Error{Code: CodeMultipleTags, Message: fmt.Sprintf("Multiple tags detected (%d)", n)}
}

// NewDeviceLostError reports a reader that failed or went away mid-session.
func NewDeviceLostError(cause error) *Error {
	return &Error{Code: CodeDeviceLost, Message: "Reader unavailable", Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsCode reports whether err carries the given session error code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
