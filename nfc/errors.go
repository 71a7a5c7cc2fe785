package nfc

import (
	"errors"
	"strings"
)

// ErrorCode identifies a class of NFC hardware or data error.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeTagRemoved
	ErrCodeAuthFailed
	ErrCodeReadFailed
	ErrCodeInvalidData
	ErrCodeEmptyTag
)

const (
	// Device errors (200-299)
	ErrCodeNoDevice ErrorCode = iota + 200
	ErrCodeDeviceOpen
	ErrCodeDeviceIO
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "ReadData", "GetTags")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.TagUID != "" {
		sb.WriteString(" (tag ")
		sb.WriteString(e.TagUID)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

// Is matches any NFCError carrying the same code.
func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{Code: ErrCodeNotSupported, Op: op, Message: "operation not supported"}
}

// NewTagRemovedError creates an error for when a tag is removed mid-operation.
func NewTagRemovedError(op string, cause error) *NFCError {
	return &NFCError{Code: ErrCodeTagRemoved, Op: op, Message: "tag removed during operation", Cause: cause}
}

// NewAuthError creates an error for authentication failures.
func NewAuthError(op, tagUID string, cause error) *NFCError {
	return &NFCError{Code: ErrCodeAuthFailed, Op: op, TagUID: tagUID, Message: "authentication failed", Cause: cause}
}

// NewReadError creates an error for read failures.
func NewReadError(op string, cause error) *NFCError {
	return &NFCError{Code: ErrCodeReadFailed, Op: op, Message: "read failed", Cause: cause}
}

// NewInvalidDataError creates an error for data that is not valid NDEF.
func NewInvalidDataError(op string, cause error) *NFCError {
	return &NFCError{Code: ErrCodeInvalidData, Op: op, Message: "invalid NDEF data", Cause: cause}
}

// NewEmptyTagError creates an error for tags that carry no NDEF message.
func NewEmptyTagError(op string) *NFCError {
	return &NFCError{Code: ErrCodeEmptyTag, Op: op, Message: "tag has no NDEF message"}
}

// NewNoDeviceError creates an error for when no reader is attached.
func NewNoDeviceError(op string) *NFCError {
	return &NFCError{Code: ErrCodeNoDevice, Op: op, Message: "no NFC reader available"}
}

// NewDeviceOpenError creates an error for readers that fail to open or initialize.
func NewDeviceOpenError(op string, cause error) *NFCError {
	return &NFCError{Code: ErrCodeDeviceOpen, Op: op, Message: "failed to open NFC reader", Cause: cause}
}

// NewDeviceIOError creates an error for reader communication failures.
func NewDeviceIOError(op string, cause error) *NFCError {
	return &NFCError{Code: ErrCodeDeviceIO, Op: op, Message: "reader I/O error", Cause: cause}
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// IsTagRemovedError checks if an error indicates the tag was removed.
func IsTagRemovedError(err error) bool {
	if err == nil {
		return false
	}
	if GetErrorCode(err) == ErrCodeTagRemoved {
		return true
	}
	// libnfc reports removal as plain strings
	errStr := err.Error()
	return strings.Contains(errStr, "tag removed") ||
		strings.Contains(errStr, "Target was removed") ||
		strings.Contains(errStr, "RF Transmission Error")
}

// IsDeviceError checks if an error concerns the reader rather than the tag.
func IsDeviceError(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeNoDevice, ErrCodeDeviceOpen, ErrCodeDeviceIO:
		return true
	}
	return false
}
