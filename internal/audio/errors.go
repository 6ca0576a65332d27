package audio

import (
	"errors"
	"fmt"
)

// Kind classifies a capture failure. Every kind is terminal for the session that raised it.
type Kind string

const (
	KindUnsupportedPlatform Kind = "UnsupportedPlatform"
	KindPermissionDenied    Kind = "PermissionDenied"
	KindDeviceNotFound      Kind = "DeviceNotFound"
	KindDeviceBusy          Kind = "DeviceBusy"
	KindUnknown             Kind = "Unknown"

	KindNoSupportedEncoding Kind = "NoSupportedEncoding"
	KindRecordingFailure    Kind = "RecordingFailure"
	KindEmptyRecording      Kind = "EmptyRecording"
)

// Error lets a bare Kind act as an errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

// Error is a classified capture failure. Message is the short user-facing text.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError builds a classified error; err may be nil.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target.
func (e *Error) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == e.Kind
}

// KindOf extracts the classification of err, or "" when err is not a capture error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var captureErr *Error
	if errors.As(err, &captureErr) {
		return captureErr.Kind
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}

// AsError classifies err, defaulting to KindUnknown while keeping the original message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var captureErr *Error
	if errors.As(err, &captureErr) {
		return captureErr
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
}
