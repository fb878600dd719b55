package nodestreams

import (
	"errors"
	"fmt"
)

// Error codes matching the upstream runtime's observable error surface.
// JavaScript consumers key on these (err.code), so the strings are part of
// the public contract and must not change.
const (
	CodeInvalidArgType        = "ERR_INVALID_ARG_TYPE"
	CodeInvalidArgValue       = "ERR_INVALID_ARG_VALUE"
	CodeUnknownEncoding       = "ERR_UNKNOWN_ENCODING"
	CodeStreamNullValues      = "ERR_STREAM_NULL_VALUES"
	CodeStreamWriteAfterEnd   = "ERR_STREAM_WRITE_AFTER_END"
	CodeStreamAlreadyFinished = "ERR_STREAM_ALREADY_FINISHED"
	CodeStreamDestroyed       = "ERR_STREAM_DESTROYED"
	CodeMethodNotImplemented  = "ERR_METHOD_NOT_IMPLEMENTED"
	CodeMultipleCallback      = "ERR_MULTIPLE_CALLBACK"
	CodeStreamPrematureClose  = "ERR_STREAM_PREMATURE_CLOSE"
	CodeAbort                 = "ABORT_ERR"
)

// StreamError is the error type produced by this package. It carries a
// stable Code (see the Code* constants) alongside a human-readable message
// and an optional cause chain.
//
// Use [CodeOf] or errors.As to classify, and [errors.Is] to match through
// the cause chain.
type StreamError struct {
	Cause   error
	Code    string
	Message string
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Is matches another *StreamError with the same code, enabling
// errors.Is(err, &StreamError{Code: CodeStreamDestroyed}).
func (e *StreamError) Is(target error) bool {
	var se *StreamError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

// CodeOf returns the stream error code carried by err (searching the cause
// chain), or the empty string if err carries none.
func CodeOf(err error) string {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func newWriteAfterEnd() *StreamError {
	return &StreamError{Code: CodeStreamWriteAfterEnd, Message: "write after end"}
}

func newAlreadyFinished(op string) *StreamError {
	return &StreamError{Code: CodeStreamAlreadyFinished, Message: fmt.Sprintf("cannot call %s after a stream was finished", op)}
}

func newDestroyed(op string) *StreamError {
	return &StreamError{Code: CodeStreamDestroyed, Message: fmt.Sprintf("cannot call %s after a stream was destroyed", op)}
}

func newNullValues() *StreamError {
	return &StreamError{Code: CodeStreamNullValues, Message: "may not write null values to stream"}
}

func newInvalidArgType(name, expected string, actual any) *StreamError {
	return &StreamError{
		Code:    CodeInvalidArgType,
		Message: fmt.Sprintf("the %q argument must be of type %s, received %T", name, expected, actual),
	}
}

func newInvalidArgValue(name string, value any, reason string) *StreamError {
	return &StreamError{
		Code:    CodeInvalidArgValue,
		Message: fmt.Sprintf("the %q argument is invalid (%v): %s", name, value, reason),
	}
}

func newUnknownEncoding(encoding string) *StreamError {
	return &StreamError{Code: CodeUnknownEncoding, Message: fmt.Sprintf("unknown encoding: %s", encoding)}
}

func newMethodNotImplemented(method string) *StreamError {
	return &StreamError{Code: CodeMethodNotImplemented, Message: fmt.Sprintf("the %s method is not implemented", method)}
}

func newMultipleCallback() *StreamError {
	return &StreamError{Code: CodeMultipleCallback, Message: "callback called multiple times"}
}

func newPrematureClose() *StreamError {
	return &StreamError{Code: CodeStreamPrematureClose, Message: "premature close"}
}

// newAbortError constructs the error used when a stream is torn down via an
// abort signal. The signal's reason, if it is an error, becomes the cause.
func newAbortError(reason any) *StreamError {
	e := &StreamError{Code: CodeAbort, Message: "the operation was aborted"}
	if err, ok := reason.(error); ok {
		e.Cause = err
	} else if reason != nil {
		e.Cause = fmt.Errorf("%v", reason)
	}
	return e
}

// errOr returns err if non-nil, otherwise fallback.
func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
