package ayah

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeResolutionFailure: the resolver could not produce a URL.
	CodeResolutionFailure Code = "RESOLUTION_FAILURE"

	// CodePlaybackRejected: the audio output refused to start.
	CodePlaybackRejected Code = "PLAYBACK_REJECTED"

	// CodeCacheIO: the clip store failed to read or write.
	CodeCacheIO Code = "CACHE_IO"

	// CodeDownloadItem: one item of a bulk download failed.
	CodeDownloadItem Code = "DOWNLOAD_ITEM"

	// CodeSuperseded: a newer request replaced this one.
	CodeSuperseded Code = "SUPERSEDED"

	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeCanceled     Code = "CANCELED"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrResolutionFailure = &Error{Code: CodeResolutionFailure, Message: "audio url could not be resolved"}
	ErrPlaybackRejected  = &Error{Code: CodePlaybackRejected, Message: "playback was rejected, tap to play"}
	ErrCacheIO           = &Error{Code: CodeCacheIO, Message: "clip cache i/o failed"}
	ErrDownloadItem      = &Error{Code: CodeDownloadItem, Message: "download item failed"}
	ErrSuperseded        = &Error{Code: CodeSuperseded, Message: "request superseded"}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrCanceled          = &Error{Code: CodeCanceled, Message: "canceled"}
)

// Error is a coded error with optional cause and context.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

// NewError creates a new coded error.
func NewError(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if a later attempt may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case CodeResolutionFailure, CodeCacheIO, CodeDownloadItem:
		return true
	default:
		return false
	}
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
