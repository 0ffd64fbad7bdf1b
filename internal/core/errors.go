package core

import "errors"

// Error codes for client-side failures.
const (
	ErrCodeInvalidInput     = "invalid_input"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeNotFound         = "not_found"
	ErrCodeFetchFailed      = "fetch_failed"
	ErrCodeConnectionFailed = "connection_failed"
	ErrCodePublishIgnored   = "publish_ignored"
	ErrCodeInvalidState     = "invalid_state"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyExists    = errors.New("room already exists")
	ErrNotFound         = errors.New("room not found")
	ErrTransientFetch   = errors.New("fetch failed")
	ErrConnectionFailed = errors.New("connection failed")
	ErrPublishIgnored   = errors.New("publish ignored: not connected")
	ErrInvalidState     = errors.New("invalid channel state")
)

var sentinels = map[string]error{
	ErrCodeInvalidInput:     ErrInvalidInput,
	ErrCodeAlreadyExists:    ErrAlreadyExists,
	ErrCodeNotFound:         ErrNotFound,
	ErrCodeFetchFailed:      ErrTransientFetch,
	ErrCodeConnectionFailed: ErrConnectionFailed,
	ErrCodePublishIgnored:   ErrPublishIgnored,
	ErrCodeInvalidState:     ErrInvalidState,
}

// CoreError wraps a code, a human-readable message and an optional cause.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if s, ok := sentinels[e.Code]; ok {
		return s.Error()
	}
	return e.Code
}

// Unwrap exposes the sentinel for Code and the cause, so errors.Is matches both.
func (e *CoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := sentinels[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError builds a CoreError.
func NewError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: cause}
}

// Code returns the CoreError code carried by err, or "" when there is none.
func Code(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	for code, s := range sentinels {
		if errors.Is(err, s) {
			return code
		}
	}
	return ""
}
