// Package status defines the uniform error carrier used across the framework.
//
// Framework operations report failure as a *Status error with a code from a
// closed set. Success is a nil error; callers branch on CodeOf(err).
package status

import "fmt"

// Code identifies the kind of a failure.
type Code int

const (
	OK Code = iota
	InvalidArgument
	NotFound
	Timeout
	Unavailable
	Cancelled
	Internal
)

// String returns the lowercase name of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	case Cancelled:
		return "cancelled"
	case Internal:
		return "internal_error"
	}
	return "unknown"
}

// Status is an error with a code and a free-form message.
type Status struct {
	code    Code
	message string
}

// New creates a Status error. New(OK, ...) is never useful; return nil instead.
func New(code Code, message string) *Status {
	return &Status{code: code, message: message}
}

// Errorf creates a Status error with a formatted message.
func Errorf(code Code, format string, args ...any) *Status {
	return &Status{code: code, message: fmt.Sprintf(format, args...)}
}

func (s *Status) Error() string {
	if s.message == "" {
		return s.code.String()
	}
	return s.code.String() + ": " + s.message
}

// Message returns the message without the code prefix.
func (s *Status) Message() string { return s.message }

// Code returns the code carried by s.
func (s *Status) Code() Code { return s.code }

// FromError returns the *Status inside err, wrapping foreign errors as Internal.
// A nil err returns nil.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}
	if s, ok := err.(*Status); ok {
		return s
	}
	return &Status{code: Internal, message: err.Error()}
}

// CodeOf reports the code of an error: OK for nil, Internal for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	return FromError(err).code
}
