package kfx

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic           = errors.New("kfx: bad magic")
	ErrUnsupportedVersion = errors.New("kfx: unsupported version")
	ErrInvalidHeader      = errors.New("kfx: invalid fixed header")
	ErrTruncated          = errors.New("kfx: truncated stream")
	ErrSymbolOutOfRange   = errors.New("kfx: symbol id out of range")
	ErrInvalidRecord      = errors.New("kfx: invalid fragment record")
	ErrInvalidPayload     = errors.New("kfx: invalid payload")
	ErrLimitExceeded      = errors.New("kfx: limit exceeded")
	ErrEncrypted          = errors.New("kfx: container is encrypted")
	ErrValidation         = errors.New("kfx: validation failed")
)

// FormatError describes a parse failure. Kind is one of the sentinel errors
// above; Offset is the byte offset within the part where it was detected.
// Err is the underlying cause, if any; errors.Is and errors.As see both
// Kind and Err.
type FormatError struct {
	Kind   error
	Offset int64
	Part   int
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	msg := e.Kind.Error()
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	if e.Part > 0 {
		msg = fmt.Sprintf("%s (part %d)", msg, e.Part)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func formatErr(kind error, off int64, format string, args ...any) *FormatError {
	return &FormatError{Kind: kind, Offset: off, Detail: fmt.Sprintf(format, args...)}
}
