package book

import (
	"errors"
	"fmt"
)

var (
	ErrMissingRoot   = errors.New("book: missing root fragment")
	ErrAmbiguousRoot = errors.New("book: ambiguous root fragment")
)

// StructureError is a fatal problem with the fragment graph. Problems below
// the root are recovered and reported as warnings instead.
type StructureError struct {
	Kind         error
	FragmentType string
	FragmentID   string
	Detail       string
}

func (e *StructureError) Error() string {
	msg := e.Kind.Error()
	if e.FragmentType != "" || e.FragmentID != "" {
		msg += fmt.Sprintf(" (%s:%s)", e.FragmentType, e.FragmentID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *StructureError) Unwrap() error { return e.Kind }
