package models

import "fmt"

// ParseError reports JSON input that does not have the expected shape.
type ParseError struct {
	Source string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// FieldIssue records a patch field that was present but unusable.
type FieldIssue struct {
	Field  string
	Reason string
}

func (i FieldIssue) String() string { return i.Field + ": " + i.Reason }
