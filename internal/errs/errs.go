// Package errs holds the error taxonomy shared by the graph model, the
// artifact store and the run registry. Callers wrap these with context and
// test for them with errors.Is.
package errs

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidPath             = errors.New("invalid path")
	ErrDuplicateState          = errors.New("duplicate state")
	ErrInvalidName             = errors.New("invalid name")
	ErrInvalidTransitionTarget = errors.New("invalid transition target")
	ErrCannotDeleteInitial     = errors.New("cannot delete initial state")
	ErrMalformedDocument       = errors.New("malformed document")
	ErrInvalidField            = errors.New("invalid field")
)
