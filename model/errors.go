package model

import "errors"

// Error kinds returned by the workflow. Callers match them with errors.Is;
// messages are wrapped around them with fmt.Errorf("%w: ...").
var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
