package schema

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every validation failure in this package.
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Error codes carried in {"code","message"} response bodies.
const (
	CodeValidation       = "validation_failed"
	CodeBadFilter        = "bad_filter"
	CodeNotFound         = "not_found"
	CodeUnknownTable     = "unknown_table"
	CodeConflict         = "conflict"
	CodeProgressDerived  = "progress_derived"
	CodeForbidden        = "forbidden"
	CodeUnauthorized     = "unauthorized"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal"
)
