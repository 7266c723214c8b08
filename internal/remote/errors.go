package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

var (
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIncompatible is returned by Probe when the backend schema major
	// version differs from the one this client was built against.
	ErrIncompatible = errors.New("incompatible backend schema")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Is lets callers match remote failures against the shared sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case schema.ErrValidation:
		return e.Code == schema.CodeValidation
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// CodeOf returns the backend error code carried by err, if any.
func CodeOf(err error) (code, message string, ok bool) {
	var re *Error
	if !errors.As(err, &re) {
		return "", "", false
	}
	return re.Code, re.Message, true
}
