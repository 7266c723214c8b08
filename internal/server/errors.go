package server

import (
	"errors"
	"net/http"
	"slices"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/store"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{schema.ErrValidation, http.StatusBadRequest, schema.CodeValidation},
	{store.ErrBadFilter, http.StatusBadRequest, schema.CodeBadFilter},
	{store.ErrUnknownTable, http.StatusNotFound, schema.CodeUnknownTable},
	{store.ErrNotFound, http.StatusNotFound, schema.CodeNotFound},
	{store.ErrConflict, http.StatusConflict, schema.CodeConflict},
	{store.ErrProgressDerived, http.StatusConflict, schema.CodeProgressDerived},
	{store.ErrForbidden, http.StatusForbidden, schema.CodeForbidden},
}

// writeError maps store and schema errors to status codes. Anything else
// is logged and reported as an internal error.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeJSONError(w, e.status, e.code, err.Error())
			return
		}
	}
	s.config.Logger.Printf("Internal error: %v", err)
	writeJSONError(w, http.StatusInternalServerError, schema.CodeInternal, "internal error")
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Code: code, Message: message})
}

func knownTable(name string) bool {
	return slices.Contains(store.Tables, name)
}
