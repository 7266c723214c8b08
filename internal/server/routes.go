package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// RegisterRoutes sets up all routes for the server.
func RegisterRoutes(router *mux.Router, s *Server) {
	router.Use(s.requestLogger)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/rest/v1/{table}", s.handleSelect).Methods(http.MethodGet)
	api.HandleFunc("/rest/v1/{table}", s.handleInsert).Methods(http.MethodPost)
	api.HandleFunc("/rest/v1/{table}", s.handleUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/rest/v1/{table}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/realtime/v1", s.handleRealtime).Methods(http.MethodGet)
	api.HandleFunc("/auth/v1/user", s.handleUser).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, schema.CodeMethodNotAllowed, r.Method+" not allowed")
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, schema.CodeNotFound, r.URL.Path+" not found")
	})
}
