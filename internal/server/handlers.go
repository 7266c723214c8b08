package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mschirtzinger/goalkeeper/internal/realtime"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/store"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	}
	if meta, err := s.db.Meta(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["error"] = err.Error()
	} else {
		body["schema_version"] = meta.SchemaVersion
	}
	writeJSON(w, status, body)
}

// handleUser handles GET /auth/v1/user.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	sess, _ := r.Context().Value(sessionKey).(store.Session)
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.UserID, "email": sess.Email})
}

// handleSelect handles GET /rest/v1/{table}.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	identity, _ := Identity(r.Context())
	f, err := schema.ParseFilter(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeBadFilter, err.Error())
		return
	}
	rows, err := s.db.Select(r.Context(), identity, mux.Vars(r)["table"], f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleInsert handles POST /rest/v1/{table}.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	identity, _ := Identity(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeValidation, "failed to read request body")
		return
	}
	rows, events, err := s.db.Insert(r.Context(), identity, mux.Vars(r)["table"], body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Publish(events...)
	writeJSON(w, http.StatusCreated, rows)
}

// handleUpdate handles PATCH /rest/v1/{table}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	identity, _ := Identity(r.Context())
	f, err := schema.ParseFilter(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeBadFilter, err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeValidation, "failed to read request body")
		return
	}
	rows, events, err := s.db.Update(r.Context(), identity, mux.Vars(r)["table"], body, f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Publish(events...)
	writeJSON(w, http.StatusOK, rows)
}

// handleDelete handles DELETE /rest/v1/{table}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity, _ := Identity(r.Context())
	f, err := schema.ParseFilter(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeBadFilter, err.Error())
		return
	}
	rows, events, err := s.db.Delete(r.Context(), identity, mux.Vars(r)["table"], f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Publish(events...)
	writeJSON(w, http.StatusOK, rows)
}

// handleRealtime handles GET /realtime/v1?table=&event=&filter=.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	identity, _ := Identity(r.Context())
	q := r.URL.Query()

	table := q.Get("table")
	if !knownTable(table) {
		writeJSONError(w, http.StatusNotFound, schema.CodeUnknownTable, "unknown table "+table)
		return
	}
	event, err := schema.ParseEventType(q.Get("event"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeBadFilter, err.Error())
		return
	}
	rf, err := schema.ParseRowFilter(q.Get("filter"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, schema.CodeBadFilter, err.Error())
		return
	}

	s.hub.Serve(w, r, realtime.Subscription{
		Identity: identity,
		Table:    table,
		Event:    event,
		Filter:   rf,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
