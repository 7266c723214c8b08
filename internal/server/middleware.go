package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/store"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	sessionKey
)

// Identity returns the authenticated user id stored by the auth middleware.
func Identity(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey).(string)
	return id, ok && id != ""
}

// authenticate resolves the bearer token to a user id.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, schema.CodeUnauthorized, "missing bearer token")
			return
		}
		sess, err := s.db.LookupSession(r.Context(), token)
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusUnauthorized, schema.CodeUnauthorized, "invalid or revoked token")
			return
		}
		if err != nil {
			s.config.Logger.Printf("Session lookup failed: %v", err)
			writeJSONError(w, http.StatusInternalServerError, schema.CodeInternal, "session lookup failed")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, sess.UserID)
		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if len(id) > 8 {
			id = id[:8]
		}
		s.config.Logger.Printf("%s %s %s %d %s", id, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
