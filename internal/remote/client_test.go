package remote

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/realtime"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/server"
	"github.com/mschirtzinger/goalkeeper/internal/session"
	"github.com/mschirtzinger/goalkeeper/internal/store"
	"golang.org/x/oauth2"
)

var quiet = log.New(io.Discard, "", 0)

// newBackend starts a real server over a temp database and returns its URL
// and a token for user "alice".
func newBackend(t *testing.T) (string, string) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	s := server.New(db, &server.Config{Logger: quiet, Hub: &realtime.Config{Logger: quiet}})
	s.Hub().Start()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Stop()
		srv.Close()
		db.Close()
	})

	sess, err := db.CreateSession(context.Background(), "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return srv.URL, sess.Token
}

func newClient(t *testing.T, url string, tokens oauth2.TokenSource) *HTTPClient {
	t.Helper()
	c, err := New(&Config{BaseURL: url, Tokens: tokens, Logger: quiet})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"})
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"no tokens", &Config{BaseURL: "http://localhost"}},
		{"no url", &Config{Tokens: tokens}},
		{"relative url", &Config{BaseURL: "localhost:8787", Tokens: tokens}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPClient_CRUD(t *testing.T) {
	url, token := newBackend(t)
	c := newClient(t, url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	ctx := context.Background()

	if err := c.Probe(ctx); err != nil {
		t.Fatalf("Probe() failed: %v", err)
	}

	rows, err := c.Insert(ctx, schema.TableGoals, []schema.GoalInput{
		{Title: "Run 5k", Progress: 20},
		{Title: "Read", Progress: 100},
	})
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	goals, err := Decode[schema.Goal](rows)
	if err != nil || len(goals) != 2 {
		t.Fatalf("Decode() = %v, %v", goals, err)
	}

	rows, err = c.Query(ctx, schema.TableGoals, schema.Filter{}.Matching("run"))
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Query() returned %d rows, want 1", len(rows))
	}

	rows, err = c.Update(ctx, schema.TableGoals, schema.GoalPatch{Progress: ptr(60)}, schema.ByID(goals[0].ID))
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	updated, err := DecodeOne[schema.Goal](rows)
	if err != nil || updated.Progress != 60 {
		t.Fatalf("DecodeOne() = %+v, %v", updated, err)
	}

	ids := []int64{goals[0].ID, goals[1].ID}
	if err := c.Delete(ctx, schema.TableGoals, schema.ByIDs(ids)); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	rows, _ = c.Query(ctx, schema.TableGoals, schema.Filter{})
	if len(rows) != 0 {
		t.Errorf("expected no goals after delete, got %d", len(rows))
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	url, token := newBackend(t)
	ctx := context.Background()

	c := newClient(t, url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	_, err := c.Insert(ctx, schema.TableGoals, schema.GoalInput{Title: ""})
	if !errors.Is(err, schema.ErrValidation) {
		t.Errorf("empty title: got %v, want ErrValidation", err)
	}
	if code, _, ok := CodeOf(err); !ok || code != schema.CodeValidation {
		t.Errorf("CodeOf() = %q, %v", code, ok)
	}

	bad := newClient(t, url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "bogus"}))
	if _, err := bad.Query(ctx, schema.TableGoals, schema.Filter{}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("bad token: got %v, want ErrUnauthorized", err)
	}
	_, err = bad.Subscribe(ctx, schema.TableGoals, EventFilter{}, func(schema.ChangeEvent) {})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("bad token subscribe: got %v, want ErrUnauthorized", err)
	}
}

func TestHTTPClient_SessionTokens(t *testing.T) {
	url, token := newBackend(t)
	sessions := session.New()
	c := newClient(t, url, sessions)
	ctx := context.Background()

	if _, err := c.Query(ctx, schema.TableGoals, schema.Filter{}); err == nil {
		t.Fatal("expected error while signed out")
	}
	sessions.SignIn(session.Identity{UserID: "alice", Token: token})
	if _, err := c.Query(ctx, schema.TableGoals, schema.Filter{}); err != nil {
		t.Fatalf("Query() after sign-in failed: %v", err)
	}
	sessions.SignOut()
	if _, err := c.Query(ctx, schema.TableGoals, schema.Filter{}); err == nil {
		t.Error("expected error after sign-out")
	}
}

func TestHTTPClient_User(t *testing.T) {
	url, token := newBackend(t)
	ctx := context.Background()

	c := newClient(t, url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	u, err := c.User(ctx)
	if err != nil {
		t.Fatalf("User() failed: %v", err)
	}
	if u.ID != "alice" || u.Email != "alice@example.com" {
		t.Errorf("User() = %+v", u)
	}

	bad := newClient(t, url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "nope"}))
	if _, err := bad.User(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("User() with bad token = %v, want ErrUnauthorized", err)
	}
}

func TestProbe_SchemaVersion(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr error
	}{
		{"compatible", `[{"id":1,"name":"goalkeeper","schema_version":"v1.9.3"}]`, http.StatusOK, nil},
		{"major bump", `[{"id":1,"name":"goalkeeper","schema_version":"v2.0.0"}]`, http.StatusOK, ErrIncompatible},
		{"not semver", `[{"id":1,"name":"goalkeeper","schema_version":"1.2"}]`, http.StatusOK, ErrIncompatible},
		{"empty", `[]`, http.StatusOK, ErrIncompatible},
		{"down", `{"code":"internal","message":"boom"}`, http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/rest/v1/app_meta" || r.URL.Query().Get("limit") != "1" {
					t.Errorf("unexpected probe request %s", r.URL)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := newClient(t, srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"}))
			err := c.Probe(context.Background())
			switch {
			case tt.status != http.StatusOK:
				var re *Error
				if !errors.As(err, &re) || re.Status != tt.status || re.Code != "internal" {
					t.Errorf("Probe() = %v, want remote error %d", err, tt.status)
				}
			case tt.wantErr == nil && err != nil:
				t.Errorf("Probe() failed: %v", err)
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("Probe() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	url, token := newBackend(t)
	c := newClient(t, url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan schema.ChangeEvent, 10)
	sub, err := c.Subscribe(ctx, schema.TableGoals, EventFilter{Event: schema.EventInsert}, func(ev schema.ChangeEvent) {
		events <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if _, err := c.Insert(ctx, schema.TableGoals, schema.GoalInput{Title: "Swim"}); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Event != schema.EventInsert || ev.Table != schema.TableGoals || !ev.OwnedBy("alice") {
			t.Errorf("event = %+v", ev)
		}
		g, err := schema.DecodeRow[schema.Goal](ev.New)
		if err != nil || g.Title != "Swim" {
			t.Errorf("new row = %+v, %v", g, err)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	select {
	case <-sub.Done():
	default:
		t.Error("Done() should be closed after Close()")
	}

	if _, err := c.Insert(ctx, schema.TableGoals, schema.GoalInput{Title: "Bike"}); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	select {
	case ev := <-events:
		t.Errorf("callback ran after Close: %+v", ev)
	default:
	}
}

func ptr[T any](v T) *T { return &v }
