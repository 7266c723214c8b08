package goalsync

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/retry"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/session"
)

var quiet = log.New(io.Discard, "", 0)

// fakeClient is a remote.Client whose behavior is set per test. Nil funcs
// fall back to serving goals from the goals field.
type fakeClient struct {
	ProbeFunc     func(ctx context.Context) error
	QueryFunc     func(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error)
	InsertFunc    func(ctx context.Context, table string, rows any) ([]json.RawMessage, error)
	UpdateFunc    func(ctx context.Context, table string, patch any, f schema.Filter) ([]json.RawMessage, error)
	DeleteFunc    func(ctx context.Context, table string, f schema.Filter) error
	SubscribeFunc func(ctx context.Context, table string, filter remote.EventFilter) error

	probes  atomic.Int32
	queries atomic.Int32

	mu    sync.Mutex
	goals []schema.Goal
	subs  []*fakeSub
}

var _ remote.Client = (*fakeClient)(nil)

func (c *fakeClient) setGoals(goals ...schema.Goal) {
	c.mu.Lock()
	c.goals = goals
	c.mu.Unlock()
}

func (c *fakeClient) Probe(ctx context.Context) error {
	c.probes.Add(1)
	if c.ProbeFunc != nil {
		return c.ProbeFunc(ctx)
	}
	return nil
}

func (c *fakeClient) Query(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error) {
	c.queries.Add(1)
	if c.QueryFunc != nil {
		return c.QueryFunc(ctx, table, f)
	}
	if table != schema.TableGoals {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return mustRows(c.goals...), nil
}

func (c *fakeClient) Insert(ctx context.Context, table string, rows any) ([]json.RawMessage, error) {
	if c.InsertFunc != nil {
		return c.InsertFunc(ctx, table, rows)
	}
	return nil, nil
}

func (c *fakeClient) Update(ctx context.Context, table string, patch any, f schema.Filter) ([]json.RawMessage, error) {
	if c.UpdateFunc != nil {
		return c.UpdateFunc(ctx, table, patch, f)
	}
	return []json.RawMessage{json.RawMessage(`{}`)}, nil
}

func (c *fakeClient) Delete(ctx context.Context, table string, f schema.Filter) error {
	if c.DeleteFunc != nil {
		return c.DeleteFunc(ctx, table, f)
	}
	return nil
}

func (c *fakeClient) Subscribe(ctx context.Context, table string, filter remote.EventFilter, fn func(schema.ChangeEvent)) (remote.Subscription, error) {
	if c.SubscribeFunc != nil {
		if err := c.SubscribeFunc(ctx, table, filter); err != nil {
			return nil, err
		}
	}
	s := &fakeSub{filter: filter, fn: fn, done: make(chan struct{})}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s, nil
}

// emit delivers ev to every open subscription whose row filter matches.
func (c *fakeClient) emit(ev schema.ChangeEvent) {
	c.mu.Lock()
	subs := slices.Clone(c.subs)
	c.mu.Unlock()
	for _, s := range subs {
		if s.filter.Row.Matches(ev) && s.filter.Event.Matches(ev.Event) {
			s.deliver(ev)
		}
	}
}

func (c *fakeClient) openSubs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.subs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

type fakeSub struct {
	filter remote.EventFilter
	fn     func(schema.ChangeEvent)
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) deliver(ev schema.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.fn(ev)
	}
}

// drop simulates the connection going away.
func (s *fakeSub) drop() {
	s.Close()
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *fakeSub) Done() <-chan struct{} { return s.done }

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// recorder collects notices.
type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Level == level {
			n++
		}
	}
	return n
}

func (r *recorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notices)
}

var fastRetry = retry.Policy{BaseDelay: time.Millisecond, MaxRetries: 5}

// newTestService signs in "u1" and starts a service over client.
func newTestService(t *testing.T, client remote.Client, opts ...Option) (*Service, *session.Store, *recorder) {
	t.Helper()
	sessions := session.New()
	sessions.SignIn(session.Identity{UserID: "u1", Email: "u1@example.com", Token: "tok"})
	rec := &recorder{}
	opts = append([]Option{WithLogger(quiet), WithNotifier(rec), WithRetryPolicy(fastRetry)}, opts...)
	svc := New(client, sessions, opts...)
	t.Cleanup(func() { svc.Close() })
	return svc, sessions, rec
}

// waitFor polls the service state until cond holds.
func waitFor(t *testing.T, svc *Service, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := svc.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state: status=%s goals=%v err=%v", what, st.Status, ids(st.Goals), st.Err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func isReady(st State) bool { return st.Status == StatusReady }

func goal(id int64, title string, progress int) schema.Goal {
	return schema.Goal{ID: id, UserID: "u1", Title: title, Progress: progress, Tags: []string{}}
}

func inFolder(g schema.Goal, folderID int64) schema.Goal {
	g.FolderID = &folderID
	return g
}

func ids(goals []schema.Goal) []int64 {
	out := make([]int64, len(goals))
	for i, g := range goals {
		out[i] = g.ID
	}
	return out
}

func mustRows[T any](vs ...T) []json.RawMessage {
	out := make([]json.RawMessage, len(vs))
	for i, v := range vs {
		data, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		out[i] = data
	}
	return out
}

func changeEvent(t *testing.T, typ schema.EventType, old, new *schema.Goal) schema.ChangeEvent {
	t.Helper()
	var o, n any
	owner := ""
	if old != nil {
		o, owner = *old, old.UserID
	}
	if new != nil {
		n, owner = *new, new.UserID
	}
	ev, err := schema.NewChangeEvent(typ, schema.TableGoals, o, n, owner)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func ptr[T any](v T) *T { return &v }

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func newSignedIn() *session.Store {
	s := session.New()
	s.SignIn(session.Identity{UserID: "u1", Token: "tok"})
	return s
}
