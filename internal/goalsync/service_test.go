package goalsync

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/session"
)

func TestService_SessionLifecycle(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(goal(1, "Run", 50), goal(2, "Read", 75))

	sessions := session.New()
	rec := &recorder{}
	svc := New(fc, sessions, WithLogger(quiet), WithNotifier(rec), WithRetryPolicy(fastRetry))
	defer svc.Close()

	time.Sleep(20 * time.Millisecond)
	if st := svc.State(); st.Status != StatusIdle || fc.probes.Load() != 0 {
		t.Fatalf("signed out: status=%s probes=%d, want idle and no fetch", st.Status, fc.probes.Load())
	}

	sessions.SignIn(session.Identity{UserID: "u1", Token: "tok"})
	st := waitFor(t, svc, "ready", isReady)
	if !slices.Equal(ids(st.Goals), []int64{1, 2}) {
		t.Errorf("goals = %v, want [1 2]", ids(st.Goals))
	}
	if st.Stats != (Stats{Total: 2, Completed: 0, Average: 63}) {
		t.Errorf("stats = %+v", st.Stats)
	}
	if st.IsLoading || st.IsReconnecting || st.Err != nil {
		t.Errorf("ready state flags: %+v", st)
	}
	if fc.openSubs() != 1 {
		t.Errorf("open subscriptions = %d, want 1", fc.openSubs())
	}

	sessions.SignOut()
	st = waitFor(t, svc, "idle", func(st State) bool { return st.Status == StatusIdle })
	if len(st.Goals) != 0 {
		t.Errorf("goals after sign-out = %v, want none", ids(st.Goals))
	}
	waitUntil(t, "unsubscribe on sign-out", func() bool { return fc.openSubs() == 0 })

	if err := svc.DeleteGoal(context.Background(), 1); !errors.Is(err, ErrNoSession) {
		t.Errorf("DeleteGoal() signed out = %v, want ErrNoSession", err)
	}
}

func TestService_RetryBound(t *testing.T) {
	var failing atomic.Bool
	fc := &fakeClient{}
	fc.ProbeFunc = func(context.Context) error {
		if failing.Load() {
			return errors.New("service unavailable")
		}
		return nil
	}
	fc.setGoals(goal(1, "Run", 10))

	svc, _, rec := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)

	failing.Store(true)
	before := fc.probes.Load()
	fc.emit(changeEvent(t, schema.EventUpdate, nil, ptr(goal(1, "Run", 20))))

	st := waitFor(t, svc, "failed", func(st State) bool { return st.Status == StatusFailed })
	if st.Err == nil {
		t.Error("failed state should carry the last error")
	}
	if got := fc.probes.Load() - before; got != 6 {
		t.Errorf("fetch attempts = %d, want 6 (1 + 5 retries)", got)
	}
	if n := rec.count(LevelError); n != 1 {
		t.Fatalf("error notices = %d, want exactly 1", n)
	}
	if n := rec.all()[0]; !n.Persistent || n.Title != "Connection error" {
		t.Errorf("notice = %+v, want persistent connection error", n)
	}
	if !slices.Equal(ids(st.Goals), []int64{1}) {
		t.Errorf("goals should survive a failed refetch, got %v", ids(st.Goals))
	}

	// no automatic retries and realtime is ignored after exhaustion
	fc.emit(changeEvent(t, schema.EventUpdate, nil, ptr(goal(1, "Run", 30))))
	time.Sleep(50 * time.Millisecond)
	if got := fc.probes.Load() - before; got != 6 {
		t.Errorf("fetch attempts after failure = %d, want still 6", got)
	}

	failing.Store(false)
	svc.Refresh()
	st = waitFor(t, svc, "ready after refresh", isReady)
	if st.Attempt != 0 || st.Err != nil {
		t.Errorf("after refresh: attempt=%d err=%v", st.Attempt, st.Err)
	}
	if n := rec.count(LevelError); n != 1 {
		t.Errorf("error notices after refresh = %d, want still 1", n)
	}
}

func TestService_RecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	var sawReconnecting atomic.Bool
	fc := &fakeClient{}
	fc.ProbeFunc = func(context.Context) error {
		if calls.Add(1) <= 2 {
			return errors.New("timeout")
		}
		// hold the successful retry until the listener has seen the banner
		deadline := time.Now().Add(time.Second)
		for !sawReconnecting.Load() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return nil
	}
	fc.setGoals(goal(1, "Run", 10))

	svc, _, rec := newTestService(t, fc)
	svc.OnChange(func(st State) {
		if st.IsReconnecting {
			sawReconnecting.Store(true)
		}
	})

	st := waitFor(t, svc, "ready", isReady)
	if st.Attempt != 0 || len(st.Goals) != 1 {
		t.Errorf("state = %+v", st)
	}
	if calls.Load() != 3 {
		t.Errorf("probes = %d, want 3", calls.Load())
	}
	if !sawReconnecting.Load() {
		t.Error("listener never saw the reconnecting state")
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("notices = %d, want none for a recovered fetch", n)
	}
}

func TestService_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	aStarted := make(chan struct{})
	aReturned := make(chan struct{})

	fc := &fakeClient{}
	fc.QueryFunc = func(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error) {
		if f.Eq["folder_id"] == "1" {
			close(aStarted)
			<-release
			defer close(aReturned)
			return mustRows(inFolder(goal(10, "A", 0), 1)), nil
		}
		return mustRows(inFolder(goal(20, "B", 0), 2)), nil
	}

	svc, _, _ := newTestService(t, fc, WithFilters(Filters{FolderID: ptr[int64](1)}))
	defer close(release)

	<-aStarted
	svc.SetFilters(Filters{FolderID: ptr[int64](2)})
	st := waitFor(t, svc, "B loaded", isReady)
	if !slices.Equal(ids(st.Goals), []int64{20}) {
		t.Fatalf("goals = %v, want [20]", ids(st.Goals))
	}

	release <- struct{}{}
	<-aReturned
	time.Sleep(30 * time.Millisecond)

	st = svc.State()
	if !slices.Equal(ids(st.Goals), []int64{20}) {
		t.Errorf("stale response applied: goals = %v, want [20]", ids(st.Goals))
	}
	if st.Filters.FolderID == nil || *st.Filters.FolderID != 2 {
		t.Errorf("filters = %+v", st.Filters)
	}
}

func TestService_RealtimeInvalidation(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(inFolder(goal(1, "Run", 10), 1))

	svc, _, _ := newTestService(t, fc, WithFilters(Filters{FolderID: ptr[int64](1)}))
	waitFor(t, svc, "ready", isReady)

	tests := []struct {
		name    string
		ev      func() schema.ChangeEvent
		refetch bool
	}{
		{
			name: "other user",
			ev: func() schema.ChangeEvent {
				g := inFolder(goal(9, "Theirs", 0), 1)
				g.UserID = "u2"
				return changeEvent(t, schema.EventInsert, nil, &g)
			},
		},
		{
			name: "other folder",
			ev: func() schema.ChangeEvent {
				return changeEvent(t, schema.EventInsert, nil, ptr(inFolder(goal(8, "Elsewhere", 0), 2)))
			},
		},
		{
			name: "moved out of folder",
			ev: func() schema.ChangeEvent {
				return changeEvent(t, schema.EventUpdate, ptr(inFolder(goal(1, "Run", 10), 1)), ptr(inFolder(goal(1, "Run", 10), 2)))
			},
			refetch: true,
		},
		{
			name: "insert in folder",
			ev: func() schema.ChangeEvent {
				return changeEvent(t, schema.EventInsert, nil, ptr(inFolder(goal(2, "Swim", 0), 1)))
			},
			refetch: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fc.queries.Load()
			fc.emit(tt.ev())
			if tt.refetch {
				waitUntil(t, "refetch", func() bool { return fc.queries.Load() > before })
				waitFor(t, svc, "ready", isReady)
				return
			}
			time.Sleep(30 * time.Millisecond)
			if got := fc.queries.Load(); got != before {
				t.Errorf("queries = %d, want %d (no refetch)", got, before)
			}
		})
	}

	fc.setGoals(inFolder(goal(1, "Run", 10), 1), inFolder(goal(2, "Swim", 0), 1))
	fc.emit(changeEvent(t, schema.EventInsert, nil, ptr(inFolder(goal(2, "Swim", 0), 1))))
	waitFor(t, svc, "new goal visible", func(st State) bool {
		return st.Status == StatusReady && slices.Equal(ids(st.Goals), []int64{1, 2})
	})
}

func TestService_ResubscribesAfterDrop(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(goal(1, "Run", 10))
	svc, _, _ := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)

	fc.mu.Lock()
	first := fc.subs[0]
	fc.mu.Unlock()
	first.drop()

	waitUntil(t, "resubscribe", func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.subs) == 2
	})
	waitFor(t, svc, "ready", isReady)
	if fc.openSubs() != 1 {
		t.Errorf("open subscriptions = %d, want 1", fc.openSubs())
	}
}

func TestService_FilterChangeResubscribes(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(goal(1, "Run", 10))
	svc, _, _ := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)

	svc.SetFilters(Filters{Search: "run"})
	waitUntil(t, "resubscribe", func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.subs) == 2
	})
	waitFor(t, svc, "ready", isReady)
	if fc.openSubs() != 1 {
		t.Errorf("open subscriptions = %d, want 1", fc.openSubs())
	}

	// same scope again is a no-op
	queries := fc.queries.Load()
	svc.SetFilters(Filters{Search: " run "})
	time.Sleep(30 * time.Millisecond)
	if fc.queries.Load() != queries {
		t.Error("equal filters should not refetch")
	}
}

func TestService_SubscribeFailureDoesNotFailFetch(t *testing.T) {
	fc := &fakeClient{}
	fc.SubscribeFunc = func(context.Context, string, remote.EventFilter) error {
		return errors.New("websocket refused")
	}
	fc.setGoals(goal(1, "Run", 10))
	svc, _, _ := newTestService(t, fc)
	st := waitFor(t, svc, "ready", isReady)
	if len(st.Goals) != 1 {
		t.Errorf("goals = %v", ids(st.Goals))
	}
}

func TestService_NoUpdatesAfterClose(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(goal(7, "Run", 10))

	sessions := session.New()
	sessions.SignIn(session.Identity{UserID: "u1", Token: "tok"})
	svc := New(fc, sessions, WithLogger(quiet), WithNotifier(&recorder{}), WithRetryPolicy(fastRetry))

	var calls atomic.Int32
	svc.OnChange(func(State) { calls.Add(1) })
	waitFor(t, svc, "ready", isReady)

	if err := svc.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if fc.openSubs() != 0 {
		t.Errorf("open subscriptions after Close = %d, want 0", fc.openSubs())
	}

	after := calls.Load()
	queries := fc.queries.Load()
	fc.emit(changeEvent(t, schema.EventUpdate, nil, ptr(goal(7, "Run", 90))))
	sessions.SignOut()
	svc.Refresh()
	time.Sleep(30 * time.Millisecond)

	if calls.Load() != after {
		t.Errorf("listener called %d times after Close", calls.Load()-after)
	}
	if fc.queries.Load() != queries {
		t.Error("fetch ran after Close")
	}
	if err := svc.DeleteGoal(context.Background(), 7); !errors.Is(err, ErrClosed) {
		t.Errorf("DeleteGoal() after Close = %v, want ErrClosed", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestFilters(t *testing.T) {
	one := int64(1)
	tests := []struct {
		name  string
		f     Filters
		g     schema.Goal
		match bool
	}{
		{"all", Filters{}, goal(1, "Run", 0), true},
		{"folder hit", Filters{FolderID: &one}, inFolder(goal(1, "Run", 0), 1), true},
		{"folder miss", Filters{FolderID: &one}, goal(1, "Run", 0), false},
		{"unorganized", Filters{Unorganized: true}, goal(1, "Run", 0), true},
		{"unorganized miss", Filters{Unorganized: true}, inFolder(goal(1, "Run", 0), 1), false},
		{"search title", Filters{Search: "RUN"}, goal(1, "Run 5k", 0), true},
		{"search description", Filters{Search: "park"}, schema.Goal{Title: "Run", Description: "in the Park"}, true},
		{"search miss", Filters{Search: "swim"}, goal(1, "Run", 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(tt.g); got != tt.match {
				t.Errorf("Matches() = %v, want %v", got, tt.match)
			}
		})
	}

	q := Filters{FolderID: &one, Search: " run "}.Query()
	if q.Eq["folder_id"] != "1" || q.Search != "run" {
		t.Errorf("Query() = %+v", q)
	}
	if q := (Filters{Unorganized: true}).Query(); !slices.Equal(q.Null, []string{"folder_id"}) {
		t.Errorf("unorganized Query() = %+v", q)
	}
}
