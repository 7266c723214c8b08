package goalsync

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

func TestWatchGoal(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(goal(7, "Run", 10))
	fc.QueryFunc = func(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error) {
		if f.Eq["id"] != "7" {
			return nil, nil
		}
		return mustRows(goal(7, "Run", 10)), nil
	}

	var mu sync.Mutex
	var seen []schema.Goal
	var gone bool
	w, err := WatchGoal(context.Background(), fc, "u1", 7, func(g schema.Goal, deleted bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, g)
		gone = deleted
	})
	if err != nil {
		t.Fatalf("WatchGoal() failed: %v", err)
	}
	if g, deleted := w.Goal(); g.Progress != 10 || deleted {
		t.Fatalf("initial = %+v deleted=%v", g, deleted)
	}

	// other goals and other users are filtered out
	fc.emit(changeEvent(t, schema.EventUpdate, nil, ptr(goal(8, "Other", 99))))
	theirs := goal(7, "Run", 0)
	theirs.UserID = "u2"
	fc.emit(changeEvent(t, schema.EventUpdate, nil, &theirs))

	fc.emit(changeEvent(t, schema.EventUpdate, ptr(goal(7, "Run", 10)), ptr(goal(7, "Run", 55))))
	if g, _ := w.Goal(); g.Progress != 55 {
		t.Errorf("after update progress = %d, want 55", g.Progress)
	}

	fc.emit(changeEvent(t, schema.EventDelete, ptr(goal(7, "Run", 55)), nil))
	if _, deleted := w.Goal(); !deleted {
		t.Error("expected deleted after DELETE event")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	fc.emit(changeEvent(t, schema.EventUpdate, nil, ptr(goal(7, "Run", 80))))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || !gone {
		t.Errorf("callbacks = %d (deleted=%v), want 2 ending in delete", len(seen), gone)
	}
}

func TestWatchGoal_NotFound(t *testing.T) {
	fc := &fakeClient{}
	fc.QueryFunc = func(context.Context, string, schema.Filter) ([]json.RawMessage, error) {
		return nil, nil
	}
	if _, err := WatchGoal(context.Background(), fc, "u1", 404, nil); err == nil {
		t.Fatal("expected error for a missing goal")
	}
	if fc.openSubs() != 0 {
		t.Error("subscription leaked on failure")
	}
}

func TestShareGoal_NotificationIsBestEffort(t *testing.T) {
	fc := &fakeClient{}
	fc.setGoals(goal(7, "Run", 10))
	var tables []string
	fc.InsertFunc = func(ctx context.Context, table string, rows any) ([]json.RawMessage, error) {
		tables = append(tables, table)
		if table == schema.TableNotifications {
			n := rows.(schema.NotificationInput)
			if n.UserID != "u2" || n.Type != schema.NotificationGoalShared || !strings.Contains(n.Message, `"Run"`) {
				t.Errorf("notification = %+v", n)
			}
			return nil, errors.New("notifications unavailable")
		}
		return mustRows(schema.Share{ID: 1, GoalID: 7, UserID: "u1", RecipientID: "u2"}), nil
	}
	svc, _, rec := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)

	if err := svc.ShareGoal(context.Background(), 7, "u2"); err != nil {
		t.Fatalf("ShareGoal() = %v, want success despite notification failure", err)
	}
	if len(tables) != 2 || tables[0] != schema.TableShares {
		t.Errorf("inserts = %v", tables)
	}
	if rec.count(LevelSuccess) != 1 || rec.count(LevelError) != 0 {
		t.Errorf("notices = %+v", rec.all())
	}
}

func TestShareGoal_Conflict(t *testing.T) {
	fc := &fakeClient{}
	fc.InsertFunc = func(ctx context.Context, table string, rows any) ([]json.RawMessage, error) {
		return nil, &remote.Error{Status: 409, Code: schema.CodeConflict, Message: "already shared"}
	}
	svc, _, rec := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)

	err := svc.ShareGoal(context.Background(), 7, "u2")
	var merr *MutationError
	if !errors.As(err, &merr) || merr.Op != "Share goal" {
		t.Fatalf("ShareGoal() = %v", err)
	}
	if rec.count(LevelError) != 1 {
		t.Errorf("notices = %+v", rec.all())
	}
	if err := svc.ShareGoal(context.Background(), 7, " "); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("blank recipient = %v, want ErrValidation", err)
	}
}

func TestFolders(t *testing.T) {
	fc := &fakeClient{}
	fc.QueryFunc = func(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error) {
		if table == schema.TableFolders {
			return mustRows(schema.Folder{ID: ptr[int64](4), UserID: "u1", Name: "Health"}), nil
		}
		return nil, nil
	}
	var deleted schema.Filter
	fc.DeleteFunc = func(ctx context.Context, table string, f schema.Filter) error {
		deleted = f
		return nil
	}
	svc, _, _ := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)
	ctx := context.Background()

	folders, err := svc.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders() failed: %v", err)
	}
	if len(folders) != 2 || !folders[0].IsUnorganized() || folders[1].Name != "Health" {
		t.Errorf("folders = %+v", folders)
	}

	if err := svc.DeleteFolder(ctx, nil); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("deleting unorganized = %v, want ErrValidation", err)
	}
	if err := svc.DeleteFolder(ctx, ptr[int64](4)); err != nil {
		t.Fatalf("DeleteFolder() failed: %v", err)
	}
	if deleted.Eq["id"] != "4" {
		t.Errorf("delete filter = %+v", deleted)
	}
	if _, err := svc.CreateFolder(ctx, schema.FolderInput{Name: "  "}); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("blank folder = %v, want ErrValidation", err)
	}
}

func TestToggleSubgoal(t *testing.T) {
	fc := &fakeClient{}
	var patch schema.SubgoalPatch
	fc.UpdateFunc = func(ctx context.Context, table string, p any, f schema.Filter) ([]json.RawMessage, error) {
		patch = p.(schema.SubgoalPatch)
		return mustRows(schema.Subgoal{ID: 3, GoalID: 7, Title: "Stretch", Completed: *patch.Completed}), nil
	}
	svc, _, _ := newTestService(t, fc)
	waitFor(t, svc, "ready", isReady)

	sub, err := svc.ToggleSubgoal(context.Background(), schema.Subgoal{ID: 3, GoalID: 7, Title: "Stretch"})
	if err != nil {
		t.Fatalf("ToggleSubgoal() failed: %v", err)
	}
	if !sub.Completed || patch.Completed == nil || !*patch.Completed {
		t.Errorf("subgoal = %+v", sub)
	}
	if _, err := svc.AddSubgoal(context.Background(), schema.SubgoalInput{GoalID: 7}); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("untitled subgoal = %v, want ErrValidation", err)
	}
}

func TestNotifierDefaultsToLogger(t *testing.T) {
	var buf strings.Builder
	var mu sync.Mutex
	logger := log.New(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}), "", 0)

	fc := &fakeClient{}
	svc := New(fc, newSignedIn(), WithLogger(logger), WithRetryPolicy(fastRetry))
	defer svc.Close()
	waitFor(t, svc, "ready", isReady)

	svc.CheckForDuplicates()
	time.Sleep(5 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "info: No duplicates") {
		t.Errorf("log = %q", buf.String())
	}
}
