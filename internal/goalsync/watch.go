package goalsync

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// GoalWatch follows a single goal for a detail view. Unlike the list view
// it patches its copy directly from each change event's new row.
type GoalWatch struct {
	sub remote.Subscription

	mu      sync.Mutex
	goal    schema.Goal
	deleted bool
	stopped bool
}

// WatchGoal loads goal id and keeps it current. fn, if non-nil, runs after
// every applied change with the new copy; deleted is true once the goal is
// gone. fn runs on the subscription goroutine and must not call Close.
func WatchGoal(ctx context.Context, client remote.Client, userID string, id int64, fn func(g schema.Goal, deleted bool)) (*GoalWatch, error) {
	w := &GoalWatch{}
	filter := remote.EventFilter{
		Event: schema.EventAll,
		Row:   schema.RowFilter{Column: "id", Value: strconv.FormatInt(id, 10)},
	}

	// subscribe first so no change between the read and the feed is lost;
	// events wait for the initial read
	loaded := make(chan struct{})
	sub, err := client.Subscribe(ctx, schema.TableGoals, filter, func(ev schema.ChangeEvent) {
		<-loaded
		if !ev.OwnedBy(userID) {
			return
		}
		g, deleted, ok := w.applyEvent(ev)
		if ok && fn != nil {
			fn(g, deleted)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch goal %d: %w", id, err)
	}
	w.sub = sub

	rows, err := client.Query(ctx, schema.TableGoals, schema.ByID(id))
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("goal %d not found", id)
	}
	var g schema.Goal
	if err == nil {
		g, err = remote.DecodeOne[schema.Goal](rows)
	}

	w.mu.Lock()
	w.goal = g
	w.stopped = err != nil
	w.mu.Unlock()
	close(loaded)

	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to load goal %d: %w", id, err)
	}
	return w, nil
}

func (w *GoalWatch) applyEvent(ev schema.ChangeEvent) (schema.Goal, bool, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deleted || w.stopped {
		return schema.Goal{}, w.deleted, false
	}
	switch ev.Event {
	case schema.EventDelete:
		w.deleted = true
	case schema.EventInsert, schema.EventUpdate:
		g, err := schema.DecodeRow[schema.Goal](ev.New)
		if err != nil {
			return schema.Goal{}, false, false
		}
		w.goal = g
	default:
		return schema.Goal{}, false, false
	}
	return w.goal.Clone(), w.deleted, true
}

// Goal returns the current copy and whether the goal has been deleted.
func (w *GoalWatch) Goal() (schema.Goal, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.goal.Clone(), w.deleted
}

// Done is closed when the underlying feed ends.
func (w *GoalWatch) Done() <-chan struct{} {
	return w.sub.Done()
}

// Close stops the watch. fn is not called after Close returns.
func (w *GoalWatch) Close() error {
	return w.sub.Close()
}
