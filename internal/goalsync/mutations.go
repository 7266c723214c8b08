package goalsync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// MutationError names the user action that failed remotely. The local
// change has already been rolled back when it is returned.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	if code, msg, ok := remote.CodeOf(e.Err); ok && code != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Op, msg, code)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// notApplied lists ids the backend left unchanged, because they were
// deleted remotely or are not the caller's. Only these roll back.
type notApplied struct {
	ids []int64
}

func (e *notApplied) Error() string {
	return fmt.Sprintf("%d of the goals no longer exist: %v", len(e.ids), e.ids)
}

// checkApplied returns a *notApplied for every id missing from rows.
func checkApplied(ids []int64, rows []schema.Goal) error {
	done := make(map[int64]bool, len(rows))
	for _, g := range rows {
		done[g.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !done[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &notApplied{ids: missing}
}

// saved is a goal as it was before an optimistic change, with its position.
type saved struct {
	goal  schema.Goal
	index int
}

// performOptimistic applies change to the cached goals, publishes, and runs
// call. If call fails, every goal in ids is restored to its prior value and
// position, the failure is reported once, and a *MutationError is returned.
// A *notApplied error restores only the ids it names. Failed calls are never
// retried.
func (s *Service) performOptimistic(ctx context.Context, op string, ids []int64, change func([]schema.Goal) []schema.Goal, call func(context.Context) error) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.mu.Lock()
	before := make(map[int64]saved, len(ids))
	for i, g := range s.goals {
		if slices.Contains(ids, g.ID) {
			before[g.ID] = saved{goal: g.Clone(), index: i}
		}
	}
	s.goals = change(slices.Clone(s.goals))
	s.publishLocked()
	s.mu.Unlock()

	err := call(ctx)
	if err == nil {
		return nil
	}

	var partial *notApplied
	if errors.As(err, &partial) {
		kept := make(map[int64]saved, len(partial.ids))
		for _, id := range partial.ids {
			if b, ok := before[id]; ok {
				kept[id] = b
			}
		}
		before = kept
	}

	s.mu.Lock()
	s.goals = restore(s.goals, before)
	s.publishLocked()
	s.mu.Unlock()

	return s.failed(op, err)
}

// failed reports a remote mutation failure once and wraps it.
func (s *Service) failed(op string, err error) error {
	merr := &MutationError{Op: op, Err: err}
	s.logger.Printf("%v", merr)
	s.notifier.Notify(Notice{Level: LevelError, Title: op + " failed", Message: merr.Error()})
	return merr
}

// restore puts saved goals back. Goals still present are replaced in place;
// removed ones are reinserted at their old index, lowest first.
func restore(goals []schema.Goal, before map[int64]saved) []schema.Goal {
	out := slices.Clone(goals)
	present := make(map[int64]bool, len(before))
	for i, g := range out {
		if b, ok := before[g.ID]; ok {
			out[i] = b.goal
			present[g.ID] = true
		}
	}

	var missing []saved
	for id, b := range before {
		if !present[id] {
			missing = append(missing, b)
		}
	}
	slices.SortFunc(missing, func(a, b saved) int { return a.index - b.index })
	for _, b := range missing {
		out = slices.Insert(out, min(b.index, len(out)), b.goal)
	}
	return out
}

func withoutIDs(ids []int64) func([]schema.Goal) []schema.Goal {
	return func(goals []schema.Goal) []schema.Goal {
		return slices.DeleteFunc(goals, func(g schema.Goal) bool {
			return slices.Contains(ids, g.ID)
		})
	}
}

func patchIDs(ids []int64, patch schema.GoalPatch) func([]schema.Goal) []schema.Goal {
	return func(goals []schema.Goal) []schema.Goal {
		for i, g := range goals {
			if slices.Contains(ids, g.ID) {
				goals[i] = patch.Apply(g)
			}
		}
		return goals
	}
}

// AddGoal validates in, inserts it and adds the created goal to the view if
// it matches the filters. Failures are reported through the notifier before
// being returned.
func (s *Service) AddGoal(ctx context.Context, in schema.GoalInput) (int64, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.notifier.Notify(Notice{Level: LevelWarning, Title: "Invalid goal", Message: err.Error()})
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	rows, err := s.client.Insert(ctx, schema.TableGoals, in)
	var g schema.Goal
	if err == nil {
		g, err = remote.DecodeOne[schema.Goal](rows)
	}
	if err != nil {
		return 0, s.failed("Add goal", err)
	}

	s.mu.Lock()
	if s.filters.Matches(g) && !slices.ContainsFunc(s.goals, func(x schema.Goal) bool { return x.ID == g.ID }) {
		s.goals = append(slices.Clone(s.goals), g)
		s.publishLocked()
	}
	s.mu.Unlock()

	s.notifier.Notify(Notice{Level: LevelSuccess, Title: "Goal added", Message: g.Title})
	return g.ID, nil
}

// EditGoal applies patch locally, then remotely. A goal with subgoals
// rejects progress edits; the change is rolled back in that case.
func (s *Service) EditGoal(ctx context.Context, id int64, patch schema.GoalPatch) error {
	if err := patch.Validate(); err != nil {
		s.notifier.Notify(Notice{Level: LevelWarning, Title: "Invalid change", Message: err.Error()})
		return err
	}
	ids := []int64{id}
	return s.performOptimistic(ctx, "Edit goal", ids, patchIDs(ids, patch), func(ctx context.Context) error {
		rows, err := s.client.Update(ctx, schema.TableGoals, patch, schema.ByID(id))
		if err == nil && len(rows) == 0 {
			return fmt.Errorf("goal %d not found", id)
		}
		return err
	})
}

// DeleteGoal removes a goal locally, then remotely.
func (s *Service) DeleteGoal(ctx context.Context, id int64) error {
	ids := []int64{id}
	return s.performOptimistic(ctx, "Delete goal", ids, withoutIDs(ids), func(ctx context.Context) error {
		return s.client.Delete(ctx, schema.TableGoals, schema.ByID(id))
	})
}

// BulkDelete removes all ids in one remote call. On failure every goal
// comes back.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ids = slices.Clone(ids)
	return s.performOptimistic(ctx, "Delete goals", ids, withoutIDs(ids), func(ctx context.Context) error {
		return s.client.Delete(ctx, schema.TableGoals, schema.ByIDs(ids))
	})
}

// BulkMove moves all ids to folderID (nil = unorganized) in one remote
// call. On failure every goal reverts to its previous folder; goals the
// backend did not move revert alone and the move is reported as failed.
func (s *Service) BulkMove(ctx context.Context, ids []int64, folderID *int64) error {
	if len(ids) == 0 {
		return nil
	}
	ids = slices.Clone(ids)
	patch := schema.MoveTo(folderID)
	return s.performOptimistic(ctx, "Move goals", ids, patchIDs(ids, patch), func(ctx context.Context) error {
		rows, err := s.client.Update(ctx, schema.TableGoals, patch, schema.ByIDs(ids))
		if err != nil {
			return err
		}
		moved, err := remote.Decode[schema.Goal](rows)
		if err != nil {
			return err
		}
		return checkApplied(ids, moved)
	})
}
