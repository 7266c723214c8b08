package goalsync

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// Subgoal changes are not applied optimistically. The backend recomputes
// the parent's progress and the resulting goal update reaches the view
// through the change feed.

// ListSubgoals returns the subgoals of goalID.
func (s *Service) ListSubgoals(ctx context.Context, goalID int64) ([]schema.Subgoal, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.client.Query(ctx, schema.TableSubgoals, schema.Filter{}.Where("goal_id", goalID))
	if err != nil {
		return nil, fmt.Errorf("failed to list subgoals: %w", err)
	}
	return remote.Decode[schema.Subgoal](rows)
}

// AddSubgoal creates a subgoal.
func (s *Service) AddSubgoal(ctx context.Context, in schema.SubgoalInput) (schema.Subgoal, error) {
	if err := in.Validate(); err != nil {
		s.notifier.Notify(Notice{Level: LevelWarning, Title: "Invalid subgoal", Message: err.Error()})
		return schema.Subgoal{}, err
	}
	if err := s.ready(); err != nil {
		return schema.Subgoal{}, err
	}
	rows, err := s.client.Insert(ctx, schema.TableSubgoals, in)
	if err != nil {
		return schema.Subgoal{}, s.failed("Add subgoal", err)
	}
	return remote.DecodeOne[schema.Subgoal](rows)
}

// ToggleSubgoal flips the completed flag of sub.
func (s *Service) ToggleSubgoal(ctx context.Context, sub schema.Subgoal) (schema.Subgoal, error) {
	if err := s.ready(); err != nil {
		return schema.Subgoal{}, err
	}
	done := !sub.Completed
	rows, err := s.client.Update(ctx, schema.TableSubgoals, schema.SubgoalPatch{Completed: &done}, schema.ByID(sub.ID))
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("subgoal %d not found", sub.ID)
	}
	if err != nil {
		return schema.Subgoal{}, s.failed("Update subgoal", err)
	}
	return remote.DecodeOne[schema.Subgoal](rows)
}

// DeleteSubgoal removes a subgoal.
func (s *Service) DeleteSubgoal(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.client.Delete(ctx, schema.TableSubgoals, schema.ByID(id)); err != nil {
		return s.failed("Delete subgoal", err)
	}
	return nil
}
