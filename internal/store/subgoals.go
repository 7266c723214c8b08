package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

var subgoalsTable = table{
	name: schema.TableSubgoals,
	columns: map[string]kind{
		"id":        kindInt,
		"goal_id":   kindInt,
		"user_id":   kindText,
		"title":     kindText,
		"completed": kindBool,
	},
	search: []string{"title"},
	owner:  ownedBy("user_id"),
}

// ListSubgoals returns the caller's subgoals matching f.
func (db *DB) ListSubgoals(ctx context.Context, identity string, f schema.Filter) ([]schema.Subgoal, error) {
	return listSubgoals(ctx, db.conn, identity, f)
}

// InsertSubgoal adds a subgoal to one of the caller's goals and recomputes
// the goal's progress.
func (db *DB) InsertSubgoal(ctx context.Context, identity string, in schema.SubgoalInput) (schema.Subgoal, []schema.ChangeEvent, error) {
	var s schema.Subgoal
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		s, events, err = db.insertSubgoal(ctx, tx, identity, in)
		return err
	})
	return s, events, err
}

// UpdateSubgoals applies patch to matching subgoals and recomputes the
// progress of every affected goal.
func (db *DB) UpdateSubgoals(ctx context.Context, identity string, patch schema.SubgoalPatch, f schema.Filter) ([]schema.Subgoal, []schema.ChangeEvent, error) {
	var out []schema.Subgoal
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.updateSubgoals(ctx, tx, identity, patch, f)
		return err
	})
	return out, events, err
}

// DeleteSubgoals removes matching subgoals. A goal that loses its last
// subgoal keeps its current progress.
func (db *DB) DeleteSubgoals(ctx context.Context, identity string, f schema.Filter) ([]schema.Subgoal, []schema.ChangeEvent, error) {
	var out []schema.Subgoal
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.deleteSubgoals(ctx, tx, identity, f)
		return err
	})
	return out, events, err
}

func listSubgoals(ctx context.Context, q querier, identity string, f schema.Filter) ([]schema.Subgoal, error) {
	tail, args, err := subgoalsTable.clause(identity, f)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id, goal_id, user_id, title, completed FROM subgoals`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subgoals: %w", err)
	}
	defer rows.Close()

	subs := []schema.Subgoal{}
	for rows.Next() {
		var s schema.Subgoal
		if err := rows.Scan(&s.ID, &s.GoalID, &s.UserID, &s.Title, &s.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan subgoal: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subgoals: %w", err)
	}
	return subs, nil
}

func (db *DB) insertSubgoal(ctx context.Context, tx *sql.Tx, identity string, in schema.SubgoalInput) (schema.Subgoal, []schema.ChangeEvent, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return schema.Subgoal{}, nil, err
	}
	if _, err := getGoal(ctx, tx, identity, in.GoalID); err != nil {
		return schema.Subgoal{}, nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO subgoals (goal_id, user_id, title, completed) VALUES (?, ?, ?, ?)`,
		in.GoalID, identity, in.Title, in.Completed,
	)
	if err != nil {
		return schema.Subgoal{}, nil, fmt.Errorf("failed to insert subgoal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Subgoal{}, nil, fmt.Errorf("failed to read subgoal id: %w", err)
	}

	s := schema.Subgoal{ID: id, GoalID: in.GoalID, UserID: identity, Title: in.Title, Completed: in.Completed}
	ev, err := schema.NewChangeEvent(schema.EventInsert, schema.TableSubgoals, nil, s, identity)
	if err != nil {
		return schema.Subgoal{}, nil, err
	}
	events := []schema.ChangeEvent{ev}

	more, err := recomputeProgress(ctx, tx, identity, in.GoalID)
	if err != nil {
		return schema.Subgoal{}, nil, err
	}
	return s, append(events, more...), nil
}

func (db *DB) updateSubgoals(ctx context.Context, tx *sql.Tx, identity string, patch schema.SubgoalPatch, f schema.Filter) ([]schema.Subgoal, []schema.ChangeEvent, error) {
	if err := patch.Validate(); err != nil {
		return nil, nil, err
	}
	if err := requireScope("update", schema.TableSubgoals, f); err != nil {
		return nil, nil, err
	}
	matched, err := listSubgoals(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	var events []schema.ChangeEvent
	var touched []int64
	out := make([]schema.Subgoal, 0, len(matched))
	for _, old := range matched {
		s := old
		if patch.Title != nil {
			s.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Completed != nil {
			s.Completed = *patch.Completed
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE subgoals SET title = ?, completed = ? WHERE id = ?`, s.Title, s.Completed, s.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to update subgoal %d: %w", s.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventUpdate, schema.TableSubgoals, old, s, identity)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
		out = append(out, s)
		if !slices.Contains(touched, s.GoalID) {
			touched = append(touched, s.GoalID)
		}
	}

	for _, goalID := range touched {
		more, err := recomputeProgress(ctx, tx, identity, goalID)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, more...)
	}
	return out, events, nil
}

func (db *DB) deleteSubgoals(ctx context.Context, tx *sql.Tx, identity string, f schema.Filter) ([]schema.Subgoal, []schema.ChangeEvent, error) {
	if err := requireScope("delete", schema.TableSubgoals, f); err != nil {
		return nil, nil, err
	}
	matched, err := listSubgoals(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	var events []schema.ChangeEvent
	var touched []int64
	for _, s := range matched {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subgoals WHERE id = ?`, s.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to delete subgoal %d: %w", s.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventDelete, schema.TableSubgoals, s, nil, identity)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
		if !slices.Contains(touched, s.GoalID) {
			touched = append(touched, s.GoalID)
		}
	}

	for _, goalID := range touched {
		more, err := recomputeProgress(ctx, tx, identity, goalID)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, more...)
	}
	return matched, events, nil
}

func countSubgoals(ctx context.Context, q querier, goalID int64) (total, completed int, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(completed), 0) FROM subgoals WHERE goal_id = ?`, goalID,
	).Scan(&total, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count subgoals of goal %d: %w", goalID, err)
	}
	return total, completed, nil
}

// recomputeProgress rewrites a goal's progress from its subgoals and returns
// an update event when the value changed.
func recomputeProgress(ctx context.Context, tx *sql.Tx, identity string, goalID int64) ([]schema.ChangeEvent, error) {
	total, completed, err := countSubgoals(ctx, tx, goalID)
	if err != nil {
		return nil, err
	}
	progress, ok := schema.ProgressFromSubgoals(completed, total)
	if !ok {
		return nil, nil
	}

	old, err := getGoal(ctx, tx, identity, goalID)
	if err != nil {
		return nil, err
	}
	if old.Progress == progress {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE goals SET progress = ? WHERE id = ?`, progress, goalID); err != nil {
		return nil, fmt.Errorf("failed to update progress of goal %d: %w", goalID, err)
	}
	g := old.Clone()
	g.Progress = progress
	ev, err := schema.NewChangeEvent(schema.EventUpdate, schema.TableGoals, old, g, identity)
	if err != nil {
		return nil, err
	}
	return []schema.ChangeEvent{ev}, nil
}
