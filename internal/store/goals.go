package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

var goalsTable = table{
	name: schema.TableGoals,
	columns: map[string]kind{
		"id":          kindInt,
		"user_id":     kindText,
		"title":       kindText,
		"description": kindText,
		"progress":    kindInt,
		"target_date": kindText,
		"folder_id":   kindInt,
		"created_at":  kindText,
	},
	search: []string{"title", "description"},
	owner:  ownedBy("user_id"),
}

const goalColumns = `id, user_id, title, description, progress, target_date, tags, folder_id, created_at`

// ListGoals returns the caller's goals matching f.
func (db *DB) ListGoals(ctx context.Context, identity string, f schema.Filter) ([]schema.Goal, error) {
	return listGoals(ctx, db.conn, identity, f)
}

// GetGoal returns one goal, or ErrNotFound.
func (db *DB) GetGoal(ctx context.Context, identity string, id int64) (schema.Goal, error) {
	return getGoal(ctx, db.conn, identity, id)
}

// InsertGoal creates a goal owned by identity.
func (db *DB) InsertGoal(ctx context.Context, identity string, in schema.GoalInput) (schema.Goal, []schema.ChangeEvent, error) {
	var g schema.Goal
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		g, events, err = db.insertGoal(ctx, tx, identity, in)
		return err
	})
	return g, events, err
}

// UpdateGoals applies patch to every matching goal in one transaction.
// Setting progress on a goal that has subgoals fails with ErrProgressDerived.
func (db *DB) UpdateGoals(ctx context.Context, identity string, patch schema.GoalPatch, f schema.Filter) ([]schema.Goal, []schema.ChangeEvent, error) {
	var out []schema.Goal
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.updateGoals(ctx, tx, identity, patch, f)
		return err
	})
	return out, events, err
}

// DeleteGoals removes every matching goal. Subgoals and shares cascade.
func (db *DB) DeleteGoals(ctx context.Context, identity string, f schema.Filter) ([]schema.Goal, []schema.ChangeEvent, error) {
	var out []schema.Goal
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.deleteGoals(ctx, tx, identity, f)
		return err
	})
	return out, events, err
}

func listGoals(ctx context.Context, q querier, identity string, f schema.Filter) ([]schema.Goal, error) {
	tail, args, err := goalsTable.clause(identity, f)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()
	return scanGoals(rows)
}

func getGoal(ctx context.Context, q querier, identity string, id int64) (schema.Goal, error) {
	goals, err := listGoals(ctx, q, identity, schema.ByID(id))
	if err != nil {
		return schema.Goal{}, err
	}
	if len(goals) == 0 {
		return schema.Goal{}, fmt.Errorf("goal %d: %w", id, ErrNotFound)
	}
	return goals[0], nil
}

func (db *DB) insertGoal(ctx context.Context, tx *sql.Tx, identity string, in schema.GoalInput) (schema.Goal, []schema.ChangeEvent, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return schema.Goal{}, nil, err
	}
	if err := checkFolder(ctx, tx, identity, in.FolderID); err != nil {
		return schema.Goal{}, nil, err
	}

	tagsJSON, err := json.Marshal(nonNil(in.Tags))
	if err != nil {
		return schema.Goal{}, nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	now := db.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO goals (user_id, title, description, progress, target_date, tags, folder_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		identity, in.Title, in.Description, in.Progress, in.TargetDate,
		string(tagsJSON), nullInt(in.FolderID), formatTime(now),
	)
	if err != nil {
		return schema.Goal{}, nil, fmt.Errorf("failed to insert goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Goal{}, nil, fmt.Errorf("failed to read goal id: %w", err)
	}

	g := in.Goal(id, identity, now)
	ev, err := schema.NewChangeEvent(schema.EventInsert, schema.TableGoals, nil, g, identity)
	if err != nil {
		return schema.Goal{}, nil, err
	}
	return g, []schema.ChangeEvent{ev}, nil
}

func (db *DB) updateGoals(ctx context.Context, tx *sql.Tx, identity string, patch schema.GoalPatch, f schema.Filter) ([]schema.Goal, []schema.ChangeEvent, error) {
	if err := patch.Validate(); err != nil {
		return nil, nil, err
	}
	if err := requireScope("update", schema.TableGoals, f); err != nil {
		return nil, nil, err
	}
	if patch.Folder != nil {
		if err := checkFolder(ctx, tx, identity, patch.Folder.ID); err != nil {
			return nil, nil, err
		}
	}

	matched, err := listGoals(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	out := make([]schema.Goal, 0, len(matched))
	events := make([]schema.ChangeEvent, 0, len(matched))
	for _, old := range matched {
		if patch.Progress != nil {
			total, _, err := countSubgoals(ctx, tx, old.ID)
			if err != nil {
				return nil, nil, err
			}
			if total > 0 {
				return nil, nil, fmt.Errorf("goal %d has %d subgoals: %w", old.ID, total, ErrProgressDerived)
			}
		}

		g := patch.Apply(old)
		if err := writeGoal(ctx, tx, g); err != nil {
			return nil, nil, err
		}
		ev, err := schema.NewChangeEvent(schema.EventUpdate, schema.TableGoals, old, g, identity)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, g)
		events = append(events, ev)
	}
	return out, events, nil
}

func (db *DB) deleteGoals(ctx context.Context, tx *sql.Tx, identity string, f schema.Filter) ([]schema.Goal, []schema.ChangeEvent, error) {
	if err := requireScope("delete", schema.TableGoals, f); err != nil {
		return nil, nil, err
	}
	matched, err := listGoals(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	events := make([]schema.ChangeEvent, 0, len(matched))
	for _, g := range matched {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, g.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to delete goal %d: %w", g.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventDelete, schema.TableGoals, g, nil, identity)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
	}
	return matched, events, nil
}

func writeGoal(ctx context.Context, q querier, g schema.Goal) error {
	tagsJSON, err := json.Marshal(nonNil(g.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		UPDATE goals SET title = ?, description = ?, progress = ?, target_date = ?, tags = ?, folder_id = ?
		WHERE id = ?`,
		g.Title, g.Description, g.Progress, g.TargetDate, string(tagsJSON), nullInt(g.FolderID), g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal %d: %w", g.ID, err)
	}
	return nil
}

func checkFolder(ctx context.Context, q querier, identity string, folderID *int64) error {
	if folderID == nil {
		return nil
	}
	var owner string
	err := q.QueryRowContext(ctx, `SELECT user_id FROM folders WHERE id = ?`, *folderID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != identity) {
		return fmt.Errorf("folder %d: %w", *folderID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up folder %d: %w", *folderID, err)
	}
	return nil
}

func scanGoals(rows *sql.Rows) ([]schema.Goal, error) {
	goals := []schema.Goal{}
	for rows.Next() {
		var g schema.Goal
		var tagsJSON, createdAt string
		var folderID sql.NullInt64

		err := rows.Scan(
			&g.ID,
			&g.UserID,
			&g.Title,
			&g.Description,
			&g.Progress,
			&g.TargetDate,
			&tagsJSON,
			&folderID,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}

		g.FolderID = intPtr(folderID)
		g.CreatedAt = parseTime(createdAt)
		g.Tags = []string{}
		if tagsJSON != "" && tagsJSON != "null" {
			if err := json.Unmarshal([]byte(tagsJSON), &g.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}
	return goals, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
