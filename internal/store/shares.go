package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

var sharesTable = table{
	name: schema.TableShares,
	columns: map[string]kind{
		"id":           kindInt,
		"goal_id":      kindInt,
		"user_id":      kindText,
		"recipient_id": kindText,
		"created_at":   kindText,
	},
	owner: func(identity string) (string, []any) {
		return "(user_id = ? OR recipient_id = ?)", []any{identity, identity}
	},
}

// ListShares returns shares the caller made or received.
func (db *DB) ListShares(ctx context.Context, identity string, f schema.Filter) ([]schema.Share, error) {
	return listShares(ctx, db.conn, identity, f)
}

// InsertShare shares one of the caller's goals. A second share of the same
// goal with the same recipient fails with ErrConflict.
func (db *DB) InsertShare(ctx context.Context, identity string, in schema.ShareInput) (schema.Share, []schema.ChangeEvent, error) {
	var s schema.Share
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		s, events, err = db.insertShare(ctx, tx, identity, in)
		return err
	})
	return s, events, err
}

// DeleteShares revokes matching shares. Only the sharer may revoke.
func (db *DB) DeleteShares(ctx context.Context, identity string, f schema.Filter) ([]schema.Share, []schema.ChangeEvent, error) {
	var out []schema.Share
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.deleteShares(ctx, tx, identity, f)
		return err
	})
	return out, events, err
}

func listShares(ctx context.Context, q querier, identity string, f schema.Filter) ([]schema.Share, error) {
	tail, args, err := sharesTable.clause(identity, f)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, goal_id, user_id, recipient_id, created_at FROM goal_shares`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	out := []schema.Share{}
	for rows.Next() {
		var s schema.Share
		var createdAt string
		if err := rows.Scan(&s.ID, &s.GoalID, &s.UserID, &s.RecipientID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}
	return out, nil
}

func (db *DB) insertShare(ctx context.Context, tx *sql.Tx, identity string, in schema.ShareInput) (schema.Share, []schema.ChangeEvent, error) {
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	if err := in.Validate(); err != nil {
		return schema.Share{}, nil, err
	}
	if in.RecipientID == identity {
		return schema.Share{}, nil, fmt.Errorf("%w: cannot share a goal with yourself", schema.ErrValidation)
	}
	if _, err := getGoal(ctx, tx, identity, in.GoalID); err != nil {
		return schema.Share{}, nil, err
	}

	var existing int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM goal_shares WHERE goal_id = ? AND recipient_id = ?`, in.GoalID, in.RecipientID,
	).Scan(&existing)
	switch {
	case err == nil:
		return schema.Share{}, nil, fmt.Errorf("goal %d is already shared with %s: %w", in.GoalID, in.RecipientID, ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return schema.Share{}, nil, fmt.Errorf("failed to check existing share: %w", err)
	}

	now := db.timestamp()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO goal_shares (goal_id, user_id, recipient_id, created_at) VALUES (?, ?, ?, ?)`,
		in.GoalID, identity, in.RecipientID, formatTime(now),
	)
	if err != nil {
		return schema.Share{}, nil, fmt.Errorf("failed to insert share: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Share{}, nil, fmt.Errorf("failed to read share id: %w", err)
	}

	s := schema.Share{ID: id, GoalID: in.GoalID, UserID: identity, RecipientID: in.RecipientID, CreatedAt: now}
	ev, err := schema.NewChangeEvent(schema.EventInsert, schema.TableShares, nil, s, identity, in.RecipientID)
	if err != nil {
		return schema.Share{}, nil, err
	}
	return s, []schema.ChangeEvent{ev}, nil
}

func (db *DB) deleteShares(ctx context.Context, tx *sql.Tx, identity string, f schema.Filter) ([]schema.Share, []schema.ChangeEvent, error) {
	if err := requireScope("delete", schema.TableShares, f); err != nil {
		return nil, nil, err
	}
	matched, err := listShares(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range matched {
		if s.UserID != identity {
			return nil, nil, fmt.Errorf("share %d belongs to %s: %w", s.ID, s.UserID, ErrForbidden)
		}
	}

	var events []schema.ChangeEvent
	for _, s := range matched {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goal_shares WHERE id = ?`, s.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to delete share %d: %w", s.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventDelete, schema.TableShares, s, nil, s.UserID, s.RecipientID)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
	}
	return matched, events, nil
}
