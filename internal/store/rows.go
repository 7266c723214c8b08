package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// Tables lists the table names accepted by Select, Insert, Update and Delete.
var Tables = []string{
	schema.TableGoals,
	schema.TableSubgoals,
	schema.TableFolders,
	schema.TableNotifications,
	schema.TableShares,
	schema.TableMeta,
}

// Select reads rows of any table by name. The metadata table is readable
// by every identity.
func (db *DB) Select(ctx context.Context, identity, tbl string, f schema.Filter) ([]any, error) {
	var rows any
	var err error
	switch tbl {
	case schema.TableGoals:
		rows, err = listGoals(ctx, db.conn, identity, f)
	case schema.TableSubgoals:
		rows, err = listSubgoals(ctx, db.conn, identity, f)
	case schema.TableFolders:
		rows, err = listFolders(ctx, db.conn, identity, f)
	case schema.TableNotifications:
		rows, err = listNotifications(ctx, db.conn, identity, f)
	case schema.TableShares:
		rows, err = listShares(ctx, db.conn, identity, f)
	case schema.TableMeta:
		var m schema.Meta
		if m, err = db.Meta(ctx); err != nil {
			return nil, err
		}
		return []any{m}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, tbl)
	}
	if err != nil {
		return nil, err
	}
	return toAnys(rows), nil
}

// Insert creates one row, or several when body is a JSON array. All rows
// are written in a single transaction.
func (db *DB) Insert(ctx context.Context, identity, tbl string, body []byte) ([]any, []schema.ChangeEvent, error) {
	items, err := splitBody(body)
	if err != nil {
		return nil, nil, err
	}

	var out []any
	var events []schema.ChangeEvent
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			row, evs, err := db.insertOne(ctx, tx, identity, tbl, item)
			if err != nil {
				return err
			}
			out = append(out, row)
			events = append(events, evs...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, events, nil
}

func (db *DB) insertOne(ctx context.Context, tx *sql.Tx, identity, tbl string, item json.RawMessage) (any, []schema.ChangeEvent, error) {
	switch tbl {
	case schema.TableGoals:
		var in schema.GoalInput
		if err := decodeStrict(item, &in); err != nil {
			return nil, nil, err
		}
		return db.insertGoal(ctx, tx, identity, in)
	case schema.TableSubgoals:
		var in schema.SubgoalInput
		if err := decodeStrict(item, &in); err != nil {
			return nil, nil, err
		}
		return db.insertSubgoal(ctx, tx, identity, in)
	case schema.TableFolders:
		var in schema.FolderInput
		if err := decodeStrict(item, &in); err != nil {
			return nil, nil, err
		}
		return db.insertFolder(ctx, tx, identity, in)
	case schema.TableNotifications:
		var in schema.NotificationInput
		if err := decodeStrict(item, &in); err != nil {
			return nil, nil, err
		}
		return db.insertNotification(ctx, tx, identity, in)
	case schema.TableShares:
		var in schema.ShareInput
		if err := decodeStrict(item, &in); err != nil {
			return nil, nil, err
		}
		return db.insertShare(ctx, tx, identity, in)
	case schema.TableMeta:
		return nil, nil, fmt.Errorf("%s is read-only: %w", tbl, ErrForbidden)
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTable, tbl)
}

// Update applies a JSON patch to matching rows.
func (db *DB) Update(ctx context.Context, identity, tbl string, body []byte, f schema.Filter) ([]any, []schema.ChangeEvent, error) {
	var out []any
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.updateTable(ctx, tx, identity, tbl, body, f)
		return err
	})
	return out, events, err
}

func (db *DB) updateTable(ctx context.Context, tx *sql.Tx, identity, tbl string, body []byte, f schema.Filter) ([]any, []schema.ChangeEvent, error) {
	switch tbl {
	case schema.TableGoals:
		var p schema.GoalPatch
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, nil, badBody(err)
		}
		rows, events, err := db.updateGoals(ctx, tx, identity, p, f)
		return toAnys(rows), events, err
	case schema.TableSubgoals:
		var p schema.SubgoalPatch
		if err := decodeStrict(body, &p); err != nil {
			return nil, nil, err
		}
		rows, events, err := db.updateSubgoals(ctx, tx, identity, p, f)
		return toAnys(rows), events, err
	case schema.TableFolders:
		var p schema.FolderPatch
		if err := decodeStrict(body, &p); err != nil {
			return nil, nil, err
		}
		rows, events, err := db.updateFolders(ctx, tx, identity, p, f)
		return toAnys(rows), events, err
	case schema.TableNotifications:
		var p schema.NotificationPatch
		if err := decodeStrict(body, &p); err != nil {
			return nil, nil, err
		}
		rows, events, err := db.updateNotifications(ctx, tx, identity, p, f)
		return toAnys(rows), events, err
	case schema.TableShares, schema.TableMeta:
		return nil, nil, fmt.Errorf("%s cannot be updated: %w", tbl, ErrForbidden)
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTable, tbl)
}

// Delete removes matching rows and returns them.
func (db *DB) Delete(ctx context.Context, identity, tbl string, f schema.Filter) ([]any, []schema.ChangeEvent, error) {
	var rows any
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		switch tbl {
		case schema.TableGoals:
			rows, events, err = db.deleteGoals(ctx, tx, identity, f)
		case schema.TableSubgoals:
			rows, events, err = db.deleteSubgoals(ctx, tx, identity, f)
		case schema.TableFolders:
			rows, events, err = db.deleteFolders(ctx, tx, identity, f)
		case schema.TableNotifications:
			rows, events, err = db.deleteNotifications(ctx, tx, identity, f)
		case schema.TableShares:
			rows, events, err = db.deleteShares(ctx, tx, identity, f)
		case schema.TableMeta:
			err = fmt.Errorf("%s is read-only: %w", tbl, ErrForbidden)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownTable, tbl)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return toAnys(rows), events, nil
}

func splitBody(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty request body", schema.ErrValidation)
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, badBody(err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty row list", schema.ErrValidation)
		}
		return items, nil
	}
	return []json.RawMessage{trimmed}, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badBody(err)
	}
	return nil
}

func badBody(err error) error {
	return fmt.Errorf("%w: bad request body: %v", schema.ErrValidation, err)
}

// toAnys flattens a typed row slice for JSON encoding.
func toAnys(rows any) []any {
	switch rs := rows.(type) {
	case []schema.Goal:
		return each(rs)
	case []schema.Subgoal:
		return each(rs)
	case []schema.Folder:
		return each(rs)
	case []schema.Notification:
		return each(rs)
	case []schema.Share:
		return each(rs)
	}
	return nil
}

func each[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
