package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

var notificationsTable = table{
	name: schema.TableNotifications,
	columns: map[string]kind{
		"id":         kindInt,
		"user_id":    kindText,
		"type":       kindText,
		"title":      kindText,
		"message":    kindText,
		"read":       kindBool,
		"created_at": kindText,
	},
	search: []string{"title", "message"},
	owner:  ownedBy("user_id"),
}

// ListNotifications returns the caller's notifications matching f.
func (db *DB) ListNotifications(ctx context.Context, identity string, f schema.Filter) ([]schema.Notification, error) {
	return listNotifications(ctx, db.conn, identity, f)
}

// InsertNotification creates a notification. Only goal_shared notifications
// may be addressed to someone other than the caller.
func (db *DB) InsertNotification(ctx context.Context, identity string, in schema.NotificationInput) (schema.Notification, []schema.ChangeEvent, error) {
	var n schema.Notification
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, events, err = db.insertNotification(ctx, tx, identity, in)
		return err
	})
	return n, events, err
}

// UpdateNotifications marks matching notifications read or unread.
func (db *DB) UpdateNotifications(ctx context.Context, identity string, patch schema.NotificationPatch, f schema.Filter) ([]schema.Notification, []schema.ChangeEvent, error) {
	var out []schema.Notification
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.updateNotifications(ctx, tx, identity, patch, f)
		return err
	})
	return out, events, err
}

// DeleteNotifications removes matching notifications.
func (db *DB) DeleteNotifications(ctx context.Context, identity string, f schema.Filter) ([]schema.Notification, []schema.ChangeEvent, error) {
	var out []schema.Notification
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.deleteNotifications(ctx, tx, identity, f)
		return err
	})
	return out, events, err
}

func listNotifications(ctx context.Context, q querier, identity string, f schema.Filter) ([]schema.Notification, error) {
	tail, args, err := notificationsTable.clause(identity, f)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, type, title, message, read, metadata, created_at FROM notifications`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	out := []schema.Notification{}
	for rows.Next() {
		var n schema.Notification
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = parseTime(createdAt)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notification metadata: %w", err)
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return out, nil
}

func (db *DB) insertNotification(ctx context.Context, tx *sql.Tx, identity string, in schema.NotificationInput) (schema.Notification, []schema.ChangeEvent, error) {
	if err := in.Validate(); err != nil {
		return schema.Notification{}, nil, err
	}
	recipient := strings.TrimSpace(in.UserID)
	if recipient == "" {
		recipient = identity
	}
	if recipient != identity && in.Type != schema.NotificationGoalShared {
		return schema.Notification{}, nil, fmt.Errorf("%s notification for another user: %w", in.Type, ErrForbidden)
	}

	var metadata sql.NullString
	if len(in.Metadata) > 0 {
		data, err := json.Marshal(in.Metadata)
		if err != nil {
			return schema.Notification{}, nil, fmt.Errorf("failed to marshal notification metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	now := db.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, read, metadata, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		recipient, string(in.Type), in.Title, in.Message, metadata, formatTime(now),
	)
	if err != nil {
		return schema.Notification{}, nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Notification{}, nil, fmt.Errorf("failed to read notification id: %w", err)
	}

	n := schema.Notification{
		ID:        id,
		UserID:    recipient,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		CreatedAt: now,
		Metadata:  in.Metadata,
	}
	ev, err := schema.NewChangeEvent(schema.EventInsert, schema.TableNotifications, nil, n, recipient)
	if err != nil {
		return schema.Notification{}, nil, err
	}
	return n, []schema.ChangeEvent{ev}, nil
}

func (db *DB) updateNotifications(ctx context.Context, tx *sql.Tx, identity string, patch schema.NotificationPatch, f schema.Filter) ([]schema.Notification, []schema.ChangeEvent, error) {
	if patch.Read == nil {
		return nil, nil, fmt.Errorf("%w: patch is empty", schema.ErrValidation)
	}
	if err := requireScope("update", schema.TableNotifications, f); err != nil {
		return nil, nil, err
	}
	matched, err := listNotifications(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	out := make([]schema.Notification, 0, len(matched))
	var events []schema.ChangeEvent
	for _, old := range matched {
		n := old
		n.Read = *patch.Read
		if _, err := tx.ExecContext(ctx, `UPDATE notifications SET read = ? WHERE id = ?`, n.Read, n.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to update notification %d: %w", n.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventUpdate, schema.TableNotifications, old, n, identity)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, n)
		events = append(events, ev)
	}
	return out, events, nil
}

func (db *DB) deleteNotifications(ctx context.Context, tx *sql.Tx, identity string, f schema.Filter) ([]schema.Notification, []schema.ChangeEvent, error) {
	if err := requireScope("delete", schema.TableNotifications, f); err != nil {
		return nil, nil, err
	}
	matched, err := listNotifications(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	var events []schema.ChangeEvent
	for _, n := range matched {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, n.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to delete notification %d: %w", n.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventDelete, schema.TableNotifications, n, nil, identity)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
	}
	return matched, events, nil
}
