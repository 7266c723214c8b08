package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

var foldersTable = table{
	name: schema.TableFolders,
	columns: map[string]kind{
		"id":          kindInt,
		"user_id":     kindText,
		"name":        kindText,
		"description": kindText,
		"created_at":  kindText,
	},
	search: []string{"name"},
	owner:  ownedBy("user_id"),
}

// ListFolders returns the caller's folders matching f. The synthetic
// unorganized folder is not stored and never returned here.
func (db *DB) ListFolders(ctx context.Context, identity string, f schema.Filter) ([]schema.Folder, error) {
	return listFolders(ctx, db.conn, identity, f)
}

// InsertFolder creates a folder owned by identity.
func (db *DB) InsertFolder(ctx context.Context, identity string, in schema.FolderInput) (schema.Folder, []schema.ChangeEvent, error) {
	var fo schema.Folder
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		fo, events, err = db.insertFolder(ctx, tx, identity, in)
		return err
	})
	return fo, events, err
}

// UpdateFolders renames matching folders.
func (db *DB) UpdateFolders(ctx context.Context, identity string, patch schema.FolderPatch, f schema.Filter) ([]schema.Folder, []schema.ChangeEvent, error) {
	var out []schema.Folder
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.updateFolders(ctx, tx, identity, patch, f)
		return err
	})
	return out, events, err
}

// DeleteFolders removes matching folders. Their goals become unorganized
// and an update event is produced for each of them.
func (db *DB) DeleteFolders(ctx context.Context, identity string, f schema.Filter) ([]schema.Folder, []schema.ChangeEvent, error) {
	var out []schema.Folder
	var events []schema.ChangeEvent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = db.deleteFolders(ctx, tx, identity, f)
		return err
	})
	return out, events, err
}

func listFolders(ctx context.Context, q querier, identity string, f schema.Filter) ([]schema.Folder, error) {
	tail, args, err := foldersTable.clause(identity, f)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id, user_id, name, description, created_at FROM folders`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	folders := []schema.Folder{}
	for rows.Next() {
		var fo schema.Folder
		var id int64
		var createdAt string
		if err := rows.Scan(&id, &fo.UserID, &fo.Name, &fo.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		fo.ID = &id
		fo.CreatedAt = parseTime(createdAt)
		folders = append(folders, fo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}

func (db *DB) insertFolder(ctx context.Context, tx *sql.Tx, identity string, in schema.FolderInput) (schema.Folder, []schema.ChangeEvent, error) {
	if err := in.Validate(); err != nil {
		return schema.Folder{}, nil, err
	}
	now := db.timestamp()
	fo := schema.Folder{
		UserID:      identity,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO folders (user_id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		identity, fo.Name, fo.Description, formatTime(now),
	)
	if err != nil {
		return schema.Folder{}, nil, fmt.Errorf("failed to insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schema.Folder{}, nil, fmt.Errorf("failed to read folder id: %w", err)
	}
	fo.ID = &id

	ev, err := schema.NewChangeEvent(schema.EventInsert, schema.TableFolders, nil, fo, identity)
	if err != nil {
		return schema.Folder{}, nil, err
	}
	return fo, []schema.ChangeEvent{ev}, nil
}

func (db *DB) updateFolders(ctx context.Context, tx *sql.Tx, identity string, patch schema.FolderPatch, f schema.Filter) ([]schema.Folder, []schema.ChangeEvent, error) {
	if err := patch.Validate(); err != nil {
		return nil, nil, err
	}
	if err := requireScope("update", schema.TableFolders, f); err != nil {
		return nil, nil, err
	}
	matched, err := listFolders(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	out := make([]schema.Folder, 0, len(matched))
	var events []schema.ChangeEvent
	for _, old := range matched {
		fo := old
		if patch.Name != nil {
			fo.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			fo.Description = strings.TrimSpace(*patch.Description)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE folders SET name = ?, description = ? WHERE id = ?`, fo.Name, fo.Description, *fo.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to update folder %d: %w", *fo.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventUpdate, schema.TableFolders, old, fo, identity)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, fo)
		events = append(events, ev)
	}
	return out, events, nil
}

func (db *DB) deleteFolders(ctx context.Context, tx *sql.Tx, identity string, f schema.Filter) ([]schema.Folder, []schema.ChangeEvent, error) {
	if err := requireScope("delete", schema.TableFolders, f); err != nil {
		return nil, nil, err
	}
	matched, err := listFolders(ctx, tx, identity, f)
	if err != nil {
		return nil, nil, err
	}

	var events []schema.ChangeEvent
	for _, fo := range matched {
		orphans, err := listGoals(ctx, tx, identity, schema.Filter{}.Where("folder_id", *fo.ID))
		if err != nil {
			return nil, nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, *fo.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to delete folder %d: %w", *fo.ID, err)
		}
		ev, err := schema.NewChangeEvent(schema.EventDelete, schema.TableFolders, fo, nil, identity)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)

		for _, old := range orphans {
			g := schema.MoveTo(nil).Apply(old)
			ev, err := schema.NewChangeEvent(schema.EventUpdate, schema.TableGoals, old, g, identity)
			if err != nil {
				return nil, nil, err
			}
			events = append(events, ev)
		}
	}
	return matched, events, nil
}
