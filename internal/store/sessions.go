package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// Session is an issued bearer token.
type Session struct {
	Token  string
	UserID string
	Email  string
}

// CreateSession issues a new token for userID. The first session a user
// ever receives also creates their welcome notification.
func (db *DB) CreateSession(ctx context.Context, userID, email string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", schema.ErrValidation)
	}

	s := Session{Token: uuid.NewString(), UserID: userID, Email: strings.TrimSpace(email)}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var prior int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&prior); err != nil {
			return fmt.Errorf("failed to count sessions: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (token, user_id, email, created_at) VALUES (?, ?, ?, ?)`,
			s.Token, s.UserID, s.Email, formatTime(db.timestamp()),
		); err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		if prior == 0 {
			_, _, err := db.insertNotification(ctx, tx, userID, schema.NotificationInput{
				Type:    schema.NotificationWelcome,
				Title:   "Welcome to goalkeeper",
				Message: "Create your first goal to get started.",
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// LookupSession resolves a token, or returns ErrNotFound.
func (db *DB) LookupSession(ctx context.Context, token string) (Session, error) {
	s := Session{Token: token}
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, email FROM sessions WHERE token = ?`, token,
	).Scan(&s.UserID, &s.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to look up session: %w", err)
	}
	return s, nil
}

// RevokeSession deletes a token. Unknown tokens are ignored.
func (db *DB) RevokeSession(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
