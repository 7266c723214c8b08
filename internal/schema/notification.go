package schema

import (
	"strings"
	"time"
)

// NotificationType enumerates the kinds of in-app notifications.
type NotificationType string

const (
	NotificationWelcome       NotificationType = "welcome"
	NotificationGoalShared    NotificationType = "goal_shared"
	NotificationDuplicateGoal NotificationType = "duplicate_goal"
)

// IsValid reports whether t is a known notification type.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationWelcome, NotificationGoalShared, NotificationDuplicateGoal:
		return true
	}
	return false
}

// Notification is an in-app message for a user.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// NotificationInput carries the fields for creating a notification.
// UserID may be empty, in which case the caller's identity is used.
type NotificationInput struct {
	UserID   string           `json:"user_id,omitempty"`
	Type     NotificationType `json:"type"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Validate checks the notification input.
func (in NotificationInput) Validate() error {
	if !in.Type.IsValid() {
		return invalid("unknown notification type %q", in.Type)
	}
	if strings.TrimSpace(in.Title) == "" {
		return invalid("notification title is required")
	}
	return nil
}

// NotificationPatch marks a notification read or unread.
type NotificationPatch struct {
	Read *bool `json:"read,omitempty"`
}
