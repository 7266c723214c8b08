package schema

import (
	"strings"
	"time"
)

// Share links a goal to a recipient. At most one share exists per (goal, recipient).
type Share struct {
	ID          int64     `json:"id"`
	GoalID      int64     `json:"goal_id"`
	UserID      string    `json:"user_id"` // sharer
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ShareInput carries the fields for sharing a goal.
type ShareInput struct {
	GoalID      int64  `json:"goal_id"`
	RecipientID string `json:"recipient_id"`
}

// Validate checks the share input.
func (in ShareInput) Validate() error {
	if in.GoalID <= 0 {
		return invalid("goal_id is required")
	}
	if strings.TrimSpace(in.RecipientID) == "" {
		return invalid("recipient is required")
	}
	return nil
}
