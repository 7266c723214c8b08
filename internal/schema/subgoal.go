package schema

import "strings"

// Subgoal is a checklist item belonging to exactly one goal.
// Deleting the goal deletes its subgoals.
type Subgoal struct {
	ID        int64  `json:"id"`
	GoalID    int64  `json:"goal_id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// SubgoalInput carries the fields for creating a subgoal.
type SubgoalInput struct {
	GoalID    int64  `json:"goal_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Validate checks the subgoal input.
func (in SubgoalInput) Validate() error {
	if in.GoalID <= 0 {
		return invalid("goal_id is required")
	}
	return validateTitle(strings.TrimSpace(in.Title))
}

// SubgoalPatch renames or toggles a subgoal.
type SubgoalPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// Validate checks the fields that are set.
func (p SubgoalPatch) Validate() error {
	if p.Title == nil && p.Completed == nil {
		return invalid("patch is empty")
	}
	if p.Title != nil {
		return validateTitle(strings.TrimSpace(*p.Title))
	}
	return nil
}

// CountCompleted returns how many of subs are completed.
func CountCompleted(subs []Subgoal) int {
	n := 0
	for _, s := range subs {
		if s.Completed {
			n++
		}
	}
	return n
}
