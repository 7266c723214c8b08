package goalsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// DuplicateReport lists every goal that shares its title and description
// with at least one other goal.
type DuplicateReport struct {
	Found bool
	Goals []schema.Goal
	IDs   map[int64]struct{}
}

// Has reports whether id was flagged.
func (r DuplicateReport) Has(id int64) bool {
	_, ok := r.IDs[id]
	return ok
}

func duplicateKey(g schema.Goal) string {
	return strings.ToLower(g.Title) + "-" + strings.ToLower(g.Description)
}

// FindDuplicates groups goals by lower(title)+"-"+lower(description) and
// flags all members of every group with two or more goals. Flagged goals
// keep their input order.
func FindDuplicates(goals []schema.Goal) DuplicateReport {
	counts := make(map[string]int, len(goals))
	for _, g := range goals {
		counts[duplicateKey(g)]++
	}

	report := DuplicateReport{IDs: make(map[int64]struct{})}
	for _, g := range goals {
		if counts[duplicateKey(g)] < 2 {
			continue
		}
		report.Goals = append(report.Goals, g.Clone())
		report.IDs[g.ID] = struct{}{}
	}
	report.Found = len(report.Goals) > 0
	return report
}

// CheckForDuplicates scans the cached goals and reports the outcome through
// the notifier. "None found" is reported as its own notice.
func (s *Service) CheckForDuplicates() DuplicateReport {
	report := FindDuplicates(s.State().Goals)
	if report.Found {
		s.notifier.Notify(Notice{
			Level:   LevelWarning,
			Title:   "Duplicates found",
			Message: fmt.Sprintf("%d goals share a title and description", len(report.Goals)),
		})
	} else {
		s.notifier.Notify(Notice{
			Level:   LevelInfo,
			Title:   "No duplicates",
			Message: "Every goal is unique",
		})
	}
	return report
}

// NotifyDuplicates stores a duplicate_goal notification for each flagged
// goal, in one insert.
func (s *Service) NotifyDuplicates(ctx context.Context, report DuplicateReport) error {
	if !report.Found {
		return nil
	}
	if err := s.ready(); err != nil {
		return err
	}
	inputs := make([]schema.NotificationInput, 0, len(report.Goals))
	for _, g := range report.Goals {
		inputs = append(inputs, schema.NotificationInput{
			Type:     schema.NotificationDuplicateGoal,
			Title:    "Possible duplicate goal",
			Message:  fmt.Sprintf("%q has the same title and description as another goal", g.Title),
			Metadata: map[string]any{"goal_id": g.ID},
		})
	}
	if _, err := s.client.Insert(ctx, schema.TableNotifications, inputs); err != nil {
		return fmt.Errorf("failed to store duplicate notifications: %w", err)
	}
	return nil
}
