package goalsync

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// ShareGoal shares goalID with recipientID and then tells the recipient.
// The notification is best effort: if it fails the share still stands and
// success is still reported.
func (s *Service) ShareGoal(ctx context.Context, goalID int64, recipientID string) error {
	in := schema.ShareInput{GoalID: goalID, RecipientID: recipientID}
	if err := in.Validate(); err != nil {
		s.notifier.Notify(Notice{Level: LevelWarning, Title: "Invalid share", Message: err.Error()})
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	if _, err := s.client.Insert(ctx, schema.TableShares, in); err != nil {
		return s.failed("Share goal", err)
	}

	title := "a goal"
	for _, g := range s.Goals() {
		if g.ID == goalID {
			title = fmt.Sprintf("%q", g.Title)
			break
		}
	}
	sharer := "Someone"
	if id := s.sessions.Session(); id != nil {
		sharer = id.UserID
		if id.Email != "" {
			sharer = id.Email
		}
	}
	note := schema.NotificationInput{
		UserID:   recipientID,
		Type:     schema.NotificationGoalShared,
		Title:    "A goal was shared with you",
		Message:  fmt.Sprintf("%s shared %s with you", sharer, title),
		Metadata: map[string]any{"goal_id": goalID},
	}
	if _, err := s.client.Insert(ctx, schema.TableNotifications, note); err != nil {
		s.logger.Printf("Warning: goal %d shared but recipient notification failed: %v", goalID, err)
	}

	s.notifier.Notify(Notice{Level: LevelSuccess, Title: "Goal shared", Message: "Shared with " + recipientID})
	return nil
}

// ListShares returns the shares the user created or received.
func (s *Service) ListShares(ctx context.Context) ([]schema.Share, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.client.Query(ctx, schema.TableShares, schema.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return remote.Decode[schema.Share](rows)
}

// Unshare removes a share the user created.
func (s *Service) Unshare(ctx context.Context, shareID int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.client.Delete(ctx, schema.TableShares, schema.ByID(shareID)); err != nil {
		return s.failed("Unshare goal", err)
	}
	return nil
}
