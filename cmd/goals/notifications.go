package main

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/notifications"
	"github.com/mschirtzinger/goalkeeper/internal/retry"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"inbox"},
	GroupID: "organize",
	Short:   "Show notifications",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCenter(cmd.Context(), func(nc *notifications.Center) error {
			fmt.Println(ui.RenderNotifications(nc.Notifications()))
			return nil
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark a notification (or --all) read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a notification id or --all")
		}
		return withCenter(cmd.Context(), func(nc *notifications.Center) error {
			if all {
				if err := nc.MarkAllRead(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("%s All notifications read\n", ui.RenderPass("✓"))
				return nil
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := nc.MarkRead(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("%s Notification %d read\n", ui.RenderPass("✓"), id)
			return nil
		})
	},
}

var notificationsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withCenter(cmd.Context(), func(nc *notifications.Center) error {
			if err := nc.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("%s Notification %d deleted\n", ui.RenderPass("✓"), id)
			return nil
		})
	},
}

// withCenter signs in, waits for the first notification load and runs fn.
func withCenter(ctx context.Context, fn func(*notifications.Center) error) error {
	c, err := connect(ctx, goalsync.Filters{})
	if err != nil {
		return err
	}
	defer c.Close()

	nc := notifications.New(c.client, c.sessions, &notifications.Config{
		Policy: retry.Policy{BaseDelay: cfg.Sync.BaseDelay, MaxRetries: cfg.Sync.MaxRetries},
		Logger: logs.New("notifications"),
	})
	defer nc.Close()

	select {
	case <-nc.Loaded():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := nc.Err(); err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	return fn(nc)
}

func init() {
	notificationsReadCmd.Flags().Bool("all", false, "Mark every notification read")
	notificationsCmd.AddCommand(notificationsReadCmd, notificationsRmCmd)
	rootCmd.AddCommand(notificationsCmd)
}
