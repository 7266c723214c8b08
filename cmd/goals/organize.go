package main

import (
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:     "share <goal-id> <user-id>",
	GroupID: "organize",
	Short:   "Share a goal with another user",
	Long: `Share a goal with another user. The recipient gets a goal_shared
notification. Use 'goals share list' and 'goals share rm' to manage shares.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		goalID, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		// the notification message uses the cached title
		if _, err := c.waitReady(cmd.Context()); err != nil {
			return err
		}
		return c.svc.ShareGoal(cmd.Context(), goalID, args[1])
	},
}

var shareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals you have shared",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		shares, err := c.svc.ListShares(cmd.Context())
		if err != nil {
			return err
		}
		if len(shares) == 0 {
			fmt.Println(ui.RenderMuted("No shares."))
			return nil
		}
		for _, s := range shares {
			fmt.Printf("%s goal %d → %s\n", ui.RenderMuted(fmt.Sprintf("#%-4d", s.ID)), s.GoalID, s.RecipientID)
		}
		return nil
	},
}

var shareRmCmd = &cobra.Command{
	Use:   "rm <share-id>",
	Short: "Stop sharing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.svc.Unshare(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s Share %d removed\n", ui.RenderPass("✓"), id)
		return nil
	},
}

var subgoalCmd = &cobra.Command{
	Use:     "subgoal",
	GroupID: "organize",
	Short:   "Manage a goal's checklist",
	Long: `Manage subgoals. A goal with subgoals takes its progress from them:
completed / total, rounded to a whole percent.`,
}

var subgoalListCmd = &cobra.Command{
	Use:   "list <goal-id>",
	Short: "List subgoals of a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goalID, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		subs, err := c.svc.ListSubgoals(cmd.Context(), goalID)
		if err != nil {
			return err
		}
		printSubgoals(subs)
		return nil
	},
}

var subgoalAddCmd = &cobra.Command{
	Use:   "add <goal-id> <title>",
	Short: "Add a subgoal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		goalID, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		sub, err := c.svc.AddSubgoal(cmd.Context(), schema.SubgoalInput{GoalID: goalID, Title: args[1]})
		if err != nil {
			return err
		}
		fmt.Printf("%s Subgoal %d added\n", ui.RenderPass("✓"), sub.ID)
		return nil
	},
}

var subgoalToggleCmd = &cobra.Command{
	Use:   "toggle <goal-id> <subgoal-id>",
	Short: "Mark a subgoal done or not done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		subs, err := c.svc.ListSubgoals(cmd.Context(), ids[0])
		if err != nil {
			return err
		}
		for _, s := range subs {
			if s.ID != ids[1] {
				continue
			}
			updated, err := c.svc.ToggleSubgoal(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", checkbox(updated.Completed), updated.Title)
			return nil
		}
		return fmt.Errorf("goal %d has no subgoal %d", ids[0], ids[1])
	},
}

var subgoalRmCmd = &cobra.Command{
	Use:   "rm <subgoal-id>",
	Short: "Delete a subgoal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.svc.DeleteSubgoal(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s Subgoal %d deleted\n", ui.RenderPass("✓"), id)
		return nil
	},
}

var folderCmd = &cobra.Command{
	Use:     "folder",
	GroupID: "organize",
	Short:   "Manage folders",
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		folders, err := c.svc.ListFolders(cmd.Context())
		if err != nil {
			return err
		}
		for _, f := range folders {
			id := "-"
			if f.ID != nil {
				id = fmt.Sprint(*f.ID)
			}
			line := fmt.Sprintf("%s %s", ui.RenderMuted(fmt.Sprintf("#%-4s", id)), ui.RenderBold(f.Name))
			if f.Description != "" {
				line += " " + ui.RenderMuted("· "+f.Description)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var folderAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		f, err := c.svc.CreateFolder(cmd.Context(), schema.FolderInput{Name: args[0], Description: desc})
		if err != nil {
			return err
		}
		fmt.Printf("%s Folder %d created\n", ui.RenderPass("✓"), *f.ID)
		return nil
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm <folder-id>",
	Short: "Delete a folder; its goals become unorganized",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.svc.DeleteFolder(cmd.Context(), &id); err != nil {
			return err
		}
		fmt.Printf("%s Folder %d deleted\n", ui.RenderPass("✓"), id)
		return nil
	},
}

func printSubgoals(subs []schema.Subgoal) {
	if len(subs) == 0 {
		fmt.Println(ui.RenderMuted("No subgoals."))
		return
	}
	done := 0
	for _, s := range subs {
		if s.Completed {
			done++
		}
		fmt.Printf("%s %s %s\n", ui.RenderMuted(fmt.Sprintf("#%-4d", s.ID)), checkbox(s.Completed), s.Title)
	}
	if p, ok := schema.ProgressFromSubgoals(done, len(subs)); ok {
		fmt.Printf("\n%d/%d done · %s %d%%\n", done, len(subs), ui.ProgressBar(p), p)
	}
}

func checkbox(done bool) string {
	if done {
		return ui.RenderPass("[x]")
	}
	return "[ ]"
}

func init() {
	folderAddCmd.Flags().StringP("description", "d", "", "Folder description")

	shareCmd.AddCommand(shareListCmd, shareRmCmd)
	subgoalCmd.AddCommand(subgoalListCmd, subgoalAddCmd, subgoalToggleCmd, subgoalRmCmd)
	folderCmd.AddCommand(folderListCmd, folderAddCmd, folderRmCmd)
	rootCmd.AddCommand(shareCmd, subgoalCmd, folderCmd)
}
