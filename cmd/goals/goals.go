package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "goals",
	Short:   "List goals with progress and stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), filters)
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.waitReady(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"goals": st.Goals, "stats": st.Stats})
		}
		fmt.Println(ui.RenderView(st))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "goals",
	Short:   "Show goals and keep them live",
	Long: `Show goals and redraw whenever they change, locally or on another device.

While the connection is failing, press Enter to retry immediately.
Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), filters)
		if err != nil {
			return err
		}
		defer c.Close()

		out := termenv.NewOutput(os.Stdout)
		draw := func(st goalsync.State) {
			out.ClearScreen()
			fmt.Fprintln(out, ui.RenderView(st))
			fmt.Fprintln(out, ui.RenderMuted("\nUpdated "+time.Now().Format("15:04:05")+" · Ctrl+C to stop"))
		}
		stop := c.svc.OnChange(draw)
		defer stop()
		draw(c.svc.State())

		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				c.svc.Refresh()
			}
		}()

		<-cmd.Context().Done()
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:     "add [title]",
	GroupID: "goals",
	Short:   "Add a goal",
	Long: `Add a goal. Without a title, an interactive form is shown when stdin is
a terminal.

--target accepts YYYY-MM-DD or phrases such as "tomorrow" or "next friday".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in schema.GoalInput
		var target string
		if len(args) == 1 {
			in.Title = args[0]
			in.Description, _ = cmd.Flags().GetString("description")
			in.Progress, _ = cmd.Flags().GetInt("progress")
			in.Tags, _ = cmd.Flags().GetStringSlice("tags")
			target, _ = cmd.Flags().GetString("target")
		} else {
			if !stdinIsTerminal() {
				return fmt.Errorf("a title is required when stdin is not a terminal")
			}
			var err error
			if in, target, err = runAddForm(); err != nil {
				return err
			}
		}

		date, err := schema.ParseTargetDate(target, time.Now())
		if err != nil {
			return err
		}
		in.TargetDate = date
		if in.FolderID, err = folderFromFlags(cmd); err != nil {
			return err
		}

		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.svc.AddGoal(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Printf("   id: %d\n", id)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "goals",
	Short:   "Change fields of a goal",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}

		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.waitReady(cmd.Context()); err != nil {
			return err
		}
		if err := c.svc.EditGoal(cmd.Context(), id, patch); err != nil {
			return err
		}
		fmt.Printf("%s Goal %d updated\n", ui.RenderPass("✓"), id)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	GroupID: "goals",
	Short:   "Delete goals",
	Args:    cobra.MinimumNArgs(1),
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
		if _, err := c.waitReady(cmd.Context()); err != nil {
			return err
		}

		if len(ids) == 1 {
			err = c.svc.DeleteGoal(cmd.Context(), ids[0])
		} else {
			err = c.svc.BulkDelete(cmd.Context(), ids)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s Deleted %d goal(s)\n", ui.RenderPass("✓"), len(ids))
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:     "mv <id>... (--folder <id> | --unorganized)",
	GroupID: "goals",
	Short:   "Move goals to a folder",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("folder") && !cmd.Flags().Changed("unorganized") {
			return fmt.Errorf("one of --folder or --unorganized is required")
		}
		folderID, err := folderFromFlags(cmd)
		if err != nil {
			return err
		}

		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.waitReady(cmd.Context()); err != nil {
			return err
		}
		if err := c.svc.BulkMove(cmd.Context(), ids, folderID); err != nil {
			return err
		}
		fmt.Printf("%s Moved %d goal(s)\n", ui.RenderPass("✓"), len(ids))
		return nil
	},
}

var dupesCmd = &cobra.Command{
	Use:     "dupes",
	GroupID: "goals",
	Short:   "Find goals with the same title and description",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.waitReady(cmd.Context()); err != nil {
			return err
		}

		report := c.svc.CheckForDuplicates()
		if report.Found {
			fmt.Println(ui.RenderGoals(report.Goals, report))
		}
		if notify, _ := cmd.Flags().GetBool("notify"); notify {
			return c.svc.NotifyDuplicates(cmd.Context(), report)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "backend",
	Short:   "Show connection, identity and goal summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Backend: %s\n", cfg.Client.URL)
		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), err)
			return nil
		}
		defer c.Close()

		who := c.user.ID
		if c.user.Email != "" {
			who += " <" + c.user.Email + ">"
		}
		fmt.Printf("Signed in as: %s\n", who)

		if err := c.client.Probe(cmd.Context()); err != nil {
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
			return nil
		}
		fmt.Printf("%s Backend healthy\n", ui.RenderPass("✓"))

		st, err := c.waitReady(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(ui.RenderStats(st.Stats))
		return nil
	},
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("folder", 0, "Only goals in this folder")
	cmd.Flags().Bool("unorganized", false, "Only goals without a folder")
	cmd.Flags().StringP("search", "s", "", "Only goals whose title or description contains this text")
}

func filtersFromFlags(cmd *cobra.Command) (goalsync.Filters, error) {
	var f goalsync.Filters
	folderID, err := folderFromFlags(cmd)
	if err != nil {
		return f, err
	}
	f.FolderID = folderID
	f.Unorganized, _ = cmd.Flags().GetBool("unorganized")
	f.Search, _ = cmd.Flags().GetString("search")
	return f, nil
}

// folderFromFlags reads --folder / --unorganized. nil means unorganized or unset.
func folderFromFlags(cmd *cobra.Command) (*int64, error) {
	unorganized, _ := cmd.Flags().GetBool("unorganized")
	if !cmd.Flags().Changed("folder") {
		return nil, nil
	}
	if unorganized {
		return nil, fmt.Errorf("--folder and --unorganized are mutually exclusive")
	}
	id, _ := cmd.Flags().GetInt64("folder")
	if id <= 0 {
		return nil, fmt.Errorf("invalid folder id %d", id)
	}
	return &id, nil
}

func patchFromFlags(cmd *cobra.Command) (schema.GoalPatch, error) {
	var p schema.GoalPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		p.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		p.Description = &v
	}
	if flags.Changed("progress") {
		v, _ := flags.GetInt("progress")
		p.Progress = &v
	}
	if flags.Changed("target") {
		raw, _ := flags.GetString("target")
		v, err := schema.ParseTargetDate(raw, time.Now())
		if err != nil {
			return p, err
		}
		p.TargetDate = &v
	}
	if flags.Changed("tags") {
		v, _ := flags.GetStringSlice("tags")
		p.Tags = &v
	}
	if flags.Changed("folder") || flags.Changed("unorganized") {
		id, err := folderFromFlags(cmd)
		if err != nil {
			return p, err
		}
		p.Folder = &schema.FolderRef{ID: id}
	}
	if p.IsEmpty() {
		return p, fmt.Errorf("nothing to change: pass at least one field flag")
	}
	return p, nil
}

func addGoalFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("description", "d", "", "Description")
	cmd.Flags().IntP("progress", "p", 0, "Progress 0-100")
	cmd.Flags().StringP("target", "t", "", "Target date (YYYY-MM-DD or e.g. \"next friday\")")
	cmd.Flags().StringSlice("tags", nil, "Comma-separated tags")
	cmd.Flags().Int64("folder", 0, "Folder id")
	cmd.Flags().Bool("unorganized", false, "No folder")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().Bool("json", false, "Print goals and stats as JSON")
	addFilterFlags(watchCmd)

	addGoalFieldFlags(addCmd)
	addGoalFieldFlags(editCmd)
	editCmd.Flags().String("title", "", "Title")

	mvCmd.Flags().Int64("folder", 0, "Destination folder id")
	mvCmd.Flags().Bool("unorganized", false, "Move out of any folder")

	dupesCmd.Flags().Bool("notify", false, "Store a notification for each duplicate")

	rootCmd.AddCommand(listCmd, watchCmd, addCmd, editCmd, rmCmd, mvCmd, dupesCmd, statusCmd)
}
