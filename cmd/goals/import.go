package main

import (
	"fmt"

	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/importer"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:     "import [dir]",
	GroupID: "goals",
	Short:   "Create goals from JSON, TOML or YAML files",
	Long: `Create a goal for every *.json, *.toml, *.yaml or *.yml file in dir
(default: import.dir).

A goal file looks like:

  title: Run a half marathon
  description: Build up mileage slowly
  progress: 10
  target: next friday        # or 2026-10-01
  tags: [health, running]
  subgoals: [Buy shoes, Run 10K]

With --watch, the directory is kept as an inbox: files dropped into it or
edited are imported after they settle. A file is only re-imported when its
content changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Import.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		watch, _ := cmd.Flags().GetBool("watch")

		c, err := connect(cmd.Context(), goalsync.Filters{})
		if err != nil {
			return err
		}
		defer c.Close()

		im := importer.New(c.svc, &importer.Config{
			Debounce: cfg.Import.Debounce,
			Logger:   logs.New("import"),
		})

		if watch {
			fmt.Printf("%s Watching %s for goal files...\n", ui.RenderAccent("👀"), dir)
			fmt.Printf("\nPress Ctrl+C to stop\n\n")
			return im.Watch(cmd.Context(), dir)
		}

		res, err := im.ImportDir(cmd.Context(), dir)
		if err != nil {
			return err
		}
		fmt.Printf("%s Import complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Imported: %d\n", res.Imported)
		fmt.Printf("   Unchanged: %d\n", res.Unchanged)
		if res.Failed > 0 {
			fmt.Printf("   %s\n", ui.RenderWarn(fmt.Sprintf("Failed: %d (see log)", res.Failed)))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolP("watch", "w", false, "Keep watching the directory")
	rootCmd.AddCommand(importCmd)
}
