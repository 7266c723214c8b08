package main

import (
	"fmt"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/coach"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var coachCmd = &cobra.Command{
	Use:     "coach <question>",
	GroupID: "goals",
	Short:   "Ask a coaching assistant about your goals",
	Long: `Send a summary of your goals and a question to the coaching assistant.

Requires coach.api_key (or ANTHROPIC_API_KEY).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		advisor, err := coach.New(&coach.Config{
			APIKey:    cfg.Coach.APIKey,
			Model:     cfg.Coach.Model,
			MaxTokens: cfg.Coach.MaxTokens,
			Logger:    logs.New("coach"),
		})
		if err != nil {
			return err
		}
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

		reply, err := advisor.Advise(cmd.Context(), st.Goals, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.RenderAccent("Coach:"), reply)
		return nil
	},
}

func init() {
	addFilterFlags(coachCmd)
	rootCmd.AddCommand(coachCmd)
}
