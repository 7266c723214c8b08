// Command goals tracks personal goals against a goals backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mschirtzinger/goalkeeper/internal/config"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	logs    *config.Logs
)

var rootCmd = &cobra.Command{
	Use:   "goals",
	Short: "Track personal goals with live sync",
	Long: `goals keeps a live, filtered view of your goals in sync with a goals backend.

Start a backend with 'goals serve', issue yourself a token with
'goals token issue <user>', then point client commands at it with
client.url and client.token (or GOALS_CLIENT_URL / GOALS_CLIENT_TOKEN).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Options{File: cfgFile})
		if err != nil {
			return err
		}
		logs = config.OpenLogs(cfg.Log)
		ui.Init(os.Stdout)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs != nil {
			return logs.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.goals/config.yaml and ./.goals/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "goals", Title: "Goals:"},
		&cobra.Group{ID: "organize", Title: "Organizing and sharing:"},
		&cobra.Group{ID: "backend", Title: "Backend:"},
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
