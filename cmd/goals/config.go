package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mschirtzinger/goalkeeper/internal/config"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "backend",
	Short:   "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config file",
	Long: `Write a commented config file with every key at its default.

By default the project file ./.goals/config.yaml is written; --global writes
~/.goals/config.yaml instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		path := config.ProjectConfigPath("")
		if global {
			path = config.GlobalConfigPath("")
		}
		if path == "" {
			return fmt.Errorf("cannot determine config location")
		}
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := config.WriteDefault(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		token := cfg.Client.Token
		if token != "" {
			token = "(set)"
		}
		key := cfg.Coach.APIKey
		if key != "" {
			key = "(set)"
		}
		fmt.Printf("server.addr       %s\n", cfg.Server.Addr)
		fmt.Printf("server.db_path    %s\n", cfg.Server.DBPath)
		fmt.Printf("server.driver     %s\n", cfg.Server.Driver)
		fmt.Printf("client.url        %s\n", cfg.Client.URL)
		fmt.Printf("client.token      %s\n", token)
		fmt.Printf("sync.base_delay   %s\n", cfg.Sync.BaseDelay)
		fmt.Printf("sync.max_retries  %d\n", cfg.Sync.MaxRetries)
		fmt.Printf("sync.probe_table  %s\n", cfg.Sync.ProbeTable)
		fmt.Printf("log.file          %s\n", cfg.Log.File)
		fmt.Printf("coach.api_key     %s\n", key)
		fmt.Printf("coach.model       %s\n", cfg.Coach.Model)
		fmt.Printf("import.dir        %s\n", cfg.Import.Dir)
		fmt.Printf("import.debounce   %s\n", cfg.Import.Debounce)
	},
}

func init() {
	configInitCmd.Flags().Bool("global", false, "Write ~/.goals/config.yaml")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
