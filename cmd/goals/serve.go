package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mschirtzinger/goalkeeper/internal/realtime"
	"github.com/mschirtzinger/goalkeeper/internal/server"
	"github.com/mschirtzinger/goalkeeper/internal/store"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "backend",
	Short:   "Run the goals backend (REST + realtime)",
	Long: `Run the goals backend in the foreground.

The backend stores goals in a local SQLite database (server.db_path) and
serves:
  GET/POST/PATCH/DELETE /rest/v1/{table}   row access, scoped to the token's user
  GET /realtime/v1                         websocket change feed
  GET /auth/v1/user                        identity behind a token
  GET /health                              liveness

Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		srv := server.New(db, &server.Config{
			Addr:   cfg.Server.Addr,
			Hub:    &realtime.Config{Logger: logs.New("realtime")},
			Logger: logs.New("server"),
		})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		fmt.Printf("%s Goals backend listening on http://%s\n", ui.RenderAccent("🚀"), srv.Addr())
		fmt.Printf("   Database: %s (%s)\n", cfg.Server.DBPath, cfg.Server.Driver)
		fmt.Printf("   Realtime: ws://%s/realtime/v1\n", srv.Addr())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		<-cmd.Context().Done()

		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		fmt.Println("Backend stopped")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:     "token",
	GroupID: "backend",
	Short:   "Manage session tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <user-id>",
	Short: "Issue a session token for a user",
	Long: `Issue a bearer token for user-id directly against the local database.

A user's first token also creates their welcome notification.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		sess, err := db.CreateSession(cmd.Context(), args[0], email)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Printf("%s Token for %s\n", ui.RenderPass("✓"), sess.UserID)
		fmt.Printf("   %s\n\n", sess.Token)
		fmt.Printf("Use it with:\n   export GOALS_CLIENT_TOKEN=%s\n", sess.Token)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.RevokeSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Token revoked\n", ui.RenderPass("✓"))
		return nil
	},
}

func openStore(ctx context.Context) (*store.DB, error) {
	path := cfg.Server.DBPath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(wd, path)
	}
	db, err := store.OpenDriver(cfg.Server.Driver, path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	tokenIssueCmd.Flags().String("email", "", "Email recorded with the session")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}
