package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/retry"
	"github.com/mschirtzinger/goalkeeper/internal/session"
	"github.com/mschirtzinger/goalkeeper/internal/ui"
	"golang.org/x/oauth2"
)

// conn is a signed-in connection to the backend with a running sync service.
type conn struct {
	client   *remote.HTTPClient
	sessions *session.Store
	user     remote.User
	svc      *goalsync.Service
}

// connect resolves the configured token to a user, signs in and starts the
// sync service with filters.
func connect(ctx context.Context, filters goalsync.Filters) (*conn, error) {
	token := cfg.Client.Token
	if token == "" {
		return nil, errors.New("no session token: run 'goals token issue <user>' and set client.token or GOALS_CLIENT_TOKEN")
	}

	whoami, err := remote.New(&remote.Config{
		BaseURL: cfg.Client.URL,
		Tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Logger:  logs.New("remote"),
	})
	if err != nil {
		return nil, err
	}
	user, err := whoami.User(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	sessions := session.New()
	client, err := remote.New(&remote.Config{
		BaseURL:    cfg.Client.URL,
		Tokens:     sessions,
		ProbeTable: cfg.Sync.ProbeTable,
		Logger:     logs.New("remote"),
	})
	if err != nil {
		return nil, err
	}
	sessions.SignIn(session.Identity{UserID: user.ID, Email: user.Email, Token: token})

	svc := goalsync.New(client, sessions,
		goalsync.WithLogger(logs.New("sync")),
		goalsync.WithNotifier(goalsync.NotifierFunc(printNotice)),
		goalsync.WithRetryPolicy(retry.Policy{BaseDelay: cfg.Sync.BaseDelay, MaxRetries: cfg.Sync.MaxRetries}),
		goalsync.WithFilters(filters),
	)
	return &conn{client: client, sessions: sessions, user: user, svc: svc}, nil
}

func (c *conn) Close() error {
	return c.svc.Close()
}

// waitReady blocks until the first fetch succeeds or retries run out.
func (c *conn) waitReady(ctx context.Context) (goalsync.State, error) {
	settled := func(st goalsync.State) bool {
		return st.Status == goalsync.StatusReady || st.Status == goalsync.StatusFailed
	}
	ch := make(chan goalsync.State, 1)
	stop := c.svc.OnChange(func(st goalsync.State) {
		if settled(st) {
			select {
			case ch <- st:
			default:
			}
		}
	})
	defer stop()

	st := c.svc.State()
	if !settled(st) {
		select {
		case st = <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
	if st.Status == goalsync.StatusFailed {
		return st, fmt.Errorf("failed to load goals: %w", st.Err)
	}
	return st, nil
}

func printNotice(n goalsync.Notice) {
	w := os.Stdout
	if n.Level == goalsync.LevelError || n.Level == goalsync.LevelWarning {
		w = os.Stderr
	}
	fmt.Fprintln(w, ui.RenderNotice(n))
}
