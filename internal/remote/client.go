// Package remote is the client SDK for the goal backend served by
// internal/server. It covers row CRUD over REST, the realtime change feed
// over websockets, and the health probe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"golang.org/x/mod/semver"
	"golang.org/x/oauth2"
)

// Client is the set of backend capabilities the sync loops consume.
type Client interface {
	Query(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, rows any) ([]json.RawMessage, error)
	Update(ctx context.Context, table string, patch any, f schema.Filter) ([]json.RawMessage, error)
	Delete(ctx context.Context, table string, f schema.Filter) error
	Subscribe(ctx context.Context, table string, filter EventFilter, fn func(schema.ChangeEvent)) (Subscription, error)
	Probe(ctx context.Context) error
}

// Config holds client configuration.
type Config struct {
	// BaseURL of the backend, e.g. http://127.0.0.1:8787 (required)
	BaseURL string

	// Tokens supplies the bearer token for every request (required)
	Tokens oauth2.TokenSource

	// ProbeTable is read by Probe (default: app_meta)
	ProbeTable string

	// Timeout bounds each REST request (default: 30s)
	Timeout time.Duration

	// Logger for subscription activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. BaseURL and Tokens must be set.
func DefaultConfig() *Config {
	return &Config{
		ProbeTable: schema.TableMeta,
		Timeout:    30 * time.Second,
		Logger:     log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// HTTPClient talks to the backend over HTTP.
type HTTPClient struct {
	base   *url.URL
	tokens oauth2.TokenSource
	http   *http.Client
	config *Config
}

var _ Client = (*HTTPClient)(nil)

// New creates an HTTPClient.
func New(config *Config) (*HTTPClient, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.ProbeTable == "" {
		config.ProbeTable = defaults.ProbeTable
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", config.BaseURL)
	}

	return &HTTPClient{
		base:   base,
		tokens: config.Tokens,
		http: &http.Client{
			// The session store is read per request so sign-outs take effect
			// immediately; oauth2.NewClient would cache the token.
			Transport: &oauth2.Transport{Source: config.Tokens, Base: http.DefaultTransport},
			Timeout:   config.Timeout,
		},
		config: config,
	}, nil
}

// Query returns the rows of table matching f.
func (c *HTTPClient) Query(ctx context.Context, table string, f schema.Filter) ([]json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, table, f, nil)
}

// Insert creates rows. rows may be a single value or a slice; the backend
// writes a slice in one transaction.
func (c *HTTPClient) Insert(ctx context.Context, table string, rows any) ([]json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, table, schema.Filter{}, rows)
}

// Update applies patch to every row matching f and returns the new rows.
func (c *HTTPClient) Update(ctx context.Context, table string, patch any, f schema.Filter) ([]json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, table, f, patch)
}

// Delete removes every row matching f.
func (c *HTTPClient) Delete(ctx context.Context, table string, f schema.Filter) error {
	_, err := c.do(ctx, http.MethodDelete, table, f, nil)
	return err
}

// Probe reads one row of the probe table. When the probe table is the
// metadata table, the backend schema major version must match ours.
func (c *HTTPClient) Probe(ctx context.Context) error {
	rows, err := c.do(ctx, http.MethodGet, c.config.ProbeTable, schema.Filter{}.Take(1), nil)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	if c.config.ProbeTable != schema.TableMeta {
		return nil
	}
	metas, err := Decode[schema.Meta](rows)
	if err != nil || len(metas) == 0 {
		return fmt.Errorf("health probe returned no metadata: %w", ErrIncompatible)
	}
	return checkSchemaVersion(metas[0].SchemaVersion)
}

// User is the identity behind a bearer token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// User resolves the current token to its identity.
func (c *HTTPClient) User(ctx context.Context) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("auth", "v1", "user").String(), nil)
	if err != nil {
		return User{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("failed to look up user: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return User{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, parseError(resp.StatusCode, data)
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return u, nil
}

func checkSchemaVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("backend schema version %q: %w", v, ErrIncompatible)
	}
	if semver.Major(v) != semver.Major(schema.CurrentSchemaVersion) {
		return fmt.Errorf("backend schema %s, client expects %s: %w",
			v, semver.Major(schema.CurrentSchemaVersion), ErrIncompatible)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, table string, f schema.Filter, body any) ([]json.RawMessage, error) {
	u := c.base.JoinPath("rest", "v1", table)
	u.RawQuery = f.Values().Encode()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, data)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return rows, nil
}

func parseError(status int, data []byte) *Error {
	e := &Error{Status: status}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		e.Code, e.Message = body.Code, body.Message
		return e
	}
	e.Message = strings.TrimSpace(string(data))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// Decode unmarshals rows into T.
func Decode[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeOne unmarshals the first row. It fails when rows is empty.
func DecodeOne[T any](rows []json.RawMessage) (T, error) {
	var v T
	if len(rows) == 0 {
		return v, fmt.Errorf("no rows returned")
	}
	if err := json.Unmarshal(rows[0], &v); err != nil {
		return v, fmt.Errorf("failed to decode row: %w", err)
	}
	return v, nil
}
