// Package coach asks a language model for advice about the user's goals.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("coach: no API key (set coach.api_key or ANTHROPIC_API_KEY)")

const systemPrompt = "You are a concise, encouraging goal coach. Answer in a few short sentences."

// Config holds coach configuration.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int

	// BaseURL overrides the API endpoint (default: the SDK's)
	BaseURL string

	// Logger for request activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. APIKey is left empty.
func DefaultConfig() *Config {
	return &Config{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 1024,
		Logger:    log.New(os.Stderr, "[coach] ", log.LstdFlags),
	}
}

// Coach sends goal summaries with a question to the Messages API.
type Coach struct {
	client anthropic.Client
	config *Config
}

// New creates a coach.
func New(config *Config) (*Coach, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &Coach{client: anthropic.NewClient(opts...), config: config}, nil
}

// Advise asks question about goals and returns the model's text reply.
func (c *Coach) Advise(ctx context.Context, goals []schema.Goal, question string, opts ...option.RequestOption) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", schema.ErrValidation)
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Summarize(goals) + "\n\n" + question)),
		},
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to ask coach: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	c.config.Logger.Printf("Coach replied (%d input, %d output tokens)", msg.Usage.InputTokens, msg.Usage.OutputTokens)
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// Summarize describes goals as plain text for the prompt.
func Summarize(goals []schema.Goal) string {
	if len(goals) == 0 {
		return "I have no goals yet."
	}
	stats := goalsync.ComputeStats(goals)
	var b strings.Builder
	fmt.Fprintf(&b, "My goals (%d total, %d completed, %d%% average progress):\n", stats.Total, stats.Completed, stats.Average)
	for _, g := range goals {
		fmt.Fprintf(&b, "- %s: %d%%", g.Title, g.Progress)
		if g.TargetDate != "" {
			fmt.Fprintf(&b, ", due %s", g.TargetDate)
		}
		if g.Description != "" {
			fmt.Fprintf(&b, " (%s)", g.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
