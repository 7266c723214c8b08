// Package importer turns goal files on disk into goals.
//
// A directory is imported once with ImportDir, or watched as an inbox with
// Watch. Files are remembered by content hash: a file is imported again only
// when its bytes change.
package importer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// ErrUnchanged is returned by ImportFile when the file was already imported
// with the same content.
var ErrUnchanged = errors.New("goal file unchanged")

// Goals creates goals and their subgoals. *goalsync.Service satisfies it.
type Goals interface {
	AddGoal(ctx context.Context, in schema.GoalInput) (int64, error)
	AddSubgoal(ctx context.Context, in schema.SubgoalInput) (schema.Subgoal, error)
}

// Config holds importer configuration.
type Config struct {
	// Debounce is how long a file must stay quiet before it is imported
	Debounce time.Duration

	// Now anchors relative target dates such as "tomorrow"
	Now func() time.Time

	// Logger for import activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 250 * time.Millisecond,
		Now:      time.Now,
		Logger:   log.New(os.Stderr, "[import] ", log.LstdFlags),
	}
}

// Result counts the outcome of a directory import.
type Result struct {
	Imported  int
	Unchanged int
	Failed    int
}

// Importer imports goal files through Goals.
type Importer struct {
	goals  Goals
	config *Config

	mu   sync.Mutex
	seen map[string][sha256.Size]byte // absolute path -> content hash
}

// New creates an importer. A nil config uses DefaultConfig.
func New(goals Goals, config *Config) *Importer {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Importer{
		goals:  goals,
		config: config,
		seen:   make(map[string][sha256.Size]byte),
	}
}

// ImportFile creates the goal described by path, then its subgoals.
// It returns ErrUnchanged if the same content was imported before.
func (im *Importer) ImportFile(ctx context.Context, path string) (int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	format, ok := schema.FormatOf(abs)
	if !ok {
		return 0, fmt.Errorf("unsupported goal file extension: %s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("failed to read goal file %s: %w", path, err)
	}
	sum := sha256.Sum256(data)

	im.mu.Lock()
	prev, known := im.seen[abs]
	im.mu.Unlock()
	if known && prev == sum {
		return 0, ErrUnchanged
	}

	gf, err := schema.DecodeGoalFile(data, format)
	if err != nil {
		return 0, fmt.Errorf("failed to parse goal file %s: %w", path, err)
	}
	in, err := gf.Input(im.config.Now())
	if err != nil {
		return 0, fmt.Errorf("invalid goal file %s: %w", path, err)
	}

	id, err := im.goals.AddGoal(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("failed to add goal from %s: %w", path, err)
	}
	im.mu.Lock()
	im.seen[abs] = sum
	im.mu.Unlock()

	for _, title := range gf.Subgoals {
		if _, err := im.goals.AddSubgoal(ctx, schema.SubgoalInput{GoalID: id, Title: title}); err != nil {
			im.config.Logger.Printf("Warning: failed to add subgoal %q to goal %d: %v", title, id, err)
		}
	}

	im.config.Logger.Printf("Imported goal %d (%s) from %s", id, in.Title, filepath.Base(path))
	return id, nil
}

// ImportDir imports every goal file in dir. Individual file failures are
// logged and counted but don't stop the import. A missing directory is
// skipped.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Result, error) {
	var res Result

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		im.config.Logger.Printf("Import directory doesn't exist: %s (skipping)", dir)
		return res, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("failed to read import directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := schema.FormatOf(entry.Name()); ok {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := im.ImportFile(ctx, path)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, ErrUnchanged):
			res.Unchanged++
		default:
			im.config.Logger.Printf("WARNING: Failed to import %s: %v", filepath.Base(path), err)
			res.Failed++
		}
	}

	im.config.Logger.Printf("Import complete: imported=%d unchanged=%d failed=%d",
		res.Imported, res.Unchanged, res.Failed)
	return res, nil
}

// Forget drops the remembered hash for path so the next import re-reads it.
func (im *Importer) Forget(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	im.mu.Lock()
	delete(im.seen, abs)
	im.mu.Unlock()
}
