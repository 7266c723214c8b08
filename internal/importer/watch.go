package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// Watch imports dir, then keeps importing goal files written to it until
// ctx is cancelled. Changes are debounced: a file is imported once it has
// been quiet for Config.Debounce. Removing a file never deletes its goal.
func (im *Importer) Watch(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create import directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before the initial import so nothing written in between is missed.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch import directory %s: %w", dir, err)
	}
	if _, err := im.ImportDir(ctx, dir); err != nil {
		return fmt.Errorf("initial import failed: %w", err)
	}
	im.config.Logger.Printf("Watching: %s", dir)

	ticker := time.NewTicker(im.config.Debounce)
	defer ticker.Stop()

	pending := make(map[string]time.Time) // path -> last event
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, ok := schema.FormatOf(event.Name); !ok {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
				im.Forget(event.Name)
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			im.config.Logger.Printf("Watcher error: %v", err)

		case now := <-ticker.C:
			for path, at := range pending {
				if now.Sub(at) < im.config.Debounce {
					continue
				}
				delete(pending, path)
				im.importQueued(ctx, path)
			}
		}
	}
}

func (im *Importer) importQueued(ctx context.Context, path string) {
	_, err := im.ImportFile(ctx, path)
	switch {
	case err == nil, errors.Is(err, ErrUnchanged):
	case errors.Is(err, os.ErrNotExist):
		im.Forget(path)
	default:
		im.config.Logger.Printf("WARNING: Failed to import %s: %v", filepath.Base(path), err)
	}
}
