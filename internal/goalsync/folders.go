package goalsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// ListFolders returns the unorganized bucket followed by the user's folders.
func (s *Service) ListFolders(ctx context.Context) ([]schema.Folder, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.client.Query(ctx, schema.TableFolders, schema.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	folders, err := remote.Decode[schema.Folder](rows)
	if err != nil {
		return nil, err
	}
	return append([]schema.Folder{schema.Unorganized()}, folders...), nil
}

// CreateFolder creates a folder.
func (s *Service) CreateFolder(ctx context.Context, in schema.FolderInput) (schema.Folder, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		s.notifier.Notify(Notice{Level: LevelWarning, Title: "Invalid folder", Message: err.Error()})
		return schema.Folder{}, err
	}
	if err := s.ready(); err != nil {
		return schema.Folder{}, err
	}
	rows, err := s.client.Insert(ctx, schema.TableFolders, in)
	if err != nil {
		return schema.Folder{}, s.failed("Create folder", err)
	}
	return remote.DecodeOne[schema.Folder](rows)
}

// DeleteFolder removes a folder. Its goals move to the unorganized bucket.
// The unorganized bucket itself cannot be deleted.
func (s *Service) DeleteFolder(ctx context.Context, id *int64) error {
	if id == nil {
		err := fmt.Errorf("%w: the unorganized folder cannot be deleted", schema.ErrValidation)
		s.notifier.Notify(Notice{Level: LevelWarning, Title: "Invalid folder", Message: err.Error()})
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.client.Delete(ctx, schema.TableFolders, schema.ByID(*id)); err != nil {
		return s.failed("Delete folder", err)
	}
	return nil
}
