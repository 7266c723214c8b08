package schema

import (
	"strings"
	"time"
)

// Folder groups goals. Goals without a folder live in the unorganized bucket,
// which is represented by a Folder with a nil ID.
type Folder struct {
	ID          *int64    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Unorganized returns the synthetic folder holding goals with no folder.
func Unorganized() Folder {
	return Folder{Name: "Unorganized"}
}

// IsUnorganized reports whether f is the synthetic bucket.
func (f Folder) IsUnorganized() bool {
	return f.ID == nil
}

// FolderInput carries the fields for creating a folder.
type FolderInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Validate checks the folder input.
func (in FolderInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("folder name is required")
	}
	if len(name) > MaxTitleLength {
		return invalid("folder name must be %d characters or less", MaxTitleLength)
	}
	return nil
}

// FolderPatch renames or re-describes a folder.
type FolderPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Validate checks the fields that are set.
func (p FolderPatch) Validate() error {
	if p.Name == nil && p.Description == nil {
		return invalid("patch is empty")
	}
	if p.Name != nil {
		return FolderInput{Name: *p.Name}.Validate()
	}
	return nil
}
