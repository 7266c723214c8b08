package schema

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for target dates.
const DateLayout = "2006-01-02"

// MaxTitleLength bounds goal, subgoal and folder titles.
const MaxTitleLength = 500

// Goal is a personal goal owned by a single user.
type Goal struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Progress    int       `json:"progress"` // 0-100
	TargetDate  string    `json:"target_date"`
	Tags        []string  `json:"tags"`
	FolderID    *int64    `json:"folder_id"` // nil = unorganized
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a deep copy of the goal.
func (g Goal) Clone() Goal {
	c := g
	if g.Tags != nil {
		c.Tags = slices.Clone(g.Tags)
	}
	if g.FolderID != nil {
		id := *g.FolderID
		c.FolderID = &id
	}
	return c
}

// InFolder reports whether the goal belongs to folderID (nil = unorganized).
func (g Goal) InFolder(folderID *int64) bool {
	if folderID == nil || g.FolderID == nil {
		return folderID == nil && g.FolderID == nil
	}
	return *folderID == *g.FolderID
}

// Equal compares two goals field by field. Tag order is ignored.
func (g Goal) Equal(o Goal) bool {
	return g.ID == o.ID &&
		g.UserID == o.UserID &&
		g.Title == o.Title &&
		g.Description == o.Description &&
		g.Progress == o.Progress &&
		g.TargetDate == o.TargetDate &&
		SameTags(g.Tags, o.Tags) &&
		g.InFolder(o.FolderID) &&
		g.CreatedAt.Equal(o.CreatedAt)
}

// SameTags reports whether a and b hold the same tags regardless of order.
func SameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// ProgressFromSubgoals returns round(100*completed/total).
// ok is false when there are no subgoals, meaning progress is left untouched.
func ProgressFromSubgoals(completed, total int) (progress int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	return int(math.Round(100 * float64(completed) / float64(total))), true
}

// GoalInput carries the fields a user supplies when creating a goal.
type GoalInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Progress    int      `json:"progress"`
	TargetDate  string   `json:"target_date"`
	Tags        []string `json:"tags"`
	FolderID    *int64   `json:"folder_id"`
}

// Normalize trims whitespace and drops empty tags.
func (in *GoalInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.TargetDate = strings.TrimSpace(in.TargetDate)
	in.Tags = normalizeTags(in.Tags)
}

// Validate checks the input before anything is sent to the backend.
func (in GoalInput) Validate() error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if err := validateProgress(in.Progress); err != nil {
		return err
	}
	return validateDate(in.TargetDate)
}

// Goal builds the row that an insert of this input produces.
func (in GoalInput) Goal(id int64, userID string, createdAt time.Time) Goal {
	g := Goal{
		ID:          id,
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Progress:    in.Progress,
		TargetDate:  in.TargetDate,
		Tags:        slices.Clone(in.Tags),
		FolderID:    in.FolderID,
		CreatedAt:   createdAt,
	}
	if g.Tags == nil {
		g.Tags = []string{}
	}
	return g
}

// FolderRef is a folder assignment inside a patch. A nil ID moves the goal
// to the unorganized bucket.
type FolderRef struct {
	ID *int64
}

// GoalPatch is a partial update. Nil fields are left unchanged.
type GoalPatch struct {
	Title       *string
	Description *string
	Progress    *int
	TargetDate  *string
	Tags        *[]string
	Folder      *FolderRef
}

// MoveTo returns a patch that only reassigns the folder.
func MoveTo(folderID *int64) GoalPatch {
	return GoalPatch{Folder: &FolderRef{ID: folderID}}
}

// IsEmpty reports whether the patch changes nothing.
func (p GoalPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Progress == nil &&
		p.TargetDate == nil && p.Tags == nil && p.Folder == nil
}

// Validate checks the fields that are set.
func (p GoalPatch) Validate() error {
	if p.IsEmpty() {
		return invalid("patch is empty")
	}
	if p.Title != nil {
		if err := validateTitle(strings.TrimSpace(*p.Title)); err != nil {
			return err
		}
	}
	if p.Progress != nil {
		if err := validateProgress(*p.Progress); err != nil {
			return err
		}
	}
	if p.TargetDate != nil {
		if err := validateDate(strings.TrimSpace(*p.TargetDate)); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of g with the patch applied.
func (p GoalPatch) Apply(g Goal) Goal {
	out := g.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.Progress != nil {
		out.Progress = *p.Progress
	}
	if p.TargetDate != nil {
		out.TargetDate = strings.TrimSpace(*p.TargetDate)
	}
	if p.Tags != nil {
		out.Tags = normalizeTags(*p.Tags)
	}
	if p.Folder != nil {
		out.FolderID = nil
		if p.Folder.ID != nil {
			id := *p.Folder.ID
			out.FolderID = &id
		}
	}
	return out
}

// MarshalJSON emits only the fields that are set; a folder move to the
// unorganized bucket is encoded as "folder_id": null.
func (p GoalPatch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.Progress != nil {
		m["progress"] = *p.Progress
	}
	if p.TargetDate != nil {
		m["target_date"] = *p.TargetDate
	}
	if p.Tags != nil {
		m["tags"] = normalizeTags(*p.Tags)
	}
	if p.Folder != nil {
		m["folder_id"] = p.Folder.ID
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the object produced by MarshalJSON. Unknown keys are rejected.
func (p *GoalPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = GoalPatch{}
	for key, val := range raw {
		var err error
		switch key {
		case "title":
			p.Title = new(string)
			err = json.Unmarshal(val, p.Title)
		case "description":
			p.Description = new(string)
			err = json.Unmarshal(val, p.Description)
		case "progress":
			p.Progress = new(int)
			err = json.Unmarshal(val, p.Progress)
		case "target_date":
			p.TargetDate = new(string)
			err = json.Unmarshal(val, p.TargetDate)
		case "tags":
			tags := []string{}
			err = json.Unmarshal(val, &tags)
			p.Tags = &tags
		case "folder_id":
			p.Folder = &FolderRef{}
			if !bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
				p.Folder.ID = new(int64)
				err = json.Unmarshal(val, p.Folder.ID)
			}
		default:
			return invalid("column %q cannot be updated", key)
		}
		if err != nil {
			return invalid("bad value for %s: %v", key, err)
		}
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return invalid("title is required")
	}
	if len(title) > MaxTitleLength {
		return invalid("title must be %d characters or less (got %d)", MaxTitleLength, len(title))
	}
	return nil
}

func validateProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return invalid("progress must be between 0 and 100 (got %d)", progress)
	}
	return nil
}

func validateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return invalid("target_date must be YYYY-MM-DD (got %q)", date)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
