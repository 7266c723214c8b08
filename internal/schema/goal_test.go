package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestGoalInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   GoalInput
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid goal",
			input: GoalInput{Title: "Run 5k", Progress: 40, TargetDate: "2026-06-01"},
		},
		{
			name:  "no target date",
			input: GoalInput{Title: "Read more"},
		},
		{
			name:    "missing title",
			input:   GoalInput{Description: "x"},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			input:   GoalInput{Title: strings.Repeat("a", 501)},
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name:    "negative progress",
			input:   GoalInput{Title: "x", Progress: -1},
			wantErr: true,
			errMsg:  "progress must be between 0 and 100",
		},
		{
			name:    "progress over 100",
			input:   GoalInput{Title: "x", Progress: 101},
			wantErr: true,
			errMsg:  "progress must be between 0 and 100",
		},
		{
			name:    "bad date",
			input:   GoalInput{Title: "x", TargetDate: "06/01/2026"},
			wantErr: true,
			errMsg:  "target_date must be YYYY-MM-DD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("Validate() error %v is not ErrValidation", err)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestGoalInput_Normalize(t *testing.T) {
	in := GoalInput{Title: "  Run  ", Tags: []string{" fitness", "", "  "}}
	in.Normalize()
	if in.Title != "Run" {
		t.Errorf("Title = %q, want %q", in.Title, "Run")
	}
	if len(in.Tags) != 1 || in.Tags[0] != "fitness" {
		t.Errorf("Tags = %v, want [fitness]", in.Tags)
	}
}

func TestGoalPatch_Apply(t *testing.T) {
	folder := int64(3)
	g := Goal{ID: 1, Title: "Old", Progress: 10, Tags: []string{"a"}, FolderID: &folder}

	got := GoalPatch{Title: ptr("New"), Progress: ptr(55)}.Apply(g)
	if got.Title != "New" || got.Progress != 55 {
		t.Errorf("Apply() = %+v", got)
	}
	if g.Title != "Old" {
		t.Error("Apply() mutated its input")
	}
	if !got.InFolder(&folder) {
		t.Error("Apply() dropped the folder")
	}

	moved := MoveTo(nil).Apply(g)
	if moved.FolderID != nil {
		t.Errorf("MoveTo(nil) FolderID = %v, want nil", *moved.FolderID)
	}
	if g.FolderID == nil || *g.FolderID != 3 {
		t.Error("MoveTo mutated its input")
	}
}

func TestGoalPatch_Validate(t *testing.T) {
	if err := (GoalPatch{}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("empty patch: got %v, want ErrValidation", err)
	}
	if err := (GoalPatch{Title: ptr("  ")}).Validate(); err == nil {
		t.Error("blank title: expected error")
	}
	if err := (GoalPatch{Progress: ptr(150)}).Validate(); err == nil {
		t.Error("progress 150: expected error")
	}
	if err := MoveTo(nil).Validate(); err != nil {
		t.Errorf("move to unorganized: unexpected error %v", err)
	}
}

func TestGoalPatch_JSON(t *testing.T) {
	tests := []struct {
		name  string
		patch GoalPatch
		want  string
	}{
		{"title only", GoalPatch{Title: ptr("x")}, `{"title":"x"}`},
		{"move to unorganized", MoveTo(nil), `{"folder_id":null}`},
		{"move to folder", MoveTo(ptr(int64(9))), `{"folder_id":9}`},
		{"tags", GoalPatch{Tags: &[]string{"a", " "}}, `{"tags":["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.patch)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal = %s, want %s", data, tt.want)
			}
		})
	}

	var p GoalPatch
	if err := json.Unmarshal([]byte(`{"folder_id":null,"progress":20}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Folder == nil || p.Folder.ID != nil {
		t.Errorf("folder_id null should decode to a move to unorganized, got %+v", p.Folder)
	}
	if p.Progress == nil || *p.Progress != 20 {
		t.Errorf("progress = %v, want 20", p.Progress)
	}

	if err := json.Unmarshal([]byte(`{"user_id":"someone"}`), &p); !errors.Is(err, ErrValidation) {
		t.Errorf("user_id patch: got %v, want ErrValidation", err)
	}
}

func TestSameTags(t *testing.T) {
	if !SameTags([]string{"a", "b"}, []string{"b", "a"}) {
		t.Error("order should not matter")
	}
	if SameTags([]string{"a"}, []string{"a", "a"}) {
		t.Error("different lengths should differ")
	}
	if !SameTags(nil, []string{}) {
		t.Error("nil and empty should match")
	}
}

func TestProgressFromSubgoals(t *testing.T) {
	tests := []struct {
		completed, total int
		want             int
		ok               bool
	}{
		{0, 0, 0, false},
		{0, 3, 0, true},
		{1, 3, 33, true},
		{2, 3, 67, true},
		{1, 2, 50, true},
		{4, 4, 100, true},
	}
	for _, tt := range tests {
		got, ok := ProgressFromSubgoals(tt.completed, tt.total)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ProgressFromSubgoals(%d, %d) = (%d, %v), want (%d, %v)",
				tt.completed, tt.total, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGoal_Equal(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := Goal{ID: 1, Title: "x", Tags: []string{"a", "b"}, CreatedAt: now}
	b := a.Clone()
	b.Tags = []string{"b", "a"}
	if !a.Equal(b) {
		t.Error("goals differing only in tag order should be equal")
	}
	b.Progress = 1
	if a.Equal(b) {
		t.Error("goals with different progress should differ")
	}
}
