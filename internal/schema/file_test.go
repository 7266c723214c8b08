package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGoalFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	folder := int64(4)
	gf := &GoalFile{
		Title:       "Learn Go",
		Description: "finish the tour",
		Progress:    20,
		Target:      "2026-12-31",
		Tags:        []string{"learning"},
		FolderID:    &folder,
		Subgoals:    []string{"basics", "concurrency"},
	}

	for _, name := range []string{"goal.json", "goal.toml", "goal.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := WriteGoalFile(path, gf); err != nil {
				t.Fatalf("WriteGoalFile: %v", err)
			}
			got, err := ReadGoalFile(path)
			if err != nil {
				t.Fatalf("ReadGoalFile: %v", err)
			}
			if got.Title != gf.Title || got.Progress != gf.Progress || got.Target != gf.Target {
				t.Errorf("got %+v, want %+v", got, gf)
			}
			if got.FolderID == nil || *got.FolderID != folder {
				t.Errorf("FolderID = %v, want %d", got.FolderID, folder)
			}
			if len(got.Subgoals) != 2 || !SameTags(got.Tags, gf.Tags) {
				t.Errorf("lists lost: %+v", got)
			}
		})
	}
}

func TestReadGoalFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadGoalFile(filepath.Join(dir, "goal.txt")); err == nil {
		t.Error("unsupported extension should fail")
	}

	missing := filepath.Join(dir, "untitled.toml")
	if err := os.WriteFile(missing, []byte("description = \"no title\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadGoalFile(missing); !errors.Is(err, ErrValidation) {
		t.Errorf("missing title: got %v, want ErrValidation", err)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadGoalFile(broken); err == nil {
		t.Error("malformed json should fail")
	}
}

func TestParseTargetDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "2026-05-01", want: "2026-05-01"},
		{in: "tomorrow", want: "2026-03-11"},
		{in: "gibberish words", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTargetDate(tt.in, now)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ParseTargetDate(%q) error = %v, want ErrValidation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTargetDate(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseTargetDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGoalFile_Input(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	in, err := GoalFile{Title: " Swim ", Target: "2026-04-01"}.Input(now)
	if err != nil {
		t.Fatalf("Input: %v", err)
	}
	if in.Title != "Swim" || in.TargetDate != "2026-04-01" {
		t.Errorf("Input() = %+v", in)
	}
	if _, err := (GoalFile{Title: "x", Progress: 200}).Input(now); !errors.Is(err, ErrValidation) {
		t.Errorf("progress 200: got %v", err)
	}
}
