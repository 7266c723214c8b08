package ui

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/muesli/termenv"
)

func TestMain(m *testing.M) {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	UseRenderer(r)
	os.Exit(m.Run())
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		progress int
		want     string
	}{
		{0, "░░░░░░░░░░"},
		{44, "████░░░░░░"},
		{45, "█████░░░░░"},
		{100, "██████████"},
		{-5, "░░░░░░░░░░"},
		{250, "██████████"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.progress); got != tt.want {
			t.Errorf("ProgressBar(%d) = %q, want %q", tt.progress, got, tt.want)
		}
	}
}

func TestRenderGoal(t *testing.T) {
	g := schema.Goal{ID: 7, Title: "Run 5K", Progress: 40, TargetDate: "2026-04-01", Tags: []string{"health"}}
	got := RenderGoal(g)
	for _, want := range []string{"#7", "████░░░░░░", "Run 5K", " 40%", "due 2026-04-01", "#health"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderGoal() = %q, missing %q", got, want)
		}
	}
}

func TestRenderGoals(t *testing.T) {
	if got := RenderGoals(nil, goalsync.DuplicateReport{}); !strings.Contains(got, "No goals yet") {
		t.Errorf("empty list = %q", got)
	}

	goals := []schema.Goal{
		{ID: 1, Title: "Read"},
		{ID: 2, Title: "read"},
		{ID: 3, Title: "Swim"},
	}
	lines := strings.Split(RenderGoals(goals, goalsync.FindDuplicates(goals)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, want := range []bool{true, true, false} {
		if got := strings.Contains(lines[i], "(duplicate)"); got != want {
			t.Errorf("line %d duplicate marker = %v, want %v: %q", i, got, want, lines[i])
		}
	}
}

func TestRenderStats(t *testing.T) {
	got := RenderStats(goalsync.Stats{Total: 3, Completed: 1, Average: 75})
	if got != "3 goals · 1 completed · 75% average progress" {
		t.Errorf("RenderStats() = %q", got)
	}
}

func TestRenderBanner(t *testing.T) {
	tests := []struct {
		name  string
		state goalsync.State
		want  string
	}{
		{"ready", goalsync.State{Status: goalsync.StatusReady}, ""},
		{"loading", goalsync.State{Status: goalsync.StatusLoading, IsLoading: true}, "Loading goals"},
		{"idle", goalsync.State{Status: goalsync.StatusIdle}, "Signed out"},
		{"reconnecting", goalsync.State{Status: goalsync.StatusReconnecting, IsReconnecting: true, Attempt: 2}, "Reconnecting (attempt 2)"},
		{"failed", goalsync.State{Status: goalsync.StatusFailed, Err: errors.New("dial tcp: refused")}, "Connection error: dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderBanner(tt.state)
			if tt.want == "" {
				if got != "" {
					t.Errorf("RenderBanner() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderBanner() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRenderView(t *testing.T) {
	st := goalsync.State{
		Status: goalsync.StatusReady,
		Goals:  []schema.Goal{{ID: 1, Title: "Run", Progress: 100}},
		Stats:  goalsync.Stats{Total: 1, Completed: 1, Average: 100},
	}
	got := RenderView(st)
	if !strings.Contains(got, "Run") || !strings.Contains(got, "1 goals") {
		t.Errorf("RenderView() = %q", got)
	}
	if got := RenderView(goalsync.State{}); got != "Signed out" {
		t.Errorf("RenderView(idle) = %q", got)
	}
}

func TestRenderNotice(t *testing.T) {
	tests := []struct {
		notice goalsync.Notice
		want   string
	}{
		{goalsync.Notice{Level: goalsync.LevelSuccess, Title: "Goal added", Message: "Run"}, "✓ Goal added: Run"},
		{goalsync.Notice{Level: goalsync.LevelError, Title: "Delete goal failed"}, "✗ Delete goal failed"},
		{goalsync.Notice{Level: goalsync.LevelInfo, Title: "No duplicates"}, "• No duplicates"},
	}
	for _, tt := range tests {
		if got := RenderNotice(tt.notice); got != tt.want {
			t.Errorf("RenderNotice() = %q, want %q", got, tt.want)
		}
	}
}

func TestRenderNotifications(t *testing.T) {
	items := []schema.Notification{
		{ID: 2, Title: "Goal shared", Message: "bob shared Run 5K"},
		{ID: 1, Title: "Welcome", Read: true},
	}
	got := RenderNotifications(items)
	if !strings.HasPrefix(got, "Notifications (1 unread)\n") {
		t.Errorf("header = %q", got)
	}
	if !strings.Contains(got, "● #2") || !strings.Contains(got, "bob shared Run 5K") {
		t.Errorf("RenderNotifications() = %q", got)
	}
	if got := RenderNotifications(nil); !strings.Contains(got, "Nothing here.") {
		t.Errorf("empty = %q", got)
	}
}
