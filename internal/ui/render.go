package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mschirtzinger/goalkeeper/internal/goalsync"
	"github.com/mschirtzinger/goalkeeper/internal/notifications"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// BarWidth is the number of cells in a progress bar.
const BarWidth = 10

// ProgressBar draws progress (0-100) as a fixed-width bar.
func ProgressBar(progress int) string {
	progress = min(max(progress, 0), 100)
	filled := (progress*BarWidth + 50) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", BarWidth-filled)
	if progress == 100 {
		return RenderPass(bar)
	}
	return bar
}

// RenderGoal formats one goal on a single line.
func RenderGoal(g schema.Goal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %3d%%", RenderMuted(fmt.Sprintf("#%-4d", g.ID)), ProgressBar(g.Progress), RenderBold(g.Title), g.Progress)
	if g.TargetDate != "" {
		fmt.Fprintf(&b, "  %s", RenderMuted("due "+g.TargetDate))
	}
	t := current()
	for _, tag := range g.Tags {
		fmt.Fprintf(&b, " %s", t.tag.Render("#"+tag))
	}
	return b.String()
}

// RenderGoals formats a goal list, one per line, marking duplicates.
func RenderGoals(goals []schema.Goal, dups goalsync.DuplicateReport) string {
	if len(goals) == 0 {
		return RenderMuted("No goals yet. Add one with 'goals add'.")
	}
	lines := make([]string, len(goals))
	for i, g := range goals {
		lines[i] = RenderGoal(g)
		if dups.Has(g.ID) {
			lines[i] += " " + RenderWarn("(duplicate)")
		}
	}
	return strings.Join(lines, "\n")
}

// RenderStats formats the summary line.
func RenderStats(s goalsync.Stats) string {
	return fmt.Sprintf("%s goals · %s completed · %s average progress",
		RenderBold(strconv.Itoa(s.Total)), RenderPass(strconv.Itoa(s.Completed)), RenderAccent(strconv.Itoa(s.Average)+"%"))
}

// RenderBanner describes a state that is not plain Ready, or "" when
// there is nothing to show.
func RenderBanner(st goalsync.State) string {
	t := current()
	switch {
	case st.IsReconnecting:
		return t.banner.Render(RenderWarn(fmt.Sprintf("⚠ Reconnecting (attempt %d)...", st.Attempt)))
	case st.Status == goalsync.StatusFailed:
		msg := "Connection error"
		if st.Err != nil {
			msg += ": " + st.Err.Error()
		}
		return t.banner.Render(RenderFail("✗ "+msg) + "\n" + RenderMuted("Press Enter to retry"))
	case st.Status == goalsync.StatusIdle:
		return RenderMuted("Signed out")
	case st.IsLoading:
		return RenderMuted("Loading goals...")
	}
	return ""
}

// RenderView formats a full goals screen: banner, goals and stats.
func RenderView(st goalsync.State) string {
	var parts []string
	if banner := RenderBanner(st); banner != "" {
		parts = append(parts, banner)
	}
	if st.Status != goalsync.StatusIdle {
		parts = append(parts, RenderGoals(st.Goals, goalsync.FindDuplicates(st.Goals)), RenderStats(st.Stats))
	}
	return strings.Join(parts, "\n\n")
}

// RenderNotice formats a user-facing notice with a level marker.
func RenderNotice(n goalsync.Notice) string {
	var mark string
	switch n.Level {
	case goalsync.LevelSuccess:
		mark = RenderPass("✓")
	case goalsync.LevelWarning:
		mark = RenderWarn("⚠")
	case goalsync.LevelError:
		mark = RenderFail("✗")
	default:
		mark = RenderAccent("•")
	}
	if n.Message == "" {
		return fmt.Sprintf("%s %s", mark, n.Title)
	}
	return fmt.Sprintf("%s %s: %s", mark, n.Title, n.Message)
}

// RenderNotifications formats the notification list with an unread badge.
func RenderNotifications(items []schema.Notification) string {
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderBold("Notifications"), RenderAccent("("+notifications.FormatCount(unread)+" unread)"))
	if len(items) == 0 {
		b.WriteString(RenderMuted("Nothing here."))
		return b.String()
	}
	for i, n := range items {
		dot := " "
		if !n.Read {
			dot = RenderAccent("●")
		}
		fmt.Fprintf(&b, "%s %s %s", dot, RenderMuted(fmt.Sprintf("#%-4d", n.ID)), n.Title)
		if n.Message != "" {
			fmt.Fprintf(&b, " %s", RenderMuted("· "+n.Message))
		}
		if i < len(items)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
