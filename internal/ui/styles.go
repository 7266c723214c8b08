// Package ui renders goals, stats and sync status for the terminal.
package ui

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type theme struct {
	accent lipgloss.Style
	pass   lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	muted  lipgloss.Style
	bold   lipgloss.Style
	tag    lipgloss.Style
	banner lipgloss.Style
}

var (
	mu     sync.RWMutex
	styles = newTheme(lipgloss.NewRenderer(os.Stdout))
)

// Init binds the styles to w. Color is detected from w and dropped when
// NO_COLOR is set.
func Init(w io.Writer) {
	r := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	UseRenderer(r)
}

// UseRenderer binds the styles to r.
func UseRenderer(r *lipgloss.Renderer) {
	t := newTheme(r)
	mu.Lock()
	styles = t
	mu.Unlock()
}

func newTheme(r *lipgloss.Renderer) theme {
	return theme{
		accent: r.NewStyle().Foreground(lipgloss.Color("12")),
		pass:   r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
		bold:   r.NewStyle().Bold(true),
		tag:    r.NewStyle().Foreground(lipgloss.Color("13")),
		banner: r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func current() theme {
	mu.RLock()
	defer mu.RUnlock()
	return styles
}

// RenderAccent highlights informational text.
func RenderAccent(s string) string { return current().accent.Render(s) }

// RenderPass marks success.
func RenderPass(s string) string { return current().pass.Render(s) }

// RenderWarn marks a warning.
func RenderWarn(s string) string { return current().warn.Render(s) }

// RenderFail marks an error.
func RenderFail(s string) string { return current().fail.Render(s) }

// RenderMuted dims secondary text.
func RenderMuted(s string) string { return current().muted.Render(s) }

// RenderBold emphasizes s.
func RenderBold(s string) string { return current().bold.Render(s) }
