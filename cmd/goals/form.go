package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"golang.org/x/term"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// runAddForm asks for a new goal interactively. target is returned raw so
// the caller parses it once.
func runAddForm() (schema.GoalInput, string, error) {
	var (
		in       schema.GoalInput
		progress = "0"
		target   string
		tags     string
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&in.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&in.Description),
			huh.NewInput().
				Title("Progress").
				Description("0-100").
				Value(&progress).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 0 || n > 100 {
						return fmt.Errorf("enter a number from 0 to 100")
					}
					return nil
				}),
			huh.NewInput().
				Title("Target date").
				Placeholder("YYYY-MM-DD or \"next friday\"").
				Value(&target).
				Validate(func(s string) error {
					_, err := schema.ParseTargetDate(s, time.Now())
					return err
				}),
			huh.NewInput().
				Title("Tags").
				Description("comma separated").
				Value(&tags),
		),
	)
	if err := form.Run(); err != nil {
		return in, "", err
	}

	in.Progress, _ = strconv.Atoi(strings.TrimSpace(progress))
	if tags != "" {
		in.Tags = strings.Split(tags, ",")
	}
	return in, target, nil
}
