package goalsync

import (
	"math"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// Stats aggregates a goal list.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Average   int `json:"average"` // rounded mean progress, 0 when empty
}

// ComputeStats projects goals into Stats.
func ComputeStats(goals []schema.Goal) Stats {
	st := Stats{Total: len(goals)}
	if st.Total == 0 {
		return st
	}
	sum := 0
	for _, g := range goals {
		sum += g.Progress
		if g.Progress == 100 {
			st.Completed++
		}
	}
	st.Average = int(math.Round(float64(sum) / float64(st.Total)))
	return st
}
