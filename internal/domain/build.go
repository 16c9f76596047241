package domain

import "time"

// BuildRecord summarizes one completed topology rebuild for the history
// log. Positions themselves are never persisted; the record keeps only
// the shape and cost of the build.
type BuildRecord struct {
	BuildID    string         `json:"build_id"`
	Revision   uint64         `json:"revision"`
	Nodes      int            `json:"nodes"`
	Edges      int            `json:"edges"`
	Skipped    int            `json:"skipped"`
	TotalBytes int64          `json:"total_bytes"`
	Strategy   LayoutStrategy `json:"strategy"`
	Elapsed    time.Duration  `json:"elapsed"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	BuiltAt    time.Time      `json:"built_at"`
}
