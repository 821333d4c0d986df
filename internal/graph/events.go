package graph

import "time"

// Algorithm names used in events, metrics and CLI commands.
const (
	AlgorithmPageRank = "pagerank"
	AlgorithmHITS     = "hits"
)

// ScoresReplaced is published after a batch job commits a new score table.
type ScoresReplaced struct {
	RunID       string    `json:"run_id"`
	Algorithm   string    `json:"algorithm"`
	Nodes       int       `json:"nodes"`
	Edges       int       `json:"edges"`
	Iterations  int       `json:"iterations"`
	Converged   bool      `json:"converged"`
	CompletedAt time.Time `json:"completed_at"`
}
