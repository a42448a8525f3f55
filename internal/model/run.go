package model

import "time"

// RunStatus represents the current state of a ranking run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusLoading  RunStatus = "loading"
	RunStatusRanking  RunStatus = "ranking"
	RunStatusWriting  RunStatus = "writing"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the ranking pipeline for a worker shard.
type Run struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	WorkerID  int        `json:"worker_id"`
	Workers   int        `json:"workers"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult summarises a finished run.
type RunResult struct {
	Loaded      int      `json:"loaded"`
	Gated       int      `json:"gated"`
	Malformed   int      `json:"malformed"`
	Ranked      int      `json:"ranked"`
	Tier1       int      `json:"tier1"`
	Tier2       int      `json:"tier2"`
	Tier3       int      `json:"tier3"`
	OutputFiles []string `json:"output_files,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// TierRow is the persisted form of one classified candidate.
type TierRow struct {
	RunID      string  `json:"run_id"`
	TIC        uint64  `json:"tic"`
	PlanetNum  int     `json:"planet_num"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	MatchFlag  int     `json:"match_flag"`
	Tier       int     `json:"tier"`
	FlagBits   string  `json:"flag_bits"`
	Causes     string  `json:"causes"`
	Annotation string  `json:"annotation"`
}
