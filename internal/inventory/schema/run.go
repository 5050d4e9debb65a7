package schema

import "time"

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusNoop      = "noop" // nothing to do; not retried
)

// Step statuses.
const (
	StepStatusSucceeded = "succeeded"
	StepStatusFailed    = "failed"
	StepStatusMemoized  = "memoized" // replayed from an earlier attempt
)

// RunResult is the outcome reported by a full pipeline run.
type RunResult struct {
	Inserted int `json:"inserted" yaml:"inserted"`
	Updated  int `json:"updated" yaml:"updated"`
	Total    int `json:"total" yaml:"total"`
	Skipped  int `json:"skipped" yaml:"skipped"`
}

// RunRecord is the persisted history entry of one pipeline run.
type RunRecord struct {
	ID         string     `json:"id" yaml:"id"`
	Pipeline   string     `json:"pipeline" yaml:"pipeline"`
	Status     string     `json:"status" yaml:"status"`
	Attempts   int        `json:"attempts" yaml:"attempts"`
	Result     RunResult  `json:"result" yaml:"result"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepRecord is the persisted outcome of one named step within a run attempt.
type StepRecord struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Attempt   int           `json:"attempt" yaml:"attempt"`
	Name      string        `json:"name" yaml:"name"`
	Status    string        `json:"status" yaml:"status"`
	Output    string        `json:"output,omitempty" yaml:"output,omitempty"` // JSON
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}
