package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying indexing run history
type Storage interface {
	// Run operations
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, runID string, result RunResult) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context, projectRoot string) (*Run, error)
	LatestRunWithStatus(ctx context.Context, projectRoot string, status RunStatus) (*Run, error)
	ListRuns(ctx context.Context, projectRoot string, limit int) ([]*Run, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, runID string) ([]*Event, error)

	// Status operations
	GetStatus(ctx context.Context, projectRoot string) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusFailed   RunStatus = "failed"
	StatusSkipped  RunStatus = "skipped"
)

// Run is one GenerateIndex invocation for a project root.
type Run struct {
	ID          string    `json:"id"`
	ProjectRoot string    `json:"project_root"`
	Status      RunStatus `json:"status"`
	Incremental bool      `json:"incremental"`
	Message     string    `json:"message,omitempty"` // failure message
	IndexPath   string    `json:"index_path,omitempty"`
	Checksum    string    `json:"checksum,omitempty"` // xxhash64 of the artifact written by the run
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"` // zero while running
}

// Duration returns how long a finished run took, or zero.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunResult closes a run.
type RunResult struct {
	Status     RunStatus
	FinishedAt time.Time
	Message    string
	IndexPath  string
	Checksum   string
}

// Event is one persisted lifecycle event.
type Event struct {
	ID      int64
	RunID   string
	Time    time.Time
	Source  string
	Action  string
	Level   string
	Adapter string
	Message string
	Path    string
}

// ProjectStatus summarizes the run history of a project root.
type ProjectStatus struct {
	ProjectRoot    string
	TotalRuns      int
	CompleteRuns   int
	FailedRuns     int
	SkippedRuns    int
	LastRun        *Run
	LastSuccessful *Run
	LastFailed     *Run
}
