// Package store persists run history for collection runs.
package store

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of one collection run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded collection run with its outcome counters.
type Run struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	RoutesTotal  int        `json:"routes_total"`
	StopsTotal   int        `json:"stops_total"`
	NewStops     int        `json:"new_stops"`
	RemovedStops int        `json:"removed_stops"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunResult carries the counters recorded when a run completes.
type RunResult struct {
	RoutesTotal  int
	StopsTotal   int
	NewStops     int
	RemovedStops int
}

// Store defines the run-history persistence interface.
type Store interface {
	CreateRun(ctx context.Context) (*Run, error)
	CompleteRun(ctx context.Context, runID string, result RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
