// Package repository keeps an audit trail of filter runs in a SQL database.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of a filtering command.
type Run struct {
	ID      string    `json:"id" yaml:"id"`
	Command string    `json:"command" yaml:"command"`
	Input   string    `json:"input" yaml:"input"`
	Output  string    `json:"output" yaml:"output"`
	Methods []string  `json:"methods" yaml:"methods"`
	Policy  string    `json:"policy" yaml:"policy"`
	Status  RunStatus `json:"status" yaml:"status"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`

	Classes      int `json:"classes" yaml:"classes"`
	Updated      int `json:"updated" yaml:"updated"`
	Created      int `json:"created" yaml:"created"`
	Skipped      int `json:"skipped" yaml:"skipped"`
	Mismatches   int `json:"mismatches" yaml:"mismatches"`
	ProbesMarked int `json:"probes_marked" yaml:"probes_marked"`
	Entries      int `json:"entries" yaml:"entries"`

	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// RunClass is the outcome of one class within a run.
type RunClass struct {
	RunID        string `json:"run_id" yaml:"run_id"`
	Name         string `json:"name" yaml:"name"`
	ClassID      uint64 `json:"class_id" yaml:"class_id"`
	Outcome      string `json:"outcome" yaml:"outcome"`
	ProbesMarked int    `json:"probes_marked" yaml:"probes_marked"`
}

// RunRepository stores runs and their class outcomes.
type RunRepository interface {
	// CreateRun inserts a run in the running state.
	CreateRun(ctx context.Context, run *Run) error

	// FinishRun stores the final status and counts of run together with its
	// class outcomes, in one transaction.
	FinishRun(ctx context.Context, run *Run, classes []RunClass) error

	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// ListRunClasses returns the class outcomes of a run ordered by name.
	ListRunClasses(ctx context.Context, runID string) ([]RunClass, error)
}
