package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jacoco-filter/internal/engine"
	"github.com/jacoco-filter/pkg/utils"
)

// Recorder writes runs to a repository. Ledger failures are logged and never
// fail the run being recorded. A nil *Recorder records nothing.
type Recorder struct {
	repo   RunRepository
	clock  utils.Clock
	logger utils.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(repo RunRepository, clock utils.Clock, logger utils.Logger) *Recorder {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	return &Recorder{repo: repo, clock: clock, logger: utils.OrNull(logger)}
}

// Begin inserts a running entry and returns it for Finish.
func (r *Recorder) Begin(ctx context.Context, command, input, output string, methods []string, policy engine.MismatchPolicy) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Command:   command,
		Input:     input,
		Output:    output,
		Methods:   methods,
		Policy:    string(policy),
		Status:    RunStatusRunning,
		StartedAt: r.clockNow(),
	}
	if r == nil {
		return run
	}
	if err := r.repo.CreateRun(ctx, run); err != nil {
		r.logger.Warn("Failed to record run start: %v", err)
	}
	return run
}

// Finish stores the outcome of run. runErr marks the run failed.
func (r *Recorder) Finish(ctx context.Context, run *Run, result *engine.Result, runErr error) {
	if r == nil || run == nil {
		return
	}
	finished := r.clock.Now()
	run.FinishedAt = &finished
	run.Status = RunStatusSucceeded
	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	}

	var classes []RunClass
	if result != nil {
		run.Classes = len(result.Classes)
		run.Updated = result.Count(engine.OutcomeUpdated)
		run.Created = result.Count(engine.OutcomeCreated)
		run.Skipped = result.Skipped()
		run.Mismatches = result.Mismatches
		run.ProbesMarked = result.ProbesMarked
		run.Entries = result.Entries

		classes = make([]RunClass, len(result.Classes))
		for i, c := range result.Classes {
			classes[i] = RunClass{
				RunID:        run.ID,
				Name:         c.Name,
				ClassID:      c.ID,
				Outcome:      string(c.Outcome),
				ProbesMarked: c.ProbesMarked,
			}
		}
	}

	if err := r.repo.FinishRun(ctx, run, classes); err != nil {
		r.logger.Warn("Failed to record run %s: %v", run.ID, err)
		return
	}
	r.logger.Debug("Recorded run %s (%s)", run.ID, run.Status)
}

func (r *Recorder) clockNow() time.Time {
	if r == nil {
		return time.Now()
	}
	return r.clock.Now()
}
