package engine

import (
	"context"
	"errors"
	"io/fs"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/pkg/compression"
	apperrors "github.com/jacoco-filter/pkg/errors"
	"github.com/jacoco-filter/pkg/telemetry"
	"github.com/jacoco-filter/pkg/utils"
)

// Phase names reported in Result.Phases and the run duration histogram.
const (
	PhaseLoad    = "load"
	PhaseAnalyze = "analyze"
	PhaseFilter  = "filter"
	PhaseSave    = "save"
)

// Job describes one filter run over files.
type Job struct {
	// InputPath is the record to start from. Empty starts from an empty
	// record.
	InputPath string

	// OutputPath receives the filtered record. It may equal InputPath.
	OutputPath string

	ClassDirs []string

	// Compression applies to the written record.
	Compression compression.Type
}

// Run loads the input record, applies the filter, normalizes the sessions
// to one and writes the output record. Nothing is written when any step
// before saving fails.
func (e *Engine) Run(ctx context.Context, job Job) (result *Result, err error) {
	ctx, span := e.tracer.Start(ctx, "filter.run")
	span.SetAttributes(
		attribute.String("input", job.InputPath),
		attribute.String("output", job.OutputPath),
		attribute.String("compression", job.Compression.String()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	start := e.clock.Now()
	timer := utils.NewTimer("run", utils.WithClock(e.clock))

	loadPhase := timer.Start(PhaseLoad)
	store, err := e.load(job.InputPath)
	loadPhase.Stop()
	if err != nil {
		return nil, err
	}
	inputEntries := store.Len()

	result, err = e.Apply(ctx, store, job.ClassDirs)
	if err != nil {
		return nil, err
	}

	result.Session = store.NormalizeSessions(start, e.clock.Now())

	savePhase := timer.Start(PhaseSave)
	err = e.save(ctx, job, store)
	savePhase.Stop()
	if err != nil {
		return nil, err
	}

	result.Entries = store.Len()
	e.opts.Metrics.SetRecordEntries(result.Entries)

	load, save := timer.Phases()[0], timer.Phases()[1]
	e.opts.Metrics.ObservePhase(load.Name, load.Duration)
	e.opts.Metrics.ObservePhase(save.Name, save.Duration)
	result.Phases = append(append([]utils.Phase{load}, result.Phases...), save)
	result.Duration = timer.Total()

	e.logger.Info("Wrote %s: %d entries (%d before), session %s",
		job.OutputPath, result.Entries, inputEntries, result.Session.ID)
	for _, p := range result.Phases {
		e.logger.Debug("Phase %s took %v", p.Name, p.Duration)
	}
	return result, nil
}

func (e *Engine) load(path string) (*execdata.Store, error) {
	if path == "" {
		return execdata.NewStore(), nil
	}
	store, err := execdata.LoadFile(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "cannot read input record", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeRecordFormat, "corrupt input record", err)
	}
	e.logger.Debug("Loaded %s: %d entries, %d sessions", path, store.Len(), len(store.Sessions()))
	return store, nil
}

func (e *Engine) save(ctx context.Context, job Job, store *execdata.Store) (err error) {
	_, span := e.tracer.Start(ctx, "filter.save")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	comp, err := compression.New(job.Compression, compression.LevelDefault)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "invalid output compression", err)
	}
	defer compression.Close(comp)

	if err := execdata.SaveFile(job.OutputPath, store, comp); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "cannot write output record", err)
	}
	return nil
}
