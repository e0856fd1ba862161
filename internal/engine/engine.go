// Package engine forces the probes of named methods to read as hit in an
// execution record.
//
// Apply analyzes the class directories, resolves each class through the
// classpath, maps its probes and marks the probes of every method in the
// filter set. Mapping runs on a worker pool; the store is only touched by
// the goroutine that drains the pool results, in analysis order, so the
// output does not depend on scheduling.
package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacoco-filter/internal/analyzer"
	"github.com/jacoco-filter/internal/classpath"
	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/internal/metrics"
	"github.com/jacoco-filter/internal/probes"
	"github.com/jacoco-filter/pkg/collections"
	apperrors "github.com/jacoco-filter/pkg/errors"
	"github.com/jacoco-filter/pkg/filter"
	"github.com/jacoco-filter/pkg/parallel"
	"github.com/jacoco-filter/pkg/telemetry"
	"github.com/jacoco-filter/pkg/utils"
)

// ProbeCache memoizes class mappings by class id.
type ProbeCache interface {
	Get(ctx context.Context, id uint64) (*probes.ClassProbes, bool, error)
	Put(ctx context.Context, cp *probes.ClassProbes) error
}

// Options configures an Engine.
type Options struct {
	// Methods is the filter set. Nil matches nothing.
	Methods *filter.MethodSet

	// MismatchPolicy defaults to MismatchAdd.
	MismatchPolicy MismatchPolicy

	// Workers bounds concurrent class mapping. Zero picks a default; one
	// maps classes strictly in sequence.
	Workers int

	// ClassFilter restricts the analyzed classes. Nil accepts all.
	ClassFilter *filter.ClassFilter

	// ExtraClasspath lists directories and archives searched for class
	// bytes after the class directories.
	ExtraClasspath []string

	// Cache is optional.
	Cache ProbeCache

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger defaults to a NullLogger.
	Logger utils.Logger

	// Clock defaults to the real clock.
	Clock utils.Clock

	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer

	// Progress, when set, is called periodically with mapped and total
	// class counts.
	Progress func(done, total int64)
}

// Engine applies a method filter to execution records.
type Engine struct {
	opts     Options
	logger   utils.Logger
	clock    utils.Clock
	tracer   trace.Tracer
	analyzer *analyzer.Analyzer
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.MismatchPolicy == "" {
		opts.MismatchPolicy = MismatchAdd
	}
	e := &Engine{
		opts:   opts,
		logger: utils.OrNull(opts.Logger),
		clock:  opts.Clock,
		tracer: opts.Tracer,
	}
	if e.clock == nil {
		e.clock = utils.NewRealClock()
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer("engine")
	}
	e.analyzer = analyzer.New(analyzer.Options{
		ClassFilter: opts.ClassFilter,
		Logger:      e.logger,
	})
	return e
}

// Apply filters every class found below classDirs into store and returns
// the per-class outcomes. Per-class failures are recorded in the result;
// only an unusable class directory or classpath entry, or cancellation,
// fails the call.
func (e *Engine) Apply(ctx context.Context, store *execdata.Store, classDirs []string) (result *Result, err error) {
	ctx, span := e.tracer.Start(ctx, "filter.apply", trace.WithAttributes(
		attribute.StringSlice("class_dirs", classDirs),
		attribute.String("mismatch_policy", string(e.opts.MismatchPolicy)),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	timer := utils.NewTimer("apply", utils.WithClock(e.clock))
	analyzePhase := timer.Start(PhaseAnalyze)
	classes, analysisErrs, err := e.analyze(ctx, classDirs)
	analyzePhase.Stop()
	if err != nil {
		return nil, err
	}

	roots := append(append([]string(nil), classDirs...), e.opts.ExtraClasspath...)
	resolver, err := classpath.Open(roots...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "failed to open classpath", err)
	}
	defer resolver.Close()

	result = newResult()
	result.AnalysisErrors = analysisErrs
	filterPhase := timer.Start(PhaseFilter)
	err = e.mapAndMark(ctx, store, resolver, classes, result)
	filterPhase.Stop()
	if err != nil {
		return nil, err
	}
	result.Phases = timer.Phases()
	for _, p := range result.Phases {
		e.opts.Metrics.ObservePhase(p.Name, p.Duration)
	}

	span.SetAttributes(
		attribute.Int("classes", len(result.Classes)),
		attribute.Int("probes_marked", result.ProbesMarked),
	)
	e.logger.Info("Filtered %d classes: %d updated, %d created, %d skipped, %d probes marked",
		len(result.Classes), result.Count(OutcomeUpdated), result.Count(OutcomeCreated),
		result.Skipped(), result.ProbesMarked)
	return result, nil
}

// analyze returns the distinct classes of all directories, first
// occurrence first.
func (e *Engine) analyze(ctx context.Context, classDirs []string) ([]*analyzer.Class, []*analyzer.ClassError, error) {
	ctx, span := e.tracer.Start(ctx, "filter.analyze")
	defer span.End()

	bundles, err := e.analyzer.AnalyzeAll(ctx, classDirs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, apperrors.Wrap(apperrors.CodeInvalidInput, "failed to analyze class directories", err)
	}

	seen := make(map[string]bool)
	var classes []*analyzer.Class
	var errs []*analyzer.ClassError
	for _, b := range bundles {
		errs = append(errs, b.Errors...)
		for _, c := range b.Classes() {
			if seen[c.Name] {
				e.logger.Debug("Ignoring %s from %s: already seen", c.Name, c.Source)
				continue
			}
			seen[c.Name] = true
			classes = append(classes, c)
		}
	}
	span.SetAttributes(attribute.Int("classes", len(classes)), attribute.Int("errors", len(errs)))
	return classes, errs, nil
}

func (e *Engine) mapAndMark(ctx context.Context, store *execdata.Store, resolver *classpath.Resolver,
	classes []*analyzer.Class, result *Result) error {
	ctx, span := e.tracer.Start(ctx, "filter.map")
	defer span.End()

	var tracker *parallel.ProgressTracker
	if e.opts.Progress != nil {
		tracker = parallel.NewProgressTracker(int64(len(classes)), e.opts.Progress, 0)
		tracker.Start(ctx)
		defer tracker.Stop()
	}

	pool := parallel.NewWorkerPool[*analyzer.Class, *probes.ClassProbes](
		parallel.DefaultPoolConfig().WithWorkers(e.opts.Workers))

	mapFn := func(ctx context.Context, c *analyzer.Class) (*probes.ClassProbes, error) {
		return e.mapClass(ctx, resolver, c)
	}
	sink := func(r parallel.TaskResult[*analyzer.Class, *probes.ClassProbes]) error {
		if r.Error != nil && ctx.Err() != nil && errors.Is(r.Error, ctx.Err()) {
			return r.Error
		}
		cr := e.mark(store, r.Input, r.Result, r.Error)
		result.add(cr)
		e.opts.Metrics.ObserveClass(string(cr.Outcome))
		e.opts.Metrics.AddProbesMarked(cr.ProbesMarked)
		if tracker != nil {
			tracker.Increment()
		}
		return nil
	}
	if err := pool.Stream(ctx, classes, mapFn, sink); err != nil {
		return err
	}
	return ctx.Err()
}

// mapClass resolves and maps one class. It runs on a pool worker.
func (e *Engine) mapClass(ctx context.Context, resolver *classpath.Resolver, c *analyzer.Class) (*probes.ClassProbes, error) {
	b, err := resolver.Resolve(c.Name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeClassNotFound, c.Name, err)
	}
	id := execdata.ClassID(b)

	if e.opts.Cache != nil {
		cp, ok, err := e.opts.Cache.Get(ctx, id)
		if err != nil {
			e.logger.Warn("Probe cache lookup for %s failed: %v", c.Name, err)
		}
		e.opts.Metrics.ObserveCache(ok)
		if ok {
			return cp, nil
		}
	}

	cp, err := probes.MapClass(b, probes.AllMethods)
	if errors.Is(err, probes.ErrSubroutine) {
		return nil, apperrors.Wrap(apperrors.CodeUnsupported, c.Name, err)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, c.Name, err)
	}
	if e.opts.Cache != nil {
		if err := e.opts.Cache.Put(ctx, cp); err != nil {
			e.logger.Warn("Probe cache store for %s failed: %v", c.Name, err)
		}
	}
	return cp, nil
}

// mark resolves the vector of one mapped class and sets the probes of the
// filtered methods. It runs on the draining goroutine only.
func (e *Engine) mark(store *execdata.Store, c *analyzer.Class, cp *probes.ClassProbes, mapErr error) ClassResult {
	cr := ClassResult{Name: c.Name, ID: c.ID, Source: c.Source}
	log := e.logger.WithField("class", c.Name)

	if mapErr != nil {
		cr.Err = mapErr
		switch {
		case apperrors.IsClassNotFound(mapErr):
			cr.Outcome = OutcomeNotFound
			log.Debug("Skipping unresolvable class: %v", mapErr)
		case errors.Is(mapErr, probes.ErrSubroutine):
			cr.Outcome = OutcomeUnsupported
			log.Warn("Skipping class with jsr/ret subroutines: %v", mapErr)
		default:
			cr.Outcome = OutcomeParseError
			log.Warn("Skipping class: %v", mapErr)
		}
		return cr
	}

	cr.ID = cp.ID
	if cp.Total == 0 {
		cr.Outcome = OutcomeNoProbes
		return cr
	}

	d := store.Get(cp.ID)
	if d == nil {
		if stale := store.IDsByName(cp.Name); len(stale) > 0 {
			cr.Mismatch = true
			if e.opts.MismatchPolicy == MismatchSkip {
				cr.Outcome = OutcomeChecksumMismatch
				cr.Err = apperrors.Newf(apperrors.CodeChecksumMismatch,
					"%s: record holds id %016x, class has %016x", cp.Name, stale[0], cp.ID)
				log.Warn("Skipping class changed since the record was written: %v", cr.Err)
				return cr
			}
			log.Warn("Class changed since the record was written (id %016x, was %016x); adding a fresh entry",
				cp.ID, stale[0])
		}
	}

	d, created, err := store.GetOrCreate(cp.ID, cp.Name, cp.Total)
	if err != nil {
		cr.Outcome = OutcomeProbeMismatch
		cr.Err = apperrors.Wrap(apperrors.CodeProbeMismatch, cp.Name, err)
		log.Warn("Skipping class: %v", err)
		return cr
	}
	cr.Outcome = OutcomeUpdated
	if created {
		cr.Outcome = OutcomeCreated
	}

	cr.Methods = matchedMethods(cp, e.opts.Methods)
	ids := cp.ProbesFor(e.opts.Methods.Contains)
	cr.ProbesMarked = collections.BitsetOf(ids...).MarkInto(d.Probes)
	if len(cr.Methods) > 0 {
		log.Debug("Marked %d of %d probes for %v", cr.ProbesMarked, len(ids), cr.Methods)
	}
	return cr
}

func matchedMethods(cp *probes.ClassProbes, methods *filter.MethodSet) []string {
	var out []string
	for _, name := range cp.MethodNames() {
		if methods.Contains(name) {
			out = append(out, name)
		}
	}
	return out
}
