package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacoco-filter/internal/cache"
	"github.com/jacoco-filter/internal/engine"
	"github.com/jacoco-filter/internal/metrics"
	"github.com/jacoco-filter/internal/report"
	"github.com/jacoco-filter/internal/repository"
	"github.com/jacoco-filter/internal/storage"
	"github.com/jacoco-filter/pkg/compression"
	"github.com/jacoco-filter/pkg/config"
	apperrors "github.com/jacoco-filter/pkg/errors"
	"github.com/jacoco-filter/pkg/filter"
	"github.com/jacoco-filter/pkg/utils"
)

// runFlags are shared by filter, generate and watch.
type runFlags struct {
	classpath   string
	mismatch    string
	workers     int
	compress    string
	include     string
	exclude     string
	cacheDir    string
	noCache     bool
	ledger      bool
	metricsFile string
	publish     string
}

func (f *runFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.classpath, "classpath", "", "Extra comma-separated directories or jars used to resolve class bytes")
	flags.StringVar(&f.mismatch, "mismatch", "", "Policy when the record holds another version of a class: add or skip (default add)")
	flags.IntVarP(&f.workers, "workers", "w", 0, "Concurrent class mappings (0 = number of CPUs, 1 = sequential)")
	flags.StringVar(&f.compress, "compress", "", "Output compression: none, gzip or zstd (default none)")
	flags.StringVar(&f.include, "include", "", "Comma-separated class name prefixes to analyze")
	flags.StringVar(&f.exclude, "exclude", "", "Comma-separated class name prefixes to skip")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "Probe cache directory (enables the cache)")
	flags.BoolVar(&f.noCache, "no-cache", false, "Disable the probe cache")
	flags.BoolVar(&f.ledger, "ledger", false, "Record the run in the configured ledger database")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
	flags.StringVar(&f.publish, "publish", "", "Upload the output record to storage under this key")
}

// settings are the effective run options after merging flags over config.
type settings struct {
	policy      engine.MismatchPolicy
	workers     int
	compression compression.Type
	include     []string
	exclude     []string
	classpath   []string
	cache       *cache.Config
	ledger      bool
	metricsFile string
	publish     string
}

func resolveSettings(cmd *cobra.Command, f *runFlags, cfg *config.Config) (*settings, error) {
	changed := cmd.Flags().Changed
	s := &settings{
		workers:     cfg.Filter.Workers,
		include:     cfg.Filter.Include,
		exclude:     cfg.Filter.Exclude,
		classpath:   cfg.Filter.Classpath,
		ledger:      cfg.Ledger.Enabled || f.ledger,
		metricsFile: cfg.Metrics.Textfile,
		publish:     f.publish,
	}

	policy := cfg.Filter.MismatchPolicy
	if changed("mismatch") {
		policy = f.mismatch
	}
	p, err := engine.ParseMismatchPolicy(policy)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid --mismatch", err)
	}
	s.policy = p

	if changed("workers") {
		if f.workers < 0 {
			return nil, apperrors.Newf(apperrors.CodeInvalidInput, "--workers must not be negative, got %d", f.workers)
		}
		s.workers = f.workers
	}

	comp := cfg.Filter.Compression
	if changed("compress") {
		comp = f.compress
	}
	t, err := compression.ParseType(comp)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid --compress", err)
	}
	s.compression = t

	if changed("include") {
		s.include = filter.ParseList(f.include)
	}
	if changed("exclude") {
		s.exclude = filter.ParseList(f.exclude)
	}
	if changed("classpath") {
		s.classpath = filter.ParseList(f.classpath)
	}
	if changed("metrics-file") {
		s.metricsFile = f.metricsFile
	}

	switch {
	case f.noCache:
	case f.cacheDir != "":
		c := cache.DefaultConfig(f.cacheDir)
		s.cache = &c
	case cfg.Cache.Enabled:
		c := cache.Config{Path: cfg.Cache.Path, InMemory: cfg.Cache.InMemory}
		s.cache = &c
	}
	return s, nil
}

// filterJob describes one filter or generate invocation.
type filterJob struct {
	command   string
	input     string
	output    string
	classDirs []string
	methods   []string
}

// runner executes filter jobs. The cache, storage and ledger it opens live
// until close, so watch mode reuses them across reruns.
type runner struct {
	settings *settings
	log      utils.Logger

	store    storage.Storage
	cache    *cache.ProbeCache
	ledger   *repository.Ledger
	recorder *repository.Recorder
}

func newRunner(s *settings, job filterJob, log utils.Logger) (*runner, error) {
	r := &runner{settings: s, log: log}

	if storage.IsKey(job.input) || storage.IsKey(job.output) || s.publish != "" {
		st, err := storage.New(&cfg.Storage)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageError, "failed to open storage", err)
		}
		r.store = st
	}

	if s.cache != nil {
		c := *s.cache
		c.Logger = log
		pc, err := cache.Open(c)
		if err != nil {
			log.Warn("Probe cache disabled: %v", err)
		} else {
			r.cache = pc
		}
	}

	if s.ledger {
		l, err := repository.Open(&cfg.Ledger)
		if err != nil {
			log.Warn("Run ledger disabled: %v", err)
		} else {
			r.ledger = l
			r.recorder = repository.NewRecorder(l.Runs, nil, log)
		}
	}
	return r, nil
}

func (r *runner) close() {
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			r.log.Warn("Failed to close probe cache: %v", err)
		}
	}
	if err := r.ledger.Close(); err != nil {
		r.log.Warn("Failed to close ledger: %v", err)
	}
}

// run executes job once and writes the summary to cmd's output.
func (r *runner) run(ctx context.Context, cmd *cobra.Command, job filterJob) (*engine.Result, error) {
	log := r.log
	s := r.settings

	tmpDir, err := os.MkdirTemp("", "jacoco-filter-")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "failed to create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	input := job.input
	if input != "" {
		input, err = storage.Fetch(ctx, r.store, job.input, tmpDir)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageError, "failed to fetch input record", err)
		}
	}
	output, remote := storage.Output(job.output, tmpDir)

	if err := preflight(input, job.classDirs, output); err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if s.metricsFile != "" {
		m = metrics.New()
	}

	methods := filter.NewMethodSet(job.methods...)
	opts := engine.Options{
		Methods:        methods,
		MismatchPolicy: s.policy,
		Workers:        s.workers,
		ClassFilter:    filter.NewClassFilter(s.include, s.exclude),
		ExtraClasspath: s.classpath,
		Metrics:        m,
		Logger:         log,
		Progress: func(done, total int64) {
			log.Debug("Mapped %d/%d classes", done, total)
		},
	}
	if r.cache != nil {
		opts.Cache = r.cache
	}
	eng := engine.New(opts)

	log.Info("Filtering %d method name(s): %s", methods.Len(), methods)
	run := r.recorder.Begin(ctx, job.command, job.input, job.output, methods.Names(), s.policy)
	result, err := eng.Run(ctx, engine.Job{
		InputPath:   input,
		OutputPath:  output,
		ClassDirs:   job.classDirs,
		Compression: s.compression,
	})
	r.recorder.Finish(ctx, run, result, err)
	if err != nil {
		return result, err
	}

	if remote {
		if err := storage.Publish(ctx, r.store, output, job.output); err != nil {
			return result, apperrors.Wrap(apperrors.CodeStorageError, "failed to upload output record", err)
		}
		log.Info("Uploaded %s", r.store.URL(storage.Key(job.output)))
	}
	if s.publish != "" {
		if err := storage.Publish(ctx, r.store, output, s.publish); err != nil {
			return result, apperrors.Wrap(apperrors.CodeStorageError, "failed to publish output record", err)
		}
		log.Info("Published %s", r.store.URL(storage.Key(s.publish)))
	}

	if m != nil {
		if err := m.WriteTextfile(s.metricsFile); err != nil {
			log.Warn("Failed to write metrics: %v", err)
		}
	}

	if err := report.WriteSummary(cmd.OutOrStdout(), job.command+" "+job.output, result, report.SummaryOptions{Verbose: verbose}); err != nil {
		return result, err
	}
	return result, nil
}

// runOnce runs job with a fresh runner.
func runOnce(cmd *cobra.Command, f *runFlags, job filterJob) error {
	log := GetLogger()
	s, err := resolveSettings(cmd, f, cfg)
	if err != nil {
		return err
	}
	r, err := newRunner(s, job, log)
	if err != nil {
		return err
	}
	defer r.close()

	start := time.Now()
	if _, err := r.run(cmd.Context(), cmd, job); err != nil {
		return err
	}
	log.Debug("%s finished in %v", job.command, time.Since(start))
	return nil
}

// methodsArg parses the methods argument, falling back to the configured
// default set when the argument is empty.
func methodsArg(arg string) []string {
	if names := filter.ParseList(arg); len(names) > 0 {
		return names
	}
	return cfg.Filter.Methods
}
