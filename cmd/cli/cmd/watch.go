package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacoco-filter/internal/storage"
	"github.com/jacoco-filter/internal/watch"
	apperrors "github.com/jacoco-filter/pkg/errors"
	"github.com/jacoco-filter/pkg/filter"
)

var (
	watchFlags    runFlags
	watchDebounce time.Duration
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <input.exec> <output.exec> <classdirs> <methods>",
	Short: "Rerun filter whenever the input record or the classes change",
	Long: `Run filter once, then watch the input record and the class directories and
run it again after every burst of changes. Stop with Ctrl+C.

The probe cache and the ledger stay open between runs. Record paths must be
local files.`,
	Args: cobra.ExactArgs(4),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags.bind(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period after the last change before rerunning")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	job := filterJob{
		command:   "watch",
		input:     args[0],
		output:    args[1],
		classDirs: filter.ParseList(args[2]),
		methods:   methodsArg(args[3]),
	}
	if storage.IsKey(job.input) || storage.IsKey(job.output) {
		return apperrors.New(apperrors.CodeInvalidInput, "watch needs local record paths")
	}

	s, err := resolveSettings(cmd, &watchFlags, cfg)
	if err != nil {
		return err
	}
	r, err := newRunner(s, job, log)
	if err != nil {
		return err
	}
	defer r.close()

	// The first run validates the job; later failures are only logged.
	ctx := cmd.Context()
	if _, err := r.run(ctx, cmd, job); err != nil {
		return err
	}

	w, err := watch.New(append([]string{job.input}, job.classDirs...), watch.Options{
		Debounce: watchDebounce,
		Ignore:   []string{job.output},
		Logger:   log,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "failed to watch inputs", err)
	}
	defer w.Close()

	log.Info("Watching %s and %d class location(s)", job.input, len(job.classDirs))
	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		log.Info("%d change(s), rerunning filter", len(changed))
		for _, p := range changed {
			log.Debug("  %s", p)
		}
		_, err := r.run(ctx, cmd, job)
		return err
	})
}
