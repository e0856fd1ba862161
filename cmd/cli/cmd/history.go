package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jacoco-filter/internal/report"
	"github.com/jacoco-filter/internal/repository"
	apperrors "github.com/jacoco-filter/pkg/errors"
)

var (
	historyLimit  int
	historyFormat string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs from the ledger",
	Long: `List the most recent runs recorded with --ledger, newest first. With a run
id, print the per-class outcomes of that run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "Output format: table, json or yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(historyFormat)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid --format", err)
	}

	ledger, err := repository.Open(&cfg.Ledger)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to open ledger", err)
	}
	defer ledger.Close()

	ctx := cmd.Context()
	if len(args) == 1 {
		run, err := ledger.Runs.GetRun(ctx, args[0])
		if err != nil {
			return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to load run", err)
		}
		classes, err := ledger.Runs.ListRunClasses(ctx, run.ID)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to load run classes", err)
		}
		return report.WriteRunClasses(cmd.OutOrStdout(), classes, format)
	}

	runs, err := ledger.Runs.ListRuns(ctx, historyLimit)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list runs", err)
	}
	return report.WriteRuns(cmd.OutOrStdout(), runs, format)
}
