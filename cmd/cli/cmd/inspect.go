package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/internal/report"
	"github.com/jacoco-filter/internal/storage"
	apperrors "github.com/jacoco-filter/pkg/errors"
)

var (
	inspectFormat string
	inspectPrefix string
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file.exec>",
	Short: "Print the sessions and entries of an execution record",
	Long: `Print the sessions and class entries of an execution record with their
probe counts and hit ratios. Gzip and zstd compressed records are detected
automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "Output format: table, json or yaml")
	inspectCmd.Flags().StringVarP(&inspectPrefix, "prefix", "p", "", "Only list classes whose name starts with this prefix")
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(inspectFormat)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid --format", err)
	}

	path := args[0]
	if storage.IsKey(path) {
		st, err := storage.New(&cfg.Storage)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeStorageError, "failed to open storage", err)
		}
		tmpDir, err := os.MkdirTemp("", "jacoco-filter-")
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "failed to create temp dir", err)
		}
		defer os.RemoveAll(tmpDir)
		if path, err = storage.Fetch(cmd.Context(), st, path, tmpDir); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageError, "failed to fetch record", err)
		}
	}

	store, err := execdata.LoadFile(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "record is not readable", err)
		}
		return apperrors.Wrap(apperrors.CodeRecordFormat, "failed to read record", err)
	}

	return report.WriteInspection(cmd.OutOrStdout(), report.NewInspection(args[0], store, inspectPrefix), format)
}
