package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacoco-filter/internal/analyzer"
	"github.com/jacoco-filter/internal/classpath"
	"github.com/jacoco-filter/internal/probes"
	"github.com/jacoco-filter/internal/report"
	apperrors "github.com/jacoco-filter/pkg/errors"
	"github.com/jacoco-filter/pkg/filter"
)

var (
	probesClass   string
	probesFormat  string
	probesMethods []string
)

// probesCmd represents the probes command
var probesCmd = &cobra.Command{
	Use:   "probes <class file | dir | jar>",
	Short: "Print the probe ids JaCoCo assigns to each method",
	Long: `Replay JaCoCo's probe assignment for compiled classes and print, per class,
the probe ids owned by each method and the total probe count. With --method
only the named methods are listed; the ids and the total stay those of the
whole class.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbes,
}

func init() {
	rootCmd.AddCommand(probesCmd)

	probesCmd.Flags().StringVar(&probesClass, "class", "", "Only print this class (dot or slash form)")
	probesCmd.Flags().StringVarP(&probesFormat, "format", "f", "table", "Output format: table, json or yaml")
	probesCmd.Flags().StringSliceVarP(&probesMethods, "method", "m", nil, "Only list methods with these names (repeatable)")
}

func runProbes(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(probesFormat)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid --format", err)
	}
	root := args[0]
	only := filter.NormalizeName(strings.TrimSuffix(probesClass, ".class"))
	rec := probes.AllMethods
	if len(probesMethods) > 0 {
		rec = probes.ByName(filter.NewMethodSet(probesMethods...).Contains)
	}

	out := &report.ProbeMap{}
	if strings.HasSuffix(root, ".class") {
		b, err := os.ReadFile(root)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "class file is not readable", err)
		}
		cp, err := probes.MapClass(b, rec)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeParseError, "failed to map "+root, err)
		}
		out.Classes = append(out.Classes, cp)
		return report.WriteProbes(cmd.OutOrStdout(), out, format)
	}

	a := analyzer.New(analyzer.Options{Logger: GetLogger()})
	bundle, err := a.Analyze(cmd.Context(), root)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "failed to analyze "+root, err)
	}
	resolver, err := classpath.Open(root)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "failed to open "+root, err)
	}
	defer resolver.Close()

	for _, ce := range bundle.Errors {
		out.Errors = append(out.Errors, ce.Error())
	}
	for _, c := range bundle.Classes() {
		if only != "" && c.Name != only {
			continue
		}
		b, err := resolver.Resolve(c.Name)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		cp, err := probes.MapClass(b, rec)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		out.Classes = append(out.Classes, cp)
	}

	if only != "" && len(out.Classes) == 0 && len(out.Errors) == 0 {
		return apperrors.Newf(apperrors.CodeClassNotFound, "class %s not found in %s", only, root)
	}
	return report.WriteProbes(cmd.OutOrStdout(), out, format)
}
