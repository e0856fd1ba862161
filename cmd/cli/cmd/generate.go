package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jacoco-filter/pkg/filter"
)

var generateFlags runFlags

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate <output.exec> <classdirs> <methods>",
	Short: "Write a new record with the probes of named methods marked as hit",
	Long: `Start from an empty record and create an entry for every class that has
probes, marking the probes of the named methods as hit. The record gets a
single "method-filter" session spanning the run.

The result can be merged with real execution data by JaCoCo's merge task.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, &generateFlags, filterJob{
			command:   "generate",
			output:    args[0],
			classDirs: filter.ParseList(args[1]),
			methods:   methodsArg(args[2]),
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateFlags.bind(generateCmd)

	generateCmd.Example = `  ` + BinName() + ` generate boilerplate.exec target/classes equals,hashCode,toString --compress gzip`
}
