package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jacoco-filter/pkg/filter"
)

var filterFlags runFlags

// filterCmd represents the filter command
var filterCmd = &cobra.Command{
	Use:   "filter <input.exec> <output.exec> <classdirs> <methods>",
	Short: "Mark the probes of named methods as hit in an existing record",
	Long: `Read an execution record, mark every probe of every method whose name is
in the comma-separated method list as hit, and write the result.

Class directories are comma-separated and may also name jar, war, ear or zip
archives. Classes that cannot be resolved, parsed or matched to the record
are skipped and reported; their entries pass through unchanged.

Record paths of the form store://<key> are read from and written to the
configured storage backend.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, &filterFlags, filterJob{
			command:   "filter",
			input:     args[0],
			output:    args[1],
			classDirs: filter.ParseList(args[2]),
			methods:   methodsArg(args[3]),
		})
	},
}

func init() {
	rootCmd.AddCommand(filterCmd)
	filterFlags.bind(filterCmd)

	binName := BinName()
	filterCmd.Example = `  # Mark generated methods as covered
  ` + binName + ` filter jacoco.exec filtered.exec target/classes equals,hashCode,toString

  # Two modules, skip classes whose checksum changed since the record was taken
  ` + binName + ` filter jacoco.exec out.exec core/target/classes,api/target/classes toString --mismatch skip

  # Read from and publish to object storage
  ` + binName + ` filter store://builds/42/jacoco.exec store://builds/42/filtered.exec target/classes toString`
}
