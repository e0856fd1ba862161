package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jacoco-filter/internal/execdata"
)

var (
	// Version information, set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including build time and git commit.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s version %s\n", BinName(), Version)
		fmt.Fprintf(out, "  Git Commit:    %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time:    %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version:    %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "  Exec Format:   0x%04X\n", execdata.FormatVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
