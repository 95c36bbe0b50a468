package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/vidguard/internal/buildinfo"
)

// Command creates the version command.
func Command(info buildinfo.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			s := buildinfo.Summary(info)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vidguard %s\n", s["version"])
			fmt.Fprintf(out, "  build date: %s\n", s["build_date"])
			fmt.Fprintf(out, "  go version: %s\n", s["go_version"])
			fmt.Fprintf(out, "  platform:   %s\n", s["platform"])
		},
	}
}
