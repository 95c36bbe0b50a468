package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/vidguard/cmd/jobs"
	"github.com/tphakala/vidguard/cmd/policy"
	"github.com/tphakala/vidguard/cmd/serve"
	"github.com/tphakala/vidguard/cmd/version"
	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info buildinfo.BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vidguard",
		Short:         "vidguard video moderation engine",
		Long:          "Analyze uploaded videos for policy violations and decide whether to approve, reject or send them to review.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		serve.Command(settings, info),
		jobs.Command(settings),
		policy.Command(settings),
		version.Command(info),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
