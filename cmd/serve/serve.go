package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/vidguard/internal/analysis"
	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/conf"
)

// Command creates the command that runs the moderation service.
func Command(settings *conf.Settings, info buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the moderation service",
		Long:  "Start the HTTP API and analyze submitted videos until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}
			return analysis.Serve(settings, info)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address of the HTTP API")
	cmd.Flags().IntVar(&settings.Moderation.MaxConcurrentJobs, "max-jobs", viper.GetInt("moderation.maxconcurrentjobs"), "Jobs analyzed at once")
	cmd.Flags().DurationVar(&settings.Moderation.JobTimeout, "job-timeout", viper.GetDuration("moderation.jobtimeout"), "Timeout for a whole analysis job")
	cmd.Flags().StringVar(&settings.Moderation.TimeoutPolicy, "timeout-policy", viper.GetString("moderation.timeoutpolicy"), "What a job timeout does: fail or resolve")
	cmd.Flags().StringVar(&settings.Moderation.PolicyFile, "policy", viper.GetString("moderation.policyfile"), "Policy table file, built-in table when empty")
	cmd.Flags().StringVar(&settings.Detectors.Mode, "detectors", viper.GetString("detectors.mode"), "Detector mode: stub or remote")
	cmd.Flags().StringVar(&settings.Media.BaseDir, "media-dir", viper.GetString("media.basedir"), "Directory local video references are resolved in")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus metrics")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "telemetry-listen", viper.GetString("telemetry.listen"), "Separate listen address for metrics, empty serves them on the API")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
