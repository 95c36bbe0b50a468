// Package policy implements the command that prints the active policy table.
package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiv2 "github.com/tphakala/vidguard/internal/api/v2"
	"github.com/tphakala/vidguard/internal/client"
	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/policy"
)

// Command creates the policy command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		server  string
		asJSON  bool
		fromURL bool
	)
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the policy table",
		Long:  "Print the effective threshold and minimum interval count for every check and sensitivity level.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				resp *apiv2.PolicyResponse
				err  error
			)
			if fromURL {
				var c *client.Client
				if c, err = client.New(server); err != nil {
					return err
				}
				resp, err = c.Policy(cmd.Context())
			} else {
				resp, err = localPolicy(settings.Moderation.PolicyFile)
			}
			if err != nil {
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(resp, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
				return err
			}
			return printTable(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&settings.Moderation.PolicyFile, "file", viper.GetString("moderation.policyfile"), "Policy table file, built-in table when empty")
	cmd.Flags().BoolVar(&fromURL, "remote", false, "Read the table from a running server")
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "URL of the vidguard server")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// localPolicy loads the table from path and resolves every check and level.
func localPolicy(path string) (*apiv2.PolicyResponse, error) {
	table, err := policy.Load(path)
	if err != nil {
		return nil, err
	}
	return apiv2.NewPolicyResponse(table)
}

func printTable(w io.Writer, resp *apiv2.PolicyResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "policy version %s\n\n", resp.Version)
	fmt.Fprintln(tw, "CHECK\tLEVEL\tTHRESHOLD\tMIN INTERVALS")
	for _, check := range moderation.AllChecks {
		levels, ok := resp.Checks[check]
		if !ok {
			continue
		}
		for _, level := range resp.Levels {
			p, ok := levels[level]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%.0f\t%d\n", check, level, p.Threshold, p.MinIntervals)
		}
	}
	return tw.Flush()
}
