// Package jobs implements the client commands that submit and inspect
// analysis jobs on a running vidguard server.
package jobs

import (
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/spf13/cobra"

	apiv2 "github.com/tphakala/vidguard/internal/api/v2"
	"github.com/tphakala/vidguard/internal/client"
	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/moderation"
)

type options struct {
	server string
	poll   client.PollConfig
}

// Command creates the jobs command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{poll: client.DefaultPollConfig()}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Submit and inspect analysis jobs",
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", DefaultServerURL(settings), "URL of the vidguard server")

	cmd.AddCommand(
		submitCommand(opts),
		statusCommand(opts),
		waitCommand(opts),
		cancelCommand(opts),
		deleteCommand(opts),
		listCommand(opts),
		statsCommand(opts),
	)
	return cmd
}

// DefaultServerURL derives the client URL from the configured listen address.
func DefaultServerURL(settings *conf.Settings) string {
	host, port, err := net.SplitHostPort(settings.WebServer.Listen)
	if err != nil || port == "" {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (o *options) client() (*client.Client, error) {
	return client.New(o.server)
}

func addPollFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().DurationVar(&o.poll.Interval, "poll-interval", o.poll.Interval, "Delay between status reads")
	cmd.Flags().IntVar(&o.poll.MaxAttempts, "max-attempts", o.poll.MaxAttempts, "Status reads before giving up")
	cmd.Flags().BoolVar(&o.poll.CancelOnGiveUp, "cancel-on-timeout", false, "Cancel the job when waiting gives up")
}

func submitCommand(o *options) *cobra.Command {
	var (
		req  apiv2.SubmitRequest
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "submit <video_ref>",
		Short: "Submit a video for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			req.VideoRef = args[0]
			accepted, err := c.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), accepted)
			}
			job, err := c.Wait(cmd.Context(), accepted.ID, o.poll)
			if job != nil {
				if perr := printJSON(cmd.OutOrStdout(), job); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringToStringVar(&req.Levels, "level", nil, "Sensitivity level per check, e.g. nudity=strict")
	cmd.Flags().StringSliceVar(&req.Checks, "check", nil, "Run only these checks")
	cmd.Flags().StringSliceVar(&req.Required, "require", nil, "Checks whose failure fails the job")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the decision")
	addPollFlags(cmd, o)
	return cmd
}

func statusCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			job, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func waitCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait until a job has finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			job, err := c.Wait(cmd.Context(), args[0], o.poll)
			if job != nil {
				if perr := printJSON(cmd.OutOrStdout(), job); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	addPollFlags(cmd, o)
	return cmd
}

func cancelCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			job, err := c.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func deleteCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}

func listCommand(o *options) *cobra.Command {
	var state, verdict string
	var filter datastore.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			filter.State = moderation.JobState(state)
			filter.Verdict = moderation.Verdict(verdict)
			page, err := c.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only jobs in this state")
	cmd.Flags().StringVar(&verdict, "verdict", "", "Only jobs with this verdict")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Jobs to skip")
	return cmd
}

func statsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show decision statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
