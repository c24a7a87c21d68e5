package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldserve/fieldserve/jobs"
)

func newJobsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the notification queue",
	}
	var queue string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inspector := rt.inspector(rt.cfg.RedisAddr)
			defer func() {
				if err := inspector.Close(); err != nil {
					slog.Default().Warn("asynq inspector close", slog.Any("error", err))
				}
			}()
			s, err := jobs.InspectQueue(inspector, queue)
			if err != nil {
				return fmt.Errorf("inspect queue %s: %w", queue, err)
			}
			w := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPROCESSED\tFAILED\tPAUSED")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%t\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived, s.Processed, s.Failed, s.Paused)
			return w.Flush()
		},
	}
	stats.Flags().StringVar(&queue, "queue", jobs.QueueDefault, "queue name")
	cmd.AddCommand(stats)
	return cmd
}
