// Package cmd holds the fieldctl operator commands.
package cmd

import (
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/fieldserve/fieldserve/internal/app"
	"github.com/fieldserve/fieldserve/jobs"
)

// QueueInspector is the inspector surface used by `jobs stats`.
type QueueInspector interface {
	jobs.QueueInspector
	Close() error
}

// Option customises the root command.
type Option func(*runtime)

// WithInspector replaces the asynq inspector factory.
func WithInspector(factory func(redisAddr string) QueueInspector) Option {
	return func(rt *runtime) {
		if factory != nil {
			rt.inspector = factory
		}
	}
}

type runtime struct {
	out       io.Writer
	cfg       *app.Config
	redisAddr string
	inspector func(redisAddr string) QueueInspector
}

// NewRootCommand builds the fieldctl command tree. Configuration comes from
// the same environment variables the services read.
func NewRootCommand(out io.Writer, opts ...Option) *cobra.Command {
	rt := &runtime{
		out: out,
		inspector: func(redisAddr string) QueueInspector {
			return asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
		},
	}
	for _, opt := range opts {
		opt(rt)
	}

	root := &cobra.Command{
		Use:           "fieldctl",
		Short:         "fieldserve operator CLI",
		Long:          "fieldctl mints and inspects credentials and reports notification queue state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if rt.redisAddr != "" {
				cfg.RedisAddr = rt.redisAddr
			}
			rt.cfg = cfg
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&rt.redisAddr, "redis", "", "Redis address (defaults to REDIS_ADDR)")
	root.AddCommand(newTokenCommand(rt), newJobsCommand(rt))
	return root
}
