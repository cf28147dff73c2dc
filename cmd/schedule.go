package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/monitoring"
	"github.com/sells-group/lead-cli/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion (and optionally message generation) on a cron schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(env.Adapters) == 0 {
			return eris.New("schedule: no sources configured")
		}

		s, err := newScheduler(env)
		if err != nil {
			return err
		}

		go monitoring.NewCollector(env.Store).Run(ctx, 0)
		s.Run(ctx)
		return nil
	},
}

// newScheduler registers the recurring jobs env supports.
func newScheduler(env *leadEnv) (*schedule.Scheduler, error) {
	s := schedule.New()

	err := s.Add("ingest", cfg.Schedule.Cron, func(ctx context.Context) error {
		res, err := env.Pipeline.RunSources(ctx, env.Adapters, cfg.Batch.MaxConcurrentSources)
		if err != nil {
			return err
		}
		zap.L().Info("scheduled ingest complete",
			zap.String("run_id", res.RunID),
			zap.Int("processed", res.Total.Processed),
			zap.Int("qualified", res.Total.Qualified),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if env.Generator != nil {
		err := s.Add("messages", cfg.Schedule.MessagesCron, func(ctx context.Context) error {
			c, err := env.Generator.RunPending(ctx, cfg.Message.BatchLimit)
			if err != nil {
				return err
			}
			zap.L().Info("scheduled messages complete",
				zap.Int("generated", c.Generated),
				zap.Int("failed", c.Failed),
			)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
