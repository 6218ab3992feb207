package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled jobs until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := a.CheckTools(ctx, false); err != nil {
			return err
		}

		log := zerolog.Ctx(ctx)
		sched := a.Scheduler()
		sched.Start(ctx)
		log.Info().Int("retention_days", a.Config.RetentionDays).Msg("scheduler started")

		<-ctx.Done()

		log.Info().Msg("shutting down, waiting for the running job")
		sched.Stop()
		log.Info().Msg("scheduler stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
