package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/lyallcooper/shuttle/internal/app"
	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/output"
	"github.com/lyallcooper/shuttle/internal/scheduler"
	"github.com/lyallcooper/shuttle/internal/session"
)

var scheduleFlags struct {
	cron        string
	deleteAfter bool
	sudo        bool
	disabled    bool
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled push jobs run by the daemon",
}

var scheduleAddCmd = &cobra.Command{
	Use:     "add NAME SOURCE REMOTE",
	Short:   "Add a scheduled push job",
	Example: `  shuttle schedule add nightly ~/media/incoming/ media@nas:/srv/media/ --cron "0 3 * * *" --delete-after`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := scheduler.NextRun(scheduleFlags.cron, time.Now())
		if err != nil {
			return err
		}

		a, _, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		sudo := scheduleFlags.sudo
		if !cmd.Flags().Changed("sudo") {
			sudo = a.Config.RemoteSudo
		}

		job, err := a.Database.CreateScheduledJob(&db.ScheduledJob{
			Name:           args[0],
			Source:         session.ExpandLocal(args[1]),
			Destination:    args[2],
			CronExpression: scheduleFlags.cron,
			DeleteAfter:    scheduleFlags.deleteAfter,
			Sudo:           sudo,
			Enabled:        !scheduleFlags.disabled,
			NextRunAt:      &next,
		})
		if err != nil {
			return errors.Errorf("adding job %q: %w", args[0], err)
		}
		output.Jobs(cmd.OutOrStdout(), []*db.ScheduledJob{job})
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List scheduled jobs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		jobs, err := a.Database.ListScheduledJobs()
		if err != nil {
			return err
		}
		output.Jobs(cmd.OutOrStdout(), jobs)
		return nil
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Remove a scheduled job",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJob(cmd, args[0], func(a *app.App, job *db.ScheduledJob) error {
			if err := a.Database.DeleteScheduledJob(job.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", job.Name)
			return nil
		})
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob(cmd, args[0], func(a *app.App, job *db.ScheduledJob) error {
				if err := a.Database.SetJobEnabled(job.ID, enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, job.Name)
				return nil
			})
		},
	}
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run a scheduled job now, in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		job, err := a.Database.GetScheduledJobByName(args[0])
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Errorf("no scheduled job named %q", args[0])
		} else if err != nil {
			return err
		}
		if err := a.CheckTools(ctx, false); err != nil {
			return err
		}

		res, err := a.Scheduler().RunJob(ctx, job)
		if res != nil {
			if res.Report != nil {
				output.Legend(cmd.OutOrStdout())
			}
			output.Result(cmd.OutOrStdout(), res)
		}
		return err
	},
}

// withJob looks up a job by name and calls fn with it
func withJob(cmd *cobra.Command, name string, fn func(a *app.App, job *db.ScheduledJob) error) error {
	a, _, done, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	job, err := a.Database.GetScheduledJobByName(name)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Errorf("no scheduled job named %q", name)
	} else if err != nil {
		return err
	}
	return fn(a, job)
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleFlags.cron, "cron", "", `Cron expression, e.g. "0 3 * * *" or "@daily"`)
	scheduleAddCmd.Flags().BoolVar(&scheduleFlags.deleteAfter, "delete-after", false, "Delete local files rsync confirmed as sent")
	scheduleAddCmd.Flags().BoolVar(&scheduleFlags.sudo, "sudo", false, "Run rsync with sudo on the remote host")
	scheduleAddCmd.Flags().BoolVar(&scheduleFlags.disabled, "disabled", false, "Add the job without enabling it")
	scheduleAddCmd.MarkFlagRequired("cron")

	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd, scheduleRunCmd,
		setEnabledCmd("enable", "Enable a scheduled job", true),
		setEnabledCmd("disable", "Disable a scheduled job without removing it", false))
	rootCmd.AddCommand(scheduleCmd)
}
