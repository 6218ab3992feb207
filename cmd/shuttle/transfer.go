package main

import (
	"github.com/spf13/cobra"

	"github.com/lyallcooper/shuttle/internal/rsync"
	"github.com/lyallcooper/shuttle/internal/session"
	"github.com/lyallcooper/shuttle/internal/transfer"
)

type transferFlags struct {
	dryRun      bool
	sudo        bool
	background  bool
	deleteAfter bool
}

var pushFlags, pullFlags transferFlags

var pushCmd = &cobra.Command{
	Use:   "push SOURCE REMOTE",
	Short: "Send a local directory to a remote host",
	Long: `Send SOURCE to REMOTE (user@host:/path) with rsync.

A trailing slash on SOURCE sends its contents rather than the directory
itself. With --delete-after, each local file rsync confirms as sent is
deleted once rsync exits successfully; anything rsync reported a problem
with is kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, rsync.DirectionPush, session.ExpandLocal(args[0]), args[1], pushFlags)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull REMOTE DESTINATION",
	Short: "Fetch a remote directory into a local one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, rsync.DirectionPull, args[0], session.ExpandLocal(args[1]), pullFlags)
	},
}

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *transferFlags
	}{{pushCmd, &pushFlags}, {pullCmd, &pullFlags}} {
		c.cmd.Flags().BoolVarP(&c.flags.dryRun, "dry-run", "n", false, "Show what would be transferred without changing anything")
		c.cmd.Flags().BoolVar(&c.flags.sudo, "sudo", false, "Run rsync with sudo on the remote host")
		c.cmd.Flags().BoolVarP(&c.flags.background, "background", "b", false, "Run rsync in the background")
		rootCmd.AddCommand(c.cmd)
	}
	pushCmd.Flags().BoolVar(&pushFlags.deleteAfter, "delete-after", false, "Delete local files rsync confirmed as sent")
}

func runTransfer(cmd *cobra.Command, direction rsync.Direction, source, destination string, flags transferFlags) error {
	a, ctx, done, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	if err := a.CheckTools(ctx, false); err != nil {
		return err
	}

	sudo := flags.sudo
	if !cmd.Flags().Changed("sudo") {
		sudo = a.Config.RemoteSudo
	}

	controller, err := a.Controller(nil, session.TerminalSpinner, false)
	if err != nil {
		return err
	}
	return controller.Execute(ctx, transfer.Request{
		Direction:   direction,
		Source:      source,
		Destination: destination,
		Options: transfer.Options{
			DryRun:          flags.dryRun,
			UseRemoteSudo:   sudo,
			RunInBackground: flags.background,
		},
		DeleteAfter: flags.deleteAfter,
	})
}
