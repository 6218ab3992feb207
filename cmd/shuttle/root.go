package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/shuttle/internal/app"
	"github.com/lyallcooper/shuttle/internal/session"
)

var globalOpts app.Options

var rootCmd = &cobra.Command{
	Use:   "shuttle",
	Short: "Move media between local and remote trees with rsync, deleting only what was confirmed sent.",
	Long: `shuttle pushes local directories to a remote host (or pulls them back)
with rsync, optionally removes duplicates with fclones first, and can delete
local files once rsync has confirmed each one was sent.

Run without a subcommand for an interactive session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInteractive,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&globalOpts.PersistLogs, "log", false, "Keep JSON logs and raw rsync/fclones output in the log directory")
	rootCmd.PersistentFlags().StringVar(&globalOpts.ConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/shuttle/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Debug, "debug", false, "Enable debug logging")

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

// setup initializes the app and returns a context carrying its logger that
// is cancelled on SIGINT or SIGTERM. The returned func releases both.
func setup(cmd *cobra.Command) (*app.App, context.Context, func(), error) {
	a, err := app.New(globalOpts)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(a.Context(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	return a, ctx, func() {
		stop()
		a.Close()
	}, nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	a, ctx, done, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	if err := a.CheckTools(ctx, false); err != nil {
		return err
	}
	withDedupe := a.Fclones.CheckInstalled(ctx) == nil

	controller, err := a.Controller(session.PromptUI{}, session.TerminalSpinner, withDedupe)
	if err != nil {
		return err
	}
	return controller.Run(ctx)
}
