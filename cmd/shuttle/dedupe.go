package main

import (
	"github.com/spf13/cobra"

	"github.com/lyallcooper/shuttle/internal/session"
)

var dedupeDryRun bool

var dedupeCmd = &cobra.Command{
	Use:   "dedupe DIR",
	Short: "Remove duplicate files under a local directory with fclones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := a.CheckTools(ctx, true); err != nil {
			return err
		}

		controller, err := a.Controller(nil, session.TerminalSpinner, true)
		if err != nil {
			return err
		}
		return controller.Dedupe(ctx, session.ExpandLocal(args[0]), dedupeDryRun)
	},
}

func init() {
	dedupeCmd.Flags().BoolVarP(&dedupeDryRun, "dry-run", "n", false, "Only list duplicates")
	rootCmd.AddCommand(dedupeCmd)
}
